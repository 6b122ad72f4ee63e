package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/david/radar-licitacoes/internal/scan"
)

// ndjsonWriter writes one JSON document per line and flushes after each one.
type ndjsonWriter struct {
	res *echo.Response
	enc *json.Encoder
}

func newNDJSONWriter(c echo.Context) *ndjsonWriter {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/plain; charset=utf-8")
	res.Header().Set("Cache-Control", "no-store")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(res)
	enc.SetEscapeHTML(false)
	return &ndjsonWriter{res: res, enc: enc}
}

// Send writes v and flushes it to the client. An error means the client is
// gone.
func (w *ndjsonWriter) Send(v any) error {
	if err := w.enc.Encode(v); err != nil {
		return err
	}
	w.res.Flush()
	return nil
}

// pump drains events into w, converting each with encode (nil skips the
// event). When the client goes away the scan is canceled and the remaining
// events are drained unwritten. It returns the terminal event.
func pump(events <-chan scan.Event, w *ndjsonWriter, cancel context.CancelFunc, encode func(scan.Event) any) scan.Event {
	var last scan.Event
	gone := false
	for ev := range events {
		if ev.Terminal() {
			last = ev
		}
		if gone {
			continue
		}
		msg := encode(ev)
		if msg == nil {
			continue
		}
		if err := w.Send(msg); err != nil {
			gone = true
			cancel()
		}
	}
	return last
}
