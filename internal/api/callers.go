package api

import (
	"context"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"
)

const clientIDHeader = "X-Client-ID"

// callerID identifies the caller by the X-Client-ID header, falling back to
// the client IP.
func callerID(c echo.Context) string {
	if id := strings.TrimSpace(c.Request().Header.Get(clientIDHeader)); id != "" {
		return id
	}
	return c.RealIP()
}

// jobKey scopes background jobs apart from a caller's interactive scans, so
// a later search does not cancel a detached job.
func jobKey(caller string) string {
	return caller + "/job"
}

// callerScans keeps at most one active scan per caller. Starting a scan
// cancels the caller's previous one.
type callerScans struct {
	mu     sync.Mutex
	seq    uint64
	active map[string]callerScan
}

type callerScan struct {
	seq    uint64
	cancel context.CancelFunc
}

func newCallerScans() *callerScans {
	return &callerScans{active: make(map[string]callerScan)}
}

// Begin registers a scan for caller and returns its context. release must be
// called when the scan ends; it is safe to call more than once.
func (t *callerScans) Begin(parent context.Context, caller string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)

	t.mu.Lock()
	if prev, ok := t.active[caller]; ok {
		prev.cancel()
	}
	t.seq++
	seq := t.seq
	t.active[caller] = callerScan{seq: seq, cancel: cancel}
	t.mu.Unlock()

	release := func() {
		cancel()
		t.mu.Lock()
		if cur, ok := t.active[caller]; ok && cur.seq == seq {
			delete(t.active, caller)
		}
		t.mu.Unlock()
	}
	return ctx, release
}

// Active returns the number of callers with a running scan.
func (t *callerScans) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}
