// Package comex queries the ComexStat foreign-trade API for import
// statistics of one NCM code.
package comex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/david/radar-licitacoes/internal/apperr"
	"github.com/david/radar-licitacoes/internal/textutil"
	"github.com/david/radar-licitacoes/internal/upstream"
)

// DefaultBaseURLs are tried in order.
var DefaultBaseURLs = []string{
	"https://api-comexstat.mdic.gov.br",
	"https://api.comexstat.mdic.gov.br",
}

const firstYear = 1997

// Client calls ComexStat, falling back across base URLs.
type Client struct {
	BaseURLs []string
	fetcher  *upstream.Fetcher
	now      func() time.Time
}

func NewClient(baseURLs []string, cfg upstream.Config) *Client {
	if len(baseURLs) == 0 {
		baseURLs = DefaultBaseURLs
	}
	if cfg.Service == "" {
		cfg.Service = "ComexStat"
	}
	return &Client{
		BaseURLs: baseURLs,
		fetcher:  upstream.NewFetcher(cfg),
		now:      time.Now,
	}
}

// YearRange is the span of years with published data.
type YearRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Years asks /general/dates/years for the available range. Any failure
// falls back to 1997 through last year.
func (c *Client) Years(ctx context.Context) YearRange {
	for _, base := range c.BaseURLs {
		var body struct {
			Data *struct {
				Min json.Number `json:"min"`
				Max json.Number `json:"max"`
			} `json:"data"`
			Min json.Number `json:"min"`
			Max json.Number `json:"max"`
		}
		ok, err := c.fetcher.GetJSON(ctx, base+"/general/dates/years", &body)
		if err != nil || !ok {
			zerolog.Ctx(ctx).Warn().Err(err).Str("base", base).Msg("comexstat years lookup failed")
			continue
		}

		minV, maxV := body.Min, body.Max
		if body.Data != nil {
			minV, maxV = body.Data.Min, body.Data.Max
		}
		lo, errLo := strconv.Atoi(minV.String())
		hi, errHi := strconv.Atoi(maxV.String())
		if errLo == nil && errHi == nil {
			return YearRange{Min: lo, Max: hi}
		}
	}
	return YearRange{Min: firstYear, Max: c.now().Year() - 1}
}

// General runs one /general query and decodes the answer loosely.
func (c *Client) General(ctx context.Context, f Filter) (any, error) {
	raw, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode filter: %w", err)
	}
	path := "/general?filter=" + url.QueryEscape(string(raw))

	var lastErr error
	for _, base := range c.BaseURLs {
		var out any
		ok, err := c.fetcher.GetJSON(ctx, base+path, &out)
		if err == nil {
			if !ok {
				return nil, nil
			}
			return out, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		zerolog.Ctx(ctx).Warn().Err(err).Str("base", base).Msg("comexstat query failed, trying next base")
	}
	if lastErr == nil {
		lastErr = errors.New("no ComexStat base URL configured")
	}
	return nil, lastErr
}

// Ping reports the status and the first bytes of the years endpoint of the
// first base URL.
func (c *Client) Ping(ctx context.Context) (int, string, error) {
	if len(c.BaseURLs) == 0 {
		return 0, "", &apperr.ConfigurationError{Field: "comex.base_urls", Message: "no ComexStat base URL configured"}
	}
	resp, err := c.fetcher.Get(ctx, c.BaseURLs[0]+"/general/dates/years")
	if err != nil {
		var uerr *apperr.UpstreamError
		if errors.As(err, &uerr) && uerr.StatusCode != 0 {
			return uerr.StatusCode, uerr.Snippet, nil
		}
		return 0, "", err
	}
	return resp.StatusCode, textutil.Truncate(string(resp.Body), 200), nil
}
