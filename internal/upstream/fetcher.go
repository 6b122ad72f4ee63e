// Package upstream performs the HTTP calls to the public APIs behind the
// dashboard: one GET, a JSON body back, typed failures with a short
// diagnostic excerpt of whatever the server answered.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/david/radar-licitacoes/internal/apperr"
	"github.com/david/radar-licitacoes/internal/textutil"
)

const (
	snippetLen   = 300
	maxBodyBytes = 20 * 1024 * 1024
)

// Config tunes one Fetcher. Zero values pick the defaults below.
type Config struct {
	Service        string
	TimeoutSeconds int     // default 30
	MaxRetries     int     // 0 = single attempt
	RateLimitRPS   float64 // 0 = unlimited
	UserAgent      string
}

// Fetcher issues GET requests with a timeout, an optional token-bucket
// limiter and bounded retries on 429/5xx/timeouts.
type Fetcher struct {
	Client     *http.Client
	Service    string
	UserAgent  string
	MaxRetries int
	limiter    *rate.Limiter
	backoff    func(attempt int) time.Duration
}

func NewFetcher(cfg Config) *Fetcher {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "radar-licitacoes/1.0 (Go)"
	}
	if cfg.Service == "" {
		cfg.Service = "upstream"
	}

	f := &Fetcher{
		Client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ForceAttemptHTTP2:     true,
				MaxIdleConns:          100,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		Service:    cfg.Service,
		UserAgent:  cfg.UserAgent,
		MaxRetries: cfg.MaxRetries,
		backoff:    defaultBackoff,
	}
	if cfg.RateLimitRPS > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), 1)
	}
	return f
}

// Response is a successful upstream answer.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Get fetches rawURL and returns the body of a 2xx answer. Non-2xx answers
// become *apperr.UpstreamError after retries are exhausted.
func (f *Fetcher) Get(ctx context.Context, rawURL string) (*Response, error) {
	logger := zerolog.Ctx(ctx)

	var lastErr error
	for attempt := 0; attempt <= f.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.backoff(attempt)):
			}
			logger.Debug().Str("service", f.Service).Int("attempt", attempt).Err(lastErr).Msg("retrying upstream call")
		}

		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		resp, err := f.do(ctx, rawURL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			if shouldRetry(err, 0) {
				continue
			}
			return nil, err
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		lastErr = &apperr.UpstreamError{
			Service:    f.Service,
			StatusCode: resp.StatusCode,
			Snippet:    DiagnosticSnippet(resp.ContentType, resp.Body),
		}
		if !shouldRetry(nil, resp.StatusCode) {
			return nil, lastErr
		}
	}

	return nil, lastErr
}

// GetJSON fetches rawURL and decodes the body into out. An empty body
// (HTTP 204 included) leaves out untouched and reports false.
func (f *Fetcher) GetJSON(ctx context.Context, rawURL string, out any) (bool, error) {
	resp, err := f.Get(ctx, rawURL)
	if err != nil {
		return false, err
	}
	if resp.StatusCode == http.StatusNoContent || len(strings.TrimSpace(string(resp.Body))) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		if json.Valid(resp.Body) {
			return false, &apperr.UpstreamError{
				Service: f.Service,
				Err:     fmt.Errorf("unexpected response shape: %w", err),
			}
		}
		return false, &apperr.UpstreamError{
			Service: f.Service,
			NonJSON: true,
			Snippet: DiagnosticSnippet(resp.ContentType, resp.Body),
			Err:     err,
		}
	}
	return true, nil
}

func (f *Fetcher) do(ctx context.Context, rawURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", f.UserAgent)

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, &apperr.UpstreamError{Service: f.Service, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &apperr.UpstreamError{Service: f.Service, Err: fmt.Errorf("reading body: %w", err)}
	}

	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// DiagnosticSnippet renders a short, readable excerpt of an error body:
// the message field of a JSON error, the text of an HTML page, or the raw
// text, truncated.
func DiagnosticSnippet(contentType string, body []byte) string {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return ""
	}

	var payload map[string]any
	if json.Unmarshal(body, &payload) == nil {
		for _, k := range []string{"message", "mensagem", "error", "erro"} {
			if msg, ok := payload[k].(string); ok && strings.TrimSpace(msg) != "" {
				return textutil.Truncate(textutil.CleanText(msg), snippetLen)
			}
		}
	}

	if strings.Contains(contentType, "html") || strings.HasPrefix(text, "<") {
		text = textutil.HTMLToText(text)
	}
	return textutil.Truncate(textutil.CleanText(text), snippetLen)
}

// shouldRetry determines if an error or status code should trigger a retry.
func shouldRetry(err error, statusCode int) bool {
	if err != nil {
		var netErr interface{ Timeout() bool }
		return errors.As(err, &netErr) && netErr.Timeout()
	}

	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Exponential backoff: 0.5s, 1s, 2s + jitter.
func defaultBackoff(attempt int) time.Duration {
	backoff := time.Duration(500*(1<<uint(attempt-1))) * time.Millisecond
	return backoff + time.Duration(rand.Intn(100))*time.Millisecond
}
