package c4client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/park285/connect4-server/internal/domain"
	"github.com/park285/connect4-server/pkg/c4dto"
)

// ErrNotFound is returned for 404 responses.
var ErrNotFound = errors.New("not found")

// Client talks to the read API.
type Client struct {
	baseURL string
	http    *fasthttp.Client

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		defaultTimeout: 5 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Health(ctx context.Context) (*c4dto.Health, error) {
	var h c4dto.Health
	if err := c.getJSON(ctx, "/health", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (c *Client) Leaderboard(ctx context.Context, limit int) ([]domain.Standing, error) {
	var body struct {
		Standings []domain.Standing `json:"standings"`
	}
	if err := c.getJSON(ctx, "/leaderboard?limit="+strconv.Itoa(limit), &body); err != nil {
		return nil, err
	}
	return body.Standings, nil
}

func (c *Client) RecentMatches(ctx context.Context, limit int) ([]domain.CompletedMatchRecord, error) {
	var body struct {
		Matches []domain.CompletedMatchRecord `json:"matches"`
	}
	if err := c.getJSON(ctx, "/matches/recent?limit="+strconv.Itoa(limit), &body); err != nil {
		return nil, err
	}
	return body.Matches, nil
}

// Session returns the stored snapshot, or ErrNotFound.
func (c *Client) Session(ctx context.Context, sessionID string) (*c4dto.PublicState, error) {
	var st c4dto.PublicState
	if err := c.getJSON(ctx, "/sessions/"+url.PathEscape(sessionID), &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()
	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(c.baseURL + path)
	req.Header.Set("Accept", "application/json")

	attempts := c.retryMax
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx)); err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
		} else {
			status := resp.StatusCode()
			switch {
			case status == fasthttp.StatusNotFound:
				return ErrNotFound
			case status >= 200 && status < 300:
				if err := json.Unmarshal(resp.Body(), out); err != nil {
					return fmt.Errorf("decode response: %w", err)
				}
				return nil
			default:
				lastErr = fmt.Errorf("api error: status=%d body=%s", status, truncate(string(resp.Body()), 512))
				if !shouldRetryStatus(status) {
					return lastErr
				}
			}
		}
		if attempt == attempts {
			break
		}
		if err := sleepWithContext(ctx, backoffDuration(attempt)); err != nil {
			return lastErr
		}
	}
	return lastErr
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
