// Package client is the synchronous query path: sign text, encode the
// request, POST it to /search and decode the ranked hits. Queries are
// single-shot and never retried.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/internal/signature"
	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/internal/wire"
	apperrors "github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/transport"
)

// Query describes a text search.
type Query struct {
	K        int
	Fuzzy    bool
	WithMeta bool
	Width    signature.Width
	// SendText appends the raw text trailer for server-side prefix and exact
	// scoring. It requires the 256-bit width.
	SendText bool
}

func (q Query) request(text string) (wire.QueryRequest, error) {
	if q.K < 1 || q.K > 0xFFFF {
		return wire.QueryRequest{}, apperrors.Invalidf("k must be in [1, 65535], got %d", q.K)
	}
	width := q.Width
	if width == 0 {
		width = signature.Width256
	}
	if _, err := signature.ParseWidth(int(width)); err != nil {
		return wire.QueryRequest{}, apperrors.Invalidf("%v", err)
	}
	if q.SendText && width != signature.Width256 {
		return wire.QueryRequest{}, apperrors.Invalidf("send-text needs the %d-bit width, got %d", signature.Width256, width)
	}
	req := wire.QueryRequest{
		K:         uint16(q.K),
		Signature: signature.Encode(text, width).Words(),
	}
	if q.Fuzzy {
		req.Flags |= wire.FlagFuzzyJaccard
	}
	if q.WithMeta {
		req.Flags |= wire.FlagWithMeta
	}
	if q.SendText {
		req.Text = text
	}
	return req, nil
}

type Option func(*Client)

// WithCache serves repeated identical requests from c.
func WithCache(c *cache.QueryCache) Option { return func(cl *Client) { cl.cache = c } }

func WithMetrics(m *metrics.Metrics) Option { return func(cl *Client) { cl.metrics = m } }

// WithTimeout bounds each call. Zero means no extra deadline.
func WithTimeout(d time.Duration) Option { return func(cl *Client) { cl.timeout = d } }

type Client struct {
	session transport.Session
	cache   *cache.QueryCache
	metrics *metrics.Metrics
	timeout time.Duration
	logger  *slog.Logger
}

func New(session transport.Session, opts ...Option) *Client {
	c := &Client{
		session: session,
		logger:  logger.WithComponent("search-client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = metrics.NewUnregistered()
	}
	return c
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// Search sends req and decodes the answer. A non-2xx status is ErrRejected;
// a malformed body is ErrDecode.
func (c *Client) Search(ctx context.Context, req wire.QueryRequest) (*wire.QueryResponse, error) {
	body, err := req.Encode()
	if err != nil {
		return nil, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	cacheStatus := "none"
	var raw []byte
	if c.cache != nil {
		var hit bool
		raw, hit, err = c.cache.GetOrCompute(ctx, body, func() ([]byte, error) {
			return c.post(ctx, body)
		})
		cacheStatus = "miss"
		if hit {
			cacheStatus = "hit"
			c.metrics.CacheHitsTotal.Inc()
		} else {
			c.metrics.CacheMissesTotal.Inc()
		}
	} else {
		raw, err = c.post(ctx, body)
	}
	c.metrics.QueryLatency.WithLabelValues(cacheStatus).Observe(time.Since(start).Seconds())
	if err != nil {
		if apperrors.Is(err, apperrors.ErrRejected) {
			c.metrics.QueriesTotal.WithLabelValues("rejected").Inc()
		} else {
			c.metrics.QueriesTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	resp, err := wire.DecodeQueryResponse(raw, req.WithMeta())
	if err != nil {
		c.metrics.QueriesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	c.metrics.QueriesTotal.WithLabelValues("ok").Inc()
	c.metrics.QueryHitCount.Observe(float64(resp.HitCount))
	if resp.Truncated {
		c.logger.Warn("response truncated", "hit_count", resp.HitCount, "decoded", len(resp.Hits))
	}
	c.logger.Debug("search done", "k", req.K, "flags", req.Flags, "hit_count", resp.HitCount, "cache", cacheStatus)
	return resp, nil
}

func (c *Client) post(ctx context.Context, body []byte) ([]byte, error) {
	resp, err := c.session.Post(ctx, wire.PathSearch, body)
	if err != nil {
		return nil, err
	}
	if !apperrors.IsSuccess(resp.StatusCode) {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrRejected, apperrors.NewStatus(resp.StatusCode, resp.Body))
	}
	return resp.Body, nil
}

// SearchText signs text and searches for it.
func (c *Client) SearchText(ctx context.Context, text string, q Query) (*wire.QueryResponse, error) {
	req, err := q.request(text)
	if err != nil {
		return nil, err
	}
	return c.Search(ctx, req)
}

// IngestText posts one auto-id record and returns the server's X-Ingested
// count, or -1 when the header is absent.
func (c *Client) IngestText(ctx context.Context, text string) (int, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	payload := wire.EncodeRecords([]wire.Record{{DocID: wire.AutoID, Text: text}})
	resp, err := c.session.Post(ctx, wire.PathIngestBin, payload)
	if err != nil {
		return 0, err
	}
	if !apperrors.IsSuccess(resp.StatusCode) {
		return 0, fmt.Errorf("%w: %w", apperrors.ErrRejected, apperrors.NewStatus(resp.StatusCode, resp.Body))
	}
	return resp.Ingested, nil
}
