package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/http2"

	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/internal/wire"
	apperrors "github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/errors"
)

// maxBody caps how much of a response body is read into memory.
const maxBody = 64 << 20

type Options struct {
	BaseURL            string
	Protocol           Protocol
	InsecureSkipVerify bool
	MaxIdleConns       int
}

// HTTPSession is a Session backed by its own http.Client and connection pool.
type HTTPSession struct {
	base   string
	client *http.Client
	closer func()
}

// NewHTTPSession validates opts and builds a client for the chosen protocol.
// h2 requires an https target; h2c requires plain http.
func NewHTTPSession(opts Options) (*HTTPSession, error) {
	u, err := url.Parse(opts.BaseURL)
	if err != nil || u.Host == "" {
		return nil, apperrors.Invalidf("target base url %q is not absolute", opts.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, apperrors.Invalidf("target base url scheme %q not supported", u.Scheme)
	}
	if opts.Protocol == "" {
		opts.Protocol = HTTP1
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = 4
	}
	tlsCfg := &tls.Config{InsecureSkipVerify: opts.InsecureSkipVerify}

	var rt http.RoundTripper
	var closer func()
	switch opts.Protocol {
	case HTTP1:
		t := &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        opts.MaxIdleConns,
			MaxIdleConnsPerHost: opts.MaxIdleConns,
			IdleConnTimeout:     90 * time.Second,
			TLSClientConfig:     tlsCfg,
			TLSNextProto:        map[string]func(string, *tls.Conn) http.RoundTripper{},
		}
		rt, closer = t, t.CloseIdleConnections
	case HTTP2:
		if u.Scheme != "https" {
			return nil, apperrors.Invalidf("protocol h2 needs an https target, got %q", opts.BaseURL)
		}
		t := &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        opts.MaxIdleConns,
			MaxIdleConnsPerHost: opts.MaxIdleConns,
			IdleConnTimeout:     90 * time.Second,
			TLSClientConfig:     tlsCfg,
		}
		if err := http2.ConfigureTransport(t); err != nil {
			return nil, fmt.Errorf("configuring http2 transport: %w", err)
		}
		rt, closer = t, t.CloseIdleConnections
	case H2C:
		if u.Scheme != "http" {
			return nil, apperrors.Invalidf("protocol h2c needs an http target, got %q", opts.BaseURL)
		}
		t := &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, addr)
			},
			ReadIdleTimeout: 30 * time.Second,
		}
		rt, closer = t, t.CloseIdleConnections
	default:
		return nil, apperrors.Invalidf("unknown protocol %q", opts.Protocol)
	}

	return &HTTPSession{
		base:   strings.TrimRight(opts.BaseURL, "/"),
		client: &http.Client{Transport: rt},
		closer: closer,
	}, nil
}

// HTTPFactory returns a Factory building an independent HTTPSession per call.
func HTTPFactory(opts Options) Factory {
	return func() (Session, error) {
		return NewHTTPSession(opts)
	}
}

func (s *HTTPSession) Post(ctx context.Context, path string, body []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.base+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", wire.ContentType)
	return s.do(req)
}

func (s *HTTPSession) Get(ctx context.Context, path string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.base+path, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	return s.do(req)
}

func (s *HTTPSession) do(req *http.Request) (*Response, error) {
	op := req.Method + " " + req.URL.Path
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, apperrors.Transport(op, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, apperrors.Transport(op+" reading body", err)
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Ingested:   parseIngested(resp.Header.Get(wire.IngestedHeader)),
		Body:       body,
	}, nil
}

func parseIngested(v string) int {
	if v == "" {
		return -1
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return -1
	}
	return n
}

func (s *HTTPSession) Close() error {
	if s.closer != nil {
		s.closer()
	}
	return nil
}
