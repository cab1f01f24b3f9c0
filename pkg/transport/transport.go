// Package transport carries encoded request bodies to the remote index.
// Every upload worker owns its own Session; sessions are never shared.
package transport

import (
	"context"
	"fmt"
	"strings"
)

// Response is what the caller needs from one round trip. A non-2xx status is
// not an error at this layer.
type Response struct {
	StatusCode int
	// Ingested is the X-Ingested header value, or -1 when absent.
	Ingested int
	Body     []byte
}

// Session posts binary bodies to paths relative to a fixed target.
type Session interface {
	Post(ctx context.Context, path string, body []byte) (*Response, error)
	Close() error
}

// Getter is implemented by sessions that can issue plain GETs.
type Getter interface {
	Get(ctx context.Context, path string) (*Response, error)
}

// Factory opens a fresh Session. The pipeline calls it once per worker.
type Factory func() (Session, error)

// Protocol selects the HTTP flavour used by HTTPSession.
type Protocol string

const (
	HTTP1 Protocol = "h1"
	HTTP2 Protocol = "h2"
	H2C   Protocol = "h2c"
)

// ParseProtocol accepts h1, h2 and h2c, case-insensitively. Empty means h1.
func ParseProtocol(s string) (Protocol, error) {
	switch p := Protocol(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return HTTP1, nil
	case HTTP1, HTTP2, H2C:
		return p, nil
	default:
		return "", fmt.Errorf("unknown protocol %q (want h1, h2 or h2c)", s)
	}
}
