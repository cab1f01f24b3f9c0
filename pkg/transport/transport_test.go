package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/internal/wire"
	apperrors "github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/errors"
)

func echoHandler(t *testing.T, wantProto int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.ProtoMajor != wantProto {
			t.Errorf("request proto %s, want major %d", r.Proto, wantProto)
		}
		if r.Method == http.MethodGet && r.URL.Path == wire.PathStats {
			io.WriteString(w, "segments=3\ndocs_total=12000\n")
			return
		}
		if ct := r.Header.Get("Content-Type"); ct != wire.ContentType {
			t.Errorf("content type %q", ct)
		}
		body, _ := io.ReadAll(r.Body)
		w.Header().Set(wire.IngestedHeader, "7")
		w.WriteHeader(http.StatusAccepted)
		w.Write(body)
	}
}

func TestHTTP1PostAndStats(t *testing.T) {
	srv := httptest.NewServer(echoHandler(t, 1))
	defer srv.Close()

	s, err := NewHTTPSession(Options{BaseURL: srv.URL + "/"})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	resp, err := s.Post(context.Background(), wire.PathIngestBin, []byte("payload"))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusAccepted || resp.Ingested != 7 || string(resp.Body) != "payload" {
		t.Errorf("unexpected response: %+v", resp)
	}

	st, err := FetchStats(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	if st.Segments != 3 || st.DocsTotal != 12000 {
		t.Errorf("stats = %+v", st)
	}
}

func TestH2CSession(t *testing.T) {
	srv := httptest.NewServer(h2c.NewHandler(echoHandler(t, 2), &http2.Server{}))
	defer srv.Close()

	s, err := NewHTTPSession(Options{BaseURL: srv.URL, Protocol: H2C})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	resp, err := s.Post(context.Background(), wire.PathSearch, []byte{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestHTTP2OverTLSSession(t *testing.T) {
	srv := httptest.NewUnstartedServer(echoHandler(t, 2))
	srv.EnableHTTP2 = true
	srv.StartTLS()
	defer srv.Close()

	s, err := NewHTTPSession(Options{BaseURL: srv.URL, Protocol: HTTP2, InsecureSkipVerify: true})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, err := s.Post(context.Background(), wire.PathIngestBin, []byte("x")); err != nil {
		t.Fatal(err)
	}
}

func TestNewHTTPSessionValidation(t *testing.T) {
	tests := []Options{
		{BaseURL: "not a url"},
		{BaseURL: "ftp://host"},
		{BaseURL: "http://host", Protocol: HTTP2},
		{BaseURL: "https://host", Protocol: H2C},
		{BaseURL: "http://host", Protocol: "spdy"},
	}
	for _, opts := range tests {
		if _, err := NewHTTPSession(opts); !errors.Is(err, apperrors.ErrInvalidConfig) {
			t.Errorf("%+v: expected ErrInvalidConfig, got %v", opts, err)
		}
	}
}

func TestPostTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	s, err := NewHTTPSession(Options{BaseURL: url})
	if err != nil {
		t.Fatal(err)
	}
	_, err = s.Post(context.Background(), wire.PathIngestBin, nil)
	if !errors.Is(err, apperrors.ErrTransport) || !apperrors.IsRetryable(err) {
		t.Errorf("expected retryable transport error, got %v", err)
	}
}

func TestMissingIngestedHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()
	s, _ := NewHTTPSession(Options{BaseURL: srv.URL})
	resp, err := s.Post(context.Background(), wire.PathIngestBin, nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Ingested != -1 || resp.StatusCode != http.StatusOK {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestParseStats(t *testing.T) {
	st, err := ParseStats([]byte("segments=2\n\ndocs_total=5\nversion=abc\n"))
	if err != nil {
		t.Fatal(err)
	}
	if st.Segments != 2 || st.DocsTotal != 5 || st.Extra["version"] != "abc" {
		t.Errorf("stats = %+v", st)
	}
	for _, bad := range []string{"segments", "docs_total=many"} {
		if _, err := ParseStats([]byte(bad)); !errors.Is(err, apperrors.ErrDecode) {
			t.Errorf("%q: expected decode error, got %v", bad, err)
		}
	}
}

func TestParseProtocol(t *testing.T) {
	for in, want := range map[string]Protocol{"": HTTP1, "H2": HTTP2, "h2c": H2C, " h1 ": HTTP1} {
		got, err := ParseProtocol(in)
		if err != nil || got != want {
			t.Errorf("ParseProtocol(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseProtocol("h3"); err == nil {
		t.Error("expected error for h3")
	}
}
