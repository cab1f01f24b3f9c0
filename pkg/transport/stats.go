package transport

import (
	"bufio"
	"bytes"
	"context"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/internal/wire"
	apperrors "github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/errors"
)

// ServerStats is the parsed body of GET /stats.
type ServerStats struct {
	Segments  int64
	DocsTotal int64
	// Extra holds any key the parser does not know.
	Extra map[string]string
}

// ParseStats reads "key=value" lines. Blank lines are skipped.
func ParseStats(body []byte) (ServerStats, error) {
	st := ServerStats{Extra: map[string]string{}}
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			return ServerStats{}, apperrors.Decodef("stats line %q has no '='", line)
		}
		key, val = strings.TrimSpace(key), strings.TrimSpace(val)
		switch key {
		case "segments", "docs_total":
			n, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return ServerStats{}, apperrors.Decodef("stats %s=%q is not an integer", key, val)
			}
			if key == "segments" {
				st.Segments = n
			} else {
				st.DocsTotal = n
			}
		default:
			st.Extra[key] = val
		}
	}
	return st, nil
}

// FetchStats issues GET /stats and parses the answer.
func FetchStats(ctx context.Context, g Getter) (ServerStats, error) {
	resp, err := g.Get(ctx, wire.PathStats)
	if err != nil {
		return ServerStats{}, err
	}
	if !apperrors.IsSuccess(resp.StatusCode) {
		return ServerStats{}, apperrors.NewStatus(resp.StatusCode, resp.Body)
	}
	return ParseStats(resp.Body)
}
