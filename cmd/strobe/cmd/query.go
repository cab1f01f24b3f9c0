package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/internal/searcher/client"
	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/internal/signature"
	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/internal/wire"
	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/config"
	pkgredis "github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/redis"
)

type queryOptions struct {
	k          int
	fuzzy      bool
	withMeta   bool
	width      int
	limit      int
	sendText   bool
	useCache   bool
	flushCache bool
}

func queryCmd(a *app) *cobra.Command {
	o := &queryOptions{}
	cmd := &cobra.Command{
		Use:   "query <text>...",
		Short: "Search the index by text signature.",
		Long: `Encodes the text as a shingle signature, posts it to /search and prints
the ranked hits. Repeated identical queries are served from Redis when the
cache is enabled.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.load(cmd)
			if err != nil {
				return err
			}
			o.apply(cmd.Flags(), cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runQuery(cmd.Context(), cmd.OutOrStdout(), cfg, o, strings.Join(args, " "))
		},
	}
	f := cmd.Flags()
	f.IntVar(&o.k, "k", 0, "number of hits to request")
	f.BoolVar(&o.fuzzy, "fuzzy", false, "ask the server to re-rank by Jaccard overlap")
	f.BoolVar(&o.withMeta, "with-meta", false, "return stored metadata with each hit")
	f.IntVar(&o.width, "width", 0, "signature width in bits: 256 or 4096")
	f.IntVar(&o.limit, "limit", 0, "hits to print")
	f.BoolVar(&o.sendText, "send-text", false, "append the raw text for server-side exact scoring")
	f.BoolVar(&o.useCache, "cache", false, "serve repeated queries from Redis (overrides redis.enabled)")
	f.BoolVar(&o.flushCache, "flush-cache", false, "drop cached responses before querying")
	return cmd
}

func (o *queryOptions) apply(f *pflag.FlagSet, cfg *config.Config) {
	q := &cfg.Query
	if f.Changed("k") {
		q.K = o.k
	}
	if f.Changed("fuzzy") {
		q.Fuzzy = o.fuzzy
	}
	if f.Changed("with-meta") {
		q.WithMeta = o.withMeta
	}
	if f.Changed("width") {
		q.Width = o.width
	}
	if f.Changed("limit") {
		q.DisplayLimit = o.limit
	}
	if f.Changed("cache") {
		cfg.Redis.Enabled = o.useCache
	}
}

func runQuery(ctx context.Context, out io.Writer, cfg *config.Config, o *queryOptions, text string) error {
	session, err := openSession(cfg)
	if err != nil {
		return err
	}
	defer session.Close()

	opts := []client.Option{client.WithTimeout(cfg.Query.Timeout)}
	if cfg.Redis.Enabled {
		rc, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("query cache: %w", err)
		}
		defer rc.Close()
		qc := cache.New(rc, cfg.Redis.CacheTTL, nil)
		if o.flushCache {
			if _, err := qc.Invalidate(ctx); err != nil {
				return fmt.Errorf("flushing query cache: %w", err)
			}
		}
		opts = append(opts, client.WithCache(qc))
	}

	c := client.New(session, opts...)
	resp, err := c.SearchText(ctx, text, client.Query{
		K:        cfg.Query.K,
		Fuzzy:    cfg.Query.Fuzzy,
		WithMeta: cfg.Query.WithMeta,
		Width:    signature.Width(cfg.Query.Width),
		SendText: o.sendText,
	})
	if err != nil {
		return err
	}
	printHits(out, resp, cfg.Query.DisplayLimit)
	return nil
}

func printHits(w io.Writer, resp *wire.QueryResponse, limit int) {
	shown := len(resp.Hits)
	if limit > 0 && shown > limit {
		shown = limit
	}
	fmt.Fprintf(w, "hits: %d (showing %d)\n", resp.HitCount, shown)
	for i, h := range resp.Hits[:shown] {
		fmt.Fprintf(w, "%3d  %10d  %.4f", i+1, h.DocID, h.Score)
		if h.Meta != nil {
			fmt.Fprintf(w, "  %s - %s [%s] %s", h.Meta.Title, h.Meta.Author, h.Meta.Genres, h.Meta.URL)
		}
		fmt.Fprintln(w)
	}
	if resp.Truncated {
		fmt.Fprintf(w, "warning: response truncated, %d of %d hits present\n", len(resp.Hits), resp.HitCount)
	}
}
