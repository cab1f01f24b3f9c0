package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/transport"
)

const checkTimeout = 5 * time.Second

func checkCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Probe the target and every enabled integration.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.load(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			report := preflight(cfg).Run(cmd.Context())
			report.Print(cmd.OutOrStdout())
			if report.Status == health.StatusDown {
				return fmt.Errorf("preflight failed")
			}
			return nil
		},
	}
}

// preflight registers a probe for the target and for each enabled backend.
func preflight(cfg *config.Config) *health.Checker {
	c := health.NewChecker(checkTimeout)
	c.Register("target", health.Probe(func(ctx context.Context) (string, error) {
		session, err := openSession(cfg)
		if err != nil {
			return "", err
		}
		defer session.Close()
		st, err := transport.FetchStats(ctx, session)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("segments=%d docs_total=%d", st.Segments, st.DocsTotal), nil
	}))
	if cfg.Redis.Enabled {
		c.Register("redis", health.Probe(func(ctx context.Context) (string, error) {
			rc, err := pkgredis.NewClient(ctx, cfg.Redis)
			if err != nil {
				return "", err
			}
			defer rc.Close()
			return cfg.Redis.Addr, nil
		}))
	}
	if cfg.Postgres.Enabled {
		c.Register("postgres", health.Probe(func(ctx context.Context) (string, error) {
			db, err := postgres.New(ctx, cfg.Postgres)
			if err != nil {
				return "", err
			}
			defer db.Close()
			return fmt.Sprintf("%s:%d/%s", cfg.Postgres.Host, cfg.Postgres.Port, cfg.Postgres.Database), nil
		}))
	}
	if cfg.Kafka.Enabled {
		c.Register("kafka", health.Probe(func(ctx context.Context) (string, error) {
			if err := kafka.Ping(ctx, cfg.Kafka); err != nil {
				return "", err
			}
			return cfg.Kafka.Topics.RunSummaries, nil
		}))
	}
	return c
}
