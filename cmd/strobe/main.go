// Command strobe drives load against a remote fuzzy document index: it
// uploads synthetic corpora in concurrent batches, runs signature queries,
// and inspects capture files.
//
// Usage:
//
//	strobe ingest --base-url http://127.0.0.1:8080 --total 100000
//	strobe query --k 10 --fuzzy "neon city"
//	strobe inspect run.scap
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/cmd/strobe/cmd"
	apperrors "github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/errors"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.RootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "strobe: %v\n", err)
	}
	os.Exit(apperrors.ExitCode(err))
}
