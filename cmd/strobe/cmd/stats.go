package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/transport"
)

func statsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print the index's /stats counters.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.load(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			session, err := openSession(cfg)
			if err != nil {
				return err
			}
			defer session.Close()
			st, err := transport.FetchStats(cmd.Context(), session)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "segments   %d\n", st.Segments)
			fmt.Fprintf(out, "docs_total %d\n", st.DocsTotal)
			keys := make([]string, 0, len(st.Extra))
			for k := range st.Extra {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(out, "%-10s %s\n", k, st.Extra[k])
			}
			return nil
		},
	}
}
