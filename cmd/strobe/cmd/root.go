package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/transport"
)

// app carries the flags shared by every command.
type app struct {
	configPath string
	baseURL    string
	protocol   string
	insecure   bool
	logLevel   string
	logFormat  string
}

// RootCmd builds the strobe command tree.
func RootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:           "strobe",
		Short:         "strobe load-tests and queries a remote fuzzy document index.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := cmd.PersistentFlags()
	f.StringVar(&a.configPath, "config", "", "path to a YAML config file")
	f.StringVar(&a.baseURL, "base-url", "", "base URL of the index (overrides target.baseUrl)")
	f.StringVar(&a.protocol, "protocol", "", "transport protocol: h1, h2 or h2c")
	f.BoolVar(&a.insecure, "insecure", false, "skip TLS certificate verification")
	f.StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error")
	f.StringVar(&a.logFormat, "log-format", "", "text or json")

	cmd.AddCommand(
		ingestCmd(a),
		queryCmd(a),
		inspectCmd(a),
		checkCmd(a),
		statsCmd(a),
		runsCmd(a),
	)
	return cmd
}

// load reads configuration, applies the shared flags that were set and
// installs the logger. Commands apply their own flags and then Validate.
func (a *app) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, err
	}
	a.apply(cmd.Flags(), cfg)
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format, cmd.ErrOrStderr())
	return cfg, nil
}

func (a *app) apply(f *pflag.FlagSet, cfg *config.Config) {
	if f.Changed("base-url") {
		cfg.Target.BaseURL = a.baseURL
	}
	if f.Changed("protocol") {
		cfg.Target.Protocol = a.protocol
	}
	if f.Changed("insecure") {
		cfg.Target.InsecureSkipVerify = a.insecure
	}
	if f.Changed("log-level") {
		cfg.Logging.Level = a.logLevel
	}
	if f.Changed("log-format") {
		cfg.Logging.Format = a.logFormat
	}
}

func transportOptions(cfg *config.Config, conns int) (transport.Options, error) {
	proto, err := transport.ParseProtocol(cfg.Target.Protocol)
	if err != nil {
		return transport.Options{}, err
	}
	return transport.Options{
		BaseURL:            cfg.Target.BaseURL,
		Protocol:           proto,
		InsecureSkipVerify: cfg.Target.InsecureSkipVerify,
		MaxIdleConns:       conns,
	}, nil
}

func openSession(cfg *config.Config) (*transport.HTTPSession, error) {
	opts, err := transportOptions(cfg, 2)
	if err != nil {
		return nil, err
	}
	return transport.NewHTTPSession(opts)
}
