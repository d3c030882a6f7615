// Package cli implements the tandem command line tool.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ambiyansyah-risyal/tandem"
)

// EnvPrefix is the environment prefix for client settings, e.g. TANDEM_BASE_URL.
const EnvPrefix = "TANDEM"

// rootOptions holds the global flags shared by every subcommand.
type rootOptions struct {
	configPath    string
	baseURL       string
	timeout       time.Duration
	maxConcurrent int
	headers       []string
	debug         bool
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// SetVersion overrides the library version with build-time values.
func SetVersion(v, builtAt, commit string) {
	if v != "" && v != "dev" {
		tandem.Version = strings.TrimPrefix(v, "v")
	}
	tandem.BuildDate = builtAt
	tandem.GitCommit = commit
}

// NewRootCmd constructs the root CLI command; exposed for unit testing.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "tandem",
		Short: "Queue-bounded HTTP client",
		Long: `tandem issues HTTP requests through a FIFO admission queue that bounds
how many run at once.

Client defaults come from, in increasing precedence: built-in defaults,
TANDEM_* environment variables, the --config YAML file and flags.

Examples:
  tandem request GET https://httpbin.org/get
  tandem request POST https://httpbin.org/post --data '{"name":"tandem"}'
  tandem bench https://httpbin.org/get -n 200 -c 10`,
		SilenceUsage: true,
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Path to a YAML client configuration file")
	flags.StringVar(&opts.baseURL, "base-url", "", "Prefix for relative request URLs")
	flags.DurationVar(&opts.timeout, "timeout", tandem.DefaultTimeout, "Per-request timeout (0 disables)")
	flags.IntVar(&opts.maxConcurrent, "max-concurrent", tandem.DefaultMaxConcurrent, "Maximum concurrent requests")
	flags.StringArrayVarP(&opts.headers, "header", "H", nil, "Default header as 'Name: value' (repeatable)")
	flags.BoolVarP(&opts.debug, "debug", "d", false, "Log request lifecycle to stderr")

	rootCmd.AddCommand(newRequestCmd(opts))
	rootCmd.AddCommand(newBenchCmd(opts))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// loadConfig layers environment, config file and explicitly set flags.
func (o *rootOptions) loadConfig(cmd *cobra.Command) (tandem.Config, error) {
	cfg, err := tandem.LoadConfigFromEnv(EnvPrefix)
	if err != nil {
		return cfg, err
	}

	if o.configPath != "" {
		fileCfg, err := tandem.LoadConfigFile(o.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = fileCfg
	}

	flags := cmd.Flags()
	if flags.Changed("base-url") {
		cfg.BaseURL = o.baseURL
	}
	if flags.Changed("timeout") {
		cfg.Timeout = o.timeout
	}
	if flags.Changed("max-concurrent") {
		cfg.MaxConcurrent = o.maxConcurrent
	}
	if len(o.headers) > 0 {
		parsed, err := parseHeaders(o.headers)
		if err != nil {
			return cfg, err
		}
		if cfg.Headers == nil {
			cfg.Headers = make(map[string]string, len(parsed))
		}
		for k, v := range parsed {
			cfg.Headers[k] = v
		}
	}
	return cfg, cfg.Validate()
}

// newClient builds a client from the layered config plus extra options.
func (o *rootOptions) newClient(cmd *cobra.Command, extra ...tandem.Option) (*tandem.Client, error) {
	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	options := []tandem.Option{tandem.WithConfig(cfg)}
	if o.debug {
		options = append(options,
			tandem.WithZerolog(newLogger(cmd.ErrOrStderr())),
			tandem.WithDebug(),
		)
	}
	options = append(options, extra...)
	return tandem.New(options...)
}

func newLogger(w io.Writer) zerolog.Logger {
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000", NoColor: !isTerminal(w)}
	return zerolog.New(out).With().Timestamp().Logger().Level(zerolog.DebugLevel)
}

func parseHeaders(raw []string) (map[string]string, error) {
	out := make(map[string]string, len(raw))
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q, expected 'Name: value'", h)
		}
		out[name] = strings.TrimSpace(value)
	}
	return out, nil
}
