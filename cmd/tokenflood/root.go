package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"tokenflood/internal/budget"
	"tokenflood/internal/config"
	"tokenflood/internal/logging"
	"tokenflood/internal/suite"
)

const (
	summaryText = "text"
	summaryJSON = "json"

	probeOptions = "options"
	probeTCP     = "tcp"
)

// options are the persistent flags after viper merged in the environment.
type options struct {
	outputDir     string
	yes           bool
	logLevel      string
	logFormat     string
	metricsAddr   string
	quiet         bool
	summaryFormat string
	probe         string
}

func loadOptions(v *viper.Viper) (options, error) {
	opts := options{
		outputDir:     v.GetString("output-dir"),
		yes:           v.GetBool("yes"),
		logLevel:      v.GetString("log-level"),
		logFormat:     v.GetString("log-format"),
		metricsAddr:   v.GetString("metrics-addr"),
		quiet:         v.GetBool("quiet"),
		summaryFormat: v.GetString("summary-format"),
		probe:         v.GetString("probe"),
	}
	if opts.summaryFormat != summaryText && opts.summaryFormat != summaryJSON {
		return options{}, fmt.Errorf("--summary-format must be %q or %q, got %q", summaryText, summaryJSON, opts.summaryFormat)
	}
	if opts.probe != probeOptions && opts.probe != probeTCP {
		return options{}, fmt.Errorf("--probe must be %q or %q, got %q", probeOptions, probeTCP, opts.probe)
	}
	if opts.outputDir == "" {
		return options{}, fmt.Errorf("--output-dir must not be empty")
	}
	return opts, nil
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("TOKENFLOOD")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:   "tokenflood",
		Short: "Load testing for LLM completion endpoints",
		Long: `tokenflood sends synthetic prompts of known token lengths to an
OpenAI-compatible chat completion endpoint and records latency per request.

  run      sweep a list of request rates, one phase per rate
  observe  poll the endpoint with a small burst at a fixed interval
  init     write starter spec files`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.String("output-dir", "results", "directory that receives one folder per run")
	pf.BoolP("yes", "y", false, "accept the estimated token usage without asking")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", logging.FormatConsole, "log format: console, json")
	pf.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	pf.BoolP("quiet", "q", false, "log progress periodically instead of drawing a status line")
	pf.String("summary-format", summaryText, "phase summary format: text, json")
	pf.String("probe", probeOptions, "network latency probe: options (HTTP OPTIONS over the shared session), tcp (connect and close)")
	_ = v.BindPFlags(pf)

	root.AddCommand(runCmd(v), observeCmd(v), initCmd())
	return root
}

// setup resolves the options and builds the logger on the command's stderr.
func setup(cmd *cobra.Command, v *viper.Viper) (options, *zap.Logger, error) {
	opts, err := loadOptions(v)
	if err != nil {
		return options{}, nil, err
	}
	logger, err := logging.New(cmd.ErrOrStderr(), opts.logLevel, opts.logFormat)
	if err != nil {
		return options{}, nil, err
	}
	return opts, logger, nil
}

func runCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "run <run_suite.yml> <endpoint_spec.yml>",
		Short: "Sweep request rates against an endpoint",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, logger, err := setup(cmd, v)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			s, err := config.LoadRunSuite(args[0])
			if err != nil {
				return err
			}
			ep, err := config.LoadEndpoint(args[1])
			if err != nil {
				return err
			}

			estimate, err := budget.ForSuite(s)
			if err != nil {
				return err
			}
			if err := budget.Gate(logger, estimate, s.Budget, opts.yes, cmd.InOrStdin(), cmd.ErrOrStderr()); err != nil {
				return aborted(err)
			}

			sess, err := openSession(cmd, opts, logger, ep, s.Percentiles,
				suite.SpecFile{Name: config.RunSuiteFile, Spec: s},
				suite.SpecFile{Name: config.EndpointFile, Spec: ep},
			)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			runner := sess.runner()
			sess.progress.Start(time.Second)
			report, runErr := runner.RunSuite(ctx, s)
			return sess.finish(cmd.OutOrStdout(), report, runErr)
		},
	}
}

func observeCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "observe <observation_spec.yml> <endpoint_spec.yml>",
		Short: "Poll an endpoint with small bursts over a long period",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, logger, err := setup(cmd, v)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			o, err := config.LoadObservation(args[0])
			if err != nil {
				return err
			}
			ep, err := config.LoadEndpoint(args[1])
			if err != nil {
				return err
			}

			estimate := budget.ForObservation(o)
			if err := budget.Gate(logger, estimate, o.Budget, opts.yes, cmd.InOrStdin(), cmd.ErrOrStderr()); err != nil {
				return aborted(err)
			}

			sess, err := openSession(cmd, opts, logger, ep, o.Percentiles,
				suite.SpecFile{Name: config.ObservationFile, Spec: o},
				suite.SpecFile{Name: config.EndpointFile, Spec: ep},
			)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			runner := sess.runner()
			logger.Info("observation planned",
				zap.Int("polls", o.NumPolls()),
				zap.Int("requests_per_poll", o.NumRequests),
				zap.Duration("pause", o.InterPollPause()),
			)
			sess.progress.Start(time.Second)
			report, runErr := runner.RunObservation(ctx, o)
			return sess.finish(cmd.OutOrStdout(), report, runErr)
		},
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [dir]",
		Short: "Write starter run suite, observation and endpoint specs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			created, err := config.WriteStarterPack(dir)
			if err != nil {
				return err
			}
			for _, path := range created {
				fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", path)
			}
			return nil
		},
	}
}
