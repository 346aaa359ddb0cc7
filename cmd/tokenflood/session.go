package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tokenflood/internal/collector"
	"tokenflood/internal/completion"
	"tokenflood/internal/config"
	"tokenflood/internal/core"
	"tokenflood/internal/dispatch"
	"tokenflood/internal/metrics"
	"tokenflood/internal/probe"
	"tokenflood/internal/progress"
	"tokenflood/internal/sink"
	"tokenflood/internal/suite"
)

const metricsShutdownTimeout = 5 * time.Second

// session owns everything a single run writes to or serves from.
type session struct {
	opts   options
	logger *zap.Logger
	ep     *config.Endpoint
	dir    string

	records   *sink.CSV
	client    *completion.Client
	prober    core.Prober
	collector *collector.Collector
	progress  *progress.Progress
	metrics   *metrics.Metrics
	server    *http.Server
}

func openSession(cmd *cobra.Command, opts options, logger *zap.Logger, ep *config.Endpoint, percentiles []int, specs ...suite.SpecFile) (*session, error) {
	apiKey := ep.APIKey()
	if ep.APIKeyEnvVar != "" && apiKey == "" {
		logger.Warn("api key environment variable is empty", zap.String("var", ep.APIKeyEnvVar))
	}
	client, err := completion.New(*ep, apiKey, completion.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	prober, err := newProber(opts.probe, client)
	if err != nil {
		return nil, err
	}

	dir, err := suite.PrepareRunFolder(opts.outputDir, *ep, time.Now(), specs...)
	if err != nil {
		return nil, err
	}
	records, err := sink.OpenCSV(dir)
	if err != nil {
		return nil, err
	}

	prog := progress.NewProgress(logger, opts.quiet)
	prog.SetOutput(cmd.ErrOrStderr())
	s := &session{
		opts:      opts,
		logger:    logger,
		ep:        ep,
		dir:       dir,
		records:   records,
		client:    client,
		prober:    prober,
		collector: collector.New(logger, percentiles),
		progress:  prog,
	}
	if opts.metricsAddr != "" {
		if err := s.serveMetrics(); err != nil {
			records.Close()
			return nil, err
		}
	}
	logger.Info("writing results",
		zap.String("dir", dir),
		zap.String("endpoint", client.URL()),
		zap.String("probe", opts.probe),
		zap.String("probe_target", prober.Target()),
	)
	return s, nil
}

// newProber builds the latency probe named by the --probe flag.
func newProber(kind string, client *completion.Client) (core.Prober, error) {
	switch kind {
	case probeTCP:
		p, err := probe.NewTCP(client.URL(), nil)
		if err != nil {
			return nil, err
		}
		return p, nil
	case probeOptions:
		return probe.NewOptions(client.HTTPClient(), client.URL(), client.Header(), nil), nil
	default:
		return nil, fmt.Errorf("unknown probe %q", kind)
	}
}

// serveMetrics binds the metrics address up front so a taken port fails the
// command before any request is sent.
func (s *session) serveMetrics() error {
	ln, err := net.Listen("tcp", s.opts.metricsAddr)
	if err != nil {
		return err
	}
	s.metrics = metrics.New()
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.Handler())
	s.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	s.logger.Info("serving metrics", zap.String("addr", ln.Addr().String()))
	return nil
}

func (s *session) runner() *suite.Runner {
	observers := dispatch.Observers{s.collector, s.progress}
	if s.metrics != nil {
		observers = append(observers, s.metrics)
	}
	return suite.New(s.client, s.prober, s.records,
		suite.WithModel(s.ep.ProviderModel()),
		suite.WithLogger(s.logger),
		suite.WithObserver(observers),
	)
}

// finish stops the live output, prints the phase summaries, closes the
// record files and classifies runErr.
func (s *session) finish(w io.Writer, report *suite.Report, runErr error) error {
	s.progress.Stop()
	switch s.opts.summaryFormat {
	case summaryJSON:
		collector.FormatJSON(w, s.collector.Summaries())
	default:
		collector.FormatText(w, s.collector.Summaries())
	}

	closeErr := s.records.Close()
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			s.logger.Warn("metrics server shutdown", zap.Error(err))
		}
	}
	s.logger.Info("results written",
		zap.String("dir", s.dir),
		zap.String("run_id", report.RunID),
		zap.Int("phases", len(report.Phases)),
		zap.Duration("elapsed", report.Elapsed()),
	)

	switch {
	case runErr == nil:
		return closeErr
	case errors.Is(runErr, context.Canceled):
		s.logger.Warn("run interrupted")
		return runErr
	default:
		return aborted(errors.Join(runErr, closeErr))
	}
}
