// Package main provides apmproc, a command-line tool that runs a recorded
// near-end signal through the audio processing module, using an optional
// far-end recording as the echo reference.
//
// Usage:
//
//	apmproc -near mic.wav -far speaker.wav -out clean.wav -profile voice.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/opd-ai/apm"
	"github.com/opd-ai/apm/dsp"
	"github.com/opd-ai/apm/profile"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// CLI configuration
type CLIConfig struct {
	nearPath    string
	farPath     string
	outPath     string
	profilePath string
	delayMs     int
	metricsAddr string
	logFormat   string
}

// parseCLIFlags parses command-line flags and returns the configuration.
func parseCLIFlags(args []string) (*CLIConfig, error) {
	config := &CLIConfig{}

	fs := flag.NewFlagSet("apmproc", flag.ContinueOnError)
	fs.StringVar(&config.nearPath, "near", "", "Near-end (microphone) WAV file")
	fs.StringVar(&config.farPath, "far", "", "Far-end (loudspeaker) WAV file used as echo reference")
	fs.StringVar(&config.outPath, "out", "processed.wav", "Output WAV file")
	fs.StringVar(&config.profilePath, "profile", "", "YAML processing profile (default: engine defaults)")
	fs.IntVar(&config.delayMs, "delay", -1, "Stream delay in ms (default: profile value)")
	fs.StringVar(&config.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9464")
	fs.StringVar(&config.logFormat, "log-format", "text", "Log format (text, json)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return config, nil
}

// validateCLIConfig validates the CLI configuration.
func validateCLIConfig(config *CLIConfig) error {
	if config.nearPath == "" {
		return fmt.Errorf("near-end input is required (-near)")
	}

	if config.outPath == "" {
		return fmt.Errorf("output path cannot be empty")
	}

	if config.delayMs < -1 || config.delayMs > apm.MaxStreamDelayMs {
		return fmt.Errorf("delay %d ms is out of range [0, %d] (-1 uses the profile)", config.delayMs, apm.MaxStreamDelayMs)
	}

	if config.logFormat != "text" && config.logFormat != "json" {
		return fmt.Errorf("invalid log format %q: must be text or json", config.logFormat)
	}

	return nil
}

// newLogger returns a logger writing to stderr in the requested format.
func newLogger(format string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	if format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}

// startMetrics registers a Prometheus-backed meter provider and serves it
// on addr. The returned function stops the server and flushes the provider.
func startMetrics(addr string, log *logrus.Logger) (metric.MeterProvider, func(context.Context) error, error) {
	exporter, err := promexporter.New()
	if err != nil {
		return nil, nil, fmt.Errorf("prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithFields(logrus.Fields{
				"function": "startMetrics",
				"addr":     addr,
				"error":    err.Error(),
			}).Error("Metrics server failed")
		}
	}()

	log.WithFields(logrus.Fields{
		"function": "startMetrics",
		"addr":     addr,
	}).Info("Serving metrics")

	shutdown := func(ctx context.Context) error {
		return errors.Join(srv.Shutdown(ctx), mp.Shutdown(ctx))
	}
	return mp, shutdown, nil
}

// loadSettings returns the processing configuration and stream delay for
// config. An explicit -delay overrides the profile.
func loadSettings(config *CLIConfig) (apm.ProcessingConfig, int, error) {
	p := &profile.Profile{}
	if config.profilePath != "" {
		var err error
		if p, err = profile.Load(config.profilePath); err != nil {
			return apm.ProcessingConfig{}, 0, err
		}
	}

	delay := p.StreamDelayMs
	if config.delayMs >= 0 {
		delay = config.delayMs
	}
	return p.ProcessingConfig(), delay, nil
}

// run processes the configured files. mp may be nil.
func run(ctx context.Context, config *CLIConfig, mp metric.MeterProvider, log *logrus.Logger) error {
	cfg, delay, err := loadSettings(config)
	if err != nil {
		return err
	}

	near, err := readWAV(config.nearPath)
	if err != nil {
		return fmt.Errorf("near-end: %w", err)
	}

	var far *clip
	if config.farPath != "" {
		if far, err = readWAV(config.farPath); err != nil {
			return fmt.Errorf("far-end: %w", err)
		}
		if far, err = matchRate(far, near.rate); err != nil {
			return err
		}
	}

	// The processor and engine share their own logger: its level follows
	// the profile's log verbosity, which must not silence this tool's output.
	procLog := logrus.New()
	procLog.SetOutput(log.Out)
	procLog.SetFormatter(log.Formatter)

	opts := []apm.Option{apm.WithLogger(procLog)}
	if mp != nil {
		opts = append(opts, apm.WithMeterProvider(mp))
	}
	proc, err := apm.NewProcessor(dsp.NewFactory(dsp.WithLogger(procLog)), opts...)
	if err != nil {
		return err
	}
	defer proc.Close()

	if err := proc.Configure(cfg); err != nil {
		return err
	}
	if err := proc.SetStreamDelay(delay); !tolerable(err) {
		return fmt.Errorf("set stream delay: %w", err)
	}

	log.WithFields(logrus.Fields{
		"function":        "run",
		"near":            config.nearPath,
		"far":             config.farPath,
		"sample_rate":     near.rate,
		"channels":        near.channels,
		"processing_rate": cfg.ProcessingRate,
		"delay_ms":        delay,
	}).Info("Processing started")

	out, err := processClips(ctx, proc, near, far, log)
	if err != nil {
		return err
	}

	if err := writeWAV(config.outPath, out); err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"function": "run",
		"out":      config.outPath,
		"samples":  len(out.samples),
	}).Info("Output written")

	return nil
}

// main is the entry point for apmproc.
func main() {
	config, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	if err := validateCLIConfig(config); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		fmt.Fprintf(os.Stderr, "Use -help for usage information.\n")
		os.Exit(1)
	}

	log := newLogger(config.logFormat)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	var mp metric.MeterProvider
	if config.metricsAddr != "" {
		provider, shutdown, err := startMetrics(config.metricsAddr, log)
		if err != nil {
			log.WithError(err).Fatal("Failed to start metrics")
		}
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			if err := shutdown(shutdownCtx); err != nil {
				log.WithError(err).Warn("Metrics shutdown failed")
			}
		}()
		mp = provider
	}

	if err := run(ctx, config, mp, log); err != nil {
		log.WithFields(logrus.Fields{
			"function": "main",
			"error":    err.Error(),
		}).Error("Processing failed")
		cancel()
		os.Exit(1)
	}
}
