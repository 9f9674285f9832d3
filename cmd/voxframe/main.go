// SPDX-License-Identifier: EPL-2.0

// Command voxframe inspects, decodes and produces AMR, AMR-WB, EVS and RTP
// capture files.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"github.com/ik5/voxframe"
	"github.com/ik5/voxframe/audio"
	"github.com/ik5/voxframe/internal/config"
	"github.com/ik5/voxframe/internal/observe"
	"github.com/ik5/voxframe/payload"
)

var version = "dev"

const usage = `usage: voxframe [-config file] [-log-level level] [-metrics-addr addr] <command> [flags] [args]

commands:
  probe    print format, codec and frame counts of each file
  frames   list the frames of one file
  decode   decode files to WAV
  encode   encode a WAV, AIFF, MP3 or Ogg Vorbis file
  convert  turn the RTP datagrams of a pcap capture into an rtpdump file
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// app carries what every command needs.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	metrics  *observe.Metrics
	reg      *audio.Registry
	features []payload.CodecEntry
	stdout   io.Writer
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("voxframe", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := fs.String("config", "", "path to the YAML configuration file")
	logLevel := fs.String("log-level", "", "debug, info, warn or error (overrides the config file)")
	metricsAddr := fs.String("metrics-addr", "", "serve Prometheus metrics on this address (overrides the config file)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "voxframe: %v\n", err)
		return 1
	}
	if *logLevel != "" {
		cfg.LogLevel = config.LogLevel(*logLevel)
	}
	if *metricsAddr != "" {
		cfg.Metrics.ListenAddr = *metricsAddr
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(stderr, "voxframe: %v\n", err)
		return 1
	}

	logger := newLogger(cfg.LogLevel, stderr)
	slog.SetDefault(logger)

	a := &app{cfg: cfg, log: logger, reg: voxframe.NewRegistry(), stdout: stdout}

	if cfg.FeaturesFile != "" {
		if a.features, err = loadFeatures(cfg.FeaturesFile); err != nil {
			logger.Error("failed to load codec features", "err", err)
			return 1
		}
	}

	if cfg.Metrics.ListenAddr != "" {
		shutdown, err := serveMetrics(ctx, cfg.Metrics.ListenAddr, logger)
		if err != nil {
			logger.Error("failed to start metrics", "err", err)
			return 1
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				logger.Warn("metrics shutdown", "err", err)
			}
		}()
	}

	if a.metrics, err = observe.NewMetrics(otel.GetMeterProvider()); err != nil {
		logger.Error("failed to create metrics", "err", err)
		return 1
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	var cmdErr error
	switch cmd {
	case "probe":
		cmdErr = a.probe(ctx, rest)
	case "frames":
		cmdErr = a.frames(ctx, rest)
	case "decode":
		cmdErr = a.decode(ctx, rest)
	case "encode":
		cmdErr = a.encode(ctx, rest)
	case "convert":
		cmdErr = a.convert(ctx, rest)
	default:
		fmt.Fprintf(stderr, "voxframe: unknown command %q\n", cmd)
		fs.Usage()
		return 2
	}

	switch {
	case errors.Is(cmdErr, flag.ErrHelp):
		return 0
	case errors.Is(cmdErr, errUsage):
		return 2
	case cmdErr != nil:
		logger.Error(cmd+" failed", "err", cmdErr)
		return 1
	}
	return 0
}

var errUsage = errors.New("usage")

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return &config.Config{}, nil
	}
	return config.Load(path)
}

func loadFeatures(path string) ([]payload.CodecEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return payload.LoadFeatures(f)
}

// newLogger builds a text logger at the configured level.
func newLogger(level config.LogLevel, w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level.Level()}))
}

// serveMetrics installs the Prometheus-backed meter provider and serves
// /metrics until ctx ends or shutdown is called.
func serveMetrics(ctx context.Context, addr string, log *slog.Logger) (func(context.Context) error, error) {
	promReg := prometheus.NewRegistry()
	_, shutdownProvider, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
		Registerer:     promReg,
	})
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server", "err", err)
		}
	}()
	log.Info("serving metrics", "addr", addr)

	return func(ctx context.Context) error {
		return errors.Join(srv.Shutdown(ctx), shutdownProvider(ctx))
	}, nil
}

func (a *app) workers() int {
	if a.cfg.Workers > 0 {
		return a.cfg.Workers
	}
	return runtime.NumCPU()
}
