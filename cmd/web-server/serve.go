package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/y0ncha/web-server/internal/site"
	"github.com/y0ncha/web-server/pkg/webserver"
)

type serveOptions struct {
	configFile  string
	addr        string
	engine      string
	idleTimeout time.Duration
	pollTimeout time.Duration
	idlePolicy  string
	readBuffer  int
	reusePort   bool
	root        string
	store       string
	s3PathStyle bool
	banner      string
	metricsAddr string
	log         logOptions
}

func serveCmd() *cobra.Command {
	return newServeCmd(&serveOptions{})
}

func newServeCmd(opts *serveOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web server",
		Long: `Start the web server and block until SIGINT or SIGTERM.

Values from --config are applied first; flags set on the command line
override them.

Examples:
  web-server serve
  web-server serve --addr 0.0.0.0:8080 --idle-timeout 30s
  web-server serve --engine gnet --store s3://site-bucket/pages`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, err := buildConfig(cmd.Flags(), *opts)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), config, *opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configFile, "config", "c", "", "YAML configuration file")
	f.StringVarP(&opts.addr, "addr", "a", "127.0.0.1:27015", "Address to listen on")
	f.StringVar(&opts.engine, "engine", webserver.EnginePoll, "Event loop: poll or gnet")
	f.DurationVar(&opts.idleTimeout, "idle-timeout", 120*time.Second, "Close connections idle for longer than this (0 disables)")
	f.DurationVar(&opts.pollTimeout, "poll-timeout", time.Second, "Upper bound of one readiness wait")
	f.StringVar(&opts.idlePolicy, "idle-policy", "awaiting", "Connections eligible for idle eviction: awaiting or any")
	f.IntVar(&opts.readBuffer, "read-buffer", 4096, "Bytes requested per receive")
	f.BoolVar(&opts.reusePort, "reuse-port", false, "Enable SO_REUSEPORT")
	f.StringVar(&opts.root, "root", "www", "Directory holding pages and documents")
	f.StringVar(&opts.store, "store", "", "Document store: a directory or s3://bucket/prefix (default --root)")
	f.BoolVar(&opts.s3PathStyle, "s3-path-style", false, "Use path-style S3 addressing")
	f.StringVar(&opts.banner, "banner", site.DefaultBanner, "Body of GET /health")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	f.StringVar(&opts.log.level, "log-level", "info", "Log level")
	f.StringVar(&opts.log.format, "log-format", "text", "Log format: text or json")
	f.StringVar(&opts.log.file, "log-file", "", "Write logs to this file with rotation")
	f.IntVar(&opts.log.maxSizeMB, "log-max-size", 100, "Megabytes before a log file is rotated")
	f.IntVar(&opts.log.maxBackups, "log-max-backups", 5, "Rotated log files to keep")
	f.IntVar(&opts.log.maxAgeDays, "log-max-age", 28, "Days to keep rotated log files")

	return cmd
}

// buildConfig loads the optional config file and applies the flags that
// were set explicitly.
func buildConfig(flags *pflag.FlagSet, opts serveOptions) (webserver.Config, error) {
	config := webserver.DefaultConfig()
	if opts.configFile != "" {
		loaded, err := webserver.LoadConfig(opts.configFile)
		if err != nil {
			return config, err
		}
		config = loaded
	}

	if !flags.Changed("config") || flags.Changed("addr") {
		config.Addr = opts.addr
	}
	if !flags.Changed("config") || flags.Changed("engine") {
		config.Engine = opts.engine
	}
	if !flags.Changed("config") || flags.Changed("idle-timeout") {
		config.IdleTimeout = opts.idleTimeout
	}
	if !flags.Changed("config") || flags.Changed("poll-timeout") {
		config.PollTimeout = opts.pollTimeout
	}
	if !flags.Changed("config") || flags.Changed("idle-policy") {
		config.IdlePolicy = opts.idlePolicy
	}
	if !flags.Changed("config") || flags.Changed("read-buffer") {
		config.ReadBufferSize = opts.readBuffer
	}
	if flags.Changed("reuse-port") {
		config.ReusePort = opts.reusePort
	}

	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

// newStore opens the document store named by spec, falling back to root.
func newStore(spec, root string, pathStyle bool) (site.Store, error) {
	if spec == "" {
		spec = root
	}
	if !strings.HasPrefix(spec, "s3://") {
		info, err := os.Stat(spec)
		if err != nil {
			return nil, fmt.Errorf("document root: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("document root %s is not a directory", spec)
		}
		return site.NewDiskStore(spec), nil
	}

	bucket, prefix, err := site.ParseS3URL(spec)
	if err != nil {
		return nil, err
	}
	client := site.NewS3Client(site.S3Config{
		Region:    os.Getenv("AWS_REGION"),
		Endpoint:  os.Getenv("AWS_ENDPOINT_URL"),
		PathStyle: pathStyle,
		AccessKey: os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
	})
	return site.NewS3Store(client, bucket, prefix), nil
}

func runServe(parent context.Context, config webserver.Config, opts serveOptions) error {
	logger, closer, err := newLogger(opts.log)
	if err != nil {
		return err
	}
	defer closer.Close()

	store, err := newStore(opts.store, opts.root, opts.s3PathStyle)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	config.Logger = logger
	config.Registerer = reg

	router := webserver.NewRouter()
	router.Use(
		webserver.Recovery(logger),
		webserver.RequestID(),
		webserver.LoggerWithConfig(webserver.LoggerConfig{Logger: logger, SkipPaths: []string{"/health"}}),
		webserver.Prometheus(reg),
		webserver.Tracing(),
		webserver.Compress(),
	)
	site.Register(router, site.Options{Store: store, Banner: opts.banner, Logger: logger})

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if opts.metricsAddr != "" {
		metricsSrv := startMetrics(opts.metricsAddr, reg, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}()
	}

	server := webserver.New(config).Handler(router)
	if err := server.ListenAndServe(ctx); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

func startMetrics(addr string, reg *prometheus.Registry, logger logrus.FieldLogger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.WithField("addr", addr).Info("metrics listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("metrics listener failed")
		}
	}()
	return srv
}
