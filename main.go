package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/semihalev/zlog/v2"
	"github.com/spf13/cobra"

	"github.com/dnsgate/dnsgate/api"
	"github.com/dnsgate/dnsgate/config"
	"github.com/dnsgate/dnsgate/server"
)

const version = "1.0.0"

var (
	cfgPath string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:     "dnsgate",
	Short:   "dnsgate is a filtering DNS forwarder",
	Long: `dnsgate listens for DNS queries on a UDP endpoint, answers blocked
names with a sentinel address and forwards everything else to the
configured upstream resolvers, caching the results.`,
	Version: version,
	Run: func(_ *cobra.Command, _ []string) {
		run()
	},
}

func init() {
	runtime.GOMAXPROCS(runtime.NumCPU())

	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "dnsgate.toml",
		"location of the config file, if not found it will be generated")
}

func setup() {
	var err error

	if cfg, err = config.Load(cfgPath, version); err != nil {
		fatal("Config loading failed", "error", err.Error())
	}

	logger := zlog.NewStructured()
	logger.SetWriter(zlog.StdoutTerminal())
	logger.SetLevel(logLevel(cfg.LogLevel))
	zlog.SetDefault(logger)
}

func logLevel(name string) zlog.Level {
	switch name {
	case "debug":
		return zlog.LevelDebug
	case "warn":
		return zlog.LevelWarn
	case "error":
		return zlog.LevelError
	default:
		return zlog.LevelInfo
	}
}

func run() {
	setup()

	zlog.Info("Starting dnsgate...", "version", version)

	srv, err := server.New(cfg)
	if err != nil {
		fatal("Engine construction failed", "error", err.Error())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.WatchRules {
		stop, err := srv.Filter().Watch(srv.ResetCache)
		if err != nil {
			zlog.Error("Rule watcher failed", "error", err.Error())
		} else {
			defer stop()
		}
	}

	api.New(cfg.API, srv).Run(ctx)

	if cfg.Console {
		go console(srv)
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		zlog.Info("Stopping dnsgate...")
		srv.Finish()
	}()

	srv.Run()
}

func fatal(msg string, args ...any) {
	zlog.Error(msg, args...)
	os.Exit(1)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
