// Command webdis-go is the gateway's standalone CLI entrypoint (component
// J): it loads the JSON configuration named by its one positional
// argument, starts the HTTP server and upstream session, and drops
// privileges after bind if "user"/"group" are configured.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/webdis-go/webdis-go/internal/aclengine"
	"github.com/webdis-go/webdis-go/internal/config"
	"github.com/webdis-go/webdis-go/internal/pipeline"
	"github.com/webdis-go/webdis-go/internal/upstream"
)

var version = "dev"

// errBindFailed marks an error as a listen/bind failure, distinguishing
// exit code 2 (bind failure) from exit code 1 (config error) per
// SPEC_FULL.md §4.J.
type errBindFailed struct{ err error }

func (e *errBindFailed) Error() string { return e.err.Error() }
func (e *errBindFailed) Unwrap() error { return e.err }

func main() {
	root := newRootCmd()
	err := root.Execute()
	if err == nil {
		return
	}
	var bindErr *errBindFailed
	if errors.As(err, &bindErr) {
		fmt.Fprintln(os.Stderr, bindErr.err)
		os.Exit(2)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func newRootCmd() *cobra.Command {
	var showVersion bool

	cmd := &cobra.Command{
		Use:           "webdis-go <config.json>",
		Short:         "HTTP-to-Redis gateway",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				fmt.Println(version)
				return nil
			}
			if len(args) != 1 {
				return fmt.Errorf("usage: webdis-go <config.json>")
			}
			return run(args[0])
		},
	}
	cmd.Flags().BoolVar(&showVersion, "version", false, "print version and exit")
	return cmd
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := buildLogger(cfg.Verbosity)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	upstreamCfg := upstream.Config{Host: cfg.RedisHost, Port: cfg.RedisPort, Auth: cfg.RedisAuth}
	session := upstream.New(upstreamCfg, logger.Named("upstream"))
	defer session.Stop()

	gw := &pipeline.Gateway{
		Upstream: session,
		ACL:      aclengine.New(cfg.ACL),
		Logger:   logger.Named("gateway"),
	}

	listener, err := net.Listen("tcp", cfg.HTTPAddr())
	if err != nil {
		return &errBindFailed{err: fmt.Errorf("bind %s: %w", cfg.HTTPAddr(), err)}
	}

	if err := dropPrivileges(cfg, logger); err != nil {
		return err
	}

	server := &http.Server{Handler: gw}

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve(listener) }()

	logger.Info("listening", zap.String("addr", cfg.HTTPAddr()), zap.String("redis", cfg.RedisHost))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
		return server.Shutdown(context.Background())
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

func buildLogger(verbosity string) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(verbosity)); err != nil {
		return nil, fmt.Errorf("invalid verbosity %q: %w", verbosity, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// dropPrivileges drops to the configured group/user after the listening
// socket is bound, per SPEC_FULL.md §4.J. POSIX-only; a no-op when
// neither field is configured.
func dropPrivileges(cfg *config.Config, logger *zap.Logger) error {
	if cfg.Group != nil {
		if err := syscall.Setgid(*cfg.Group); err != nil {
			return fmt.Errorf("setgid(%d): %w", *cfg.Group, err)
		}
	}
	if cfg.User != nil {
		if err := syscall.Setuid(*cfg.User); err != nil {
			return fmt.Errorf("setuid(%d): %w", *cfg.User, err)
		}
	}
	if cfg.User != nil || cfg.Group != nil {
		logger.Info("dropped privileges")
	}
	return nil
}
