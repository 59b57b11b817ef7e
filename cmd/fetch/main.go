// Package main is the entrypoint for fetch.
package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/gofetch/fetch/pkg/client"
	"github.com/gofetch/fetch/pkg/config"
	"github.com/gofetch/fetch/pkg/dns"
	"github.com/gofetch/fetch/pkg/util/logutil"
)

const _shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.NewConfig(os.Args[1:], os.Stderr)
	if errors.Cause(err) == pflag.ErrHelp {
		os.Exit(0)
	}

	// create a logger first
	logger := cfg.Logger()
	if logger == nil {
		// something went wrong, create a new temporary logger
		var zapErr error
		logger, zapErr = zap.NewProduction()
		if zapErr != nil {
			fmt.Printf("error creating zap logger %v", zapErr)
			os.Exit(1)
		}
	}
	logger.Info("running", zap.Strings("args", os.Args))
	if err != nil {
		logger.Error("failed to parse config", zap.Error(err))
		os.Exit(1)
	}

	syncLogger := func() { _ = cfg.Logger().Sync() }
	defer logutil.LogPanicAndExit(logger)

	// check config
	err = cfg.Adjust()
	if err != nil {
		logger.Error("failed to adjust config", zap.Error(err))
		exit(1, syncLogger)
	}
	err = cfg.Validate()
	if err != nil {
		logger.Error("failed to validate config", zap.Error(err))
		exit(1, syncLogger)
	}

	targets := cfg.Args()
	if len(targets) == 0 {
		logger.Error("no targets given")
		exit(1, syncLogger)
	}

	resolver, closeResolver, err := dns.NewFromConfig(cfg.Resolver, logger)
	if err != nil {
		logger.Error("failed to create resolver", zap.Error(err))
		exit(1, syncLogger)
	}
	defer closeResolver()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sc := make(chan os.Signal, 1)
	signal.Notify(sc,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)
	go func() {
		sig := <-sc
		logger.Info("got signal to exit", zap.String("signal", sig.String()))
		cancel()
	}()

	if cfg.ResolveOnly {
		err = resolveTargets(ctx, resolver, targets)
	} else {
		err = connectTargets(ctx, cfg, resolver, targets, logger)
	}
	if err != nil {
		logger.Error("command failed", zap.Error(err))
		exit(1, syncLogger)
	}

	exit(0, syncLogger)
}

// resolveTargets prints the candidate addresses of each target in dial order.
func resolveTargets(ctx context.Context, resolver dns.Resolver, targets []string) error {
	tr := dns.NewTargetResolver(resolver)
	for _, target := range targets {
		u, err := url.Parse(target)
		if err != nil {
			return errors.Wrapf(err, "parse target `%s`", target)
		}
		addrs, err := tr.ResolveTarget(ctx, u)
		if err != nil {
			return errors.WithMessagef(err, "resolve target `%s`", target)
		}
		for {
			addr, ok := addrs.Next()
			if !ok {
				break
			}
			fmt.Printf("%s\t%s\n", target, addr)
		}
	}
	return nil
}

// connectTargets establishes a session to each target and prints the address
// it landed on.
func connectTargets(ctx context.Context, cfg *config.Config, resolver dns.Resolver, targets []string, logger *zap.Logger) error {
	c, err := client.NewClient(cfg.Client, resolver, logger)
	if err != nil {
		return errors.WithMessage(err, "create client")
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), _shutdownTimeout)
		defer shutdownCancel()
		c.Shutdown(shutdownCtx)
	}()

	for _, target := range targets {
		s, err := c.GetSession(ctx, target)
		if err != nil {
			return errors.WithMessagef(err, "connect to `%s`", target)
		}
		fmt.Printf("%s\t%s\n", target, s.RemoteAddr())
		s.Release()
	}
	return nil
}

func exit(code int, deferred func()) {
	deferred()
	os.Exit(code)
}
