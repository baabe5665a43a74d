package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/bridgectl/internal/config"
	"github.com/danmuck/bridgectl/internal/logging"
	"github.com/danmuck/bridgectl/internal/observability"
	"github.com/danmuck/bridgectl/internal/server"
)

func main() {
	path := flag.String("config", "cmd/bridgectl/config.toml", "runtime config path")
	flag.Parse()

	if err := run(*path); err != nil {
		fmt.Fprintf(os.Stderr, "bridgectl: %v\n", err)
		os.Exit(1)
	}
}

func run(path string) error {
	logging.ConfigureRuntime()

	rt, err := loadRuntimeConfig(path)
	if err != nil {
		return err
	}
	logger := observability.InitLogger(rt.Name)

	dep, err := config.LoadDeployment(rt.Deployment)
	if err != nil {
		return err
	}
	dn, err := buildDevnet(rt, dep, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go dn.net.Run(ctx)

	srv := server.New(server.Options{
		Name:        rt.Name,
		Addr:        rt.Addr,
		CorsOrigins: rt.CorsOrigins,
		AdminToken:  rt.AdminToken,
		Bridges:     dn.bridges,
		Loopback:    dn.net,
		Logger:      logger,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve() }()
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
		return nil
	case err := <-errCh:
		return err
	}
}
