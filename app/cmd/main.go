package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"compliance-rag/app/agent"
	"compliance-rag/app/mcp"
	"compliance-rag/app/pipeline"
	"compliance-rag/app/retriever"
	"compliance-rag/app/server"
	"compliance-rag/config"
	"compliance-rag/loader/service"
	"compliance-rag/model"
	"compliance-rag/store"
)

const shutdownTimeout = 10 * time.Second

func init() {
	// .env is optional outside local development
	_ = godotenv.Load()
}

func main() {
	if err := run(); err != nil {
		slog.Error("service failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	vs, err := store.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer vs.Close()

	embedder, err := model.NewEmbedder(cfg)
	if err != nil {
		return err
	}
	capability, err := agent.NewCapability(cfg)
	if err != nil {
		return err
	}

	builder := service.New(cfg, vs, embedder)
	if res, err := builder.Build(ctx, false); err != nil {
		slog.Warn("initial index build failed, reviews will run without reference context", "error", err)
	} else {
		slog.Info("reference index ready", "rebuilt", res.Rebuilt, "chunks", res.Chunks)
	}

	p := pipeline.New(cfg, retriever.New(vs, embedder), agent.NewGenerator(cfg, capability))

	mcpServer, err := mcp.NewServer(&mcp.Ports{Reviewer: p, Builder: builder})
	if err != nil {
		return err
	}

	s := server.NewServer(server.Deps{
		Config:   cfg,
		Store:    vs,
		Reviewer: p,
		Builder:  builder,
		MCP:      mcpServer.Handler(),
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Run()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("received shutdown signal, shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}
