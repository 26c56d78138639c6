// Command notemcp serves a knowledge-base workspace to AI agents over the
// MCP streaming HTTP transport.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/notekit/notemcp/auditlog"
	"github.com/notekit/notemcp/auth"
	"github.com/notekit/notemcp/config"
	"github.com/notekit/notemcp/filter"
	"github.com/notekit/notemcp/indexer"
	"github.com/notekit/notemcp/internal/engine"
	"github.com/notekit/notemcp/internal/logctx"
	"github.com/notekit/notemcp/kernel"
	"github.com/notekit/notemcp/mcp"
	"github.com/notekit/notemcp/queue"
	"github.com/notekit/notemcp/sessions"
	"github.com/notekit/notemcp/streaminghttp"
	"github.com/notekit/notemcp/toolkit"
	"github.com/notekit/notemcp/tools"
)

const (
	serverName    = "notemcp"
	serverVersion = "1.0.0"

	serverInstructions = "This server exposes a personal knowledge base. " +
		"Use kb_list_notebooks and kb_search to orient yourself before reading or writing, " +
		"and kb_database_schema before running SQL queries."
)

func main() {
	if err := run(); err != nil {
		slog.Error("server.fatal", slog.String("err", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	env, err := config.LoadEnv()
	if err != nil {
		return err
	}

	log := slog.New(logctx.Handler{
		Handler: slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(env.LogLevel)}),
	})
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	settings, err := config.Watch(env.SettingsPath, log)
	if err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	defer settings.Close()

	kc := kernel.New(env.KernelURL, env.KernelToken, log)

	audit, err := auditlog.New(settings.Current().InstallationID, filepath.Join(env.DataDir, "logs"), log)
	if err != nil {
		return fmt.Errorf("audit log: %w", err)
	}
	defer audit.Close()

	q, err := queue.New[indexer.Item](filepath.Join(env.DataDir, "cache"), log)
	if err != nil {
		return fmt.Errorf("index queue: %w", err)
	}

	var idx *indexer.Provider
	if s := settings.Current(); s.IndexProviderURL != "" {
		idx = indexer.NewProvider(s.IndexProviderURL, s.IndexAPIKey, log)
		go indexer.NewWorker(q, kc, idx, log).Run(ctx)
	}

	checker := filter.NewChecker(func() filter.Lists {
		s := settings.Current()
		return filter.ParseLists(s.FilterNotebooks, s.FilterDocuments)
	}, kc)

	deps := &tools.Deps{
		Kernel: kc,
		Filter: checker,
		Index:  idx,
		Enqueue: func(docID string) {
			if err := q.Enqueue(indexer.Item{ID: docID}); err != nil {
				log.Warn("index.enqueue.fail", slog.String("doc", docID), slog.String("err", err.Error()))
			}
		},
		Settings: settings.Current,
		Log:      log,
	}

	// The safety tier is fixed at startup; changing it requires a restart.
	tier, err := toolkit.ParseTier(settings.Current().WritePolicy)
	if err != nil {
		return fmt.Errorf("write policy: %w", err)
	}
	reg := toolkit.NewRegistry(log)
	if err := reg.RegisterAll(ctx, tier, tools.Providers(deps)...); err != nil {
		return fmt.Errorf("register tools: %w", err)
	}

	eng := engine.New(
		mcp.ImplementationInfo{Name: serverName, Version: serverVersion},
		serverInstructions, reg, audit, log,
	)

	verifier := auth.NewAccessVerifier(log)
	defer verifier.Close()
	gw := auth.NewGateway(func() auth.Credentials {
		s := settings.Current()
		return auth.Credentials{
			BearerHash:      s.BearerTokenHash,
			InstallationID:  s.InstallationID,
			ProxyTeamDomain: s.AccessTeamDomain,
			ProxyAudience:   s.AccessAudience,
		}
	}, verifier, log)

	store := sessions.NewStore(log)
	go sessions.NewReaper(store, env.ReaperInterval, env.SessionIdleTimeout, log).Run(ctx)

	srv := &http.Server{
		Addr:              env.ListenAddr,
		Handler:           streaminghttp.New("/mcp", eng, store, gw, log),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("server.shutdown.fail", slog.String("err", err.Error()))
		}
	}()

	log.Info("server.start",
		slog.String("addr", env.ListenAddr),
		slog.String("kernel", env.KernelURL),
		slog.String("tier", string(tier)),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info("server.stop")
	return nil
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}
