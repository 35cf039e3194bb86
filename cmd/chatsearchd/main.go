package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nhle/chat-search/internal/command"
	"github.com/nhle/chat-search/internal/credential"
	"github.com/nhle/chat-search/internal/httpapi"
	"github.com/nhle/chat-search/internal/model"
	"github.com/nhle/chat-search/internal/search"
	"github.com/nhle/chat-search/internal/service"
	"github.com/nhle/chat-search/internal/service/chatgpt"
	"github.com/nhle/chat-search/internal/service/claude"
	"github.com/nhle/chat-search/internal/store"
	"github.com/nhle/chat-search/internal/sync"
)

func main() {
	if err := run(); err != nil {
		slog.Error("chatsearchd: fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", model.DefaultConfigPath(), "config file path")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	st, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	engine := search.NewEngine(st)

	adapters := adapterFactory(cfg)
	notifier := func(status sync.SyncStatus) {
		slog.Debug("sync: status",
			"account", status.AccountID,
			"status", status.Status,
			"progress", status.Progress,
			"total", status.Total,
		)
	}

	coordinator := sync.NewCoordinator(
		st, engine, credential.Source{}, adapters, notifier,
	)
	coordinator.SetItemDelay(time.Duration(cfg.Sync.ItemDelayMs) * time.Millisecond)

	handler := command.NewHandler(st, engine, coordinator)
	server := httpapi.NewServer(handler)

	// Warm the index so the first search does not pay the build cost.
	if err := engine.Init(context.Background()); err != nil {
		slog.Warn("chatsearchd: initial index build", "error", err)
	}

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("chatsearchd: listening", "addr", cfg.ListenAddr)
		errCh <- httpServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-stop:
		slog.Info("chatsearchd: shutting down")
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(), 10*time.Second,
		)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down: %w", err)
		}
	}

	return nil
}

// adapterFactory selects the service adapter for an account by its
// service tag.
func adapterFactory(cfg *model.AppConfig) sync.AdapterFactory {
	return func(account *model.Account) (service.Service, error) {
		switch account.Service {
		case model.ServiceClaude:
			if account.OrgID == "" {
				return nil, &service.MalformedDataError{
					Service: model.ServiceClaude,
					Message: "account has no organization id",
				}
			}
			return claude.NewAdapter(cfg.Claude.BaseURL, account.OrgID), nil
		case model.ServiceChatGPT:
			adapter := chatgpt.NewAdapter(cfg.ChatGPT.BaseURL)
			adapter.SetPaging(
				cfg.Sync.PageSize,
				time.Duration(cfg.Sync.PageDelayMs)*time.Millisecond,
			)
			return adapter, nil
		default:
			return nil, fmt.Errorf("unknown service %q", account.Service)
		}
	}
}
