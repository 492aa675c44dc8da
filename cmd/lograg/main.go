// Command lograg serves the CSV log chat UI and API over HTTP and optionally
// indexes files dropped into a watched directory.
package main

import (
	"context"
	"flag"
	"fmt"
	log "log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/0xcro3dile/lograg-go/internal/adapters/filewatcher"
	"github.com/0xcro3dile/lograg-go/internal/app"
	"github.com/0xcro3dile/lograg-go/internal/infrastructure/config"
	httpserver "github.com/0xcro3dile/lograg-go/internal/infrastructure/http"
	"github.com/0xcro3dile/lograg-go/internal/infrastructure/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "lograg:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		cfgPath string
		envPath string
		addr    string
		watch   string
		upload  string
	)
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (default ./lograg.yaml if present)")
	flag.StringVar(&envPath, "env", ".env", "Path to .env file with LOGRAG_* overrides")
	flag.StringVar(&addr, "addr", "", "Listen address, overrides server.addr")
	flag.StringVar(&watch, "watch", "", "Drop folder to watch for CSV files, overrides watch.dir")
	flag.StringVar(&upload, "file", "", "CSV file to index at startup")
	flag.Parse()

	if err := config.LoadEnvFile(envPath); err != nil {
		return err
	}
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if watch != "" {
		cfg.Watch.Dir = watch
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if upload != "" {
		go func() {
			if err := a.Session.UploadFile(ctx, upload); err != nil {
				log.Error("startup ingestion failed", "file", upload, "error", err)
			}
		}()
	}

	var watcher *filewatcher.FSNotifyWatcher
	if cfg.Watch.Dir != "" {
		if watcher, err = filewatcher.NewFSNotifyWatcher([]string{".csv"}); err != nil {
			return fmt.Errorf("creating file watcher: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	server := httpserver.NewServer(a.Session, cfg.Server.Addr)
	server.SetAnswerTimeout(answerTimeout(cfg))
	g.Go(func() error { return server.Start(gctx) })
	if watcher != nil {
		g.Go(func() error { return app.WatchDir(gctx, watcher, a.Session, cfg.Watch.Dir) })
	}

	err = g.Wait()
	log.Info("lograg stopped")
	return err
}

func loadConfig(path string) (*config.AppConfig, error) {
	if path == "" {
		cfg, _, err := config.LoadDefault()
		return cfg, err
	}
	return config.Load(path)
}

// answerTimeout leaves room for the query embedding and the chat call. An
// unbounded model call leaves answers without a write deadline.
func answerTimeout(cfg *config.AppConfig) time.Duration {
	embed, chat := cfg.RetrievalEmbedTimeout(), cfg.ChatTimeout()
	if embed <= 0 || chat <= 0 {
		return 0
	}
	return embed + chat + 30*time.Second
}
