// Command lograg-chat indexes one CSV log file and opens a terminal chat about it.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/0xcro3dile/lograg-go/internal/app"
	"github.com/0xcro3dile/lograg-go/internal/infrastructure/config"
	"github.com/0xcro3dile/lograg-go/internal/infrastructure/logging"
	"github.com/0xcro3dile/lograg-go/internal/infrastructure/tui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "lograg-chat:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		cfgPath string
		envPath string
		logPath string
	)
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (default ./lograg.yaml if present)")
	flag.StringVar(&envPath, "env", ".env", "Path to .env file with LOGRAG_* overrides")
	flag.StringVar(&logPath, "log", "", "Write logs to this file (logs are discarded by default)")
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Println("Usage: lograg-chat [--config=lograg.yaml] [--log=lograg.log] file.csv")
		os.Exit(2)
	}
	path := flag.Arg(0)

	if err := config.LoadEnvFile(envPath); err != nil {
		return err
	}
	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		return err
	}

	// The terminal belongs to the UI.
	var logOut io.Writer = io.Discard
	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		defer f.Close()
		logOut = f
	}
	logging.SetupWriter(logOut, cfg.Log.Level, cfg.Log.Format)

	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := tui.New(ctx, a.Session, path)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return err
	}
	return nil
}
