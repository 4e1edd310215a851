package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mtzanidakis/erevna/internal/collab"
	"github.com/mtzanidakis/erevna/internal/config"
	"github.com/mtzanidakis/erevna/internal/errs"
	"github.com/mtzanidakis/erevna/internal/natsbus"
	"github.com/mtzanidakis/erevna/internal/pipeline"
	"github.com/mtzanidakis/erevna/internal/scheduler"
	"github.com/mtzanidakis/erevna/internal/stage"
	"github.com/mtzanidakis/erevna/internal/store"
	"github.com/mtzanidakis/erevna/internal/telegram"
	"github.com/mtzanidakis/erevna/internal/vault"
	"github.com/mtzanidakis/erevna/internal/web"
	"github.com/nats-io/nats.go"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version":
		fmt.Printf("erevna %s\n", version)
	case "research":
		if err := runResearch(os.Args[2:]); err != nil {
			slog.Error("research failed", "error", err)
			os.Exit(1)
		}
	case "gateway":
		if err := runGateway(); err != nil {
			slog.Error("gateway failed", "error", err)
			os.Exit(1)
		}
	case "secret":
		if err := runSecret(os.Args[2:]); err != nil {
			slog.Error("secret command failed", "error", err)
			os.Exit(1)
		}
	case "backup":
		if err := runBackup(os.Args[2:]); err != nil {
			slog.Error("backup failed", "error", err)
			os.Exit(1)
		}
	case "restore":
		if err := runRestore(os.Args[2:]); err != nil {
			slog.Error("restore failed", "error", err)
			os.Exit(1)
		}
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: erevna <command>

Commands:
  research   Run one research pipeline from the command line
  gateway    Start the erevna gateway service (web API, scheduler, events)
  secret     Manage encrypted secrets (set, get, list, delete)
  backup     Archive the data directory to a .tar.zst file
  restore    Restore a backup archive into the data directory
  version    Print version
`)
}

// resolveSearchKey fills cfg.Research.APIKey from the encrypted secret store
// when the config and environment left it empty. A missing secret is fine:
// the static provider needs no key.
func resolveSearchKey(cfg *config.Config, db *store.Store) {
	if cfg.Research.APIKey != "" || cfg.Vault.Passphrase == "" {
		return
	}
	key, err := vault.NewSecretStore(cfg.Vault.Passphrase, db).Get("search_api_key")
	if err != nil {
		if !errs.IsNotFound(err) {
			slog.Warn("resolving search_api_key failed", "error", err)
		}
		return
	}
	cfg.Research.APIKey = key
}

func buildAdapters(cfg *config.Config) pipeline.Adapters {
	return pipeline.Adapters{
		Research:     stage.NewResearch(collab.NewSearcher(cfg.Research)),
		Verification: stage.NewVerification(collab.NewVerifier()),
		Synthesis:    stage.NewSynthesis(collab.NewSynthesizer()),
		Rendering:    stage.NewRendering(collab.NewRenderer(cfg.Reports.Dir)),
	}
}

func runResearch(args []string) error {
	var topic, query, format string
	var maxSources int
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-topic":
			if i+1 >= len(args) {
				return fmt.Errorf("missing value for -topic")
			}
			i++
			topic = args[i]
		case "-query":
			if i+1 >= len(args) {
				return fmt.Errorf("missing value for -query")
			}
			i++
			query = args[i]
		case "-format":
			if i+1 >= len(args) {
				return fmt.Errorf("missing value for -format")
			}
			i++
			format = args[i]
		case "-max-sources":
			if i+1 >= len(args) {
				return fmt.Errorf("missing value for -max-sources")
			}
			i++
			fmt.Sscanf(args[i], "%d", &maxSources)
		}
	}
	if topic == "" {
		fmt.Fprintf(os.Stderr, "Usage: erevna research -topic <topic> [-query <query>] [-format html|markdown|pdf] [-max-sources <n>]\n")
		return fmt.Errorf("missing -topic flag")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if format == "" {
		format = cfg.Reports.DefaultFormat
	}

	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	resolveSearchKey(cfg, db)

	coord := pipeline.New(cfg.Pipeline, buildAdapters(cfg), db, slog.Default(), nil)
	defer coord.Cleanup()

	report, err := coord.Run(context.Background(), pipeline.Request{
		Topic:      topic,
		Query:      query,
		MaxSources: maxSources,
		Format:     format,
	})
	if err != nil {
		return err
	}

	printReport(report)

	if cfg.Telegram.Token != "" && cfg.Telegram.ChatID != 0 {
		if notifier, err := telegram.NewNotifier(cfg.Telegram); err == nil {
			notifier.NotifyRunComplete(context.Background(), report)
		}
	}

	// Partial results still produced a usable transcript; only a run with
	// nothing completed exits non-zero.
	if report.Status == pipeline.StatusFailure {
		return fmt.Errorf("run %s failed", report.RunID)
	}
	return nil
}

func printReport(report *pipeline.RunReport) {
	fmt.Printf("Run %s: %s\n", report.RunID, report.Status)
	for _, step := range report.Steps {
		if step.Status == pipeline.StepCompleted {
			fmt.Printf("  %-14s ok      %.1fs\n", step.Step, step.Duration)
		} else {
			fmt.Printf("  %-14s failed  %s\n", step.Step, step.Error)
		}
	}
	if report.Report != nil {
		fmt.Printf("Report written to %s (%d bytes)\n", report.Report.Filepath, report.Report.Size)
	}
}

func runGateway() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("starting erevna gateway", "version", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// SQLite store
	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()
	slog.Info("store initialized", "path", cfg.Store.Path)

	resolveSearchKey(cfg, db)

	// Embedded NATS
	bus, err := natsbus.New(cfg.NATS)
	if err != nil {
		return fmt.Errorf("init nats: %w", err)
	}
	defer bus.Close()
	slog.Info("nats started", "port", cfg.NATS.Port)

	events, err := natsbus.NewClient(bus)
	if err != nil {
		return fmt.Errorf("init nats client: %w", err)
	}
	defer events.Close()

	// Pipeline coordinator
	coord := pipeline.New(cfg.Pipeline, buildAdapters(cfg), db, slog.Default(), events)
	defer coord.Cleanup()

	// Scheduler
	sched := scheduler.New(db, coord, cfg.Scheduler)
	go sched.Start(ctx)

	// Telegram notifier, fed from the event bus
	if cfg.Telegram.Token != "" && cfg.Telegram.ChatID != 0 {
		notifier, err := telegram.NewNotifier(cfg.Telegram)
		if err != nil {
			return fmt.Errorf("init telegram notifier: %w", err)
		}
		_, _ = events.Subscribe(natsbus.TopicEventsRun("run_completed"), func(msg *nats.Msg) {
			var event struct {
				RunID string         `json:"run_id"`
				Data  map[string]any `json:"data"`
			}
			if err := json.Unmarshal(msg.Data, &event); err != nil {
				return
			}
			run, err := db.GetResearchRun(event.RunID)
			if err != nil {
				return
			}
			text := fmt.Sprintf("Research run %s finished: %s (topic: %s)", run.ID, run.Status, run.Topic)
			if err := notifier.SendMessage(ctx, text); err != nil {
				slog.Error("telegram notify failed", "run_id", run.ID, "error", err)
			}
		})
		slog.Info("telegram notifier started")
	} else {
		slog.Warn("telegram not configured, notifications disabled")
	}

	// Web API
	if cfg.Web.Enabled {
		srv := web.NewServer(db, bus, coord, cfg.Web, version)
		go func() {
			if err := srv.Start(ctx); err != nil {
				slog.Error("web server error", "error", err)
			}
		}()
		slog.Info("web server started", "port", cfg.Web.Port)
	}

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig)
	cancel()
	coord.Cleanup()
	return nil
}
