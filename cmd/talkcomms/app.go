package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/TobiSchelling/talkcomms/internal/database"
	"github.com/TobiSchelling/talkcomms/internal/extract"
	"github.com/TobiSchelling/talkcomms/internal/fetch"
	"github.com/TobiSchelling/talkcomms/internal/ledger"
	"github.com/TobiSchelling/talkcomms/internal/llm"
	"github.com/TobiSchelling/talkcomms/internal/logging"
	"github.com/TobiSchelling/talkcomms/internal/pipeline"
	"github.com/TobiSchelling/talkcomms/internal/prompts"
	"github.com/TobiSchelling/talkcomms/internal/retry"
	"github.com/TobiSchelling/talkcomms/internal/search"
	"github.com/TobiSchelling/talkcomms/internal/server"
	"github.com/TobiSchelling/talkcomms/internal/stage"
	"github.com/TobiSchelling/talkcomms/internal/tracker"
)

// app holds everything a command needs to run the pipeline.
type app struct {
	db      *database.DB
	ledger  *ledger.Adapter
	journal *tracker.DBJournal
	service *pipeline.Service
	orch    *pipeline.Orchestrator
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return database.Open(cfg.DatabasePath())
}

func retryPolicy() retry.Policy {
	return retry.Policy{
		Attempts: cfg.Retry.TransientAttempts,
		Backoff:  retry.Backoff{Base: cfg.Retry.BaseDelay, Max: cfg.Retry.MaxDelay},
	}
}

func openStore(db *database.DB) (ledger.Store, error) {
	switch cfg.Ledger.Backend {
	case "", "sqlite":
		return ledger.NewSQLiteStore(db), nil
	case "coda":
		return ledger.NewCodaStore(ledger.CodaSettings{
			BaseURL:  cfg.Ledger.Coda.BaseURL,
			DocID:    cfg.Ledger.Coda.DocID,
			TableID:  cfg.Ledger.Coda.TableID,
			TokenEnv: cfg.Ledger.Coda.TokenEnv,
			Retry:    retryPolicy(),
		})
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Ledger.Backend)
	}
}

func newApp() (*app, error) {
	db, err := openDB()
	if err != nil {
		return nil, err
	}
	a := &app{db: db, journal: tracker.NewDBJournal(db)}

	store, err := openStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	a.ledger = ledger.NewAdapter(store, cfg.Ledger.CacheTTL)

	reg, err := prompts.Load(expandHome(cfg.Prompts.Dir))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("loading prompts: %w", err)
	}
	provider := llm.CreateProvider(llm.Settings{
		Provider:  cfg.LLM.Provider,
		Model:     cfg.LLM.Model,
		BaseURL:   cfg.LLM.BaseURL,
		APIKeyEnv: cfg.LLM.APIKeyEnv,
		Timeout:   cfg.LLM.Timeout,
	})
	runner := stage.NewRunner(provider, reg, stage.Policy{
		Transient:        retryPolicy(),
		SchemaRetries:    cfg.Retry.SchemaRetries,
		InvariantRetries: cfg.Retry.InvariantRetries,
		MaxTokens:        cfg.LLM.MaxTokens,
	}, logging.Component(logger, "stage"))

	deps := pipeline.Deps{
		Runner:   runner,
		Ledger:   a.ledger,
		Tracker:  tracker.New(a.journal, logging.Component(logger, "tracker")),
		Fetcher:  fetch.NewPageFetcher(cfg.Services.Timeout),
		Settings: pipeline.SettingsFromConfig(cfg),
		Logger:   logging.Component(logger, "pipeline"),
	}
	deps.Settings.SlidesDir = expandHome(deps.Settings.SlidesDir)
	deps.Settings.VideosDir = expandHome(deps.Settings.VideosDir)
	if cfg.Services.DocumentURL != "" {
		deps.Documents = extract.NewDocumentClient(cfg.Services.DocumentURL, cfg.Services.Timeout)
	}
	if cfg.Services.TranscriptionURL != "" {
		deps.Transcriber = extract.NewTranscriptionClient(cfg.Services.TranscriptionURL, cfg.Services.Timeout)
	}
	searchers, err := search.New(cfg.Services.Search.Providers, nil)
	if err != nil {
		db.Close()
		return nil, err
	}
	if len(searchers) > 0 {
		deps.Search = search.NewMulti(searchers...)
	}

	a.orch = pipeline.New(deps)
	a.service = pipeline.NewService(a.orch)
	return a, nil
}

func (a *app) serve(port int) error {
	return server.Serve(server.Options{
		Service: a.service,
		Ledger:  a.ledger,
		Journal: a.journal,
		DocID:   cfg.Ledger.Coda.DocID,
		Logger:  logging.Component(logger, "server"),
	}, port)
}

func (a *app) Close() error {
	a.service.Wait()
	return a.db.Close()
}

func expandHome(path string) string {
	if len(path) < 2 || path[:2] != "~/" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
