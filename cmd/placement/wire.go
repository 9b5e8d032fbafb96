package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"placement-engine/internal/classify"
	"placement-engine/internal/config"
	"placement-engine/internal/events"
	"placement-engine/internal/extract"
	"placement-engine/internal/googleauth"
	"placement-engine/internal/httpapi"
	"placement-engine/internal/ingest"
	"placement-engine/internal/llm"
	"placement-engine/internal/mail"
	"placement-engine/internal/mail/gmailsrc"
	"placement-engine/internal/mail/imapsrc"
	"placement-engine/internal/metrics"
	"placement-engine/internal/secrets"
	"placement-engine/internal/sink"
	"placement-engine/internal/sink/sheets"
	"placement-engine/internal/state"
	"placement-engine/internal/store"
)

type app struct {
	log         *zap.Logger
	pipeline    *ingest.Pipeline
	state       *state.FileStore
	metrics     *metrics.Metrics
	metricsPath string
	tracker     *httpapi.Tracker
	hub         *events.Hub
	listen      string
	interval    time.Duration
	closers     []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close", zap.Error(err))
		}
	}
}

// build wires every component from cfg. With dryRun no sink is opened.
func build(ctx context.Context, cfg config.Config, log *zap.Logger, dryRun bool) (*app, error) {
	hub := events.NewHub()
	a := &app{
		log:         log,
		state:       state.NewFileStore(cfg.Path(cfg.Ingest.StateFile), log),
		metrics:     metrics.New(),
		metricsPath: cfg.Metrics.Textfile,
		tracker:     httpapi.NewTracker(hub),
		hub:         hub,
		listen:      cfg.HTTP.Listen,
		interval:    cfg.Interval(),
	}

	src, err := buildSource(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	var gen llm.Generator
	if cfg.Extractor.Strategy == extract.StrategyModel {
		gen = llm.NewOllama(llm.Config{
			URL:        cfg.Extractor.Model.URL,
			Model:      cfg.Extractor.Model.Model,
			Timeout:    cfg.ModelTimeout(),
			MaxRetries: cfg.Extractor.Model.MaxRetries,
		}, log)
	}
	ext, err := extract.New(cfg.Extractor.Strategy, gen, log)
	if err != nil {
		return nil, err
	}

	var out sink.Sink
	if !dryRun {
		out, err = a.buildSinks(ctx, cfg, log)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	loc, err := cfg.Location()
	if err != nil {
		a.Close()
		return nil, err
	}
	start, err := cfg.BackfillStart()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.pipeline, err = ingest.New(ingest.Deps{
		Source:     src,
		Classifier: classify.New(classify.Keywords{Include: cfg.Classifier.Include, Exclude: cfg.Classifier.Exclude}),
		Extractor:  ext,
		Sink:       out,
		Store:      a.state,
		Log:        log,
	}, ingest.Settings{
		SenderFilter:      cfg.Mail.SenderFilter,
		SubjectFilter:     cfg.Mail.SubjectFilter,
		BackfillStart:     start,
		BackfillLimit:     cfg.Ingest.BackfillLimit,
		IncrementalWindow: cfg.Ingest.IncrementalWindow,
		ApplicationStatus: cfg.Ingest.ApplicationStatus,
		Location:          loc,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func buildSource(ctx context.Context, cfg config.Config, log *zap.Logger) (mail.Source, error) {
	switch cfg.Mail.Provider {
	case "imap":
		pw, err := secrets.GetIMAPPassword(secrets.IMAPKeyringAccount(cfg))
		if err != nil {
			return nil, err
		}
		return imapsrc.New(imapsrc.Config{
			Host:     cfg.Mail.IMAP.Host,
			Port:     cfg.Mail.IMAP.Port,
			Username: cfg.Mail.IMAP.Username,
			Password: pw,
			Mailbox:  cfg.Mail.IMAP.Mailbox,
		}, log), nil

	case "gmail":
		hc, err := googleauth.Client(ctx,
			cfg.Path(cfg.Mail.Gmail.CredentialsFile),
			secrets.TokenStore{Account: "placement:oauth:gmail", File: cfg.Path(cfg.Mail.Gmail.TokenFile)},
			googleauth.StdPrompt(), log, gmail.GmailReadonlyScope)
		if err != nil {
			return nil, fmt.Errorf("gmail auth: %w", err)
		}
		svc, err := gmail.NewService(ctx, option.WithHTTPClient(hc))
		if err != nil {
			return nil, fmt.Errorf("gmail service: %w", err)
		}
		return gmailsrc.New(svc, cfg.Mail.Gmail.RequestsPerSecond, log), nil
	}
	return nil, fmt.Errorf("unknown mail provider %q", cfg.Mail.Provider)
}

// buildSinks orders targets so that re-append tolerant sinks run before sheets.
func (a *app) buildSinks(ctx context.Context, cfg config.Config, log *zap.Logger) (sink.Sink, error) {
	want := map[string]bool{}
	for _, t := range cfg.Sink.Targets {
		want[t] = true
	}

	var multi sink.Multi
	if want["console"] {
		multi = append(multi, sink.Console{W: os.Stdout})
	}
	if want["sqlite"] {
		db, err := store.Open(ctx, cfg.Path(cfg.Sink.SQLite.Path))
		if err != nil {
			return nil, fmt.Errorf("sqlite archive: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		multi = append(multi, db)
	}
	if want["sheets"] {
		hc, err := googleauth.Client(ctx,
			cfg.Path(cfg.Sink.Sheets.CredentialsFile),
			secrets.TokenStore{Account: "placement:oauth:sheets", File: cfg.Path(cfg.Sink.Sheets.TokenFile)},
			googleauth.StdPrompt(), log, sheetsapi.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("sheets auth: %w", err)
		}
		svc, err := sheetsapi.NewService(ctx, option.WithHTTPClient(hc))
		if err != nil {
			return nil, fmt.Errorf("sheets service: %w", err)
		}
		sh := sheets.New(svc, cfg.Sink.Sheets.SheetID, cfg.Sink.Sheets.Tab, log)
		if err := sh.EnsureHeader(ctx); err != nil {
			log.Warn("could not check the sheet header", zap.Error(err))
		}
		multi = append(multi, sh)
	}

	if len(multi) == 1 {
		return multi[0], nil
	}
	return multi, nil
}

func printRecent(ctx context.Context, cfg config.Config, n int) error {
	db, err := store.Open(ctx, cfg.Path(cfg.Sink.SQLite.Path))
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := db.Recent(ctx, n)
	if err != nil {
		return err
	}
	return sink.Console{W: os.Stdout}.Append(ctx, rows)
}
