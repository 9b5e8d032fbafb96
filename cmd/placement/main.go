package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"placement-engine/internal/config"
	"placement-engine/internal/httpapi"
	"placement-engine/internal/ingest"
	"placement-engine/internal/logging"
	"placement-engine/internal/scheduler"
	"placement-engine/internal/secrets"
	"placement-engine/internal/sink"
	"placement-engine/internal/state"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		cfgPath       = flag.String("config", "", "config file (default: <data dir>/config.yml, created on first start)")
		daemon        = flag.Bool("daemon", false, "run every schedule.interval_minutes until interrupted")
		dryRun        = flag.Bool("dry-run", false, "fetch, filter and extract, print rows; append and save nothing")
		recent        = flag.Int("recent", 0, "print the N most recent rows from the sqlite archive and exit")
		setIMAPPass   = flag.Bool("set-imap-password", false, "read the IMAP password from stdin and store it in the OS keychain")
		printDefaults = flag.Bool("print-default-config", false, "print the default config and exit")
	)
	flag.Parse()

	if *printDefaults {
		_, _ = os.Stdout.Write(config.DefaultYAML())
		return 0
	}

	cfg, path, err := loadConfig(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}

	log, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()
	log.Info("config loaded", zap.String("path", path))

	if *setIMAPPass {
		if err := storeIMAPPassword(cfg); err != nil {
			log.Error("set imap password", zap.Error(err))
			return 1
		}
		log.Info("imap password stored in keychain", zap.String("account", secrets.IMAPKeyringAccount(cfg)))
		return 0
	}

	cfg, res := config.NormalizeAndValidate(cfg)
	for _, w := range res.Warnings {
		log.Warn(w)
	}
	if err := res.Err(); err != nil {
		log.Error("invalid config", zap.Error(err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *recent > 0 {
		if err := printRecent(ctx, cfg, *recent); err != nil {
			log.Error("recent", zap.Error(err))
			return 1
		}
		return 0
	}

	a, err := build(ctx, cfg, log, *dryRun)
	if err != nil {
		log.Error("startup failed", zap.Error(err))
		return 1
	}
	defer a.Close()

	switch {
	case *dryRun:
		err = a.dryRun(ctx)
	case *daemon:
		err = a.daemon(ctx)
	default:
		err = a.runOnce(ctx)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, state.ErrLocked) {
			log.Error("another run holds the state lock", zap.Error(err))
		} else {
			log.Error("run failed", zap.Error(err))
		}
		return 1
	}
	return 0
}

// loadConfig resolves the config path, bootstrapping the default file into the
// data dir when no -config is given, and applies the keywords.yml overlay.
func loadConfig(path string) (config.Config, string, error) {
	if path == "" {
		dataDir := os.Getenv("PLACEMENT_DATA_DIR")
		if dataDir == "" {
			dataDir = "."
		}
		p, err := config.EnsureUserConfig(dataDir)
		if err != nil {
			return config.Config{}, "", fmt.Errorf("bootstrap: %w", err)
		}
		path = p
	}

	cfg, err := config.Load(path)
	if err != nil {
		return cfg, path, err
	}
	if err := config.OverlayKeywords(&cfg, filepath.Join(filepath.Dir(path), "keywords.yml")); err != nil {
		return cfg, path, fmt.Errorf("keywords overlay: %w", err)
	}
	return cfg, path, nil
}

func storeIMAPPassword(cfg config.Config) error {
	if strings.TrimSpace(cfg.Mail.IMAP.Username) == "" {
		return errors.New("mail.imap.username is empty")
	}
	fmt.Fprintf(os.Stderr, "IMAP password for %s: ", cfg.Mail.IMAP.Username)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("read password: %w", err)
	}
	return secrets.SetIMAPPassword(secrets.IMAPKeyringAccount(cfg), strings.TrimRight(line, "\r\n"))
}

func (a *app) runOnce(ctx context.Context) error {
	start := time.Now()
	a.tracker.Begin()
	res, err := a.pipeline.RunOnce(ctx)
	a.tracker.Finish(res, err)
	a.metrics.Record(res, err, time.Since(start))
	if werr := a.metrics.WriteTextfile(a.metricsPath); werr != nil {
		a.log.Warn("metrics textfile", zap.Error(werr))
	}
	if err != nil && errors.Is(err, ingest.ErrStateSave) {
		a.log.Warn("rows were appended but the state file was not updated", zap.String("state", a.state.Path()))
	}
	return err
}

func (a *app) daemon(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return scheduler.Every(gctx, a.interval, "ingest", a.runOnce, a.log)
	})
	if a.listen != "" {
		g.Go(func() error {
			return httpapi.Serve(gctx, a.listen, httpapi.Handler(httpapi.Deps{
				Tracker:  a.tracker,
				Hub:      a.hub,
				Gatherer: a.metrics.Registry(),
				Log:      a.log,
			}), a.log)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutting down")
		return nil
	})
	return g.Wait()
}

func (a *app) dryRun(ctx context.Context) error {
	res, _, err := a.pipeline.Process(ctx, a.state.Load())
	if err != nil {
		return err
	}
	a.log.Info("dry run", zap.String("mode", string(res.Mode)), zap.Int("fetched", res.Fetched),
		zap.Int("rows", len(res.Rows)), zap.Any("skipped", res.Skipped))
	return sink.Console{W: os.Stdout}.Append(ctx, res.Rows)
}
