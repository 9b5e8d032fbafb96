// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// BackfillDateLayout is the date layout of ingest.backfill_start_date (Gmail's after: format).
const BackfillDateLayout = "2006/01/02"

type Config struct {
	App struct {
		DataDir  string `yaml:"data_dir"`
		Timezone string `yaml:"timezone"`
	} `yaml:"app"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // console | json
	} `yaml:"logging"`

	Mail struct {
		Provider      string `yaml:"provider"` // gmail | imap
		SenderFilter  string `yaml:"sender_filter"`
		SubjectFilter string `yaml:"subject_filter"`

		Gmail struct {
			CredentialsFile   string  `yaml:"credentials_file"`
			TokenFile         string  `yaml:"token_file"`
			RequestsPerSecond float64 `yaml:"requests_per_second"`
		} `yaml:"gmail"`

		IMAP struct {
			Host     string `yaml:"host"`
			Port     int    `yaml:"port"`
			Username string `yaml:"username"`
			Mailbox  string `yaml:"mailbox"`
		} `yaml:"imap"`
	} `yaml:"mail"`

	Ingest struct {
		StateFile         string `yaml:"state_file"`
		BackfillStartDate string `yaml:"backfill_start_date"`
		BackfillLimit     int    `yaml:"backfill_limit"`
		IncrementalWindow int    `yaml:"incremental_window"`
		ApplicationStatus string `yaml:"application_status"`
	} `yaml:"ingest"`

	Classifier struct {
		Include []string `yaml:"include"`
		Exclude []string `yaml:"exclude"`
	} `yaml:"classifier"`

	Extractor struct {
		Strategy string `yaml:"strategy"` // pattern | model
		Model    struct {
			URL            string `yaml:"url"`
			Model          string `yaml:"model"`
			TimeoutSeconds int    `yaml:"timeout_seconds"`
			MaxRetries     int    `yaml:"max_retries"`
		} `yaml:"model"`
	} `yaml:"extractor"`

	Sink struct {
		Targets []string `yaml:"targets"` // sheets | sqlite | console
		Sheets  struct {
			SheetID         string `yaml:"sheet_id"`
			Tab             string `yaml:"tab"`
			CredentialsFile string `yaml:"credentials_file"`
			TokenFile       string `yaml:"token_file"`
		} `yaml:"sheets"`
		SQLite struct {
			Path string `yaml:"path"`
		} `yaml:"sqlite"`
	} `yaml:"sink"`

	Metrics struct {
		Textfile string `yaml:"textfile"`
	} `yaml:"metrics"`

	HTTP struct {
		Listen string `yaml:"listen"` // daemon status api; empty disables it
	} `yaml:"http"`

	Schedule struct {
		IntervalMinutes int `yaml:"interval_minutes"`
	} `yaml:"schedule"`
}

// Default returns the built-in configuration. Keyword lists are the stock
// placement-cell vocabulary.
func Default() Config {
	var cfg Config
	cfg.App.DataDir = "."
	cfg.App.Timezone = "Asia/Kolkata"
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "console"

	cfg.Mail.Provider = "gmail"
	cfg.Mail.Gmail.CredentialsFile = "gmail_credentials.json"
	cfg.Mail.Gmail.TokenFile = "gmail_token.json"
	cfg.Mail.Gmail.RequestsPerSecond = 20
	cfg.Mail.IMAP.Host = "imap.gmail.com"
	cfg.Mail.IMAP.Port = 993
	cfg.Mail.IMAP.Mailbox = "INBOX"

	cfg.Ingest.StateFile = "run_state.json"
	cfg.Ingest.BackfillStartDate = "2025/05/17"
	cfg.Ingest.BackfillLimit = 3000
	cfg.Ingest.IncrementalWindow = 500

	cfg.Classifier.Include = []string{
		"placement", "internship", "drive", "dream offer", "super dream", "opportunity", "registration",
		"category", "offer", "eligible branch", "campus program",
	}
	cfg.Classifier.Exclude = []string{
		"shortlist", "short-listed", "shortlisted",
		"selected students", "selected", "selection list",
		"further round", "next round",
		"interview", "technical interview", "group discussion",
		"test scheduled", "online test",
		"pre-placement talk", "pre placement talk",
		"congratulations",
		"selection process",
		"technical round", "assessment", "round",
	}

	cfg.Extractor.Strategy = "pattern"
	cfg.Extractor.Model.URL = "http://localhost:11434/api/generate"
	cfg.Extractor.Model.Model = "mistral"
	cfg.Extractor.Model.TimeoutSeconds = 120
	cfg.Extractor.Model.MaxRetries = 2

	cfg.Sink.Targets = []string{"sheets"}
	cfg.Sink.Sheets.Tab = "Campus Placements"
	cfg.Sink.Sheets.CredentialsFile = "sheets_credentials.json"
	cfg.Sink.Sheets.TokenFile = "sheets_token.json"
	cfg.Sink.SQLite.Path = "placements.db"

	cfg.Schedule.IntervalMinutes = 360
	return cfg
}

// Load reads path on top of Default, then applies PLACEMENT_* environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyEnv()
	return cfg, nil
}

// Path resolves p against app.data_dir unless it is already absolute.
func (c Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.App.DataDir, p)
}

func (c Config) Location() (*time.Location, error) {
	if strings.TrimSpace(c.App.Timezone) == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.App.Timezone)
}

func (c Config) BackfillStart() (time.Time, error) {
	if strings.TrimSpace(c.Ingest.BackfillStartDate) == "" {
		return time.Time{}, nil
	}
	return time.Parse(BackfillDateLayout, strings.TrimSpace(c.Ingest.BackfillStartDate))
}

func (c Config) ModelTimeout() time.Duration {
	return time.Duration(c.Extractor.Model.TimeoutSeconds) * time.Second
}

func (c Config) Interval() time.Duration {
	return time.Duration(c.Schedule.IntervalMinutes) * time.Minute
}

// applyEnv overrides with non-empty environment variables.
func (c *Config) applyEnv() {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	str("PLACEMENT_DATA_DIR", &c.App.DataDir)
	str("PLACEMENT_TIMEZONE", &c.App.Timezone)
	str("PLACEMENT_LOG_LEVEL", &c.Logging.Level)
	str("PLACEMENT_LOG_FORMAT", &c.Logging.Format)

	str("PLACEMENT_MAIL_PROVIDER", &c.Mail.Provider)
	str("PLACEMENT_SENDER_FILTER", &c.Mail.SenderFilter)
	str("PLACEMENT_SUBJECT_FILTER", &c.Mail.SubjectFilter)
	str("PLACEMENT_IMAP_USERNAME", &c.Mail.IMAP.Username)

	str("PLACEMENT_STATE_FILE", &c.Ingest.StateFile)
	str("PLACEMENT_BACKFILL_START", &c.Ingest.BackfillStartDate)
	num("PLACEMENT_BACKFILL_LIMIT", &c.Ingest.BackfillLimit)
	num("PLACEMENT_INCREMENTAL_WINDOW", &c.Ingest.IncrementalWindow)

	str("PLACEMENT_EXTRACTOR", &c.Extractor.Strategy)
	str("PLACEMENT_OLLAMA_URL", &c.Extractor.Model.URL)
	str("PLACEMENT_OLLAMA_MODEL", &c.Extractor.Model.Model)

	str("PLACEMENT_SHEET_ID", &c.Sink.Sheets.SheetID)
	str("PLACEMENT_SHEET_TAB", &c.Sink.Sheets.Tab)
	if v := strings.TrimSpace(os.Getenv("PLACEMENT_SINKS")); v != "" {
		c.Sink.Targets = strings.Split(v, ",")
	}

	str("PLACEMENT_METRICS_TEXTFILE", &c.Metrics.Textfile)
	str("PLACEMENT_HTTP_LISTEN", &c.HTTP.Listen)
	c.Logging.Level = strings.ToLower(c.Logging.Level)
}
