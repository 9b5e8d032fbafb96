package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

type Validation struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (v *Validation) addErr(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}
func (v *Validation) addWarn(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}
func (v Validation) OK() bool { return len(v.Errors) == 0 }

// Err folds all errors into one, nil when OK.
func (v Validation) Err() error {
	if v.OK() {
		return nil
	}
	return errors.New("config validation failed:\n- " + strings.Join(v.Errors, "\n- "))
}

// NormalizeAndValidate returns a normalized copy together with its findings.
func NormalizeAndValidate(cfg Config) (Config, Validation) {
	var out = cfg
	var res Validation

	trimList := func(xs []string) []string {
		seen := map[string]bool{}
		var ys []string
		for _, x := range xs {
			x = strings.TrimSpace(x)
			if x == "" {
				continue
			}
			key := strings.ToLower(x)
			if seen[key] {
				continue
			}
			seen[key] = true
			ys = append(ys, x)
		}
		return ys
	}

	out.Classifier.Include = trimList(out.Classifier.Include)
	out.Classifier.Exclude = trimList(out.Classifier.Exclude)
	out.Sink.Targets = trimList(out.Sink.Targets)
	for i, t := range out.Sink.Targets {
		out.Sink.Targets[i] = strings.ToLower(t)
	}
	out.Mail.Provider = strings.ToLower(strings.TrimSpace(out.Mail.Provider))
	out.Extractor.Strategy = strings.ToLower(strings.TrimSpace(out.Extractor.Strategy))
	out.Mail.SenderFilter = strings.TrimSpace(out.Mail.SenderFilter)

	// ---- Validation rules ----

	if _, err := out.Location(); err != nil {
		res.addErr("app.timezone %q: %v", out.App.Timezone, err)
	}

	switch out.Logging.Format {
	case "", "console", "json":
	default:
		res.addErr("logging.format must be console or json, got %q", out.Logging.Format)
	}

	switch out.Mail.Provider {
	case "gmail":
		if strings.TrimSpace(out.Mail.Gmail.CredentialsFile) == "" {
			res.addErr("mail.gmail.credentials_file is required when mail.provider=gmail")
		}
		if out.Mail.Gmail.RequestsPerSecond <= 0 {
			res.addErr("mail.gmail.requests_per_second must be > 0")
		}
	case "imap":
		if strings.TrimSpace(out.Mail.IMAP.Host) == "" {
			res.addErr("mail.imap.host is required when mail.provider=imap")
		}
		if out.Mail.IMAP.Port == 0 {
			res.addErr("mail.imap.port is required when mail.provider=imap")
		}
		if strings.TrimSpace(out.Mail.IMAP.Username) == "" {
			res.addErr("mail.imap.username is required when mail.provider=imap")
		}
		if strings.TrimSpace(out.Mail.IMAP.Mailbox) == "" {
			res.addErr("mail.imap.mailbox is required when mail.provider=imap")
		}
	default:
		res.addErr("mail.provider must be gmail or imap, got %q", out.Mail.Provider)
	}
	if out.Mail.SenderFilter == "" {
		res.addWarn("mail.sender_filter is empty; every mail in the mailbox will be scanned.")
	}

	if strings.TrimSpace(out.Ingest.StateFile) == "" {
		res.addErr("ingest.state_file is required")
	}
	if _, err := out.BackfillStart(); err != nil {
		res.addErr("ingest.backfill_start_date must look like %s: %v", BackfillDateLayout, err)
	}
	if out.Ingest.BackfillLimit <= 0 {
		res.addErr("ingest.backfill_limit must be > 0")
	}
	if out.Ingest.IncrementalWindow <= 0 {
		res.addErr("ingest.incremental_window must be > 0")
	} else if out.Ingest.IncrementalWindow > out.Ingest.BackfillLimit {
		res.addWarn("ingest.incremental_window (%d) is larger than ingest.backfill_limit (%d).",
			out.Ingest.IncrementalWindow, out.Ingest.BackfillLimit)
	}

	if len(out.Classifier.Include) == 0 {
		res.addErr("classifier.include must have at least 1 keyword")
	}
	if len(out.Classifier.Exclude) == 0 {
		res.addWarn("classifier.exclude is empty; shortlist and interview mails will reach the sheet.")
	}

	switch out.Extractor.Strategy {
	case "pattern":
	case "model":
		if strings.TrimSpace(out.Extractor.Model.URL) == "" {
			res.addErr("extractor.model.url is required when extractor.strategy=model")
		}
		if strings.TrimSpace(out.Extractor.Model.Model) == "" {
			res.addErr("extractor.model.model is required when extractor.strategy=model")
		}
		if out.Extractor.Model.TimeoutSeconds <= 0 {
			res.addErr("extractor.model.timeout_seconds must be > 0")
		}
		if out.Extractor.Model.MaxRetries < 0 {
			res.addErr("extractor.model.max_retries must be >= 0")
		}
	default:
		res.addErr("extractor.strategy must be pattern or model, got %q", out.Extractor.Strategy)
	}

	if len(out.Sink.Targets) == 0 {
		res.addErr("sink.targets must name at least one of sheets, sqlite, console")
	}
	for _, t := range out.Sink.Targets {
		switch t {
		case "sheets":
			if strings.TrimSpace(out.Sink.Sheets.SheetID) == "" {
				res.addErr("sink.sheets.sheet_id is required when sheets is a sink target")
			}
			if strings.TrimSpace(out.Sink.Sheets.Tab) == "" {
				res.addErr("sink.sheets.tab is required when sheets is a sink target")
			}
		case "sqlite":
			if strings.TrimSpace(out.Sink.SQLite.Path) == "" {
				res.addErr("sink.sqlite.path is required when sqlite is a sink target")
			}
		case "console":
		default:
			res.addErr("unknown sink target %q", t)
		}
	}

	if out.Schedule.IntervalMinutes <= 0 {
		res.addErr("schedule.interval_minutes must be > 0")
	} else if out.Schedule.IntervalMinutes < 5 {
		res.addWarn("schedule.interval_minutes is very low (%d) and may hit Gmail quotas.", out.Schedule.IntervalMinutes)
	}

	if l := strings.TrimSpace(out.HTTP.Listen); l != "" {
		if _, _, err := net.SplitHostPort(l); err != nil {
			res.addErr("http.listen %q: %v", l, err)
		}
	}

	// simple conflict check
	excl := map[string]bool{}
	for _, kw := range out.Classifier.Exclude {
		excl[strings.ToLower(kw)] = true
	}
	for _, kw := range out.Classifier.Include {
		if excl[strings.ToLower(kw)] {
			res.addWarn("keyword appears in both include and exclude: %q", kw)
		}
	}

	return out, res
}
