// Package ingest runs one ingestion pass: fetch, filter, extract, normalize,
// append, then persist state.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"placement-engine/internal/classify"
	"placement-engine/internal/domain"
	"placement-engine/internal/extract"
	"placement-engine/internal/mail"
	"placement-engine/internal/normalize"
	"placement-engine/internal/sink"
	"placement-engine/internal/state"
)

var (
	ErrSinkAppend = errors.New("sink append failed")
	ErrStateSave  = errors.New("state save failed")
)

type Mode string

const (
	ModeBackfill    Mode = "backfill"
	ModeIncremental Mode = "incremental"
)

type Phase string

const (
	PhaseInit        Phase = "init"
	PhaseBackfill    Phase = "backfill"
	PhaseIncremental Phase = "incremental"
	PhaseFiltering   Phase = "filtering"
	PhaseExtracting  Phase = "extracting"
	PhaseCommitting  Phase = "committing"
	PhaseDone        Phase = "done"
)

// Skip reasons, as counted in Result.Skipped.
const (
	SkipProcessed  = "processed"
	SkipOld        = "old"
	SkipClassifier = "classifier"
	SkipNoOffer    = "no_offer"
)

const (
	mailDateLayout = "02-01-2006"
	mailTimeLayout = "15:04"
)

// StateStore is the persistence the pipeline needs; *state.FileStore implements it.
type StateStore interface {
	Lock() (unlock func() error, err error)
	Load() state.RunState
	Save(state.RunState) error
}

type Settings struct {
	SenderFilter      string
	SubjectFilter     string
	BackfillStart     time.Time // zero: no date bound
	BackfillLimit     int
	IncrementalWindow int
	ApplicationStatus string
	Location          *time.Location // mail date/time columns
}

type Deps struct {
	Source     mail.Source
	Classifier *classify.Classifier
	Extractor  extract.Extractor
	Sink       sink.Sink
	Store      StateStore
	Log        *zap.Logger
}

type Pipeline struct {
	src   mail.Source
	cls   *classify.Classifier
	ext   extract.Extractor
	sink  sink.Sink
	store StateStore
	set   Settings
	log   *zap.Logger
}

type Result struct {
	Mode      Mode
	Fetched   int
	Skipped   map[string]int
	Rows      []domain.OutputRow
	Watermark int64
}

func (r Result) skip(reason string) {
	r.Skipped[reason]++
}

func New(d Deps, s Settings) (*Pipeline, error) {
	switch {
	case d.Source == nil:
		return nil, errors.New("ingest: mail source is required")
	case d.Classifier == nil:
		return nil, errors.New("ingest: classifier is required")
	case d.Extractor == nil:
		return nil, errors.New("ingest: extractor is required")
	}
	if s.Location == nil {
		s.Location = time.UTC
	}
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		src:   d.Source,
		cls:   d.Classifier,
		ext:   d.Extractor,
		sink:  d.Sink,
		store: d.Store,
		set:   s,
		log:   log.Named("ingest"),
	}, nil
}

// Query returns the mail query for a run starting from st.
func (p *Pipeline) Query(st state.RunState) (Mode, mail.Query) {
	q := mail.Query{Sender: p.set.SenderFilter, Subject: p.set.SubjectFilter}
	if st.Empty() {
		q.Limit = p.set.BackfillLimit
		q.After = p.set.BackfillStart
		return ModeBackfill, q
	}
	q.Limit = p.set.IncrementalWindow
	return ModeIncremental, q
}

// Process turns st into the next state and the rows to append. It never
// persists anything and never mutates st.
func (p *Pipeline) Process(ctx context.Context, st state.RunState) (Result, state.RunState, error) {
	res := Result{Skipped: map[string]int{}}
	next := st.Clone()
	prior := st.LastSeenTS

	p.phase(PhaseInit, zap.Int("processed_ids", len(st.ProcessedIDs)), zap.Int64("watermark", prior))

	mode, q := p.Query(st)
	res.Mode = mode
	if mode == ModeBackfill {
		p.phase(PhaseBackfill, zap.Stringer("query", q), zap.Int("limit", q.Limit))
	} else {
		p.phase(PhaseIncremental, zap.Stringer("query", q), zap.Int("limit", q.Limit))
	}

	msgs, err := p.src.Fetch(ctx, q)
	if err != nil {
		return res, st, fmt.Errorf("fetch from %s: %w", p.src.Name(), err)
	}
	res.Fetched = len(msgs)
	p.log.Info("fetched", zap.String("source", p.src.Name()), zap.Int("messages", len(msgs)))

	p.phase(PhaseFiltering)
	seen := make(map[string]struct{}, len(msgs))
	candidates := make([]domain.Message, 0, len(msgs))
	for _, m := range msgs {
		next.Observe(m.ReceivedAt)

		if m.ID != "" {
			if _, dup := seen[m.ID]; dup || st.Has(m.ID) {
				res.skip(SkipProcessed)
				continue
			}
			seen[m.ID] = struct{}{}
		}
		if prior > 0 && m.ReceivedAt > 0 && m.ReceivedAt <= prior {
			res.skip(SkipOld)
			continue
		}
		ok, kw := p.cls.Reason(m)
		if !ok {
			res.skip(SkipClassifier)
			p.log.Debug("not an offer mail", zap.String("id", m.ID), zap.String("subject", m.Subject), zap.String("reason", kw))
			continue
		}
		candidates = append(candidates, m)
	}

	p.phase(PhaseExtracting, zap.Int("candidates", len(candidates)))
	for _, m := range candidates {
		rec, err := p.ext.Extract(ctx, m)
		if err != nil {
			return res, st, fmt.Errorf("extract %s: %w", m.ID, err)
		}
		if rec == nil {
			res.skip(SkipNoOffer)
			p.log.Info("no offer extracted", zap.String("id", m.ID), zap.String("subject", m.Subject))
			continue
		}

		if t := m.Received(p.set.Location); !t.IsZero() {
			rec.MailDate = t.Format(mailDateLayout)
			rec.MailTime = t.Format(mailTimeLayout)
		}
		row := normalize.Row(*rec, "", p.set.ApplicationStatus)
		res.Rows = append(res.Rows, row)
		if m.ID != "" {
			next.Mark(m.ID)
		}
		p.log.Debug("extracted", zap.String("id", m.ID), zap.String("subject", m.Subject),
			zap.String("company", row[domain.ColCompany]), zap.String("category", row[domain.ColCategory]))
	}

	res.Watermark = next.LastSeenTS
	return res, next, nil
}

// RunOnce locks the state file, runs Process, appends all rows as one batch
// and saves the new state last. A failed append leaves the state untouched.
func (p *Pipeline) RunOnce(ctx context.Context) (Result, error) {
	if p.sink == nil || p.store == nil {
		return Result{}, errors.New("ingest: sink and state store are required")
	}

	unlock, err := p.store.Lock()
	if err != nil {
		return Result{}, fmt.Errorf("state lock: %w", err)
	}
	defer func() {
		if err := unlock(); err != nil {
			p.log.Warn("state unlock", zap.Error(err))
		}
	}()

	st := p.store.Load()
	res, next, err := p.Process(ctx, st)
	if err != nil {
		return res, err
	}

	p.phase(PhaseCommitting, zap.Int("rows", len(res.Rows)), zap.String("sink", p.sink.Name()))
	if len(res.Rows) == 0 {
		p.log.Info("no valid company placement offer mails found")
	} else if err := p.sink.Append(ctx, res.Rows); err != nil {
		p.log.Error("append failed; state not saved", zap.Error(err))
		return res, fmt.Errorf("%w: %w", ErrSinkAppend, err)
	}

	if err := p.store.Save(next); err != nil {
		p.log.Warn("state not saved; rows may be re-appended next run", zap.Error(err))
		return res, fmt.Errorf("%w: %w", ErrStateSave, err)
	}

	p.phase(PhaseDone,
		zap.String("mode", string(res.Mode)),
		zap.Int("fetched", res.Fetched),
		zap.Int("rows", len(res.Rows)),
		zap.Any("skipped", res.Skipped),
		zap.Int64("watermark", res.Watermark),
	)
	return res, nil
}

func (p *Pipeline) phase(ph Phase, fields ...zap.Field) {
	p.log.Info(string(ph), append([]zap.Field{zap.String("phase", string(ph))}, fields...)...)
}
