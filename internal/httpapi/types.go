package httpapi

import (
	"sync/atomic"
	"time"

	"placement-engine/internal/events"
	"placement-engine/internal/ingest"
)

type RunStatus struct {
	LastRunAt string         `json:"last_run_at"`
	LastOkAt  string         `json:"last_ok_at"`
	LastError string         `json:"last_error"`
	LastMode  string         `json:"last_mode"`
	LastRows  int            `json:"last_rows"`
	Fetched   int            `json:"fetched"`
	Skipped   map[string]int `json:"skipped,omitempty"`
	Watermark int64          `json:"watermark"`
	Runs      int            `json:"runs"`
	Running   bool           `json:"running"`
}

// Tracker records the outcome of ingest runs for /status and /events.
type Tracker struct {
	v   atomic.Value // RunStatus
	hub *events.Hub
	now func() time.Time
}

func NewTracker(hub *events.Hub) *Tracker {
	t := &Tracker{hub: hub, now: time.Now}
	t.v.Store(RunStatus{})
	return t
}

func (t *Tracker) Load() RunStatus { return t.v.Load().(RunStatus) }

func (t *Tracker) Begin() {
	st := t.Load()
	st.Running = true
	st.LastRunAt = t.now().Format(time.RFC3339)
	t.v.Store(st)
	if t.hub != nil {
		t.hub.Publish(events.Make("", events.TypeRunStarted, nil))
	}
}

func (t *Tracker) Finish(res ingest.Result, err error) {
	st := t.Load()
	st.Running = false
	st.Runs++
	st.LastMode = string(res.Mode)
	st.LastRows = len(res.Rows)
	st.Fetched = res.Fetched
	st.Skipped = res.Skipped
	if err != nil {
		st.LastError = err.Error()
	} else {
		st.LastError = ""
		st.LastOkAt = t.now().Format(time.RFC3339)
		st.Watermark = res.Watermark
	}
	t.v.Store(st)
	if t.hub != nil {
		t.hub.Publish(events.Make("", events.TypeRunFinished, st))
	}
}
