// Package state holds the run state carried between ingestion runs: the ids
// of mails that produced a row and the newest mail timestamp ever observed.
package state

import "sort"

type RunState struct {
	ProcessedIDs map[string]struct{}
	LastSeenTS   int64 // epoch ms
}

func New() RunState {
	return RunState{ProcessedIDs: make(map[string]struct{})}
}

// Empty is true before the first successful run; it selects backfill mode.
func (s RunState) Empty() bool {
	return len(s.ProcessedIDs) == 0 && s.LastSeenTS == 0
}

func (s RunState) Has(id string) bool {
	_, ok := s.ProcessedIDs[id]
	return ok
}

func (s *RunState) Mark(id string) {
	if s.ProcessedIDs == nil {
		s.ProcessedIDs = make(map[string]struct{})
	}
	s.ProcessedIDs[id] = struct{}{}
}

// Observe raises the watermark to ts if it is newer.
func (s *RunState) Observe(ts int64) {
	if ts > s.LastSeenTS {
		s.LastSeenTS = ts
	}
}

// Clone returns a copy that shares nothing with s.
func (s RunState) Clone() RunState {
	out := RunState{
		ProcessedIDs: make(map[string]struct{}, len(s.ProcessedIDs)),
		LastSeenTS:   s.LastSeenTS,
	}
	for id := range s.ProcessedIDs {
		out.ProcessedIDs[id] = struct{}{}
	}
	return out
}

// IDs returns the processed ids in sorted order.
func (s RunState) IDs() []string {
	ids := make([]string, 0, len(s.ProcessedIDs))
	for id := range s.ProcessedIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
