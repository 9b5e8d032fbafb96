// Package sink delivers a run's rows to their destinations.
package sink

import (
	"context"
	"fmt"
	"io"
	"strings"

	"placement-engine/internal/domain"
)

// Sink appends one batch of rows. The destination is bound at construction.
type Sink interface {
	Append(ctx context.Context, rows []domain.OutputRow) error
	Name() string
}

// Multi appends to every sink in order and stops at the first failure.
// Put sinks that tolerate re-appends (sqlite, console) before sheets.
type Multi []Sink

func (m Multi) Append(ctx context.Context, rows []domain.OutputRow) error {
	for _, s := range m {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Append(ctx, rows); err != nil {
			return fmt.Errorf("%s: %w", s.Name(), err)
		}
	}
	return nil
}

func (m Multi) Name() string {
	names := make([]string, 0, len(m))
	for _, s := range m {
		names = append(names, s.Name())
	}
	return strings.Join(names, "+")
}

// Console prints every row with its column names.
type Console struct {
	W io.Writer
}

func (c Console) Name() string { return "console" }

func (c Console) Append(_ context.Context, rows []domain.OutputRow) error {
	for i, r := range rows {
		if _, err := fmt.Fprintf(c.W, "--- row %d/%d ---\n", i+1, len(rows)); err != nil {
			return err
		}
		for col, name := range domain.Columns {
			if _, err := fmt.Fprintf(c.W, "%-28s %s\n", name+":", r[col]); err != nil {
				return err
			}
		}
	}
	return nil
}

// Memory keeps appended rows in memory. Err, when set, fails every Append.
type Memory struct {
	Rows    []domain.OutputRow
	Batches int
	Err     error
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Append(_ context.Context, rows []domain.OutputRow) error {
	if m.Err != nil {
		return m.Err
	}
	m.Batches++
	m.Rows = append(m.Rows, rows...)
	return nil
}
