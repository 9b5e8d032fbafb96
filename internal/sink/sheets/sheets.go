// Package sheets appends rows to a Google Sheets tab.
package sheets

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/api/sheets/v4"

	"placement-engine/internal/domain"
)

type Sink struct {
	svc     *sheets.Service
	sheetID string
	tab     string
	log     *zap.Logger
}

func New(svc *sheets.Service, sheetID, tab string, log *zap.Logger) *Sink {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sink{svc: svc, sheetID: sheetID, tab: tab, log: log.Named("sheets")}
}

func (s *Sink) Name() string { return "sheets" }

// Append adds rows below the last row of the tab in one request.
func (s *Sink) Append(ctx context.Context, rows []domain.OutputRow) error {
	if len(rows) == 0 {
		return nil
	}
	vr := &sheets.ValueRange{Values: make([][]interface{}, 0, len(rows))}
	for _, r := range rows {
		vr.Values = append(vr.Values, cells(r[:]))
	}

	resp, err := s.svc.Spreadsheets.Values.Append(s.sheetID, A1(s.tab, "A1"), vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("sheets append: %w", err)
	}
	if resp.Updates != nil {
		s.log.Info("appended", zap.String("range", resp.Updates.UpdatedRange), zap.Int64("rows", resp.Updates.UpdatedRows))
	}
	return nil
}

// EnsureHeader writes the column header into row 1 when that row is empty.
func (s *Sink) EnsureHeader(ctx context.Context) error {
	got, err := s.svc.Spreadsheets.Values.Get(s.sheetID, A1(s.tab, "1:1")).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("sheets read header: %w", err)
	}
	if len(got.Values) > 0 && len(got.Values[0]) > 0 {
		return nil
	}

	header := &sheets.ValueRange{Values: [][]interface{}{cells(domain.Columns[:])}}
	if _, err := s.svc.Spreadsheets.Values.Update(s.sheetID, A1(s.tab, "A1"), header).
		ValueInputOption("RAW").
		Context(ctx).
		Do(); err != nil {
		return fmt.Errorf("sheets write header: %w", err)
	}
	s.log.Info("wrote header", zap.String("tab", s.tab))
	return nil
}

// A1 builds "<tab>!<cells>", quoting the tab name when it needs it.
func A1(tab, cells string) string {
	if tab == "" {
		return cells
	}
	plain := true
	for _, r := range tab {
		if !(r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			plain = false
			break
		}
	}
	if !plain {
		tab = "'" + strings.ReplaceAll(tab, "'", "''") + "'"
	}
	return tab + "!" + cells
}

func cells(xs []string) []interface{} {
	out := make([]interface{}, len(xs))
	for i, x := range xs {
		out[i] = x
	}
	return out
}
