// Package extract turns an announcement mail into a structured offer record.
//
// Two strategies share the Extractor contract: Pattern (regex rules over the
// mail text) and Model (a text-generation service asked for JSON). A nil
// record with a nil error means "no offer in this mail"; errors are only
// returned when the context is done.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"placement-engine/internal/domain"
	"placement-engine/internal/llm"
)

var (
	ErrNoJSON          = errors.New("no JSON object in generation")
	ErrInvalidJSON     = errors.New("generation is not valid JSON")
	ErrEmptyGeneration = errors.New("empty generation")
)

type Extractor interface {
	Extract(ctx context.Context, m domain.Message) (*domain.OfferRecord, error)
}

const (
	StrategyPattern = "pattern"
	StrategyModel   = "model"
)

// New picks an extractor by strategy name. gen is only used by the model strategy.
func New(strategy string, gen llm.Generator, log *zap.Logger) (Extractor, error) {
	switch strings.ToLower(strings.TrimSpace(strategy)) {
	case "", StrategyPattern:
		return NewPattern(log), nil
	case StrategyModel:
		if gen == nil {
			return nil, fmt.Errorf("extractor %q: no generator configured", strategy)
		}
		return NewModel(gen, log), nil
	default:
		return nil, fmt.Errorf("unknown extractor strategy %q", strategy)
	}
}

// decorations trimmed from both ends of every extracted string.
const decorations = " \t\r\n*,:-|"

func clean(s string) string {
	return strings.Trim(s, decorations)
}

func scalar(s string) domain.Value {
	s = clean(s)
	if s == "" {
		return domain.Value{}
	}
	return domain.Scalar(s)
}

func nopIfNil(log *zap.Logger) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}
