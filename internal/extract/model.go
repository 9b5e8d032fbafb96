package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"placement-engine/internal/domain"
	"placement-engine/internal/llm"
)

// Model asks a text-generation service for a JSON offer record.
type Model struct {
	gen llm.Generator
	log *zap.Logger
}

func NewModel(gen llm.Generator, log *zap.Logger) *Model {
	return &Model{gen: gen, log: nopIfNil(log).Named("extract")}
}

func (x *Model) Extract(ctx context.Context, m domain.Message) (*domain.OfferRecord, error) {
	out, err := x.gen.Generate(ctx, Prompt(m.Subject, m.Body))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		x.log.Warn("generation failed", zap.String("id", m.ID), zap.Error(err))
		return nil, nil
	}

	rec, err := ParseGeneration(out)
	if err != nil {
		x.log.Warn("unusable generation",
			zap.String("id", m.ID),
			zap.Error(err),
			zap.String("raw", truncate(out, 300)),
		)
		return nil, nil
	}
	return rec, nil
}

// ParseGeneration pulls the first balanced JSON object out of a model reply.
func ParseGeneration(out string) (*domain.OfferRecord, error) {
	if strings.TrimSpace(out) == "" {
		return nil, ErrEmptyGeneration
	}
	obj, err := firstObject(out)
	if err != nil {
		return nil, err
	}
	if !json.Valid([]byte(obj)) {
		return nil, ErrInvalidJSON
	}

	dec := json.NewDecoder(strings.NewReader(obj))
	dec.UseNumber()
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil, ErrInvalidJSON
	}
	fields, err := decodeFields(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return recordFromFields(fields), nil
}

type field struct {
	key   string
	value domain.Value
}

// decodeFields reads object members up to and including the closing brace,
// keeping them in document order.
func decodeFields(dec *json.Decoder) ([]field, error) {
	var fields []field
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("object key is %T", tok)
		}
		v, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		fields = append(fields, field{key: key, value: v})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return fields, nil
}

func decodeValue(dec *json.Decoder) (domain.Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return domain.Value{}, err
	}
	switch t := tok.(type) {
	case json.Delim:
		if t == '{' {
			fields, err := decodeFields(dec)
			if err != nil {
				return domain.Value{}, err
			}
			pairs := make([]domain.Pair, 0, len(fields))
			for _, f := range fields {
				pairs = append(pairs, domain.Pair{Key: f.key, Value: f.value.String()})
			}
			return domain.Mapping(pairs...), nil
		}
		items := []string{}
		for dec.More() {
			v, err := decodeValue(dec)
			if err != nil {
				return domain.Value{}, err
			}
			if s := v.String(); s != "" {
				items = append(items, s)
			}
		}
		if _, err := dec.Token(); err != nil {
			return domain.Value{}, err
		}
		return domain.List(items...), nil
	case string:
		return domain.Scalar(t), nil
	case json.Number:
		return domain.Scalar(t.String()), nil
	case bool:
		return domain.Scalar(strconv.FormatBool(t)), nil
	}
	return domain.Value{}, nil
}

// firstObject returns the first balanced {...} span, ignoring braces inside strings.
func firstObject(s string) (string, error) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", ErrNoJSON
	}

	depth := 0
	inStr, esc := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("%w: unbalanced braces", ErrInvalidJSON)
}

func recordFromFields(fields []field) *domain.OfferRecord {
	rec := &domain.OfferRecord{}
	var tenthPct, twelfthPct domain.Value

	for _, f := range fields {
		key := strings.ToLower(strings.TrimSpace(f.key))
		v := f.value

		switch key {
		case "company", "company_name":
			rec.Company = v
		case "category":
			rec.Category = v
		case "branches", "eligible_branches":
			rec.Branches = v
		case "10th":
			rec.Tenth = v
		case "10th%":
			tenthPct = v
		case "12th":
			rec.Twelfth = v
		case "12th%":
			twelfthPct = v
		case "cgpa":
			rec.CGPA = v
		case "ctc":
			rec.CTC = v
		case "stipend":
			rec.Stipend = v
		case "last_date":
			rec.LastDate = v
		case "registration_links":
			rec.RegistrationLinks = asList(v)
		case "application_source":
			rec.ApplicationSource = v
		case "website":
			rec.Website = strings.TrimSpace(v.String())
		}
	}

	if rec.Tenth.IsZero() {
		rec.Tenth = tenthPct
	}
	if rec.Twelfth.IsZero() {
		rec.Twelfth = twelfthPct
	}
	return rec
}

// asList turns a lone scalar into a one-element list and a mapping into its values.
func asList(v domain.Value) domain.Value {
	switch v.Kind {
	case domain.KindScalar:
		if strings.TrimSpace(v.Scalar) == "" {
			return domain.Value{}
		}
		return domain.List(v.Scalar)
	case domain.KindMapping:
		vals := make([]string, 0, len(v.Mapping))
		for _, p := range v.Mapping {
			vals = append(vals, p.Value)
		}
		return domain.List(vals...)
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
