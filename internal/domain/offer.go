package domain

import "strings"

type Kind int

const (
	KindNone Kind = iota
	KindScalar
	KindList
	KindMapping
)

// Pair is one entry of a Mapping value. Order is the order the extractor saw it in.
type Pair struct {
	Key   string
	Value string
}

// Value is the per-field shape an extractor can produce: nothing, a scalar,
// a list, or an ordered key/value mapping.
type Value struct {
	Kind    Kind
	Scalar  string
	List    []string
	Mapping []Pair
}

func Scalar(s string) Value { return Value{Kind: KindScalar, Scalar: s} }

func List(xs ...string) Value { return Value{Kind: KindList, List: xs} }

func Mapping(ps ...Pair) Value { return Value{Kind: KindMapping, Mapping: ps} }

func (v Value) IsZero() bool {
	switch v.Kind {
	case KindScalar:
		return strings.TrimSpace(v.Scalar) == ""
	case KindList:
		return len(v.List) == 0
	case KindMapping:
		return len(v.Mapping) == 0
	default:
		return true
	}
}

// String flattens any shape: list items and mapping entries are joined with ", ".
func (v Value) String() string {
	switch v.Kind {
	case KindScalar:
		return v.Scalar
	case KindList:
		return strings.Join(v.List, ", ")
	case KindMapping:
		parts := make([]string, 0, len(v.Mapping))
		for _, p := range v.Mapping {
			parts = append(parts, p.Key+": "+p.Value)
		}
		return strings.Join(parts, ", ")
	default:
		return ""
	}
}

// OfferRecord is the structured result of extracting one announcement mail.
// MailDate and MailTime are filled by the ingest pipeline, not by extractors.
type OfferRecord struct {
	Company           Value
	Category          Value
	Branches          Value
	Tenth             Value
	Twelfth           Value
	CGPA              Value
	CTC               Value
	Stipend           Value
	LastDate          Value
	RegistrationLinks Value
	ApplicationSource Value
	Website           string

	MailDate string
	MailTime string
}

// Viable reports whether the record carries at least one of company, branches or category.
func (r OfferRecord) Viable() bool {
	return !r.Company.IsZero() || !r.Branches.IsZero() || !r.Category.IsZero()
}
