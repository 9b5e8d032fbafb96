// Package normalize collapses an offer record into a fixed, all-string sheet row.
package normalize

import (
	"strings"

	"placement-engine/internal/domain"
)

// Row never fails: every shape a field can take has a string rendering,
// and missing fields become "".
func Row(rec domain.OfferRecord, serial, status string) domain.OutputRow {
	links := Links(rec.RegistrationLinks)

	source := strings.TrimSpace(rec.ApplicationSource.String())
	if source == "" {
		source = InferSource(links)
	}

	var row domain.OutputRow
	row[domain.ColSrNo] = serial
	row[domain.ColCompany] = rec.Company.String()
	row[domain.ColCategory] = rec.Category.String()
	row[domain.ColBranches] = rec.Branches.String()
	row[domain.ColTenth] = rec.Tenth.String()
	row[domain.ColTwelfth] = rec.Twelfth.String()
	row[domain.ColCGPA] = CGPA(rec.CGPA)
	row[domain.ColCTC] = rec.CTC.String()
	row[domain.ColStipend] = Stipend(rec.Stipend)
	row[domain.ColLastDate] = rec.LastDate.String()
	row[domain.ColApplicationSource] = source
	row[domain.ColApplicationStatus] = status
	row[domain.ColRegistrationLinks] = strings.Join(links, ", ")
	row[domain.ColMailDate] = rec.MailDate
	row[domain.ColMailTime] = rec.MailTime
	return row
}

// CGPA takes the first value of a mapping; anything else is flattened.
func CGPA(v domain.Value) string {
	if v.Kind == domain.KindMapping {
		if len(v.Mapping) == 0 {
			return ""
		}
		return v.Mapping[0].Value
	}
	return v.String()
}

// Stipend prefers a mapping entry whose key mentions btech, else the first entry.
func Stipend(v domain.Value) string {
	if v.Kind != domain.KindMapping {
		return v.String()
	}
	for _, p := range v.Mapping {
		if strings.Contains(strings.ToLower(p.Key), "btech") {
			return p.Value
		}
	}
	if len(v.Mapping) > 0 {
		return v.Mapping[0].Value
	}
	return ""
}

// Links trims each link and unwraps <...>. A scalar counts as one link.
func Links(v domain.Value) []string {
	var raw []string
	switch v.Kind {
	case domain.KindList:
		raw = v.List
	case domain.KindScalar:
		raw = []string{v.Scalar}
	case domain.KindMapping:
		for _, p := range v.Mapping {
			raw = append(raw, p.Value)
		}
	}

	out := make([]string, 0, len(raw))
	for _, l := range raw {
		s := strings.TrimSpace(l)
		if strings.HasPrefix(s, "<") && strings.HasSuffix(s, ">") {
			s = strings.TrimSpace(s[1 : len(s)-1])
		}
		out = append(out, s)
	}
	return out
}

// InferSource guesses where applications go from the registration links.
func InferSource(links []string) string {
	joined := strings.ToLower(strings.Join(links, " "))
	switch {
	case strings.Contains(joined, "forms.gle"):
		return "Google Form"
	case strings.Contains(joined, "neopat"):
		return "NEOPAT portal"
	case len(links) > 0:
		return "Company Portal"
	default:
		return ""
	}
}
