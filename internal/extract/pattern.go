package extract

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"placement-engine/internal/domain"
)

// rules are tried in order; the first usable capture wins.
type rules []*regexp.Regexp

func compile(patterns ...string) rules {
	out := make(rules, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(`(?ims)`+p))
	}
	return out
}

var (
	companyRules = compile(
		`name of the company[\s:]*([\w ()./&,-]+)`,
		`company[\s:]*([\w ()./&,-]+)`,
		`\*\s*([\w ()./&,-]+)\s*\*`,
		`^([A-Z][\w ()./&,-]+)[:\-]`,
	)
	categoryRules = compile(
		`category[\s:]*([A-Z][^\n\r|]*)`,
		`(Dream Offer|Super Dream|Dream Internship|Regular Placement|Internship|Placement)`,
	)
	branchRules = compile(
		`eligible (?:branches?|disciplines)[\s:]*([\s\S]*?)(?:[\n\r]{2,}|eligibility|criteria|category|\bctc\b|stipend|last date|deadline|package|$)`,
		`branches?[\s:]*([\w ,.|/&\-\n\r]+)`,
	)
	criteriaRules = compile(
		`Eligibility Criteria[\s:]*([\s\S]*?)(?:CTC|Stipend|Last date|Website|Contact|\n[A-Z][a-z]+|$)`,
	)
	tenthRules = compile(
		`(?:10th|X)[^\d]{0,10}(\d{1,3})\s*%?`,
		`%\s*in\s*X[\s\-–:]*([0-9]{1,3})%?`,
	)
	twelfthRules = compile(
		`(?:12th|XII)[^\d]{0,10}(\d{1,3})\s*%?`,
		`%\s*in\s*XII[\s\-–:]*([0-9]{1,3})%?`,
	)
	cgpaRules = compile(
		`(\d+\.\d+)\s*CGPA`,
		`CGPA[^\d]{0,8}(\d+\.\d+)`,
		`(\d{1,2}\.\d{1,2})`,
	)
	ctcRules = compile(
		`ctc[\s:\-]*([₹]?\d[\d,\. ]*(?:LPA)?|[₹]?\d[\d,\. ]+)`,
		`package[\s:\-]*([₹]?\d[\d,\. ]*LPA|[₹]?\d[\d,\. ]+)`,
		`annual[\s:\-]*([₹]?\d[\d,\. ]*LPA|[₹]?\d[\d,\. ]+)`,
	)
	stipendRules = compile(
		`stipend[\s:\-]*([₹]?\d[\d,\. ]*(?:/month|/per month|per month)?|[₹]?\d[\d,\. ]+)`,
	)
	lastDateRules = compile(
		`last date[^\w]{0,6}([^\n\r,\.]*)`,
		`deadline[^\w]{0,6}([^\n\r,\.]*)`,
		`to apply[^\w]{0,6}([^\n\r,\.]*)`,
	)
	sourceRules = compile(
		`application source[\s:]*([^\n\r|]+)`,
		`(Google Form|NeoPAT|career page)`,
	)

	replyPrefix = regexp.MustCompile(`(?i)^\s*(?:(?:re|fwd?|fw)\s*[:\-]\s*)+`)
)

// first returns the first capture accepted by ok, scanning rules in order,
// matches left to right and each match's groups from last to first.
func (rs rules) first(text string, ok func(string) bool) string {
	if text == "" {
		return ""
	}
	for _, re := range rs {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			for i := len(m) - 1; i >= 1; i-- {
				g := clean(m[i])
				if g == "" {
					continue
				}
				if ok == nil || ok(g) {
					return g
				}
				break
			}
		}
	}
	return ""
}

// Line-start captures that are really field labels, not company names.
var fieldLabels = map[string]bool{
	"eligible branches": true, "eligible branch": true, "eligible disciplines": true,
	"eligibility": true, "eligibility criteria": true, "criteria": true,
	"branches": true, "branch": true, "category": true,
	"ctc": true, "package": true, "stipend": true, "salary": true,
	"last date": true, "last date for registration": true, "deadline": true,
	"registration": true, "registration link": true, "registration links": true,
	"website": true, "contact": true, "note": true, "date": true, "venue": true,
	"location": true, "role": true, "job role": true, "designation": true,
	"job description": true, "application source": true, "batch": true,
}

func notLabel(s string) bool {
	return !fieldLabels[strings.ToLower(strings.TrimSpace(s))]
}

// Words that make a subject segment a generic drive title rather than a name.
var genericWords = map[string]bool{
	"campus": true, "placement": true, "placements": true, "drive": true, "drives": true,
	"recruitment": true, "hiring": true, "internship": true, "internships": true,
	"opportunity": true, "opportunities": true, "announcement": true, "registration": true,
	"off": true, "on": true, "pool": true, "the": true, "for": true, "of": true, "and": true,
	"batch": true, "job": true, "jobs": true, "offer": true, "dream": true, "super": true,
	"regular": true, "open": true, "new": true, "invitation": true, "program": true,
}

func genericSegment(seg string) bool {
	words := strings.FieldsFunc(strings.ToLower(seg), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		return true
	}
	for _, w := range words {
		if genericWords[w] {
			continue
		}
		if strings.IndexFunc(w, func(r rune) bool { return !unicode.IsDigit(r) }) == -1 {
			continue
		}
		return false
	}
	return true
}

// CompanyFromSubject strips reply markers and returns the first subject
// segment (split at "-" or ":") that is not a generic drive title.
func CompanyFromSubject(subject string) string {
	s := replyPrefix.ReplaceAllString(subject, "")
	segs := strings.FieldsFunc(s, func(r rune) bool { return r == '-' || r == ':' })

	fallback := ""
	for _, seg := range segs {
		seg = clean(seg)
		if seg == "" {
			continue
		}
		if fallback == "" {
			fallback = seg
		}
		if !genericSegment(seg) {
			return seg
		}
	}
	return fallback
}

func cleanBranches(s string) string {
	s = strings.NewReplacer("\r", "", "\n", " ").Replace(s)
	return clean(strings.TrimRight(clean(s), ".;"))
}

// Pattern extracts offers with ordered regex rules per field.
type Pattern struct {
	log *zap.Logger
}

func NewPattern(log *zap.Logger) *Pattern {
	return &Pattern{log: nopIfNil(log).Named("extract")}
}

func (p *Pattern) Extract(ctx context.Context, m domain.Message) (*domain.OfferRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec := Parse(m.Subject, m.Body)
	if rec == nil {
		p.log.Debug("no viable fields", zap.String("id", m.ID), zap.String("subject", m.Subject))
		return nil, nil
	}
	return rec, nil
}

// Parse runs the pattern rules over body, falling back to subject for the
// company name. It returns nil when company, branches and category are all empty.
func Parse(subject, body string) *domain.OfferRecord {
	company := companyRules.first(body, notLabel)
	if company == "" {
		company = CompanyFromSubject(subject)
	}

	criteria := criteriaRules.first(body, nil)
	regLinks, website := Links(body)

	rec := &domain.OfferRecord{
		Company:           scalar(company),
		Category:          scalar(categoryRules.first(body, nil)),
		Branches:          scalar(cleanBranches(branchRules.first(body, nil))),
		Tenth:             scalar(tenthRules.first(criteria, nil)),
		Twelfth:           scalar(twelfthRules.first(criteria, nil)),
		CGPA:              scalar(cgpaRules.first(criteria, nil)),
		CTC:               scalar(ctcRules.first(body, nil)),
		Stipend:           scalar(stipendRules.first(body, nil)),
		LastDate:          scalar(lastDateRules.first(body, nil)),
		ApplicationSource: scalar(sourceRules.first(body, nil)),
		Website:           website,
	}
	if len(regLinks) > 0 {
		rec.RegistrationLinks = domain.List(regLinks...)
	}

	if !rec.Viable() {
		return nil
	}
	return rec
}
