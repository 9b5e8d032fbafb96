package extract

import (
	"strings"
	"text/template"
)

var promptTmpl = template.Must(template.New("offer").Parse(`
Extract all key details (best-effort) from the below campus placement offer announcement email.
If a field is missing, leave it blank.
Return a pure JSON object with these keys: company, category, branches, 10th%, 12th%, cgpa, ctc, stipend, last_date, registration_links (as a list).
DO NOT add explanations or markdown, just JSON.
---
Subject: {{.Subject}}
Body: {{.Body}}
---
`))

// Prompt renders the extraction instruction for one mail.
func Prompt(subject, body string) string {
	var b strings.Builder
	_ = promptTmpl.Execute(&b, struct{ Subject, Body string }{subject, body})
	return b.String()
}
