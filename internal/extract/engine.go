// Package extract turns free-text channel posts into structured jobs.
//
// The engine is rule based: labelled lines ("Location: …") win over
// free-text heuristics, and every enum classifier returns nil when the
// text names zero or several candidates rather than guessing.
package extract

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"jobmate/ingest-service/internal/model"
)

const (
	DefaultTopN      = 10
	maxTitleRunes    = 120
	minPostWords     = 3
	FallbackCategory = "Other"
)

// Failure is returned when a message cannot be turned into a job.
type Failure struct {
	Reason string
}

func (f *Failure) Error() string { return "extraction failed: " + f.Reason }

func fail(format string, args ...any) *Failure {
	return &Failure{Reason: fmt.Sprintf(format, args...)}
}

// Engine extracts jobs from raw messages. The zero value is not usable;
// call NewEngine.
type Engine struct {
	topN int
	now  func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithTopN sets how many keyword tags are kept per job.
func WithTopN(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.topN = n
		}
	}
}

// WithClock overrides the extraction timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine returns an Engine with the default tag count.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{topN: DefaultTopN, now: time.Now}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract parses msg into a job without persistence fields (ID, CreatedAt).
// The returned error is always a *Failure.
func (e *Engine) Extract(msg model.RawMessage) (model.Job, error) {
	text := Normalize(msg.Text)
	if text == "" {
		return model.Job{}, fail("empty message")
	}
	if len(strings.Fields(text)) < minPostWords {
		return model.Job{}, fail("message too short to be a job post")
	}

	title := extractTitle(text)
	if title == "" {
		return model.Job{}, fail("no title found")
	}

	lower := strings.ToLower(text)
	job := model.Job{
		Title:             title,
		Category:          classifyCategory(title, lower),
		ContractType:      classifyContract(lower),
		ExperienceLevel:   classifyLevel(lower),
		IsRemote:          remoteRe.MatchString(lower),
		Tags:              Keywords(text, e.topN),
		Description:       text,
		ChannelID:         msg.ChannelID,
		RawText:           msg.Text,
		RequiredSkills:    extractSkills(lower),
		ExperienceYears:   extractYears(lower),
		EducationRequired: classifyEducation(lower),
		PostedAt:          msg.PostedAt,
		ExtractedAt:       e.now().UTC(),
		MessageID:         msg.MessageID,
		MessageURL:        msg.URL,
	}
	job.Salary, job.Currency = extractSalary(text)
	job.ApplyLink = extractApplyLink(text)
	job.Location = extractLabelled(text, locationRe)
	if job.Location == nil {
		job.Location = firstGroup(basedInRe, text)
	}
	job.Company = extractLabelled(text, companyRe)
	if job.Company == nil {
		if c := firstGroup(isHiringRe, text); c != nil && !notCompany[strings.ToLower(*c)] {
			job.Company = c
		}
	}
	return job, nil
}

// Normalize unifies line breaks, collapses runs of blanks inside each line
// and squeezes consecutive empty lines down to one.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if len(out) > 0 && !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}

var (
	titleLabelRe = regexp.MustCompile(`(?im)^[^\p{L}\n]*(?:job\s+title|title|position|role|vacancy)\s*[:\-–]\s*(.+)$`)
	hiringRe     = regexp.MustCompile(`(?i)\b(?:hiring|looking\s+for|seeking|we\s+need|wanted)\s*:?\s+(?:an?\s+|the\s+)?([^,.\n;!()|]+)`)
	remoteRe     = regexp.MustCompile(`\b(?:remote(?:ly)?|work\s+from\s+home|wfh)\b`)

	locationRe = regexp.MustCompile(`(?im)^[^\p{L}\n]*(?:location|work\s+location|place\s+of\s+work|city)\s*[:\-–]\s*(.+)$`)
	companyRe  = regexp.MustCompile(`(?im)^[^\p{L}\n]*(?:company(?:\s+name)?|employer|organi[sz]ation)\s*[:\-–]\s*(.+)$`)
	basedInRe  = regexp.MustCompile(`\bbased\s+in\s+([A-Z][\p{L}]+(?:\s+[A-Z][\p{L}]+)?)`)
	isHiringRe = regexp.MustCompile(`([A-Z][\w&.]*(?:\s+[A-Z][\w&.]*){0,3})\s+(?:is|are)\s+hiring`)
)

var notCompany = map[string]bool{"we": true, "now": true, "currently": true, "who": true, "they": true}

var roleWords = []string{
	"developer", "engineer", "designer", "manager", "accountant", "analyst",
	"officer", "assistant", "specialist", "consultant", "coordinator",
	"administrator", "intern", "teacher", "tutor", "nurse", "doctor", "writer",
	"editor", "marketer", "representative", "technician", "architect",
	"scientist", "programmer", "director", "cashier", "driver", "secretary",
	"receptionist", "translator", "auditor", "pharmacist", "lawyer", "agent",
	"executive", "supervisor", "clerk", "lead",
}

func hasRoleWord(s string) bool {
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) })
		w = strings.TrimSuffix(w, "s")
		for _, role := range roleWords {
			if w == role {
				return true
			}
		}
	}
	return false
}

func extractTitle(text string) string {
	if m := titleLabelRe.FindStringSubmatch(text); m != nil {
		if t := cleanTitle(m[1]); t != "" {
			return t
		}
	}
	for _, m := range hiringRe.FindAllStringSubmatch(text, -1) {
		if hasRoleWord(m[1]) {
			return cleanTitle(m[1])
		}
	}
	for _, line := range strings.Split(text, "\n") {
		if utf8.RuneCountInString(line) <= 100 && hasRoleWord(line) {
			return cleanTitle(line)
		}
	}
	return ""
}

func cleanTitle(s string) string {
	s = strings.TrimFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != ')' && r != '+' && r != '#'
	})
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) > maxTitleRunes {
		s = string([]rune(s)[:maxTitleRunes])
	}
	return s
}

func extractLabelled(text string, re *regexp.Regexp) *string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	v := strings.Trim(strings.TrimSpace(m[1]), ".,;")
	if v == "" {
		return nil
	}
	return &v
}

func firstGroup(re *regexp.Regexp, text string) *string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	v := strings.TrimSpace(m[1])
	if v == "" {
		return nil
	}
	return &v
}

var (
	urlRe    = regexp.MustCompile(`https?://[^\s<>()"']+`)
	emailRe  = regexp.MustCompile(`[\w.+-]+@[\w-]+(?:\.[\w-]+)+`)
	domainRe = regexp.MustCompile(`(?i)\b(?:[a-z0-9-]+\.)+(?:com|org|net|io|co|et|dev|app|jobs|me)\b(?:/[^\s<>()"']*)?`)
)

func extractApplyLink(text string) *string {
	if u := urlRe.FindString(text); u != "" {
		u = strings.TrimRight(u, ".,;:!?")
		return &u
	}
	if m := emailRe.FindString(text); m != "" {
		v := "mailto:" + strings.TrimRight(m, ".")
		return &v
	}
	if d := domainRe.FindString(text); d != "" {
		v := "https://" + strings.TrimRight(d, ".,;:!?")
		return &v
	}
	return nil
}

var (
	salaryLabelRe  = regexp.MustCompile(`(?im)^[^\p{L}\n]*(?:salary|compensation|pay)\s*[:\-–]\s*(.+)$`)
	salarySymbolRe = regexp.MustCompile(`[$€£]\s?\d[\d,.]*[kKmM]?(?:\s*(?:-|–|to)\s*[$€£]?\s?\d[\d,.]*[kKmM]?)?`)
	salaryCodeRe   = regexp.MustCompile(`(?i)\b\d[\d,.]*\s?[km]?(?:\s*(?:-|–|to)\s*\d[\d,.]*\s?[km]?)?\s?(?:usd|eur|gbp|etb|birr)\b`)
	currencyCodeRe = regexp.MustCompile(`(?i)\b(usd|eur|gbp|etb|birr)\b`)
)

func extractSalary(text string) (salary, currency *string) {
	var s string
	switch {
	case salaryLabelRe.MatchString(text):
		s = salaryLabelRe.FindStringSubmatch(text)[1]
	case salarySymbolRe.MatchString(text):
		s = salarySymbolRe.FindString(text)
	case salaryCodeRe.MatchString(text):
		s = salaryCodeRe.FindString(text)
	default:
		return nil, nil
	}
	s = strings.TrimRight(strings.TrimSpace(s), ".,;")
	if s == "" {
		return nil, nil
	}
	return &s, detectCurrency(s)
}

func detectCurrency(s string) *string {
	var code string
	switch {
	case strings.Contains(s, "$"):
		code = "USD"
	case strings.Contains(s, "€"):
		code = "EUR"
	case strings.Contains(s, "£"):
		code = "GBP"
	default:
		m := currencyCodeRe.FindStringSubmatch(s)
		if m == nil {
			return nil
		}
		code = strings.ToUpper(m[1])
		if code == "BIRR" {
			code = "ETB"
		}
	}
	return &code
}

var yearsRe = regexp.MustCompile(`\b(\d{1,2})\s*\+?\s*(?:years?|yrs?)\b`)

func extractYears(lower string) *int {
	m := yearsRe.FindStringSubmatch(lower)
	if m == nil {
		return nil
	}
	n := 0
	for _, r := range m[1] {
		n = n*10 + int(r-'0')
	}
	if n == 0 {
		return nil
	}
	return &n
}
