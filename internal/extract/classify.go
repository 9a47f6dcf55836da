package extract

import (
	"regexp"
	"sort"
	"strings"

	"jobmate/ingest-service/internal/model"
)

type pattern[T any] struct {
	value T
	re    *regexp.Regexp
}

var contractPatterns = []pattern[model.ContractType]{
	{model.ContractFullTime, regexp.MustCompile(`\b(?:full[\s-]?time|permanent)\b`)},
	{model.ContractPartTime, regexp.MustCompile(`\bpart[\s-]?time\b`)},
	{model.ContractContract, regexp.MustCompile(`\bcontract(?:or|ual)?\b`)},
	{model.ContractFreelance, regexp.MustCompile(`\bfreelance(?:r)?\b`)},
	{model.ContractInternship, regexp.MustCompile(`\b(?:internship|intern)\b`)},
}

var levelPatterns = []pattern[model.ExperienceLevel]{
	{model.LevelEntry, regexp.MustCompile(`\b(?:entry[\s-]?level|junior|jr|graduate|fresher)\b`)},
	{model.LevelMid, regexp.MustCompile(`\b(?:mid[\s-]?level|intermediate)\b`)},
	{model.LevelSenior, regexp.MustCompile(`\b(?:senior|sr)\b`)},
	{model.LevelLead, regexp.MustCompile(`\b(?:lead|principal|head\s+of)\b`)},
}

// only returns the single matching value, or nil when zero or several match.
func only[T any](lower string, ps []pattern[T]) *T {
	var found *T
	for i := range ps {
		if !ps[i].re.MatchString(lower) {
			continue
		}
		if found != nil {
			return nil
		}
		v := ps[i].value
		found = &v
	}
	return found
}

func classifyContract(lower string) *model.ContractType { return only(lower, contractPatterns) }

func classifyLevel(lower string) *model.ExperienceLevel { return only(lower, levelPatterns) }

var educationPatterns = []pattern[model.EducationLevel]{
	{model.EducationHighSchool, regexp.MustCompile(`\b(?:high\s+school|secondary\s+school|grade\s+12)\b`)},
	{model.EducationAssociate, regexp.MustCompile(`\b(?:diploma|associate(?:'s)?\s+degree|level\s+iv)\b`)},
	{model.EducationBachelor, regexp.MustCompile(`\b(?:bachelor(?:'s)?|bsc|b\.sc|ba\s+degree|undergraduate\s+degree)\b`)},
	{model.EducationMaster, regexp.MustCompile(`\b(?:master(?:'s)?\s+degree|masters|msc|m\.sc|mba)\b`)},
	{model.EducationPhD, regexp.MustCompile(`\b(?:phd|ph\.d|doctorate)\b`)},
}

// classifyEducation returns the lowest level mentioned: "BSc or MSc" means
// a bachelor's is enough.
func classifyEducation(lower string) *model.EducationLevel {
	for _, p := range educationPatterns {
		if p.re.MatchString(lower) {
			v := p.value
			return &v
		}
	}
	return nil
}

var categoryKeywords = []struct {
	category string
	words    []string
}{
	{"Tech", []string{"developer", "software", "programmer", "frontend", "backend", "fullstack", "devops", "react", "python", "javascript", "golang", "java", "data", "web", "mobile", "qa"}},
	{"Design", []string{"designer", "ui", "ux", "graphic", "figma", "illustrator", "photoshop", "creative"}},
	{"Marketing", []string{"marketing", "marketer", "seo", "social", "content", "brand", "campaign", "digital"}},
	{"Sales", []string{"sales", "salesperson", "business development", "account executive", "telesales"}},
	{"Finance", []string{"accountant", "accounting", "finance", "financial", "auditor", "bank", "cashier", "tax"}},
	{"Healthcare", []string{"nurse", "doctor", "pharmacist", "clinic", "hospital", "medical", "health"}},
	{"Education", []string{"teacher", "tutor", "lecturer", "school", "instructor", "trainer"}},
	{"Engineering", []string{"civil", "mechanical", "electrical", "construction", "site engineer", "surveyor"}},
	{"Administration", []string{"secretary", "receptionist", "administrative", "office", "clerk", "hr", "human resources"}},
}

var wordSplit = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// classifyCategory scores each category by keyword hits, counting title hits
// twice. Ties go to the category listed first.
func classifyCategory(title, lower string) string {
	titleTokens := tokenSet(strings.ToLower(title))
	bodyTokens := tokenSet(lower)

	best, bestScore := FallbackCategory, 0
	for _, c := range categoryKeywords {
		score := 0
		for _, w := range c.words {
			if strings.Contains(w, " ") {
				if strings.Contains(strings.ToLower(title), w) {
					score += 2
				}
				if strings.Contains(lower, w) {
					score++
				}
				continue
			}
			if titleTokens[w] {
				score += 2
			}
			if bodyTokens[w] {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = c.category, score
		}
	}
	return best
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range wordSplit.Split(s, -1) {
		if t != "" {
			set[t] = true
		}
	}
	return set
}

// skillAliases maps surface forms to a canonical skill name.
var skillAliases = map[string]string{
	"golang": "go", "node.js": "node", "nodejs": "node", "node": "node",
	"react": "react", "reactjs": "react", "react.js": "react",
	"python": "python", "java": "java", "javascript": "javascript", "typescript": "typescript",
	"php": "php", "laravel": "laravel", "django": "django", "flask": "flask",
	"angular": "angular", "vue": "vue", "flutter": "flutter", "kotlin": "kotlin", "swift": "swift",
	"c#": "c#", ".net": ".net", "sql": "sql", "postgresql": "postgresql", "mysql": "mysql",
	"mongodb": "mongodb", "aws": "aws", "docker": "docker", "kubernetes": "kubernetes",
	"html": "html", "css": "css", "figma": "figma", "photoshop": "photoshop",
	"excel": "excel", "seo": "seo", "peachtree": "peachtree", "quickbooks": "quickbooks",
}

var skillRes = func() map[string]*regexp.Regexp {
	m := make(map[string]*regexp.Regexp, len(skillAliases))
	for alias := range skillAliases {
		m[alias] = regexp.MustCompile(`(?:^|[^\w.#])` + regexp.QuoteMeta(alias) + `(?:$|[^\w#])`)
	}
	return m
}()

// extractSkills returns canonical skills in order of first appearance.
func extractSkills(lower string) []string {
	type hit struct {
		skill string
		at    int
	}
	first := make(map[string]int)
	for alias, re := range skillRes {
		loc := re.FindStringIndex(lower)
		if loc == nil {
			continue
		}
		skill := skillAliases[alias]
		if at, ok := first[skill]; !ok || loc[0] < at {
			first[skill] = loc[0]
		}
	}
	hits := make([]hit, 0, len(first))
	for s, at := range first {
		hits = append(hits, hit{s, at})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].at != hits[j].at {
			return hits[i].at < hits[j].at
		}
		return hits[i].skill < hits[j].skill
	})
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.skill)
	}
	return out
}
