package extract_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/ingest-service/internal/extract"
	"jobmate/ingest-service/internal/model"
)

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newEngine() *extract.Engine {
	return extract.NewEngine(extract.WithClock(func() time.Time { return fixedNow }))
}

func msg(text string) model.RawMessage {
	return model.RawMessage{
		ChannelID: "ch-1",
		MessageID: "42",
		Text:      text,
		PostedAt:  fixedNow.Add(-time.Hour),
		URL:       "https://t.me/jobs/42",
	}
}

func TestExtract_SeniorReactRemote(t *testing.T) {
	job, err := newEngine().Extract(msg("Hiring a Senior React Developer, remote, $80k-$100k, apply via example.com"))
	require.NoError(t, err)

	assert.Equal(t, "Senior React Developer", job.Title)
	assert.Nil(t, job.ContractType, "contract type is unspecified")
	require.NotNil(t, job.ExperienceLevel)
	assert.Equal(t, model.LevelSenior, *job.ExperienceLevel)
	assert.True(t, job.IsRemote)
	require.NotNil(t, job.Salary)
	assert.Equal(t, "$80k-$100k", *job.Salary)
	require.NotNil(t, job.Currency)
	assert.Equal(t, "USD", *job.Currency)
	require.NotNil(t, job.ApplyLink)
	assert.Equal(t, "https://example.com", *job.ApplyLink)
	assert.Equal(t, "Tech", job.Category)
	assert.Equal(t, []string{"react"}, job.RequiredSkills)

	assert.Equal(t, "ch-1", job.ChannelID)
	assert.Equal(t, "42", job.MessageID)
	assert.Equal(t, "https://t.me/jobs/42", job.MessageURL)
	assert.Equal(t, fixedNow, job.ExtractedAt)
	assert.Empty(t, job.ID)
}

func TestExtract_LabelledPost(t *testing.T) {
	text := "📢 Job Title: Accountant\r\n" +
		"Company: Abyssinia Trading PLC\r\n" +
		"Location:   Addis Ababa\r\n" +
		"Type: Full-time\r\n\r\n\r\n" +
		"Requirements: Bachelor's degree in Accounting, 3+ years of experience with Peachtree.\r\n" +
		"Salary: 25,000 ETB\r\n" +
		"Send CV to hr@abyssinia.et"

	job, err := newEngine().Extract(msg(text))
	require.NoError(t, err)

	assert.Equal(t, "Accountant", job.Title)
	require.NotNil(t, job.Company)
	assert.Equal(t, "Abyssinia Trading PLC", *job.Company)
	require.NotNil(t, job.Location)
	assert.Equal(t, "Addis Ababa", *job.Location)
	require.NotNil(t, job.ContractType)
	assert.Equal(t, model.ContractFullTime, *job.ContractType)
	require.NotNil(t, job.Salary)
	assert.Equal(t, "25,000 ETB", *job.Salary)
	require.NotNil(t, job.Currency)
	assert.Equal(t, "ETB", *job.Currency)
	require.NotNil(t, job.ApplyLink)
	assert.Equal(t, "mailto:hr@abyssinia.et", *job.ApplyLink)
	require.NotNil(t, job.ExperienceYears)
	assert.Equal(t, 3, *job.ExperienceYears)
	require.NotNil(t, job.EducationRequired)
	assert.Equal(t, model.EducationBachelor, *job.EducationRequired)
	assert.Equal(t, "Finance", job.Category)
	assert.False(t, job.IsRemote)
	assert.Contains(t, job.RequiredSkills, "peachtree")

	assert.NotContains(t, job.Description, "\r")
	assert.NotContains(t, job.Description, "\n\n\n")
	assert.Contains(t, job.Description, "Location: Addis Ababa")
}

func TestExtract_AmbiguousEnumsStayNil(t *testing.T) {
	text := "We are hiring a Backend Engineer (junior or senior), full-time or part-time, Go and PostgreSQL"

	job, err := newEngine().Extract(msg(text))
	require.NoError(t, err)

	assert.Nil(t, job.ContractType)
	assert.Nil(t, job.ExperienceLevel)
	assert.Nil(t, job.Company)
}

func TestExtract_Failures(t *testing.T) {
	cases := map[string]string{
		"empty":    "   \n\t  ",
		"short":    "hello there",
		"no title": "Good morning everyone, have a nice day and stay safe out there",
	}
	want := map[string]string{
		"empty":    "empty message",
		"short":    "message too short to be a job post",
		"no title": "no title found",
	}

	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := newEngine().Extract(msg(text))
			require.Error(t, err)

			var f *extract.Failure
			require.True(t, errors.As(err, &f))
			assert.Equal(t, want[name], f.Reason)
		})
	}
}

func TestExtract_FirstLineTitleFallback(t *testing.T) {
	job, err := newEngine().Extract(msg("** Graphic Designer **\nAcme Studio is hiring for our Bole office. Figma required."))
	require.NoError(t, err)

	assert.Equal(t, "Graphic Designer", job.Title)
	assert.Equal(t, "Design", job.Category)
	require.NotNil(t, job.Company)
	assert.Equal(t, "Acme Studio", *job.Company)
}

func TestNormalize(t *testing.T) {
	in := "  Line   one \r\n\r\n\r\n\tLine\ttwo  \rLine three\n\n"
	assert.Equal(t, "Line one\n\nLine two\nLine three", extract.Normalize(in))
}

func TestKeywords_RankingAndTies(t *testing.T) {
	text := "Go go GO! Kubernetes, docker; kubernetes. The docker and Postgres."
	assert.Equal(t, []string{"go", "kubernetes", "docker", "postgres"}, extract.Keywords(text, 10))
	assert.Equal(t, []string{"go", "kubernetes"}, extract.Keywords(text, 2))
}

func TestKeywords_StopWordsOnly(t *testing.T) {
	assert.Empty(t, extract.Keywords("the and of to", 10))
	assert.Nil(t, extract.Keywords("anything", 0))
}

func TestContainsBlockedTerm(t *testing.T) {
	terms := []string{"crypto signal", "", "Betting"}
	assert.True(t, extract.ContainsBlockedTerm("Join our CRYPTO SIGNAL group", terms))
	assert.True(t, extract.ContainsBlockedTerm("best betting tips", terms))
	assert.False(t, extract.ContainsBlockedTerm("Senior Go developer", terms))
	assert.False(t, extract.ContainsBlockedTerm("anything", nil))
}

func TestExtract_WithTopNBoundsTags(t *testing.T) {
	text := "Hiring a Senior React Developer, remote, React and TypeScript, Node backend, apply via example.com"

	job, err := extract.NewEngine(extract.WithTopN(2)).Extract(msg(text))
	require.NoError(t, err)
	assert.Len(t, job.Tags, 2)
	assert.Equal(t, extract.Keywords(extract.Normalize(text), 2), job.Tags)

	job, err = extract.NewEngine(extract.WithTopN(0)).Extract(msg(text))
	require.NoError(t, err)
	assert.Equal(t, extract.Keywords(extract.Normalize(text), extract.DefaultTopN), job.Tags, "non-positive n keeps the default")
}
