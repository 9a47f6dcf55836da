// Package model defines shared data structures for the ingest service.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Channel mirrors the channels table row relevant to scraping.
// Rows are created and deleted by the admin tooling; the pipeline only
// bumps TotalJobsScraped and LastScraped.
type Channel struct {
	ID               string
	Username         string // platform handle, e.g. "freelance_ethio"
	DisplayName      string
	Category         string
	IsActive         bool
	ScrapingEnabled  bool
	TotalJobsScraped int
	LastScraped      *time.Time
}

// RawMessage is one post read from a channel. It is never persisted as-is.
type RawMessage struct {
	ChannelID string
	MessageID string
	Text      string
	PostedAt  time.Time
	URL       string
}

// DedupKey identifies a unique source message.
type DedupKey struct {
	ChannelID string
	MessageID string
}

func (k DedupKey) String() string { return k.ChannelID + "/" + k.MessageID }

// ContractType is the closed set of employment contracts.
type ContractType string

const (
	ContractFullTime   ContractType = "Full-time"
	ContractPartTime   ContractType = "Part-time"
	ContractContract   ContractType = "Contract"
	ContractFreelance  ContractType = "Freelance"
	ContractInternship ContractType = "Internship"
)

// ExperienceLevel is the closed set of seniority levels.
type ExperienceLevel string

const (
	LevelEntry  ExperienceLevel = "Entry"
	LevelMid    ExperienceLevel = "Mid"
	LevelSenior ExperienceLevel = "Senior"
	LevelLead   ExperienceLevel = "Lead"
)

// EducationLevel is ordinal: HighSchool < Associate < Bachelor < Master < PhD.
type EducationLevel int

const (
	EducationHighSchool EducationLevel = iota + 1
	EducationAssociate
	EducationBachelor
	EducationMaster
	EducationPhD
)

var educationNames = map[EducationLevel]string{
	EducationHighSchool: "High School",
	EducationAssociate:  "Associate",
	EducationBachelor:   "Bachelor",
	EducationMaster:     "Master",
	EducationPhD:        "PhD",
}

func (e EducationLevel) String() string {
	if s, ok := educationNames[e]; ok {
		return s
	}
	return fmt.Sprintf("EducationLevel(%d)", int(e))
}

// ParseEducationLevel converts a stored name back to its ordinal.
func ParseEducationLevel(s string) (EducationLevel, error) {
	for lvl, name := range educationNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return lvl, nil
		}
	}
	return 0, fmt.Errorf("unknown education level %q", s)
}

// Job is a structured posting extracted from a RawMessage.
// Nullable columns are pointers; everything else is always set.
type Job struct {
	ID                string
	Title             string
	Category          string
	ContractType      *ContractType
	Salary            *string
	Currency          *string
	Tags              []string
	Description       string
	ApplyLink         *string
	ChannelID         string
	RawText           string
	Location          *string
	Company           *string
	ExperienceLevel   *ExperienceLevel
	IsRemote          bool
	RequiredSkills    []string
	ExperienceYears   *int
	EducationRequired *EducationLevel
	PostedAt          time.Time
	ExtractedAt       time.Time
	CreatedAt         time.Time
	MessageID         string
	MessageURL        string
	NotificationSent  bool
}

// Key returns the deduplication key of the job.
func (j Job) Key() DedupKey { return DedupKey{ChannelID: j.ChannelID, MessageID: j.MessageID} }

// FailedExtraction status values.
const (
	FailurePending      = "pending"
	FailureResolved     = "resolved"
	FailureManualReview = "manual_review"
)

// FailedExtraction records a message the engine could not parse.
type FailedExtraction struct {
	ID         string
	ChannelID  string
	MessageID  string
	RawText    string
	MessageURL string
	PostedAt   time.Time
	Reason     string
	RetryCount int
	Status     string
	CreatedAt  time.Time
}

// MaxPushTokens bounds the tokens kept per subscriber.
const MaxPushTokens = 5

// SubscriberProfile is the matching-relevant slice of a user profile.
type SubscriberProfile struct {
	UserID               string
	Skills               []string
	ExperienceYears      *int
	Education            *EducationLevel
	PreferredCategories  []string
	PreferredLocations   []string
	PushTokens           []string
	NotificationsEnabled bool
}

// NotificationResult is produced once per dispatch batch.
type NotificationResult struct {
	Success           bool
	NotificationsSent int
	FailedTokens      []string
	Errors            []string
}

// Merge folds another batch result into r.
func (r *NotificationResult) Merge(o NotificationResult) {
	r.Success = r.Success || o.Success
	r.NotificationsSent += o.NotificationsSent
	r.FailedTokens = append(r.FailedTokens, o.FailedTokens...)
	r.Errors = append(r.Errors, o.Errors...)
}
