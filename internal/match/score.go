// Package match scores how relevant a job is to a subscriber profile.
package match

import (
	"math"
	"strings"

	"jobmate/ingest-service/internal/model"
)

// Factor weights. They sum to 1.
const (
	WeightSkills     = 0.40
	WeightExperience = 0.25
	WeightEducation  = 0.15
	WeightLocation   = 0.10
	WeightCategory   = 0.10
)

// overqualifiedCap is the experience score when the profile has more than
// twice the required years.
const overqualifiedCap = 85.0

// Breakdown holds the per-factor scores that contributed to a total.
// A nil factor did not apply.
type Breakdown struct {
	Skills     *float64
	Experience *float64
	Education  *float64
	Location   *float64
	Category   *float64
	Total      int
}

// Score returns the 0–100 relevance of job for profile.
func Score(job model.Job, profile model.SubscriberProfile) int {
	return Explain(job, profile).Total
}

// Explain computes the score and reports which factors applied.
//
// Only factors where both sides carry the attribute contribute, and the
// weighted sum is normalised by the weight of those factors, so a missing
// attribute neither zeroes nor inflates the score. No applicable factor
// means 0.
func Explain(job model.Job, profile model.SubscriberProfile) Breakdown {
	var b Breakdown
	b.Skills = skillsScore(job.RequiredSkills, profile.Skills)
	b.Experience = experienceScore(job.ExperienceYears, profile.ExperienceYears)
	b.Education = educationScore(job.EducationRequired, profile.Education)
	b.Location = locationScore(job, profile.PreferredLocations)
	b.Category = categoryScore(job.Category, profile.PreferredCategories)

	var sum, weight float64
	for _, f := range []struct {
		v *float64
		w float64
	}{
		{b.Skills, WeightSkills},
		{b.Experience, WeightExperience},
		{b.Education, WeightEducation},
		{b.Location, WeightLocation},
		{b.Category, WeightCategory},
	} {
		if f.v == nil {
			continue
		}
		sum += *f.v * f.w
		weight += f.w
	}
	if weight == 0 {
		return b
	}
	total := int(math.Round(sum / weight))
	b.Total = max(0, min(100, total))
	return b
}

func ptr(v float64) *float64 { return &v }

func skillsScore(required, have []string) *float64 {
	req := lowerSet(required)
	if len(req) == 0 || len(have) == 0 {
		return nil
	}
	own := lowerSet(have)
	matched := 0
	for s := range req {
		if _, ok := own[s]; ok {
			matched++
		}
	}
	return ptr(float64(matched) / float64(len(req)) * 100)
}

func experienceScore(required, have *int) *float64 {
	if required == nil || have == nil || *required <= 0 {
		return nil
	}
	req, got := float64(*required), float64(*have)
	switch {
	case got > 2*req:
		return ptr(overqualifiedCap)
	case got >= req:
		return ptr(100)
	default:
		return ptr(math.Max(0, got/req*100))
	}
}

func educationScore(required, have *model.EducationLevel) *float64 {
	if required == nil || have == nil {
		return nil
	}
	switch gap := int(*required) - int(*have); {
	case gap <= 0:
		return ptr(100)
	case gap == 1:
		return ptr(70)
	default:
		return ptr(40)
	}
}

func locationScore(job model.Job, preferred []string) *float64 {
	if len(preferred) == 0 || (job.Location == nil && !job.IsRemote) {
		return nil
	}
	var loc string
	if job.Location != nil {
		loc = strings.ToLower(strings.TrimSpace(*job.Location))
	}
	for _, p := range preferred {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if loc != "" && (strings.Contains(loc, p) || strings.Contains(p, loc)) {
			return ptr(100)
		}
		if job.IsRemote && p == "remote" {
			return ptr(100)
		}
	}
	if job.IsRemote {
		return ptr(80)
	}
	return ptr(40)
}

func categoryScore(category string, preferred []string) *float64 {
	if category == "" || len(preferred) == 0 {
		return nil
	}
	if ContainsFold(preferred, category) {
		return ptr(100)
	}
	return ptr(50)
}

// ContainsFold reports whether set holds s, ignoring case.
func ContainsFold(set []string, s string) bool {
	for _, v := range set {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(s)) {
			return true
		}
	}
	return false
}

func lowerSet(in []string) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out[s] = struct{}{}
		}
	}
	return out
}
