package models

import "time"

// Company is a tenant. Every tenant-scoped row in the platform carries a
// company_id owned by exactly one of these.
type Company struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Plan describes what an active subscription entitles a tenant to. A limit
// of zero means unlimited.
type Plan struct {
	ID             string    `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	MaxJobs        int       `db:"max_jobs" json:"max_jobs"`
	MaxCandidates  int       `db:"max_candidates" json:"max_candidates"`
	MaxAssessments int       `db:"max_assessments" json:"max_assessments"`
	Features       []string  `db:"-" json:"features"`
	ExpiresAt      time.Time `db:"expires_at" json:"expires_at"`
}

// LimitFor returns the configured maximum for a resource kind. The second
// return value is false for unknown kinds.
func (p *Plan) LimitFor(resourceKind string) (int, bool) {
	switch resourceKind {
	case ResourceJobs:
		return p.MaxJobs, true
	case ResourceCandidates:
		return p.MaxCandidates, true
	case ResourceAssessments:
		return p.MaxAssessments, true
	}
	return 0, false
}

// HasFeature reports whether the plan enables a feature.
func (p *Plan) HasFeature(feature string) bool {
	for _, f := range p.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// Resource kinds gated by subscription limits.
const (
	ResourceJobs        = "jobs"
	ResourceCandidates  = "candidates"
	ResourceAssessments = "assessments"
)
