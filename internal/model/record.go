package model

import "time"

// ApplicationStatus represents the lifecycle state of a tracked application.
type ApplicationStatus string

const (
	StatusNew              ApplicationStatus = "new"
	StatusInProgress       ApplicationStatus = "in_progress"
	StatusSkipped          ApplicationStatus = "skipped"
	StatusDuplicateSkipped ApplicationStatus = "duplicate_skipped"
	StatusSubmitted        ApplicationStatus = "submitted"
	StatusFailed           ApplicationStatus = "failed"
)

// Valid reports whether s is one of the known status tags.
func (s ApplicationStatus) Valid() bool {
	switch s {
	case StatusNew, StatusInProgress, StatusSkipped, StatusDuplicateSkipped, StatusSubmitted, StatusFailed:
		return true
	}
	return false
}

// SourceMode describes which pipeline created a record.
type SourceMode string

const (
	SourceModeSingle     SourceMode = "single"
	SourceModeAutonomous SourceMode = "autonomous"
)

// Valid reports whether m is one of the known source-mode tags.
func (m SourceMode) Valid() bool {
	return m == SourceModeSingle || m == SourceModeAutonomous
}

// Lead is the raw job-identity tuple supplied by collaborators before any
// normalization or fingerprinting has happened.
type Lead struct {
	URL       string `json:"url"`
	Company   string `json:"company"`
	RoleTitle string `json:"role_title"`
	Location  string `json:"location,omitempty"`
}

// TrackerRecord is one row per distinct job application target, keyed by
// fingerprint. The fingerprint and first_seen_at are immutable after creation.
type TrackerRecord struct {
	Fingerprint         string            `json:"fingerprint"`
	CanonicalURL        string            `json:"canonical_url,omitempty"`
	SourceMode          SourceMode        `json:"source_mode"`
	Company             string            `json:"company"`
	RoleTitle           string            `json:"role_title"`
	Location            string            `json:"location,omitempty"`
	Status              ApplicationStatus `json:"status"`
	FirstSeenAt         time.Time         `json:"first_seen_at"`
	LastAttemptAt       *time.Time        `json:"last_attempt_at,omitempty"`
	SubmittedAt         *time.Time        `json:"submitted_at,omitempty"`
	ResumeArtifactPath  string            `json:"resume_artifact_path,omitempty"`
	CoverLetterArtifact string            `json:"cover_letter_artifact_path,omitempty"`
	ProofText           string            `json:"proof_text,omitempty"`
	ProofScreenshotPath string            `json:"proof_screenshot_path,omitempty"`
	OverrideDuplicate   bool              `json:"override_duplicate"`
	OverrideReason      string            `json:"override_reason,omitempty"`
}

// EventType tags an application_events row.
type EventType string

const (
	EventCreated      EventType = "created"
	EventStatusChange EventType = "status_change"
	EventProof        EventType = "proof"
	EventOverride     EventType = "override"
)

// ApplicationEvent is an audit-trail entry recorded alongside every mutation
// of a tracker record.
type ApplicationEvent struct {
	ID          string    `json:"id"`
	Fingerprint string    `json:"fingerprint"`
	Type        EventType `json:"type"`
	Detail      string    `json:"detail,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
