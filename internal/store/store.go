// Package store persists application tracker records. Two backends implement
// the same contract: a file-backed SQLite store (default) and a
// pgxpool-backed Postgres store. Uniqueness of fingerprints is enforced by
// the storage layer itself so it holds across processes and restarts.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/applypilot/apply-cli/internal/model"
)

// Sentinel conditions surfaced by every backend. Callers match with errors.Is.
var (
	// ErrDuplicateFingerprint: insert attempted for an identity already
	// present. Expected and recoverable; never swallowed here.
	ErrDuplicateFingerprint = eris.New("duplicate fingerprint")

	// ErrRecordNotFound: mutation attempted against an unknown fingerprint.
	ErrRecordNotFound = eris.New("record not found")

	// ErrStorageUnavailable: I/O or corruption at the storage layer. No
	// internal retries; callers decide retry policy.
	ErrStorageUnavailable = eris.New("storage unavailable")
)

// ListFilter bounds and optionally filters ListRecent.
type ListFilter struct {
	Status model.ApplicationStatus `json:"status,omitempty"`
	Limit  int                     `json:"limit,omitempty"`
}

// defaultListLimit applies when a caller passes Limit <= 0.
const defaultListLimit = 50

// Store is the persistence contract for application tracker records. Point
// lookups return (nil, nil) when no record exists; mutations fail with
// ErrRecordNotFound for unknown fingerprints.
type Store interface {
	Insert(ctx context.Context, rec *model.TrackerRecord) error
	GetByFingerprint(ctx context.Context, fingerprint string) (*model.TrackerRecord, error)
	GetByURL(ctx context.Context, rawURL string) (*model.TrackerRecord, error)
	UpdateStatus(ctx context.Context, fingerprint string, status model.ApplicationStatus) (*model.TrackerRecord, error)
	UpdateProof(ctx context.Context, fingerprint, proofText, screenshotPath string) (*model.TrackerRecord, error)
	UpdateOverride(ctx context.Context, fingerprint, reason string) (*model.TrackerRecord, error)
	ListRecent(ctx context.Context, filter ListFilter) ([]model.TrackerRecord, error)
	ListEvents(ctx context.Context, fingerprint string) ([]model.ApplicationEvent, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// prepareInsert validates and defaults a record before it hits a backend.
func prepareInsert(rec *model.TrackerRecord) error {
	if rec.Fingerprint == "" {
		return eris.New("store: insert: empty fingerprint")
	}
	if rec.Status == "" {
		rec.Status = model.StatusNew
	}
	if !rec.Status.Valid() {
		return eris.Errorf("store: insert %s: unknown status %q", rec.Fingerprint, rec.Status)
	}
	if !rec.SourceMode.Valid() {
		return eris.Errorf("store: insert %s: unknown source mode %q", rec.Fingerprint, rec.SourceMode)
	}
	if rec.Company == "" || rec.RoleTitle == "" {
		return eris.Errorf("store: insert %s: company and role_title are required", rec.Fingerprint)
	}
	if rec.OverrideReason != "" && !rec.OverrideDuplicate {
		return eris.Errorf("store: insert %s: override_reason without override_duplicate", rec.Fingerprint)
	}
	if rec.FirstSeenAt.IsZero() {
		rec.FirstSeenAt = time.Now().UTC()
	}
	return nil
}

// storageErr wraps a backend failure so it matches ErrStorageUnavailable
// while keeping the underlying cause visible in the message.
func storageErr(err error, op string) error {
	return eris.Wrapf(ErrStorageUnavailable, "%s: %v", op, err)
}
