// Package dedup decides whether a job-application attempt has been seen
// before, and records explicit user overrides when a duplicate is pursued
// anyway.
package dedup

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/applypilot/apply-cli/internal/identity"
	"github.com/applypilot/apply-cli/internal/model"
	"github.com/applypilot/apply-cli/internal/store"
)

// ErrInvalidOverride is returned when an override is requested without a
// reason. The override is never partially applied.
var ErrInvalidOverride = eris.New("invalid override")

// Artifacts are file references produced by the surrounding generation
// pipeline, recorded verbatim.
type Artifacts struct {
	ResumePath      string
	CoverLetterPath string
}

// Detector orchestrates normalization, fingerprinting, and store lookups. It
// holds no state of its own beyond what it fetches per call.
type Detector struct {
	store  store.Store
	logger *zap.Logger
}

func NewDetector(st store.Store, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.L()
	}
	return &Detector{store: st, logger: logger}
}

// Check computes the fingerprint for a raw lead via the full cascade and
// looks it up. Returns (nil, nil) when the job has never been seen; an
// existing record is returned regardless of its status, including skipped
// and failed attempts. Check never creates records.
func (d *Detector) Check(ctx context.Context, lead model.Lead) (*model.TrackerRecord, error) {
	fp, err := identity.FingerprintLead(lead.URL, lead.Company, lead.RoleTitle, lead.Location)
	if err != nil {
		return nil, eris.Wrapf(err, "dedup: check url=%q company=%q", lead.URL, lead.Company)
	}

	rec, err := d.store.GetByFingerprint(ctx, fp)
	if err != nil {
		return nil, eris.Wrapf(err, "dedup: check lookup %s", fp)
	}
	if rec != nil {
		d.logger.Debug("duplicate detected",
			zap.String("fingerprint", fp),
			zap.String("status", string(rec.Status)),
			zap.String("company", rec.Company),
		)
	}
	return rec, nil
}

// Track creates the tracker record for a lead. A concurrent or earlier
// insert for the same identity surfaces as store.ErrDuplicateFingerprint;
// the caller owns duplicate-handling policy.
func (d *Detector) Track(ctx context.Context, lead model.Lead, mode model.SourceMode, artifacts Artifacts) (*model.TrackerRecord, error) {
	canonical, err := identity.NormalizeURL(lead.URL)
	if err != nil {
		canonical = ""
	}
	jobID, _ := identity.ExtractJobID(canonical)

	fp, err := identity.Fingerprint(canonical, jobID, lead.Company, lead.RoleTitle, lead.Location)
	if err != nil {
		return nil, eris.Wrapf(err, "dedup: track url=%q company=%q", lead.URL, lead.Company)
	}

	rec := &model.TrackerRecord{
		Fingerprint:         fp,
		CanonicalURL:        canonical,
		SourceMode:          mode,
		Company:             strings.TrimSpace(lead.Company),
		RoleTitle:           strings.TrimSpace(lead.RoleTitle),
		Location:            strings.TrimSpace(lead.Location),
		Status:              model.StatusNew,
		ResumeArtifactPath:  artifacts.ResumePath,
		CoverLetterArtifact: artifacts.CoverLetterPath,
	}
	if err := d.store.Insert(ctx, rec); err != nil {
		return nil, err
	}

	d.logger.Info("tracked application",
		zap.String("fingerprint", fp),
		zap.String("company", rec.Company),
		zap.String("role", rec.RoleTitle),
		zap.String("source_mode", string(mode)),
	)
	return rec, nil
}

// Override records a reasoned decision to proceed despite a duplicate. It is
// an audit annotation: status is never touched. An empty reason is rejected
// with ErrInvalidOverride before anything is written.
func (d *Detector) Override(ctx context.Context, fingerprint, reason string) (*model.TrackerRecord, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, eris.Wrapf(ErrInvalidOverride, "dedup: override %s: empty reason", fingerprint)
	}

	rec, err := d.store.UpdateOverride(ctx, fingerprint, reason)
	if err != nil {
		return nil, eris.Wrapf(err, "dedup: override %s", fingerprint)
	}

	d.logger.Info("duplicate override recorded",
		zap.String("fingerprint", fingerprint),
		zap.String("reason", reason),
	)
	return rec, nil
}
