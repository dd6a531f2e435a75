package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/applypilot/apply-cli/internal/identity"
	"github.com/applypilot/apply-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (creating if necessary) a SQLite database at the given path
// and configures WAL mode so readers never block writers.
func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS applications (
	fingerprint                TEXT PRIMARY KEY,
	canonical_url              TEXT NOT NULL DEFAULT '',
	source_mode                TEXT NOT NULL,
	company                    TEXT NOT NULL,
	role_title                 TEXT NOT NULL,
	location                   TEXT NOT NULL DEFAULT '',
	status                     TEXT NOT NULL DEFAULT 'new',
	first_seen_at              DATETIME NOT NULL,
	last_attempt_at            DATETIME,
	submitted_at               DATETIME,
	resume_artifact_path       TEXT NOT NULL DEFAULT '',
	cover_letter_artifact_path TEXT NOT NULL DEFAULT '',
	proof_text                 TEXT NOT NULL DEFAULT '',
	proof_screenshot_path      TEXT NOT NULL DEFAULT '',
	override_duplicate         INTEGER NOT NULL DEFAULT 0,
	override_reason            TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS application_events (
	id          TEXT PRIMARY KEY,
	fingerprint TEXT NOT NULL REFERENCES applications(fingerprint),
	event_type  TEXT NOT NULL,
	detail      TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_applications_status ON applications(status);
CREATE INDEX IF NOT EXISTS idx_applications_first_seen_at ON applications(first_seen_at);
CREATE INDEX IF NOT EXISTS idx_application_events_fingerprint ON application_events(fingerprint);
`

// Migrate initializes the schema. Idempotent: an existing store is reused
// without side effects.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const recordColumns = `fingerprint, canonical_url, source_mode, company, role_title, location, status,
	first_seen_at, last_attempt_at, submitted_at,
	resume_artifact_path, cover_letter_artifact_path, proof_text, proof_screenshot_path,
	override_duplicate, override_reason`

func (s *SQLiteStore) Insert(ctx context.Context, rec *model.TrackerRecord) error {
	if err := prepareInsert(rec); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr(err, "sqlite: begin insert")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO applications (`+recordColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Fingerprint, rec.CanonicalURL, string(rec.SourceMode), rec.Company, rec.RoleTitle, rec.Location,
		string(rec.Status), rec.FirstSeenAt, nullTime(rec.LastAttemptAt), nullTime(rec.SubmittedAt),
		rec.ResumeArtifactPath, rec.CoverLetterArtifact, rec.ProofText, rec.ProofScreenshotPath,
		rec.OverrideDuplicate, rec.OverrideReason,
	)
	if err != nil {
		if isSQLiteConstraint(err) {
			return eris.Wrapf(ErrDuplicateFingerprint, "sqlite: insert %s", rec.Fingerprint)
		}
		return storageErr(err, "sqlite: insert "+rec.Fingerprint)
	}

	if err := insertEventTx(ctx, tx, rec.Fingerprint, model.EventCreated, string(rec.Status), rec.FirstSeenAt); err != nil {
		return storageErr(err, "sqlite: insert event for "+rec.Fingerprint)
	}
	if err := tx.Commit(); err != nil {
		return storageErr(err, "sqlite: commit insert "+rec.Fingerprint)
	}
	return nil
}

func (s *SQLiteStore) GetByFingerprint(ctx context.Context, fingerprint string) (*model.TrackerRecord, error) {
	return scanRecord(s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM applications WHERE fingerprint = ?`, fingerprint))
}

// GetByURL re-derives the fingerprint from the URL alone (job-id extraction
// included) and delegates to GetByFingerprint. There is no free-text index.
func (s *SQLiteStore) GetByURL(ctx context.Context, rawURL string) (*model.TrackerRecord, error) {
	fp, err := identity.URLFingerprint(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get by url %q", rawURL)
	}
	return s.GetByFingerprint(ctx, fp)
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, fingerprint string, status model.ApplicationStatus) (*model.TrackerRecord, error) {
	if !status.Valid() {
		return nil, eris.Errorf("sqlite: update status %s: unknown status %q", fingerprint, status)
	}
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr(err, "sqlite: begin update status")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `
		UPDATE applications SET
			status = ?,
			last_attempt_at = CASE WHEN last_attempt_at IS NULL OR last_attempt_at < ? THEN ? ELSE last_attempt_at END,
			submitted_at = CASE WHEN ? = 'submitted' THEN COALESCE(submitted_at, ?) ELSE submitted_at END
		WHERE fingerprint = ?`,
		string(status), now, now, string(status), now, fingerprint,
	)
	if err != nil {
		return nil, storageErr(err, "sqlite: update status "+fingerprint)
	}
	if err := requireRow(res, fingerprint); err != nil {
		return nil, err
	}

	if err := insertEventTx(ctx, tx, fingerprint, model.EventStatusChange, string(status), now); err != nil {
		return nil, storageErr(err, "sqlite: insert event for "+fingerprint)
	}

	rec, err := scanRecord(tx.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM applications WHERE fingerprint = ?`, fingerprint))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, storageErr(err, "sqlite: commit update status "+fingerprint)
	}
	return rec, nil
}

func (s *SQLiteStore) UpdateProof(ctx context.Context, fingerprint, proofText, screenshotPath string) (*model.TrackerRecord, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr(err, "sqlite: begin update proof")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `
		UPDATE applications SET
			proof_text = ?,
			proof_screenshot_path = ?,
			last_attempt_at = CASE WHEN last_attempt_at IS NULL OR last_attempt_at < ? THEN ? ELSE last_attempt_at END
		WHERE fingerprint = ?`,
		proofText, screenshotPath, now, now, fingerprint,
	)
	if err != nil {
		return nil, storageErr(err, "sqlite: update proof "+fingerprint)
	}
	if err := requireRow(res, fingerprint); err != nil {
		return nil, err
	}

	if err := insertEventTx(ctx, tx, fingerprint, model.EventProof, proofText, now); err != nil {
		return nil, storageErr(err, "sqlite: insert event for "+fingerprint)
	}

	rec, err := scanRecord(tx.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM applications WHERE fingerprint = ?`, fingerprint))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, storageErr(err, "sqlite: commit update proof "+fingerprint)
	}
	return rec, nil
}

// UpdateOverride marks the record as an acknowledged duplicate. Status and
// attempt timestamps are untouched: override is an audit annotation.
func (s *SQLiteStore) UpdateOverride(ctx context.Context, fingerprint, reason string) (*model.TrackerRecord, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr(err, "sqlite: begin update override")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`UPDATE applications SET override_duplicate = 1, override_reason = ? WHERE fingerprint = ?`,
		reason, fingerprint,
	)
	if err != nil {
		return nil, storageErr(err, "sqlite: update override "+fingerprint)
	}
	if err := requireRow(res, fingerprint); err != nil {
		return nil, err
	}

	if err := insertEventTx(ctx, tx, fingerprint, model.EventOverride, reason, now); err != nil {
		return nil, storageErr(err, "sqlite: insert event for "+fingerprint)
	}

	rec, err := scanRecord(tx.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM applications WHERE fingerprint = ?`, fingerprint))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, storageErr(err, "sqlite: commit update override "+fingerprint)
	}
	return rec, nil
}

func (s *SQLiteStore) ListRecent(ctx context.Context, filter ListFilter) ([]model.TrackerRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM applications WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY first_seen_at DESC LIMIT ?`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(err, "sqlite: list recent")
	}
	defer rows.Close()

	var recs []model.TrackerRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err, "sqlite: list recent iterate")
	}
	return recs, nil
}

func (s *SQLiteStore) ListEvents(ctx context.Context, fingerprint string) ([]model.ApplicationEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, fingerprint, event_type, detail, created_at FROM application_events
		 WHERE fingerprint = ? ORDER BY created_at ASC`, fingerprint)
	if err != nil {
		return nil, storageErr(err, "sqlite: list events "+fingerprint)
	}
	defer rows.Close()

	var events []model.ApplicationEvent
	for rows.Next() {
		var ev model.ApplicationEvent
		var typ string
		if err := rows.Scan(&ev.ID, &ev.Fingerprint, &typ, &ev.Detail, &ev.CreatedAt); err != nil {
			return nil, storageErr(err, "sqlite: scan event")
		}
		ev.Type = model.EventType(typ)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err, "sqlite: list events iterate")
	}
	return events, nil
}

// helpers

type sqlTx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertEventTx(ctx context.Context, tx sqlTx, fingerprint string, typ model.EventType, detail string, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO application_events (id, fingerprint, event_type, detail, created_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), fingerprint, string(typ), detail, at,
	)
	return err
}

func requireRow(res sql.Result, fingerprint string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrRecordNotFound, "sqlite: fingerprint %s", fingerprint)
	}
	return nil
}

// isSQLiteConstraint reports whether err is a primary-key or unique
// constraint violation.
func isSQLiteConstraint(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT:
		return true
	}
	return false
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (*model.TrackerRecord, error) {
	var r model.TrackerRecord
	var sourceMode, status string
	var lastAttempt, submitted sql.NullTime

	err := row.Scan(
		&r.Fingerprint, &r.CanonicalURL, &sourceMode, &r.Company, &r.RoleTitle, &r.Location, &status,
		&r.FirstSeenAt, &lastAttempt, &submitted,
		&r.ResumeArtifactPath, &r.CoverLetterArtifact, &r.ProofText, &r.ProofScreenshotPath,
		&r.OverrideDuplicate, &r.OverrideReason,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr(err, "sqlite: scan record")
	}

	r.SourceMode = model.SourceMode(sourceMode)
	r.Status = model.ApplicationStatus(status)
	if lastAttempt.Valid {
		t := lastAttempt.Time
		r.LastAttemptAt = &t
	}
	if submitted.Valid {
		t := submitted.Time
		r.SubmittedAt = &t
	}
	return &r, nil
}
