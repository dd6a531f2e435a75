package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/applypilot/apply-cli/internal/db"
	"github.com/applypilot/apply-cli/internal/identity"
	"github.com/applypilot/apply-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	pgInsertApplication = `INSERT INTO applications (fingerprint, canonical_url, source_mode, company, role_title, location, status,
		first_seen_at, last_attempt_at, submitted_at,
		resume_artifact_path, cover_letter_artifact_path, proof_text, proof_screenshot_path,
		override_duplicate, override_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	pgSelectApplication = `SELECT fingerprint, canonical_url, source_mode, company, role_title, location, status,
		first_seen_at, last_attempt_at, submitted_at,
		resume_artifact_path, cover_letter_artifact_path, proof_text, proof_screenshot_path,
		override_duplicate, override_reason FROM applications`

	pgUpdateStatus = `UPDATE applications SET
		status = $2,
		last_attempt_at = GREATEST(COALESCE(last_attempt_at, $3), $3),
		submitted_at = CASE WHEN $2 = 'submitted' THEN COALESCE(submitted_at, $3) ELSE submitted_at END
		WHERE fingerprint = $1`

	pgUpdateProof = `UPDATE applications SET
		proof_text = $2,
		proof_screenshot_path = $3,
		last_attempt_at = GREATEST(COALESCE(last_attempt_at, $4), $4)
		WHERE fingerprint = $1`

	pgUpdateOverride = `UPDATE applications SET override_duplicate = TRUE, override_reason = $2 WHERE fingerprint = $1`

	pgInsertEvent = `INSERT INTO application_events (id, fingerprint, event_type, detail, created_at) VALUES ($1, $2, $3, $4, $5)`
)

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_application": pgInsertApplication,
	"get_application":    pgSelectApplication + ` WHERE fingerprint = $1`,
	"update_status":      pgUpdateStatus,
	"update_proof":       pgUpdateProof,
	"update_override":    pgUpdateOverride,
	"insert_event":       pgInsertEvent,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS applications (
	fingerprint                TEXT PRIMARY KEY,
	canonical_url              TEXT NOT NULL DEFAULT '',
	source_mode                TEXT NOT NULL,
	company                    TEXT NOT NULL,
	role_title                 TEXT NOT NULL,
	location                   TEXT NOT NULL DEFAULT '',
	status                     TEXT NOT NULL DEFAULT 'new',
	first_seen_at              TIMESTAMPTZ NOT NULL,
	last_attempt_at            TIMESTAMPTZ,
	submitted_at               TIMESTAMPTZ,
	resume_artifact_path       TEXT NOT NULL DEFAULT '',
	cover_letter_artifact_path TEXT NOT NULL DEFAULT '',
	proof_text                 TEXT NOT NULL DEFAULT '',
	proof_screenshot_path      TEXT NOT NULL DEFAULT '',
	override_duplicate         BOOLEAN NOT NULL DEFAULT FALSE,
	override_reason            TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS application_events (
	id          TEXT PRIMARY KEY,
	fingerprint TEXT NOT NULL REFERENCES applications(fingerprint),
	event_type  TEXT NOT NULL,
	detail      TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_applications_status ON applications(status);
CREATE INDEX IF NOT EXISTS idx_applications_first_seen_at ON applications(first_seen_at);
CREATE INDEX IF NOT EXISTS idx_application_events_fingerprint ON application_events(fingerprint);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) Insert(ctx context.Context, rec *model.TrackerRecord) error {
	if err := prepareInsert(rec); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return storageErr(err, "postgres: begin insert")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, pgInsertApplication,
		rec.Fingerprint, rec.CanonicalURL, string(rec.SourceMode), rec.Company, rec.RoleTitle, rec.Location,
		string(rec.Status), rec.FirstSeenAt, rec.LastAttemptAt, rec.SubmittedAt,
		rec.ResumeArtifactPath, rec.CoverLetterArtifact, rec.ProofText, rec.ProofScreenshotPath,
		rec.OverrideDuplicate, rec.OverrideReason,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return eris.Wrapf(ErrDuplicateFingerprint, "postgres: insert %s", rec.Fingerprint)
		}
		return storageErr(err, "postgres: insert "+rec.Fingerprint)
	}

	if _, err := tx.Exec(ctx, pgInsertEvent,
		uuid.New().String(), rec.Fingerprint, string(model.EventCreated), string(rec.Status), rec.FirstSeenAt,
	); err != nil {
		return storageErr(err, "postgres: insert event for "+rec.Fingerprint)
	}
	if err := tx.Commit(ctx); err != nil {
		return storageErr(err, "postgres: commit insert "+rec.Fingerprint)
	}
	return nil
}

func (s *PostgresStore) GetByFingerprint(ctx context.Context, fingerprint string) (*model.TrackerRecord, error) {
	return scanRecordPG(s.pool.QueryRow(ctx, pgSelectApplication+` WHERE fingerprint = $1`, fingerprint))
}

// GetByURL re-derives the fingerprint from the URL alone (job-id extraction
// included) and delegates to GetByFingerprint. There is no free-text index.
func (s *PostgresStore) GetByURL(ctx context.Context, rawURL string) (*model.TrackerRecord, error) {
	fp, err := identity.URLFingerprint(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get by url %q", rawURL)
	}
	return s.GetByFingerprint(ctx, fp)
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, fingerprint string, status model.ApplicationStatus) (*model.TrackerRecord, error) {
	if !status.Valid() {
		return nil, eris.Errorf("postgres: update status %s: unknown status %q", fingerprint, status)
	}
	return s.mutate(ctx, fingerprint, model.EventStatusChange, string(status), func(tx pgx.Tx, now time.Time) (pgconn.CommandTag, error) {
		return tx.Exec(ctx, pgUpdateStatus, fingerprint, string(status), now)
	})
}

func (s *PostgresStore) UpdateProof(ctx context.Context, fingerprint, proofText, screenshotPath string) (*model.TrackerRecord, error) {
	return s.mutate(ctx, fingerprint, model.EventProof, proofText, func(tx pgx.Tx, now time.Time) (pgconn.CommandTag, error) {
		return tx.Exec(ctx, pgUpdateProof, fingerprint, proofText, screenshotPath, now)
	})
}

func (s *PostgresStore) UpdateOverride(ctx context.Context, fingerprint, reason string) (*model.TrackerRecord, error) {
	return s.mutate(ctx, fingerprint, model.EventOverride, reason, func(tx pgx.Tx, now time.Time) (pgconn.CommandTag, error) {
		return tx.Exec(ctx, pgUpdateOverride, fingerprint, reason)
	})
}

// mutate runs an UPDATE inside a transaction, appends the audit event, and
// returns the refreshed record. Zero rows affected maps to ErrRecordNotFound.
func (s *PostgresStore) mutate(ctx context.Context, fingerprint string, evType model.EventType, detail string,
	update func(tx pgx.Tx, now time.Time) (pgconn.CommandTag, error)) (*model.TrackerRecord, error) {

	now := time.Now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, storageErr(err, "postgres: begin mutate")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := update(tx, now)
	if err != nil {
		return nil, storageErr(err, "postgres: update "+fingerprint)
	}
	if tag.RowsAffected() == 0 {
		return nil, eris.Wrapf(ErrRecordNotFound, "postgres: fingerprint %s", fingerprint)
	}

	if _, err := tx.Exec(ctx, pgInsertEvent, uuid.New().String(), fingerprint, string(evType), detail, now); err != nil {
		return nil, storageErr(err, "postgres: insert event for "+fingerprint)
	}

	rec, err := scanRecordPG(tx.QueryRow(ctx, pgSelectApplication+` WHERE fingerprint = $1`, fingerprint))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, storageErr(err, "postgres: commit mutate "+fingerprint)
	}
	return rec, nil
}

func (s *PostgresStore) ListRecent(ctx context.Context, filter ListFilter) ([]model.TrackerRecord, error) {
	query := pgSelectApplication + ` WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $1`
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit)
	query += ` ORDER BY first_seen_at DESC LIMIT $` + strconv.Itoa(len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storageErr(err, "postgres: list recent")
	}
	defer rows.Close()

	var recs []model.TrackerRecord
	for rows.Next() {
		r, err := scanRecordPG(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err, "postgres: list recent iterate")
	}
	return recs, nil
}

func (s *PostgresStore) ListEvents(ctx context.Context, fingerprint string) ([]model.ApplicationEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, fingerprint, event_type, detail, created_at FROM application_events
		 WHERE fingerprint = $1 ORDER BY created_at ASC`, fingerprint)
	if err != nil {
		return nil, storageErr(err, "postgres: list events "+fingerprint)
	}
	defer rows.Close()

	var events []model.ApplicationEvent
	for rows.Next() {
		var ev model.ApplicationEvent
		var typ string
		if err := rows.Scan(&ev.ID, &ev.Fingerprint, &typ, &ev.Detail, &ev.CreatedAt); err != nil {
			return nil, storageErr(err, "postgres: scan event")
		}
		ev.Type = model.EventType(typ)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err, "postgres: list events iterate")
	}
	return events, nil
}

// isUniqueViolation reports whether err is a Postgres unique_violation (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func scanRecordPG(row pgx.Row) (*model.TrackerRecord, error) {
	var r model.TrackerRecord
	var sourceMode, status string

	err := row.Scan(
		&r.Fingerprint, &r.CanonicalURL, &sourceMode, &r.Company, &r.RoleTitle, &r.Location, &status,
		&r.FirstSeenAt, &r.LastAttemptAt, &r.SubmittedAt,
		&r.ResumeArtifactPath, &r.CoverLetterArtifact, &r.ProofText, &r.ProofScreenshotPath,
		&r.OverrideDuplicate, &r.OverrideReason,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr(err, "postgres: scan record")
	}

	r.SourceMode = model.SourceMode(sourceMode)
	r.Status = model.ApplicationStatus(status)
	return &r, nil
}
