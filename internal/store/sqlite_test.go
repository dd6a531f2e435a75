package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/applypilot/apply-cli/internal/identity"
	"github.com/applypilot/apply-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()

	st, err := NewSQLite(filepath.Join(t.TempDir(), "apply.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck

	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testRecord(fingerprint string) *model.TrackerRecord {
	return &model.TrackerRecord{
		Fingerprint:  fingerprint,
		CanonicalURL: "https://careers.acme.com/openings/1",
		SourceMode:   model.SourceModeSingle,
		Company:      "Acme Corp",
		RoleTitle:    "Software Engineer",
		Location:     "Boston, MA",
	}
}

func TestSQLiteStore_InsertAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	rec := testRecord("fp-insert")
	require.NoError(t, st.Insert(ctx, rec))

	// Defaults applied by the insert path.
	assert.Equal(t, model.StatusNew, rec.Status)
	assert.False(t, rec.FirstSeenAt.IsZero())

	got, err := st.GetByFingerprint(ctx, "fp-insert")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, rec.Fingerprint, got.Fingerprint)
	assert.Equal(t, rec.CanonicalURL, got.CanonicalURL)
	assert.Equal(t, rec.Company, got.Company)
	assert.Equal(t, rec.RoleTitle, got.RoleTitle)
	assert.Equal(t, rec.Location, got.Location)
	assert.Equal(t, model.StatusNew, got.Status)
	assert.Equal(t, model.SourceModeSingle, got.SourceMode)
	assert.Nil(t, got.LastAttemptAt)
	assert.Nil(t, got.SubmittedAt)
	assert.False(t, got.OverrideDuplicate)
}

func TestSQLiteStore_GetByFingerprint_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	got, err := st.GetByFingerprint(context.Background(), "no-such-fingerprint")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteStore_InsertDuplicate(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.Insert(ctx, testRecord("fp-dup")))

	second := testRecord("fp-dup")
	second.Company = "Acme Corp (second attempt)"
	err := st.Insert(ctx, second)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrDuplicateFingerprint))

	// Exactly one record survives, with the original fields.
	got, err := st.GetByFingerprint(ctx, "fp-dup")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Acme Corp", got.Company)

	recs, err := st.ListRecent(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestSQLiteStore_InsertValidation(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	t.Run("empty fingerprint", func(t *testing.T) {
		rec := testRecord("")
		assert.Error(t, st.Insert(ctx, rec))
	})

	t.Run("missing company", func(t *testing.T) {
		rec := testRecord("fp-v1")
		rec.Company = ""
		assert.Error(t, st.Insert(ctx, rec))
	})

	t.Run("unknown status", func(t *testing.T) {
		rec := testRecord("fp-v2")
		rec.Status = "pending"
		assert.Error(t, st.Insert(ctx, rec))
	})

	t.Run("override reason without flag", func(t *testing.T) {
		rec := testRecord("fp-v3")
		rec.OverrideReason = "looks different"
		assert.Error(t, st.Insert(ctx, rec))
	})
}

func TestSQLiteStore_UpdateStatus(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.Insert(ctx, testRecord("fp-status")))

	got, err := st.UpdateStatus(ctx, "fp-status", model.StatusInProgress)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.StatusInProgress, got.Status)
	require.NotNil(t, got.LastAttemptAt)
	assert.Nil(t, got.SubmittedAt)
}

func TestSQLiteStore_UpdateStatus_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.UpdateStatus(context.Background(), "no-such-fingerprint", model.StatusSkipped)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrRecordNotFound))
}

func TestSQLiteStore_UpdateStatus_Unknown(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.Insert(ctx, testRecord("fp-bad-status")))
	_, err := st.UpdateStatus(ctx, "fp-bad-status", "rejected-by-mars")
	assert.Error(t, err)
}

func TestSQLiteStore_SubmittedAtSetOnce(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.Insert(ctx, testRecord("fp-submit")))

	first, err := st.UpdateStatus(ctx, "fp-submit", model.StatusSubmitted)
	require.NoError(t, err)
	require.NotNil(t, first.SubmittedAt)

	time.Sleep(10 * time.Millisecond)

	// A repeated submitted transition must not move the submission time.
	second, err := st.UpdateStatus(ctx, "fp-submit", model.StatusSubmitted)
	require.NoError(t, err)
	require.NotNil(t, second.SubmittedAt)
	assert.True(t, second.SubmittedAt.Equal(*first.SubmittedAt))

	// Nor does leaving and re-entering the status.
	_, err = st.UpdateStatus(ctx, "fp-submit", model.StatusFailed)
	require.NoError(t, err)
	third, err := st.UpdateStatus(ctx, "fp-submit", model.StatusSubmitted)
	require.NoError(t, err)
	require.NotNil(t, third.SubmittedAt)
	assert.True(t, third.SubmittedAt.Equal(*first.SubmittedAt))
}

func TestSQLiteStore_LastAttemptMonotonic(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.Insert(ctx, testRecord("fp-attempt")))

	first, err := st.UpdateStatus(ctx, "fp-attempt", model.StatusInProgress)
	require.NoError(t, err)
	require.NotNil(t, first.LastAttemptAt)

	time.Sleep(10 * time.Millisecond)

	second, err := st.UpdateProof(ctx, "fp-attempt", "submitted via portal", "")
	require.NoError(t, err)
	require.NotNil(t, second.LastAttemptAt)

	assert.False(t, second.LastAttemptAt.Before(*first.LastAttemptAt))
}

func TestSQLiteStore_UpdateProof(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.Insert(ctx, testRecord("fp-proof")))

	got, err := st.UpdateProof(ctx, "fp-proof", "confirmation #8812", "/artifacts/shot.png")
	require.NoError(t, err)
	assert.Equal(t, "confirmation #8812", got.ProofText)
	assert.Equal(t, "/artifacts/shot.png", got.ProofScreenshotPath)
	require.NotNil(t, got.LastAttemptAt)
}

func TestSQLiteStore_UpdateOverride(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.Insert(ctx, testRecord("fp-override")))

	got, err := st.UpdateOverride(ctx, "fp-override", "different team, same posting id")
	require.NoError(t, err)
	assert.True(t, got.OverrideDuplicate)
	assert.Equal(t, "different team, same posting id", got.OverrideReason)
	// Override is an annotation: status and attempt time are untouched.
	assert.Equal(t, model.StatusNew, got.Status)
	assert.Nil(t, got.LastAttemptAt)
}

func TestSQLiteStore_ListRecent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		rec := testRecord(fmt.Sprintf("fp-list-%d", i))
		rec.FirstSeenAt = base.Add(time.Duration(i) * time.Minute)
		if i%2 == 0 {
			rec.Status = model.StatusSubmitted
		}
		require.NoError(t, st.Insert(ctx, rec))
	}

	t.Run("most recent first", func(t *testing.T) {
		recs, err := st.ListRecent(ctx, ListFilter{})
		require.NoError(t, err)
		require.Len(t, recs, 5)
		assert.Equal(t, "fp-list-4", recs[0].Fingerprint)
		assert.Equal(t, "fp-list-0", recs[4].Fingerprint)
	})

	t.Run("status filter", func(t *testing.T) {
		recs, err := st.ListRecent(ctx, ListFilter{Status: model.StatusSubmitted})
		require.NoError(t, err)
		assert.Len(t, recs, 3)
		for _, r := range recs {
			assert.Equal(t, model.StatusSubmitted, r.Status)
		}
	})

	t.Run("limit", func(t *testing.T) {
		recs, err := st.ListRecent(ctx, ListFilter{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, recs, 2)
	})
}

func TestSQLiteStore_ListEvents(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.Insert(ctx, testRecord("fp-events")))
	_, err := st.UpdateStatus(ctx, "fp-events", model.StatusInProgress)
	require.NoError(t, err)
	_, err = st.UpdateProof(ctx, "fp-events", "done", "")
	require.NoError(t, err)
	_, err = st.UpdateOverride(ctx, "fp-events", "recruiter asked to reapply")
	require.NoError(t, err)

	events, err := st.ListEvents(ctx, "fp-events")
	require.NoError(t, err)
	require.Len(t, events, 4)

	assert.Equal(t, model.EventCreated, events[0].Type)
	assert.Equal(t, model.EventStatusChange, events[1].Type)
	assert.Equal(t, model.EventProof, events[2].Type)
	assert.Equal(t, model.EventOverride, events[3].Type)
	for _, ev := range events {
		assert.NotEmpty(t, ev.ID)
		assert.Equal(t, "fp-events", ev.Fingerprint)
	}
}

func TestSQLiteStore_GetByURL(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	url := "https://boards.greenhouse.io/acme/jobs/12345?utm_source=linkedin"
	fp, err := identity.URLFingerprint(url)
	require.NoError(t, err)

	rec := testRecord(fp)
	rec.CanonicalURL = "https://boards.greenhouse.io/acme/jobs/12345"
	require.NoError(t, st.Insert(ctx, rec))

	// A differently-decorated URL for the same posting resolves to the record.
	got, err := st.GetByURL(ctx, "https://boards.greenhouse.io/acme/jobs/12345/application?gh_src=newsletter")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, fp, got.Fingerprint)

	// A different posting does not.
	other, err := st.GetByURL(ctx, "https://boards.greenhouse.io/acme/jobs/99999")
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestSQLiteStore_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.Insert(ctx, testRecord("fp-migrate")))
	require.NoError(t, st.Migrate(ctx))

	got, err := st.GetByFingerprint(ctx, "fp-migrate")
	require.NoError(t, err)
	require.NotNil(t, got)
}

// Concurrent inserts for the same fingerprint: exactly one wins, the rest see
// the duplicate sentinel.
func TestSQLiteStore_ConcurrentInsert(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	const n = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		ok   int
		dups int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := st.Insert(ctx, testRecord("fp-race"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case eris.Is(err, ErrDuplicateFingerprint):
				dups++
			default:
				t.Errorf("unexpected insert error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, dups)

	recs, err := st.ListRecent(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}
