package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/applypilot/apply-cli/internal/dedup"
	"github.com/applypilot/apply-cli/internal/model"
	"github.com/applypilot/apply-cli/internal/store"
)

func newTestProcessor(t *testing.T, concurrency int) (*Processor, store.Store) {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "apply.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	detector := dedup.NewDetector(st, zap.NewNop())
	return NewProcessor(detector, zap.NewNop(), concurrency, 0), st
}

func makeLeads(n int) []model.Lead {
	leads := make([]model.Lead, 0, n)
	for i := 0; i < n; i++ {
		leads = append(leads, model.Lead{
			URL:       fmt.Sprintf("https://careers.acme.com/openings/%d", i),
			Company:   "Acme Corp",
			RoleTitle: fmt.Sprintf("Engineer %d", i),
		})
	}
	return leads
}

func TestProcessor_Run(t *testing.T) {
	p, st := newTestProcessor(t, 4)
	ctx := context.Background()

	res, err := p.Run(ctx, makeLeads(10), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(10), res.Tracked)
	assert.Equal(t, int64(0), res.Duplicates)
	assert.Equal(t, int64(0), res.Failed)

	recs, err := st.ListRecent(ctx, store.ListFilter{Limit: 100})
	require.NoError(t, err)
	assert.Len(t, recs, 10)
	for _, r := range recs {
		assert.Equal(t, model.SourceModeAutonomous, r.SourceMode)
		assert.Equal(t, model.StatusNew, r.Status)
	}
}

func TestProcessor_Run_SkipsSeenLeads(t *testing.T) {
	p, _ := newTestProcessor(t, 4)
	ctx := context.Background()

	leads := makeLeads(5)
	_, err := p.Run(ctx, leads, 0)
	require.NoError(t, err)

	// Second pass over the same leads: all duplicates, nothing tracked.
	res, err := p.Run(ctx, leads, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Tracked)
	assert.Equal(t, int64(5), res.Duplicates)
}

// Many workers racing on one identity: exactly one insert wins, the rest
// resolve as duplicates, and nothing is counted as failed.
func TestProcessor_Run_ConcurrentSameIdentity(t *testing.T) {
	p, st := newTestProcessor(t, 8)
	ctx := context.Background()

	same := model.Lead{
		URL:       "https://careers.acme.com/openings/1",
		Company:   "Acme Corp",
		RoleTitle: "Engineer",
	}
	leads := make([]model.Lead, 16)
	for i := range leads {
		leads[i] = same
	}

	res, err := p.Run(ctx, leads, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Tracked)
	assert.Equal(t, int64(15), res.Duplicates)
	assert.Equal(t, int64(0), res.Failed)

	recs, err := st.ListRecent(ctx, store.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestProcessor_Run_Limit(t *testing.T) {
	p, _ := newTestProcessor(t, 2)

	res, err := p.Run(context.Background(), makeLeads(10), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Tracked)
}

func TestProcessor_Run_CountsFailures(t *testing.T) {
	p, _ := newTestProcessor(t, 2)

	// A lead with no usable identity fails without aborting the batch.
	leads := append(makeLeads(2), model.Lead{})
	res, err := p.Run(context.Background(), leads, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Tracked)
	assert.Equal(t, int64(1), res.Failed)
}

func TestProcessor_Run_Empty(t *testing.T) {
	p, _ := newTestProcessor(t, 2)

	res, err := p.Run(context.Background(), nil, 0)
	require.NoError(t, err)
	assert.Equal(t, &Result{}, res)
}
