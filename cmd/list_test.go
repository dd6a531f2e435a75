package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/applypilot/apply-cli/internal/model"
)

func TestComputeStats(t *testing.T) {
	recs := []model.TrackerRecord{
		{Status: model.StatusSubmitted},
		{Status: model.StatusSubmitted, OverrideDuplicate: true},
		{Status: model.StatusSkipped},
		{Status: model.StatusNew},
	}

	s := computeStats(recs)
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 2, s.ByStatus[model.StatusSubmitted])
	assert.Equal(t, 1, s.ByStatus[model.StatusSkipped])
	assert.Equal(t, 1, s.ByStatus[model.StatusNew])
	assert.Equal(t, 1, s.Overrides)
}

func TestComputeStats_Empty(t *testing.T) {
	s := computeStats(nil)
	assert.Equal(t, 0, s.Total)
	assert.Empty(t, s.ByStatus)
}

func TestFormatRecordList(t *testing.T) {
	submitted := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	recs := []model.TrackerRecord{
		{
			Fingerprint: "aabbccddeeff00112233445566778899aabbccddeeff00112233445566778899",
			Company:     "Acme Corp",
			RoleTitle:   "Software Engineer",
			Status:      model.StatusSubmitted,
			FirstSeenAt: submitted.Add(-24 * time.Hour),
			SubmittedAt: &submitted,
		},
	}

	var buf bytes.Buffer
	formatRecordList(&buf, recs)
	out := buf.String()

	assert.Contains(t, out, "aabbccddeeff")
	assert.NotContains(t, out, "aabbccddeeff0011")
	assert.Contains(t, out, "Acme Corp")
	assert.Contains(t, out, "submitted")
	assert.Contains(t, out, "2026-03-14 09:30")
}

func TestFormatStats(t *testing.T) {
	var buf bytes.Buffer
	formatStats(&buf, appStats{
		Total:     3,
		ByStatus:  map[model.ApplicationStatus]int{model.StatusSubmitted: 2, model.StatusFailed: 1},
		Overrides: 1,
	})
	out := buf.String()

	assert.Contains(t, out, "Total applications:")
	assert.Contains(t, out, "submitted:")
	assert.Contains(t, out, "failed:")
	assert.NotContains(t, out, "skipped:")
	assert.Contains(t, out, "Overrides:")
}

func TestTruncateFingerprint(t *testing.T) {
	assert.Equal(t, "aabbccddeeff", truncateFingerprint("aabbccddeeff0011"))
	assert.Equal(t, "short", truncateFingerprint("short"))
}
