package reports

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/scriba/internal/common"
	"github.com/ternarybob/scriba/internal/interfaces"
	"github.com/ternarybob/scriba/internal/models"
	"github.com/ternarybob/scriba/internal/queue"
	"github.com/ternarybob/scriba/internal/storage/badger"
)

func newTestService(t *testing.T) (*VersionService, interfaces.StorageManager) {
	t.Helper()
	logger := common.GetLogger()

	storage, err := badger.NewManager(logger, &common.BadgerConfig{
		Path: filepath.Join(t.TempDir(), "versions-test"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })

	queueMgr := queue.NewManager(storage.JobStorage(), &common.QueueConfig{DefaultMaxAttempts: 3}, logger)
	svc := NewVersionService(storage.ReportStorage(), storage.SessionStorage(), queueMgr, logger)
	return svc, storage
}

func seedSession(t *testing.T, storage interfaces.StorageManager, transcript string) *models.Session {
	t.Helper()
	session := &models.Session{
		ID:                "sess-1",
		Status:            models.SessionStatusTranscribed,
		TranscriptionText: transcript,
		CreatedAt:         time.Now(),
	}
	require.NoError(t, storage.SessionStorage().SaveSession(context.Background(), session))
	return session
}

func TestCreateReportFirstVersion(t *testing.T) {
	svc, storage := newTestService(t)
	session := seedSession(t, storage, "transcript")
	ctx := context.Background()

	report, err := svc.CreateReport(ctx, session.ID, models.ReportTypeAdviser, `{"summary":"v1"}`, models.GenerationMetadata{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.VersionNumber)
	assert.True(t, report.IsCurrentVersion)
	assert.Equal(t, models.ReportStatusDraft, report.Status)
}

func TestCreateReportSupersedesCurrent(t *testing.T) {
	svc, storage := newTestService(t)
	session := seedSession(t, storage, "transcript")
	ctx := context.Background()

	v1, err := svc.CreateReport(ctx, session.ID, models.ReportTypeAdviser, `{"summary":"v1"}`, models.GenerationMetadata{})
	require.NoError(t, err)
	v2, err := svc.CreateReport(ctx, session.ID, models.ReportTypeAdviser, `{"summary":"v2"}`, models.GenerationMetadata{})
	require.NoError(t, err)
	assert.Equal(t, 2, v2.VersionNumber)

	current, err := svc.GetCurrent(ctx, session.ID, models.ReportTypeAdviser)
	require.NoError(t, err)
	assert.Equal(t, v2.ID, current.ID)

	// Exactly one current row across the whole chain
	versions, err := svc.ListVersions(ctx, session.ID, models.ReportTypeAdviser)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	currentCount := 0
	for _, v := range versions {
		if v.IsCurrentVersion {
			currentCount++
		}
	}
	assert.Equal(t, 1, currentCount)

	old, err := svc.reports.GetReport(ctx, v1.ID)
	require.NoError(t, err)
	assert.False(t, old.IsCurrentVersion)
}

func TestVersionChainsAreIndependentPerType(t *testing.T) {
	svc, storage := newTestService(t)
	session := seedSession(t, storage, "transcript")
	ctx := context.Background()

	_, err := svc.CreateReport(ctx, session.ID, models.ReportTypeAdviser, `{"a":1}`, models.GenerationMetadata{})
	require.NoError(t, err)
	_, err = svc.CreateReport(ctx, session.ID, models.ReportTypeAdviser, `{"a":2}`, models.GenerationMetadata{})
	require.NoError(t, err)

	client, err := svc.CreateReport(ctx, session.ID, models.ReportTypeClient, `{"c":1}`, models.GenerationMetadata{})
	require.NoError(t, err)
	assert.Equal(t, 1, client.VersionNumber, "client chain starts at 1 regardless of adviser versions")
}

func TestRegenerateCreatesDraftAndEnqueuesJob(t *testing.T) {
	svc, storage := newTestService(t)
	session := seedSession(t, storage, "transcript")
	ctx := context.Background()

	v1, err := svc.CreateReport(ctx, session.ID, models.ReportTypeClient, `{"summary":"v1"}`, models.GenerationMetadata{})
	require.NoError(t, err)

	draft, err := svc.Regenerate(ctx, v1.ID, "more detail", "adviser@firm")
	require.NoError(t, err)
	assert.Equal(t, 2, draft.VersionNumber)
	assert.True(t, draft.IsCurrentVersion)
	assert.Empty(t, draft.Content)

	// Old version demoted but preserved
	old, err := svc.reports.GetReport(ctx, v1.ID)
	require.NoError(t, err)
	assert.False(t, old.IsCurrentVersion)
	assert.Equal(t, `{"summary":"v1"}`, old.Content)

	// A regeneration job was enqueued at the highest priority
	jobs, err := storage.JobStorage().ListJobsBySession(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, models.JobTypeRegenerateReport, jobs[0].Type)
	assert.Equal(t, models.PriorityRegenerate, jobs[0].Priority)
}

func TestRegenerateRejectsNonCurrentVersion(t *testing.T) {
	svc, storage := newTestService(t)
	session := seedSession(t, storage, "transcript")
	ctx := context.Background()

	v1, err := svc.CreateReport(ctx, session.ID, models.ReportTypeClient, `{"summary":"v1"}`, models.GenerationMetadata{})
	require.NoError(t, err)
	_, err = svc.Regenerate(ctx, v1.ID, "", "")
	require.NoError(t, err)

	// v1 is no longer current
	_, err = svc.Regenerate(ctx, v1.ID, "", "")
	assert.Error(t, err)
}

func TestRegenerateWithoutTranscriptIsFatal(t *testing.T) {
	svc, storage := newTestService(t)
	session := seedSession(t, storage, "")
	ctx := context.Background()

	v1, err := svc.CreateReport(ctx, session.ID, models.ReportTypeClient, `{"summary":"v1"}`, models.GenerationMetadata{})
	require.NoError(t, err)

	_, err = svc.Regenerate(ctx, v1.ID, "", "")
	require.Error(t, err)
	assert.True(t, common.IsFatal(err))
}

func TestApproveFlipsStatusWithoutNewVersion(t *testing.T) {
	svc, storage := newTestService(t)
	session := seedSession(t, storage, "transcript")
	ctx := context.Background()

	report, err := svc.CreateReport(ctx, session.ID, models.ReportTypeAdviser, `{"summary":"v1"}`, models.GenerationMetadata{})
	require.NoError(t, err)

	approved, err := svc.Approve(ctx, report.ID, "compliance@firm", "looks good")
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusApproved, approved.Status)
	assert.Equal(t, "compliance@firm", approved.ApprovedBy)
	assert.Equal(t, "looks good", approved.ApprovalNotes)
	require.NotNil(t, approved.ApprovedAt)
	assert.Equal(t, 1, approved.VersionNumber, "approval is a status flip, never a new version")

	versions, err := svc.ListVersions(ctx, session.ID, models.ReportTypeAdviser)
	require.NoError(t, err)
	assert.Len(t, versions, 1)

	// Double approval is rejected
	_, err = svc.Approve(ctx, report.ID, "compliance@firm", "")
	assert.Error(t, err)
}

func TestFillDraft(t *testing.T) {
	svc, storage := newTestService(t)
	session := seedSession(t, storage, "transcript")
	ctx := context.Background()

	v1, err := svc.CreateReport(ctx, session.ID, models.ReportTypeClient, `{"summary":"v1"}`, models.GenerationMetadata{})
	require.NoError(t, err)
	draft, err := svc.Regenerate(ctx, v1.ID, "", "")
	require.NoError(t, err)

	meta := models.GenerationMetadata{Model: "m", TokensUsed: 42}
	require.NoError(t, svc.FillDraft(ctx, draft.ID, `{"summary":"v2"}`, meta))

	filled, err := svc.reports.GetReport(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, `{"summary":"v2"}`, filled.Content)
	assert.Equal(t, 42, filled.Metadata.TokensUsed)
	assert.True(t, filled.IsCurrentVersion)
}
