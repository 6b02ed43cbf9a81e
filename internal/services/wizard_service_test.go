package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"diveops/internal/operations"
	"diveops/internal/operations/testutil"
	"diveops/internal/store"
	api "diveops/pkg/contracts/api/v1"
	"diveops/pkg/contracts/domain"
	"diveops/pkg/contracts/events"
)

func seedRecord(t *testing.T, s *store.MemoryStore, fields map[string]any) string {
	t.Helper()
	id, err := s.CreateRecord(context.Background(), fields)
	require.NoError(t, err)
	return id
}

func plannedFields() map[string]any {
	return map[string]any{
		domain.FieldName:               "Breakwater inspection",
		domain.FieldSiteID:             "site-7",
		domain.FieldTeamID:             "team-2",
		domain.FieldResponsiblePartyID: "sup-4",
	}
}

func TestNewWizardServiceRequiresStores(t *testing.T) {
	_, err := NewWizardService(WizardDeps{}, testWizardConfig())
	assert.Equal(t, operations.ErrorTypeValidation, operations.GetErrorType(err))
}

func TestCreateSessionForNewOperation(t *testing.T) {
	mem := store.NewMemoryStore()
	svc, hub, _ := newTestService(t, mem, mem, testWizardConfig())
	ctx := context.Background()

	snap, err := svc.CreateSession(ctx, "")
	require.NoError(t, err)
	assert.NotEmpty(t, snap.SessionID)
	assert.Empty(t, snap.RecordID)
	assert.Equal(t, 0, snap.CurrentStepIndex)
	assert.Equal(t, 1, svc.Count())

	snap, err = svc.CompleteStep(ctx, snap.SessionID, "operation", map[string]any{
		domain.FieldName:      "Breakwater inspection",
		domain.FieldStartDate: "2026-05-04",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, snap.RecordID)

	records, err := svc.ListRecords(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, snap.RecordID, records[0].ID)
	assert.Equal(t, "2026-05-04", records[0].StartDate)

	svc.CloseAll(ctx)
	created := hub.updates(events.MessageTypeWizardSnapshot)
	require.NotEmpty(t, created)
	assert.Equal(t, events.ActionCreated, created[0].Arguments.String(2))
	assert.Equal(t, snap.SessionID, created[0].Arguments.String(1))
	hub.AssertCalled(t, "BroadcastUpdate", events.MessageTypeSessionClosed, snap.SessionID, events.ActionClosed, mock.Anything)
}

func TestCreateSessionResumesAtFirstIncompleteStep(t *testing.T) {
	mem := store.NewMemoryStore()
	id := seedRecord(t, mem, plannedFields())
	require.NoError(t, mem.SignDocument(context.Background(), id, domain.DocumentRiskAssessment))
	svc, _, _ := newTestService(t, mem, mem, testWizardConfig())

	snap, err := svc.CreateSession(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, id, snap.RecordID)
	assert.Equal(t, 4, snap.CurrentStepIndex)
	assert.Equal(t, operations.StepSecondDocument, snap.CurrentStep.ID)
}

func TestCreateSessionForMissingRecord(t *testing.T) {
	mem := store.NewMemoryStore()
	svc, _, _ := newTestService(t, mem, mem, testWizardConfig())

	_, err := svc.CreateSession(context.Background(), "op-missing")

	assert.Equal(t, operations.ErrorTypeNotFound, operations.GetErrorType(err))
	assert.Zero(t, svc.Count())
}

func TestCreateSessionLimit(t *testing.T) {
	mem := store.NewMemoryStore()
	cfg := testWizardConfig()
	cfg.MaxSessions = 1
	svc, _, _ := newTestService(t, mem, mem, cfg)

	_, err := svc.CreateSession(context.Background(), "")
	require.NoError(t, err)
	_, err = svc.CreateSession(context.Background(), "")
	assert.ErrorIs(t, err, ErrSessionLimit)
	assert.Equal(t, 1, svc.Count())
}

func TestNavigate(t *testing.T) {
	mem := store.NewMemoryStore()
	svc, _, _ := newTestService(t, mem, mem, testWizardConfig())
	ctx := context.Background()
	snap, err := svc.CreateSession(ctx, "")
	require.NoError(t, err)
	id := snap.SessionID

	moved, snap, err := svc.Navigate(ctx, id, api.ActionNext, nil)
	require.NoError(t, err)
	assert.False(t, moved, "site is pending until the record exists")
	assert.Equal(t, 0, snap.CurrentStepIndex)

	moved, _, err = svc.Navigate(ctx, id, api.ActionPrevious, nil)
	require.NoError(t, err)
	assert.False(t, moved)

	index := 0
	moved, _, err = svc.Navigate(ctx, id, api.ActionGoTo, &index)
	require.NoError(t, err)
	assert.True(t, moved)

	_, _, err = svc.Navigate(ctx, id, api.ActionGoTo, nil)
	assert.Equal(t, operations.ErrorTypeValidation, operations.GetErrorType(err))

	_, _, err = svc.Navigate(ctx, id, "jump", nil)
	assert.Equal(t, operations.ErrorTypeValidation, operations.GetErrorType(err))

	_, _, err = svc.Navigate(ctx, "nope", api.ActionNext, nil)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestNavigateAcrossResumedRecord(t *testing.T) {
	mem := store.NewMemoryStore()
	id := seedRecord(t, mem, plannedFields())
	svc, _, _ := newTestService(t, mem, mem, testWizardConfig())
	ctx := context.Background()

	snap, err := svc.CreateSession(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 3, snap.CurrentStepIndex)

	moved, snap, err := svc.Navigate(ctx, snap.SessionID, api.ActionPrevious, nil)
	require.NoError(t, err)
	assert.True(t, moved)
	assert.Equal(t, 2, snap.CurrentStepIndex)

	moved, snap, err = svc.Navigate(ctx, snap.SessionID, api.ActionNext, nil)
	require.NoError(t, err)
	assert.True(t, moved)
	assert.Equal(t, 3, snap.CurrentStepIndex)

	moved, _, err = svc.Navigate(ctx, snap.SessionID, api.ActionNext, nil)
	require.NoError(t, err)
	assert.False(t, moved, "second document waits for the first")
}

func TestCompleteStepErrors(t *testing.T) {
	mem := store.NewMemoryStore()
	svc, _, _ := newTestService(t, mem, mem, testWizardConfig())
	ctx := context.Background()
	snap, err := svc.CreateSession(ctx, "")
	require.NoError(t, err)

	_, err = svc.CompleteStep(ctx, snap.SessionID, "briefing", map[string]any{})
	assert.Equal(t, operations.ErrorTypeValidation, operations.GetErrorType(err))
	assert.ErrorIs(t, err, operations.ErrUnknownStep)

	_, err = svc.CompleteStep(ctx, snap.SessionID, "site", map[string]any{domain.FieldSiteID: "site-1"})
	assert.Equal(t, operations.ErrorTypeInvalidState, operations.GetErrorType(err))

	_, err = svc.CompleteStep(ctx, "nope", "site", nil)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestCompleteStepNullClearsField(t *testing.T) {
	mem := store.NewMemoryStore()
	id := seedRecord(t, mem, plannedFields())
	svc, _, clock := newTestService(t, mem, mem, testWizardConfig())
	ctx := context.Background()

	snap, err := svc.CreateSession(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 3, snap.CurrentStepIndex)

	// an absent key leaves the site alone
	_, err = svc.CompleteStep(ctx, snap.SessionID, "site", map[string]any{"notes": ""})
	require.NoError(t, err)
	clock.Advance(2 * time.Second)
	record, err := svc.Record(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "site-7", record.SiteID)

	_, err = svc.CompleteStep(ctx, snap.SessionID, "site", map[string]any{domain.FieldSiteID: nil})
	require.NoError(t, err)
	clock.Advance(2 * time.Second)

	record, err = svc.Record(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, record.SiteID)
	assert.Equal(t, "team-2", record.TeamID)

	snap, err = svc.GetSession(snap.SessionID)
	require.NoError(t, err)
	assert.Equal(t, operations.StepStatusActive, snap.Steps[1].Status)
	assert.Equal(t, 1, snap.CurrentStepIndex)
}

func TestSignDocumentRefreshesSessions(t *testing.T) {
	mem := store.NewMemoryStore()
	id := seedRecord(t, mem, plannedFields())
	svc, _, _ := newTestService(t, mem, mem, testWizardConfig())
	ctx := context.Background()

	snap, err := svc.CreateSession(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 3, snap.CurrentStepIndex)

	require.NoError(t, svc.SignDocument(ctx, id, "risk_assessment"))

	snap, err = svc.GetSession(snap.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 4, snap.CurrentStepIndex)

	require.NoError(t, svc.RevokeDocument(ctx, id, "risk_assessment"))
	readiness, err := mem.CheckReadiness(ctx, id)
	require.NoError(t, err)
	assert.False(t, readiness.FirstDocumentReady)
}

func TestSignDocumentErrors(t *testing.T) {
	mem := store.NewMemoryStore()
	svc, _, _ := newTestService(t, mem, mem, testWizardConfig())
	ctx := context.Background()

	err := svc.SignDocument(ctx, "op-1", "waiver")
	assert.Equal(t, operations.ErrorTypeValidation, operations.GetErrorType(err))

	err = svc.SignDocument(ctx, "op-missing", "dive_plan")
	assert.Equal(t, operations.ErrorTypeNotFound, operations.GetErrorType(err))
}

func TestStoreWithoutSigningOrListing(t *testing.T) {
	scripted := testutil.NewScriptedStore()
	svc, _, _ := newTestService(t, scripted, scripted, testWizardConfig())
	ctx := context.Background()

	assert.ErrorIs(t, svc.SignDocument(ctx, "op-1", "dive_plan"), ErrSigningUnsupported)
	_, err := svc.ListRecords(ctx)
	assert.ErrorIs(t, err, ErrListingUnsupported)
}

func TestRecord(t *testing.T) {
	mem := store.NewMemoryStore()
	id := seedRecord(t, mem, plannedFields())
	svc, _, _ := newTestService(t, mem, mem, testWizardConfig())
	ctx := context.Background()

	rec, err := svc.Record(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "site-7", rec.SiteID)

	_, err = svc.Record(ctx, "op-missing")
	assert.Equal(t, operations.ErrorTypeNotFound, operations.GetErrorType(err))
}

func TestRecordFetchFailure(t *testing.T) {
	scripted := testutil.NewScriptedStore()
	scripted.FailFetch(errors.New("connection reset"))
	svc, _, _ := newTestService(t, scripted, scripted, testWizardConfig())

	_, err := svc.Record(context.Background(), "op-1")
	assert.True(t, operations.IsPersistenceError(err))
}

func TestListSessionsAndClose(t *testing.T) {
	mem := store.NewMemoryStore()
	svc, hub, clock := newTestService(t, mem, mem, testWizardConfig())
	ctx := context.Background()

	first, err := svc.CreateSession(ctx, "")
	require.NoError(t, err)
	clock.Advance(1)
	second, err := svc.CreateSession(ctx, "")
	require.NoError(t, err)

	list := svc.ListSessions()
	require.Len(t, list, 2)
	assert.Equal(t, first.SessionID, list[0].SessionID)
	assert.Equal(t, second.SessionID, list[1].SessionID)

	require.NoError(t, svc.CloseSession(ctx, first.SessionID))
	assert.ErrorIs(t, svc.CloseSession(ctx, first.SessionID), ErrSessionNotFound)
	_, err = svc.GetSession(first.SessionID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, 1, svc.Count())

	svc.CloseAll(ctx)
	assert.Zero(t, svc.Count())
	assert.Len(t, hub.updates(events.MessageTypeSessionClosed), 2)

	_, err = svc.CreateSession(ctx, "")
	assert.ErrorIs(t, err, operations.ErrSessionClosed)
}
