package database

import (
	"context"
	"testing"
	"time"

	"github.com/cabepi/lab-pbm-senasa/v1/models"
	"github.com/cabepi/lab-pbm-senasa/v1/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func newTrace(transactionID string, action models.ActionType, code int, at time.Time) *models.TraceEvent {
	event := &models.TraceEvent{
		TransactionID: transactionID,
		UserEmail:     "operator@example.com",
		ActionType:    action,
		ResponseCode:  code,
		DurationMs:    42,
		PharmacyCode:  "20414",
		PayloadInput:  datatypes.JSON(`{"CodigoFarmacia":"20414"}`),
		PayloadOutput: datatypes.JSON(`{"ErrorNumber":1000}`),
	}
	event.CreatedAt = at
	return event
}

func TestTraceRepository_CreateAndTimeline(t *testing.T) {
	db := testutil.SetupSQLiteTestDB(t)
	repo := NewTraceRepository(db)
	ctx := context.Background()

	base := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Create(ctx, newTrace("tx-1", models.ActionAuthorization, 1000, base.Add(time.Minute))))
	require.NoError(t, repo.Create(ctx, newTrace("tx-1", models.ActionValidation, 1000, base)))
	require.NoError(t, repo.Create(ctx, newTrace("tx-2", models.ActionValidation, 2001, base)))

	timeline, err := repo.ListByTransaction(ctx, "tx-1")
	require.NoError(t, err)
	require.Len(t, timeline, 2)
	assert.Equal(t, models.ActionValidation, timeline[0].ActionType, "oldest first")
	assert.Equal(t, models.ActionAuthorization, timeline[1].ActionType)
	assert.NotEqual(t, timeline[0].ID, timeline[1].ID)
	assert.JSONEq(t, `{"ErrorNumber":1000}`, string(timeline[0].PayloadOutput))

	none, err := repo.ListByTransaction(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestTraceRepository_CreateRejectsInvalidEvent(t *testing.T) {
	db := testutil.SetupSQLiteTestDB(t)
	repo := NewTraceRepository(db)

	err := repo.Create(context.Background(), &models.TraceEvent{ActionType: models.ActionVoid})
	assert.Error(t, err)
}

func TestTraceRepository_EventsAreAppendOnly(t *testing.T) {
	db := testutil.SetupSQLiteTestDB(t)
	repo := NewTraceRepository(db)
	ctx := context.Background()

	event := newTrace("tx-1", models.ActionValidation, 1000, time.Now().UTC())
	require.NoError(t, repo.Create(ctx, event))

	err := db.Model(event).Update("response_code", 500).Error
	assert.ErrorIs(t, err, models.ErrTraceImmutable)

	err = db.Delete(event).Error
	assert.ErrorIs(t, err, models.ErrTraceImmutable)

	stored, err := repo.ListByTransaction(ctx, "tx-1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, 1000, stored[0].ResponseCode)
}

func TestTraceRepository_ListBackfillsAuthorizationCode(t *testing.T) {
	db := testutil.SetupSQLiteTestDB(t)
	traces := NewTraceRepository(db)
	authorizations := NewAuthorizationRepository(db)
	ctx := context.Background()

	_, err := authorizations.Save(ctx, &models.AuthorizationBundle{Record: newRecord("987654", "tx-1")})
	require.NoError(t, err)

	base := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, traces.Create(ctx, newTrace("tx-1", models.ActionValidation, 1000, base)))
	require.NoError(t, traces.Create(ctx, newTrace("tx-2", models.ActionValidation, 2001, base.Add(time.Minute))))

	own := newTrace("tx-3", models.ActionVoid, 200, base.Add(2*time.Minute))
	own.AuthorizationCode = models.StringPtr("555")
	require.NoError(t, traces.Create(ctx, own))

	events, err := traces.List(ctx, 500)
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, "tx-3", events[0].TransactionID, "newest first")
	assert.Equal(t, "555", models.StringValue(events[0].AuthorizationCode))
	assert.Nil(t, events[1].AuthorizationCode, "rejected transaction has no authorization")
	assert.Equal(t, "987654", models.StringValue(events[2].AuthorizationCode), "back-filled from the authorization")

	limited, err := traces.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestTraceRepository_ListCommittedSince(t *testing.T) {
	db := testutil.SetupSQLiteTestDB(t)
	repo := NewTraceRepository(db)
	ctx := context.Background()

	base := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)

	committed := newTrace("tx-1", models.ActionAuthorization, 1000, base.Add(time.Hour))
	committed.AuthorizationCode = models.StringPtr("111")
	require.NoError(t, repo.Create(ctx, committed))

	old := newTrace("tx-0", models.ActionAuthorization, 1000, base.Add(-time.Hour))
	old.AuthorizationCode = models.StringPtr("000")
	require.NoError(t, repo.Create(ctx, old))

	rejected := newTrace("tx-2", models.ActionAuthorization, 2001, base.Add(time.Hour))
	require.NoError(t, repo.Create(ctx, rejected))

	validation := newTrace("tx-3", models.ActionValidation, 1000, base.Add(time.Hour))
	require.NoError(t, repo.Create(ctx, validation))

	events, err := repo.ListCommittedSince(ctx, base)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "111", models.StringValue(events[0].AuthorizationCode))
}

func TestTraceRepository_ListNeverRepeatsEvents(t *testing.T) {
	db := testutil.SetupSQLiteTestDB(t)
	traces := NewTraceRepository(db)
	authorizations := NewAuthorizationRepository(db)
	ctx := context.Background()

	// two authorizations left behind under one transaction id
	_, err := authorizations.Save(ctx, &models.AuthorizationBundle{Record: newRecord("111", "tx-dup")})
	require.NoError(t, err)
	_, err = authorizations.Save(ctx, &models.AuthorizationBundle{Record: newRecord("222", "tx-dup")})
	require.NoError(t, err)

	base := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, traces.Create(ctx, newTrace("tx-dup", models.ActionValidation, 1000, base)))
	require.NoError(t, traces.Create(ctx, newTrace("tx-dup", models.ActionValidation, 1000, base.Add(time.Minute))))

	events, err := traces.List(ctx, 500)
	require.NoError(t, err)
	require.Len(t, events, 2)
	for _, event := range events {
		assert.Contains(t, []string{"111", "222"}, models.StringValue(event.AuthorizationCode))
	}
}

func TestTraceRepository_ExistsForTransaction(t *testing.T) {
	db := testutil.SetupSQLiteTestDB(t)
	traces := NewTraceRepository(db)
	authorizations := NewAuthorizationRepository(db)
	ctx := context.Background()

	require.NoError(t, traces.Create(ctx, newTrace("tx-traced", models.ActionValidation, 2001, time.Now().UTC())))
	_, err := authorizations.Save(ctx, &models.AuthorizationBundle{Record: newRecord("333", "tx-stored")})
	require.NoError(t, err)

	for _, tc := range []struct {
		transactionID string
		want          bool
	}{
		{"tx-traced", true},
		{"tx-stored", true},
		{"tx-new", false},
	} {
		t.Run(tc.transactionID, func(t *testing.T) {
			found, err := traces.ExistsForTransaction(ctx, tc.transactionID)
			require.NoError(t, err)
			assert.Equal(t, tc.want, found)
		})
	}
}
