package services

import (
	"context"
	"testing"

	"github.com/cabepi/lab-pbm-senasa/v1/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryService(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	authorize(t, h, "tx-q")

	queries := NewQueryService(h.authorizations, h.traces, 100, 500)

	t.Run("ListAuthorizations", func(t *testing.T) {
		list, err := queries.ListAuthorizations(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, list.Count)
		assert.Equal(t, "987654", list.Authorizations[0].AuthorizationCode)
	})

	t.Run("GetAuthorization", func(t *testing.T) {
		record, err := queries.GetAuthorization(ctx, "987654")
		require.NoError(t, err)
		assert.Equal(t, "tx-q", record.TransactionID)

		_, err = queries.GetAuthorization(ctx, "000")
		requireWorkflowError(t, err, KindNotFound)

		_, err = queries.GetAuthorization(ctx, "")
		requireWorkflowError(t, err, KindValidation)
	})

	t.Run("ListTraces back-fills the code", func(t *testing.T) {
		list, err := queries.ListTraces(ctx)
		require.NoError(t, err)
		require.Equal(t, 2, list.Count)
		for _, event := range list.Traces {
			assert.Equal(t, "987654", models.StringValue(event.AuthorizationCode), string(event.ActionType))
		}
	})

	t.Run("Timeline", func(t *testing.T) {
		timeline, err := queries.Timeline(ctx, "tx-q")
		require.NoError(t, err)
		require.Equal(t, 2, timeline.Count)
		assert.Equal(t, models.ActionValidation, timeline.Traces[0].ActionType)

		_, err = queries.Timeline(ctx, "tx-none")
		requireWorkflowError(t, err, KindNotFound)
	})
}
