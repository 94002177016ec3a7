package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/cabepi/lab-pbm-senasa/config"
	pbmredis "github.com/cabepi/lab-pbm-senasa/redis"
	"github.com/cabepi/lab-pbm-senasa/v1/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type downPinger struct{}

func (downPinger) Ping(ctx context.Context) error { return errors.New("connection refused") }

func TestHealthHandler(t *testing.T) {
	db := testutil.SetupSQLiteTestDB(t)

	t.Run("in-memory store", func(t *testing.T) {
		w := httptest.NewRecorder()
		healthHandler(db, nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		require.Equal(t, http.StatusOK, w.Code)
		var status healthStatus
		require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
		assert.Equal(t, "healthy", status.Status)
		assert.Equal(t, "in-memory", status.Dependencies["workflow_store"].Status)
	})

	t.Run("redis reachable", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client, err := pbmredis.NewClient(config.RedisConfig{Addr: mr.Addr()})
		require.NoError(t, err)
		defer client.Close()

		w := httptest.NewRecorder()
		healthHandler(db, client).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("redis down", func(t *testing.T) {
		w := httptest.NewRecorder()
		healthHandler(db, downPinger{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		var status healthStatus
		require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
		assert.Equal(t, "connection refused", status.Dependencies["redis"].Error)
	})
}
