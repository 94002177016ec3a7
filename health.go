package main

import (
	"context"
	"net/http"
	"time"

	"github.com/cabepi/lab-pbm-senasa/database"
	"github.com/cabepi/lab-pbm-senasa/v1/utils"
	"gorm.io/gorm"
)

type dependencyHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type healthStatus struct {
	Status       string                      `json:"status"`
	Service      string                      `json:"service"`
	Dependencies map[string]dependencyHealth `json:"dependencies"`
}

// pinger is satisfied by the Redis client; nil means the in-memory store
type pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler reports 503 when the database or Redis cannot be reached
func healthHandler(gormDB *gorm.DB, redisClient pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := healthStatus{
			Status:       "healthy",
			Service:      "pbm-authorization-service",
			Dependencies: map[string]dependencyHealth{},
		}

		check := func(name string, err error) {
			if err != nil {
				status.Status = "unhealthy"
				status.Dependencies[name] = dependencyHealth{Status: "unhealthy", Error: err.Error()}
				return
			}
			status.Dependencies[name] = dependencyHealth{Status: "healthy"}
		}

		check("database", database.Ping(ctx, gormDB))
		if redisClient != nil {
			check("redis", redisClient.Ping(ctx))
		} else {
			status.Dependencies["workflow_store"] = dependencyHealth{Status: "in-memory"}
		}

		code := http.StatusOK
		if status.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		utils.RespondWithJSON(w, code, status)
	}
}
