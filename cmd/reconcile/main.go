// Command reconcile restores authorizations that were committed upstream but
// never stored locally, using the successful AUTHORIZATION trace events.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/cabepi/lab-pbm-senasa/config"
	"github.com/cabepi/lab-pbm-senasa/database"
	"github.com/cabepi/lab-pbm-senasa/logger"
	v1database "github.com/cabepi/lab-pbm-senasa/v1/database"
	"github.com/cabepi/lab-pbm-senasa/v1/services"
	"github.com/joho/godotenv"
)

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()

	since := flag.Duration("since", 24*time.Hour, "how far back to scan committed trace events")
	dryRun := flag.Bool("dry-run", false, "report missing authorizations without writing them")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall run timeout")
	flag.Parse()

	logger.Init(config.GetEnvOrDefault("LOG_LEVEL", "info"))

	gormDB, err := database.ConnectGormDB(database.NewDatabaseConfig())
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		return 1
	}
	defer database.Close(gormDB)

	reconciler := services.NewReconciler(
		v1database.NewAuthorizationRepository(gormDB),
		v1database.NewTraceRepository(gormDB),
	)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	from := time.Now().UTC().Add(-*since)
	slog.Info("Starting reconciliation", "since", from, "dry_run", *dryRun)

	report, err := reconciler.Run(ctx, from, *dryRun)
	if err != nil {
		slog.Error("Reconciliation failed", "error", err)
		return 1
	}

	slog.Info("Reconciliation finished",
		"scanned", report.Scanned,
		"missing", report.Missing,
		"recovered", report.Recovered,
		"failed", report.Failed)

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(report)

	if report.Failed > 0 {
		return 2
	}
	return 0
}
