package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cabepi/lab-pbm-senasa/monitoring"
	"github.com/cabepi/lab-pbm-senasa/v1/database"
	"github.com/cabepi/lab-pbm-senasa/v1/models"
)

// Reconciler rebuilds authorizations that were committed upstream but never
// stored locally. The successful AUTHORIZATION trace events are the record
// of what the upstream committed.
type Reconciler struct {
	authorizations database.AuthorizationRepository
	traces         database.TraceRepository
}

// NewReconciler creates a reconciler over both repositories
func NewReconciler(authorizations database.AuthorizationRepository, traces database.TraceRepository) *Reconciler {
	return &Reconciler{authorizations: authorizations, traces: traces}
}

// Run scans committed traces created at or after since. With dryRun it only
// reports the missing codes.
func (r *Reconciler) Run(ctx context.Context, since time.Time, dryRun bool) (*models.ReconciliationReport, error) {
	events, err := r.traces.ListCommittedSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list committed traces: %w", err)
	}

	report := &models.ReconciliationReport{Scanned: len(events)}
	if len(events) == 0 {
		return report, nil
	}

	byCode := make(map[string]models.TraceEvent, len(events))
	codes := make([]string, 0, len(events))
	for _, event := range events {
		code := models.StringValue(event.AuthorizationCode)
		if _, seen := byCode[code]; seen {
			continue
		}
		byCode[code] = event
		codes = append(codes, code)
	}

	existing, err := r.authorizations.ExistingCodes(ctx, codes)
	if err != nil {
		return nil, fmt.Errorf("failed to check stored authorizations: %w", err)
	}

	for _, code := range codes {
		if existing[code] {
			continue
		}
		report.Missing++
		report.Codes = append(report.Codes, code)
		if dryRun {
			continue
		}

		event := byCode[code]
		bundle, err := bundleFromTrace(event)
		if err != nil {
			report.Failed++
			slog.Error("Cannot rebuild authorization from trace",
				"authorization_code", code,
				"trace_id", event.ID,
				"error", err)
			continue
		}

		if _, err := r.authorizations.Save(ctx, bundle); err != nil {
			report.Failed++
			monitoring.RecordPersistenceFailure(ctx, "reconcile_authorization")
			slog.Error("Failed to save reconciled authorization",
				"authorization_code", code,
				"transaction_id", event.TransactionID,
				"error", err)
			continue
		}
		report.Recovered++
		slog.Info("Recovered authorization from trace",
			"authorization_code", code,
			"transaction_id", event.TransactionID)
	}

	return report, nil
}

// bundleFromTrace rebuilds the authorization row from a committed trace event.
// Caller and prescription metadata are not traced and cannot be recovered.
func bundleFromTrace(event models.TraceEvent) (*models.AuthorizationBundle, error) {
	var response models.AuthorizationResponse
	if err := json.Unmarshal(event.PayloadOutput, &response); err != nil {
		return nil, fmt.Errorf("payload_output is not an authorization response: %w", err)
	}
	if !response.Succeeded() {
		return nil, fmt.Errorf("payload_output carries ErrorNumber %d", response.ErrorNumber)
	}
	if response.AuthorizationCode() == "" {
		response.NumeroAutorizacion = models.FlexString(models.StringValue(event.AuthorizationCode))
	}

	pharmacy := models.ResolvedPharmacy{
		CodigoFarmacia: event.PharmacyCode,
		CodigoSucursal: event.BranchCode,
	}
	var request models.AuthorizationRequest
	if err := json.Unmarshal(event.PayloadInput, &request); err == nil && request.CodigoFarmacia != "" {
		pharmacy.CodigoFarmacia = request.CodigoFarmacia
		pharmacy.CodigoSucursal = request.CodigoSucursal
	}

	bundle := buildBundle(authorizationSource{
		TransactionID: event.TransactionID,
		Pharmacy:      pharmacy,
		Affiliate: models.AffiliateSnapshot{
			Document:  event.AffiliateDocument,
			NSS:       event.AffiliateNSS,
			FirstName: event.AffiliateFirstName,
			LastName:  event.AffiliateLastName,
			Regimen:   event.AffiliateRegimen,
			Status:    event.AffiliateStatus,
		},
		Response:        &response,
		AuthorizerEmail: event.UserEmail,
		CreatedAt:       event.CreatedAt,
	}, nil)

	if bundle.Record.AuthorizationCode != models.StringValue(event.AuthorizationCode) {
		return nil, fmt.Errorf("payload_output code %q does not match trace code %q",
			bundle.Record.AuthorizationCode, models.StringValue(event.AuthorizationCode))
	}
	return bundle, nil
}
