package models

// ErrorResponse is the body of every non-2xx answer
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// AuthorizationListResponse wraps the authorization listing
type AuthorizationListResponse struct {
	Authorizations []AuthorizationRecord `json:"authorizations"`
	Count          int                   `json:"count"`
}

// TraceListResponse wraps trace listings and transaction timelines
type TraceListResponse struct {
	Traces []TraceEvent `json:"traces"`
	Count  int          `json:"count"`
}

// ReconciliationReport summarizes a reconciliation run
type ReconciliationReport struct {
	Scanned   int      `json:"scanned"`
	Missing   int      `json:"missing"`
	Recovered int      `json:"recovered"`
	Failed    int      `json:"failed"`
	Codes     []string `json:"codes,omitempty"`
}
