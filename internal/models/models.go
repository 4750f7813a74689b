// Package models defines statuses, check results, and API request/response structures.
package models

import (
	"time"
)

// WorkerStatus is the 4-valued status a worker reports for a single probe.
type WorkerStatus string

const (
	// StatusFree means DNS missed and WHOIS matched a free-indicator.
	StatusFree WorkerStatus = "free"
	// StatusRegistered means DNS resolved or WHOIS matched a registered-indicator.
	StatusRegistered WorkerStatus = "registered"
	// StatusNonConclusive means neither phase produced a definitive signal in time.
	StatusNonConclusive WorkerStatus = "non_conclusive"
	// StatusInvalid means the candidate never reached a probe (validator reject).
	StatusInvalid WorkerStatus = "invalid"
)

// DomainStatus is the 3-valued status the API surfaces and persists.
type DomainStatus string

const (
	// DomainAvailable maps from a "free" worker result.
	DomainAvailable DomainStatus = "available"
	// DomainRegistered maps from a "registered" worker result.
	DomainRegistered DomainStatus = "registered"
	// DomainUnknown covers everything else (non-conclusive, invalid, timeouts).
	DomainUnknown DomainStatus = "unknown"
)

// MapWorkerStatus bridges the worker taxonomy to the API taxonomy.
// The mapping happens only at the API boundary; workers never see DomainStatus.
func MapWorkerStatus(s WorkerStatus) DomainStatus {
	switch s {
	case StatusFree:
		return DomainAvailable
	case StatusRegistered:
		return DomainRegistered
	default:
		return DomainUnknown
	}
}

// CheckResult is what a worker returns for one dispatched domain.
type CheckResult struct {
	Domain           string       `json:"domain"`
	Status           WorkerStatus `json:"status"`
	WorkerID         string       `json:"worker_id,omitempty"`
	ProcessingTimeMs int64        `json:"processing_time_ms,omitempty"`
	QueueWaitTimeMs  int64        `json:"queue_wait_time_ms,omitempty"`
}

// DomainSuggestion is one entry of a suggestion response.
type DomainSuggestion struct {
	Domain    string       `json:"domain"`
	TLD       string       `json:"tld"`
	Status    DomainStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// SuggestionRequest is the user-facing request for domain suggestions.
type SuggestionRequest struct {
	Description string `json:"description"`
	Count       int    `json:"count"`
	PromptType  string `json:"prompt_type,omitempty"`
	UserID      string `json:"user_id,omitempty"`
}

// Validate enforces basic request bounds before any work is done.
func (r *SuggestionRequest) Validate() error {
	if r.Description == "" {
		return NewAPIError(CodeInvalidInput, "description is required")
	}
	if r.Count < 0 || r.Count > 100 {
		return NewAPIError(CodeInvalidInput, "count must be between 0 and 100")
	}
	return nil
}

// SuggestionResponse is the buffered (batch) response.
type SuggestionResponse struct {
	Suggestions []DomainSuggestion `json:"suggestions"`
	Total       int                `json:"total"`
	Available   int                `json:"available_count"`
}

// SuggestionsEvent is the payload of a streaming "suggestions" event.
type SuggestionsEvent struct {
	New            []DomainSuggestion `json:"new"`
	Updates        []DomainSuggestion `json:"updates"`
	AvailableCount int                `json:"available_count"`
	Total          int                `json:"total"`
}

// DomainStatusResponse is returned by the single-domain status endpoint.
type DomainStatusResponse struct {
	Domain string       `json:"domain"`
	Status DomainStatus `json:"status"`
}

// HealthResponse indicates API health status.
type HealthResponse struct {
	Status  string `json:"status"`
	Warning string `json:"warning,omitempty"`
}
