// Package models defines the shared types for the lead intake conversation:
// steps, collected data, transcript messages and API response envelopes.
package models

import "time"

// Step identifies one node in the guided question sequence.
type Step string

// Step constants, in the order the conversation visits them. The sequence is
// linear except for the branch at StepHasExistingPlan.
const (
	StepName            Step = "name"
	StepPhone           Step = "phone"
	StepTaxID           Step = "taxId"
	StepHasExistingPlan Step = "hasExistingPlan"
	StepCurrentPlanName Step = "currentPlanName"
	StepCurrentPlanCost Step = "currentPlanCost"
	StepMainDifficulty  Step = "mainDifficulty"
	StepDone            Step = "done"
)

// MessageOrigin identifies who produced a transcript message.
type MessageOrigin string

const (
	// MessageOriginUser marks messages committed by the participant.
	MessageOriginUser MessageOrigin = "user"
	// MessageOriginSystem marks messages produced by the conversation engine.
	MessageOriginSystem MessageOrigin = "system"
)

// Message is one immutable entry in the conversation transcript.
type Message struct {
	Origin  MessageOrigin `json:"origin"`
	Text    string        `json:"text"`
	Choices []string      `json:"choices,omitempty"` // suggested quick-reply options
	Time    time.Time     `json:"time"`
}

// CollectedData is the progressively filled answer set for one session.
// Fields are only ever set, never cleared; fields belonging to a skipped
// branch stay at their zero value.
type CollectedData struct {
	Name            string         `json:"name,omitempty"`
	Phone           string         `json:"phone,omitempty"` // normalized digits
	TaxID           string         `json:"taxId,omitempty"` // normalized digits (CNPJ)
	HasExistingPlan *bool          `json:"hasExistingPlan,omitempty"`
	CurrentPlanName string         `json:"currentPlanName,omitempty"`
	CurrentPlanCost string         `json:"currentPlanCost,omitempty"` // decimal string, e.g. "1234.56"
	MainDifficulty  string         `json:"mainDifficulty,omitempty"`
	Enrichment      map[string]any `json:"enrichment,omitempty"` // opaque registry lookup payload
}

// Clone returns a deep-enough copy of the collected data: the bool pointer is
// re-allocated and the enrichment map is copied one level deep, which is all
// the engine ever mutates.
func (d CollectedData) Clone() CollectedData {
	out := d
	if d.HasExistingPlan != nil {
		v := *d.HasExistingPlan
		out.HasExistingPlan = &v
	}
	if d.Enrichment != nil {
		out.Enrichment = make(map[string]any, len(d.Enrichment))
		for k, v := range d.Enrichment {
			out.Enrichment[k] = v
		}
	}
	return out
}

// VerificationResult is the outcome of an external tax id lookup.
// Enrichment carries the provider-defined response body; the engine only
// reads a few well-known display fields from it.
type VerificationResult struct {
	Valid      bool           `json:"valid"`
	Enrichment map[string]any `json:"enrichment,omitempty"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
