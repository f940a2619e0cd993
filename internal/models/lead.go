// Package models defines the persisted lead record and its update shapes.
package models

import "time"

// LeadStatus tags the persistence state of a lead record.
type LeadStatus string

const (
	// LeadStatusInProgress marks a lead whose conversation is still running.
	LeadStatusInProgress LeadStatus = "in_progress"
	// LeadStatusComplete marks a lead whose conversation reached the end.
	LeadStatusComplete LeadStatus = "complete"
)

// Lead is the externally persisted record built from a conversation.
type Lead struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Phone           string         `json:"phone"` // normalized digits
	Email           string         `json:"email"` // contact key, derived placeholder when unknown
	TaxID           string         `json:"tax_id,omitempty"`
	HasExistingPlan *bool          `json:"has_existing_plan,omitempty"`
	CurrentPlanName string         `json:"current_plan_name,omitempty"`
	CurrentPlanCost string         `json:"current_plan_cost,omitempty"`
	MainDifficulty  string         `json:"main_difficulty,omitempty"`
	Enrichment      map[string]any `json:"enrichment,omitempty"`
	Status          LeadStatus     `json:"status"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// LeadUpdate carries a partial update for a lead record. Nil fields are left
// untouched by the store.
type LeadUpdate struct {
	Name            *string
	Phone           *string
	Email           *string
	TaxID           *string
	HasExistingPlan *bool
	CurrentPlanName *string
	CurrentPlanCost *string
	MainDifficulty  *string
	Enrichment      map[string]any
	Status          *LeadStatus
}
