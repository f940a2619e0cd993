package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/brconnect/leadintake/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// marshalEnrichment encodes the opaque lookup payload for a TEXT column.
func marshalEnrichment(enrichment map[string]any) (interface{}, error) {
	if len(enrichment) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(enrichment)
	if err != nil {
		return nil, fmt.Errorf("marshal enrichment failed: %w", err)
	}
	return string(b), nil
}

// updateColumns flattens the non-nil fields of a LeadUpdate into column
// names and arguments, preserving partial-update semantics.
func updateColumns(upd models.LeadUpdate) ([]string, []interface{}, error) {
	var cols []string
	var args []interface{}
	add := func(col string, val interface{}) {
		cols = append(cols, col)
		args = append(args, val)
	}
	if upd.Name != nil {
		add("name", *upd.Name)
	}
	if upd.Phone != nil {
		add("phone", *upd.Phone)
	}
	if upd.Email != nil {
		add("email", *upd.Email)
	}
	if upd.TaxID != nil {
		add("tax_id", *upd.TaxID)
	}
	if upd.HasExistingPlan != nil {
		add("has_existing_plan", *upd.HasExistingPlan)
	}
	if upd.CurrentPlanName != nil {
		add("current_plan_name", *upd.CurrentPlanName)
	}
	if upd.CurrentPlanCost != nil {
		add("current_plan_cost", *upd.CurrentPlanCost)
	}
	if upd.MainDifficulty != nil {
		add("main_difficulty", *upd.MainDifficulty)
	}
	if upd.Enrichment != nil {
		enc, err := marshalEnrichment(upd.Enrichment)
		if err != nil {
			return nil, nil, err
		}
		add("enrichment", enc)
	}
	if upd.Status != nil {
		add("status", string(*upd.Status))
	}
	return cols, args, nil
}

// scanLeadRow scans a lead from a single sql.Row.
func scanLeadRow(row *sql.Row) (*models.Lead, error) {
	var lead models.Lead
	var taxID, planName, planCost, difficulty, enrichment sql.NullString
	var hasPlan sql.NullBool
	var status string
	err := row.Scan(
		&lead.ID, &lead.Name, &lead.Phone, &lead.Email, &taxID, &hasPlan,
		&planName, &planCost, &difficulty, &enrichment, &status,
		&lead.CreatedAt, &lead.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	lead.TaxID = taxID.String
	lead.CurrentPlanName = planName.String
	lead.CurrentPlanCost = planCost.String
	lead.MainDifficulty = difficulty.String
	lead.Status = models.LeadStatus(status)
	if hasPlan.Valid {
		v := hasPlan.Bool
		lead.HasExistingPlan = &v
	}
	if enrichment.Valid && enrichment.String != "" {
		if err := json.Unmarshal([]byte(enrichment.String), &lead.Enrichment); err != nil {
			// Keep the record usable even if the payload got corrupted.
			lead.Enrichment = nil
		}
	}
	return &lead, nil
}
