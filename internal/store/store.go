// Package store provides storage backends for lead records collected by the
// intake conversation.
//
// It includes an in-memory store for tests and development plus SQLite and
// PostgreSQL backends for persistent storage.
package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/brconnect/leadintake/internal/models"
	"github.com/google/uuid"
)

// LeadStore is the record store consumed by the persistence orchestrator.
// UpdateLead has partial-field semantics: nil fields in the update are left
// untouched.
type LeadStore interface {
	CreateLead(lead models.Lead) (string, error)
	UpdateLead(id string, upd models.LeadUpdate) error
	GetLead(id string) (*models.Lead, error)
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// InMemoryStore is a simple in-memory lead store.
type InMemoryStore struct {
	mu    sync.RWMutex
	leads map[string]*models.Lead
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{leads: make(map[string]*models.Lead)}
}

// CreateLead stores a new lead and returns its generated id.
func (s *InMemoryStore) CreateLead(lead models.Lead) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lead.ID = uuid.NewString()
	now := time.Now()
	lead.CreatedAt = now
	lead.UpdatedAt = now
	stored := lead
	s.leads[lead.ID] = &stored
	return lead.ID, nil
}

// UpdateLead applies the non-nil fields of upd to an existing lead.
func (s *InMemoryStore) UpdateLead(id string, upd models.LeadUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lead, ok := s.leads[id]
	if !ok {
		return fmt.Errorf("lead %s not found", id)
	}
	applyUpdate(lead, upd)
	lead.UpdatedAt = time.Now()
	return nil
}

// GetLead returns a copy of a stored lead, or nil when absent.
func (s *InMemoryStore) GetLead(id string) (*models.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lead, ok := s.leads[id]
	if !ok {
		return nil, nil
	}
	out := *lead
	return &out, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }

func applyUpdate(lead *models.Lead, upd models.LeadUpdate) {
	if upd.Name != nil {
		lead.Name = *upd.Name
	}
	if upd.Phone != nil {
		lead.Phone = *upd.Phone
	}
	if upd.Email != nil {
		lead.Email = *upd.Email
	}
	if upd.TaxID != nil {
		lead.TaxID = *upd.TaxID
	}
	if upd.HasExistingPlan != nil {
		v := *upd.HasExistingPlan
		lead.HasExistingPlan = &v
	}
	if upd.CurrentPlanName != nil {
		lead.CurrentPlanName = *upd.CurrentPlanName
	}
	if upd.CurrentPlanCost != nil {
		lead.CurrentPlanCost = *upd.CurrentPlanCost
	}
	if upd.MainDifficulty != nil {
		lead.MainDifficulty = *upd.MainDifficulty
	}
	if upd.Enrichment != nil {
		lead.Enrichment = upd.Enrichment
	}
	if upd.Status != nil {
		lead.Status = *upd.Status
	}
}
