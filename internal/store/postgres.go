// Package store provides storage backends for lead records.
//
// This file implements the PostgreSQL-backed lead store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "embed"

	"github.com/brconnect/leadintake/internal/models"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists leads in a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// CreateLead inserts a new lead and returns its generated id.
func (s *PostgresStore) CreateLead(lead models.Lead) (string, error) {
	id := uuid.NewString()
	now := time.Now()
	enrichment, err := marshalEnrichment(lead.Enrichment)
	if err != nil {
		return "", err
	}
	status := lead.Status
	if status == "" {
		status = models.LeadStatusInProgress
	}
	_, err = s.db.Exec(`
		INSERT INTO leads (id, name, phone, email, tax_id, has_existing_plan,
			current_plan_name, current_plan_cost, main_difficulty, enrichment,
			status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		id, lead.Name, lead.Phone, lead.Email, nilIfEmpty(lead.TaxID),
		lead.HasExistingPlan, nilIfEmpty(lead.CurrentPlanName),
		nilIfEmpty(lead.CurrentPlanCost), nilIfEmpty(lead.MainDifficulty),
		enrichment, string(status), now, now)
	if err != nil {
		slog.Error("PostgresStore.CreateLead failed", "error", err, "phone", lead.Phone)
		return "", fmt.Errorf("failed to insert lead: %w", err)
	}
	slog.Debug("PostgresStore.CreateLead succeeded", "id", id)
	return id, nil
}

// UpdateLead applies the non-nil fields of upd to an existing lead.
func (s *PostgresStore) UpdateLead(id string, upd models.LeadUpdate) error {
	cols, args, err := updateColumns(upd)
	if err != nil {
		return err
	}
	if len(cols) == 0 {
		slog.Debug("PostgresStore.UpdateLead: nothing to update", "id", id)
		return nil
	}
	sets := make([]string, 0, len(cols)+1)
	for i, col := range cols {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, i+1))
	}
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(cols)+1))
	args = append(args, time.Now(), id)

	query := fmt.Sprintf("UPDATE leads SET %s WHERE id = $%d", strings.Join(sets, ", "), len(cols)+2)
	res, err := s.db.Exec(query, args...)
	if err != nil {
		slog.Error("PostgresStore.UpdateLead failed", "error", err, "id", id)
		return fmt.Errorf("failed to update lead %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("lead %s not found", id)
	}
	slog.Debug("PostgresStore.UpdateLead succeeded", "id", id, "columns", len(cols))
	return nil
}

// GetLead retrieves a lead by id, returning nil when absent.
func (s *PostgresStore) GetLead(id string) (*models.Lead, error) {
	row := s.db.QueryRow(`
		SELECT id, name, phone, email, tax_id, has_existing_plan,
			current_plan_name, current_plan_cost, main_difficulty, enrichment,
			status, created_at, updated_at
		FROM leads WHERE id = $1`, id)
	lead, err := scanLeadRow(row)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore.GetLead: not found", "id", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore.GetLead failed", "error", err, "id", id)
		return nil, err
	}
	return lead, nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
