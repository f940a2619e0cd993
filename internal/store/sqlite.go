// Package store provides storage backends for lead records.
//
// This file implements the SQLite-backed lead store, the default backend.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "embed"

	"github.com/brconnect/leadintake/internal/models"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists leads in a local SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given options. The DSN
// is a file path; its directory is created when missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("SQLiteStore.NewSQLiteStore: creating store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// CreateLead inserts a new lead and returns its generated id.
func (s *SQLiteStore) CreateLead(lead models.Lead) (string, error) {
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, lead.Name, lead.Phone, lead.Email, nilIfEmpty(lead.TaxID),
		lead.HasExistingPlan, nilIfEmpty(lead.CurrentPlanName),
		nilIfEmpty(lead.CurrentPlanCost), nilIfEmpty(lead.MainDifficulty),
		enrichment, string(status), now, now)
	if err != nil {
		slog.Error("SQLiteStore.CreateLead failed", "error", err, "phone", lead.Phone)
		return "", fmt.Errorf("failed to insert lead: %w", err)
	}
	slog.Debug("SQLiteStore.CreateLead succeeded", "id", id)
	return id, nil
}

// UpdateLead applies the non-nil fields of upd to an existing lead.
func (s *SQLiteStore) UpdateLead(id string, upd models.LeadUpdate) error {
	cols, args, err := updateColumns(upd)
	if err != nil {
		return err
	}
	if len(cols) == 0 {
		slog.Debug("SQLiteStore.UpdateLead: nothing to update", "id", id)
		return nil
	}
	sets := make([]string, 0, len(cols)+1)
	for _, col := range cols {
		sets = append(sets, col+" = ?")
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now(), id)

	res, err := s.db.Exec("UPDATE leads SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		slog.Error("SQLiteStore.UpdateLead failed", "error", err, "id", id)
		return fmt.Errorf("failed to update lead %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("lead %s not found", id)
	}
	slog.Debug("SQLiteStore.UpdateLead succeeded", "id", id, "columns", len(cols))
	return nil
}

// GetLead retrieves a lead by id, returning nil when absent.
func (s *SQLiteStore) GetLead(id string) (*models.Lead, error) {
	row := s.db.QueryRow(`
		SELECT id, name, phone, email, tax_id, has_existing_plan,
			current_plan_name, current_plan_cost, main_difficulty, enrichment,
			status, created_at, updated_at
		FROM leads WHERE id = ?`, id)
	lead, err := scanLeadRow(row)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore.GetLead: not found", "id", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore.GetLead failed", "error", err, "id", id)
		return nil, err
	}
	return lead, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}
