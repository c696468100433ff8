// Package pg stores exemplars in PostgreSQL through database/sql and lib/pq.
package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/sweetpotato0/lexdraft/similarity"
)

// Config holds PostgreSQL connection configuration
type Config struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	// DSN, when set, is used instead of the discrete fields.
	DSN string `yaml:"dsn"`
}

// DefaultConfig returns default PostgreSQL configuration
func DefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		DBName:   "lexdraft",
		SSLMode:  "disable",
	}
}

func (c *Config) dsn() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// Store implements similarity.Store on a training_exemplars table.
type Store struct {
	db *sql.DB
}

// New connects, pings and creates the table when missing.
func New(ctx context.Context, config *Config) (*Store, error) {
	if config == nil {
		config = DefaultConfig()
	}
	db, err := sql.Open("postgres", config.dsn())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}
	s := &Store{db: db}
	if err := s.createTable(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return s, nil
}

// NewWithDB wraps an existing handle; the caller owns the schema.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) createTable(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS training_exemplars (
		id VARCHAR(255) PRIMARY KEY,
		agent_id VARCHAR(255) NOT NULL,
		file_name TEXT NOT NULL DEFAULT '',
		full_text TEXT NOT NULL,
		facts JSONB NOT NULL DEFAULT '{}',
		processed BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_training_exemplars_agent_created
		ON training_exemplars(agent_id, created_at DESC);
	`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// Save implements similarity.Store.
func (s *Store) Save(ctx context.Context, ex similarity.Exemplar) error {
	if ex.AgentID == "" {
		return fmt.Errorf("exemplar agent id cannot be empty")
	}
	if ex.ID == "" {
		ex.ID = uuid.NewString()
	}
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now()
	}
	facts, err := json.Marshal(ex.Facts)
	if err != nil {
		return fmt.Errorf("failed to marshal facts: %w", err)
	}

	query := `
	INSERT INTO training_exemplars (id, agent_id, file_name, full_text, facts, processed, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (id) DO UPDATE SET
		file_name = EXCLUDED.file_name,
		full_text = EXCLUDED.full_text,
		facts = EXCLUDED.facts,
		processed = EXCLUDED.processed
	`
	if _, err := s.db.ExecContext(ctx, query,
		ex.ID, ex.AgentID, ex.FileName, ex.Text, string(facts), ex.Processed, ex.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to save exemplar: %w", err)
	}
	return nil
}

// List implements similarity.Store.
func (s *Store) List(ctx context.Context, agentID string, limit int) ([]similarity.Exemplar, error) {
	query := `SELECT id, agent_id, file_name, full_text, facts, processed, created_at
		FROM training_exemplars
		WHERE agent_id = $1 AND processed
		ORDER BY created_at DESC, id`
	args := []any{agentID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list exemplars: %w", err)
	}
	defer rows.Close()

	var out []similarity.Exemplar
	for rows.Next() {
		var (
			ex    similarity.Exemplar
			facts []byte
		)
		if err := rows.Scan(&ex.ID, &ex.AgentID, &ex.FileName, &ex.Text, &facts, &ex.Processed, &ex.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan exemplar: %w", err)
		}
		if len(facts) > 0 {
			if err := json.Unmarshal(facts, &ex.Facts); err != nil {
				return nil, fmt.Errorf("failed to unmarshal facts of %s: %w", ex.ID, err)
			}
		}
		out = append(out, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating exemplars: %w", err)
	}
	return out, nil
}

// Clear removes every exemplar of agentID.
func (s *Store) Clear(ctx context.Context, agentID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM training_exemplars WHERE agent_id = $1", agentID); err != nil {
		return fmt.Errorf("failed to clear exemplars: %w", err)
	}
	return nil
}

// Close closes the PostgreSQL connection
func (s *Store) Close() error {
	return s.db.Close()
}

var _ similarity.Store = (*Store)(nil)
