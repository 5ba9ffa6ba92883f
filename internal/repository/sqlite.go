package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"

	"github.com/gridline-labs/gridboard/internal/entity"
)

// SQLiteRepository stores entities as JSON documents in a single widgets
// table, with secondary indexes on type and creation time for filtered
// listing. Use ":memory:" as the path for an ephemeral store.
type SQLiteRepository struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

var _ Repository = (*SQLiteRepository)(nil)

// SQLiteConfig configures a SQLiteRepository.
type SQLiteConfig struct {
	Path   string
	Logger *slog.Logger
}

// NewSQLiteRepository creates an unopened repository. Call Open before use.
func NewSQLiteRepository(cfg SQLiteConfig) *SQLiteRepository {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLiteRepository{path: cfg.Path, logger: logger}
}

// Open connects to the database and runs pending migrations.
func (r *SQLiteRepository) Open() error {
	dsn := r.path
	if r.path != ":memory:" {
		dsn = fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", r.path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	r.db = db
	if err := r.Migrate(); err != nil {
		db.Close()
		r.db = nil
		return err
	}
	return nil
}

// Close closes the database connection.
func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// WithDB wraps an already-open connection. Migrations are assumed to have
// run; used by tests with sqlmock.
func WithDB(db *sql.DB, logger *slog.Logger) *SQLiteRepository {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLiteRepository{db: db, logger: logger}
}

// Save upserts the entity document.
func (r *SQLiteRepository) Save(ctx context.Context, e *entity.Entity) error {
	if r.db == nil {
		return errors.New("database not opened")
	}
	if e == nil || e.ID == "" {
		return errors.New("cannot save entity without an id")
	}

	doc, err := e.Serialize()
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO widgets (id, type, name, created_at, updated_at, document)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   type = excluded.type,
		   name = excluded.name,
		   updated_at = excluded.updated_at,
		   document = excluded.document`,
		e.ID, e.Type, e.Name, e.Metadata.Created, e.Metadata.Updated, string(doc),
	)
	if err != nil {
		return fmt.Errorf("failed to save entity %s: %w", e.ID, err)
	}
	return nil
}

// Load fetches one entity, returning (nil, nil) when absent.
func (r *SQLiteRepository) Load(ctx context.Context, id string) (*entity.Entity, error) {
	if r.db == nil {
		return nil, errors.New("database not opened")
	}

	var doc string
	err := r.db.QueryRowContext(ctx,
		`SELECT document FROM widgets WHERE id = ?`, id,
	).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load entity %s: %w", id, err)
	}

	e, err := entity.Deserialize([]byte(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to decode entity %s: %w", id, err)
	}
	return e, nil
}

// LoadAll returns every stored entity in creation order. Rows whose document
// fails to decode are deleted and skipped.
func (r *SQLiteRepository) LoadAll(ctx context.Context) ([]*entity.Entity, error) {
	if r.db == nil {
		return nil, errors.New("database not opened")
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, document FROM widgets ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer rows.Close()

	var (
		entities []*entity.Entity
		corrupt  []string
	)
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("failed to scan entity row: %w", err)
		}
		e, err := entity.Deserialize([]byte(doc))
		if err != nil {
			r.logger.Warn("corrupt entity document, removing", "id", id, "error", err)
			corrupt = append(corrupt, id)
			continue
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entities: %w", err)
	}

	for _, id := range corrupt {
		if _, err := r.db.ExecContext(ctx, `DELETE FROM widgets WHERE id = ?`, id); err != nil {
			r.logger.Warn("failed to remove corrupt entity", "id", id, "error", err)
		}
	}
	return entities, nil
}

// LoadByType returns entities of one widget type in creation order.
func (r *SQLiteRepository) LoadByType(ctx context.Context, widgetType string) ([]*entity.Entity, error) {
	if r.db == nil {
		return nil, errors.New("database not opened")
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT document FROM widgets WHERE type = ? ORDER BY created_at, id`, widgetType)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities by type: %w", err)
	}
	defer rows.Close()

	var entities []*entity.Entity
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan entity row: %w", err)
		}
		e, err := entity.Deserialize([]byte(doc))
		if err != nil {
			continue
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entities: %w", err)
	}
	return entities, nil
}

// Delete removes the entity row. Deleting an absent id is a no-op.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if r.db == nil {
		return errors.New("database not opened")
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM widgets WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete entity %s: %w", id, err)
	}
	return nil
}

// Clear removes every entity row.
func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if r.db == nil {
		return errors.New("database not opened")
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM widgets`); err != nil {
		return fmt.Errorf("failed to clear entities: %w", err)
	}
	return nil
}

// Count returns the number of stored entities.
func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	if r.db == nil {
		return 0, errors.New("database not opened")
	}
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM widgets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count entities: %w", err)
	}
	return n, nil
}
