package accessory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

// ErrDuplicate is returned when registering an identity that already exists.
var ErrDuplicate = errors.New("accessory already registered")

// Store is the SQLite-backed accessory cache. Records are insert-only.
type Store struct {
	db *sql.DB
}

// NewStore creates a store on an opened database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ListCached returns every cached record, oldest first.
func (s *Store) ListCached(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT uuid, display_name, context, created_at FROM accessories ORDER BY created_at, uuid`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accessories: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Get returns the record with the given identity. The bool is false when
// nothing is cached under it.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Record, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT uuid, display_name, context, created_at FROM accessories WHERE uuid = ?`, id.String())
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

// Register persists a new record. Registering an existing identity fails
// with ErrDuplicate and leaves the stored record untouched.
func (s *Store) Register(ctx context.Context, rec Record) error {
	blob, err := json.Marshal(rec.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal accessory context: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO accessories (uuid, display_name, context, created_at) VALUES (?, ?, ?, ?)`,
		rec.UUID.String(), rec.DisplayName, string(blob), rec.CreatedAt.UTC().UnixMilli(),
	)
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
		return fmt.Errorf("%s: %w", rec.UUID, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to register accessory %s: %w", rec.UUID, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		rec       Record
		id, blob  string
		createdAt int64
	)
	if err := row.Scan(&id, &rec.DisplayName, &blob, &createdAt); err != nil {
		return Record{}, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return Record{}, fmt.Errorf("invalid accessory uuid %q: %w", id, err)
	}
	rec.UUID = parsed
	rec.CreatedAt = time.UnixMilli(createdAt).UTC()

	if err := json.Unmarshal([]byte(blob), &rec.Context); err != nil {
		return Record{}, fmt.Errorf("invalid context for accessory %s: %w", id, err)
	}
	return rec, nil
}
