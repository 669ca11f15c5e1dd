package database

import (
	"database/sql"
	"fmt"
	"time"
)

// UniverseRepo handles database operations for generated universes
type UniverseRepo struct {
	db *DB
}

var _ UniverseRepository = (*UniverseRepo)(nil)

func NewUniverseRepository(db *DB) *UniverseRepo {
	return &UniverseRepo{db: db}
}

func (r *UniverseRepo) StoreUniverse(u *Universe) error {
	_, err := r.db.Exec(`
		INSERT INTO universes (id, run_id, provider, content_hash, payload)
		VALUES (?, ?, ?, ?, ?)
	`, u.ID, u.RunID, u.Provider, u.ContentHash, u.Payload)
	if err != nil {
		return fmt.Errorf("failed to store universe: %w", err)
	}
	return nil
}

func (r *UniverseRepo) GetUniverse(runID, provider string) (*Universe, error) {
	row := r.db.QueryRow(`
		SELECT id, run_id, provider, content_hash, payload, created_at
		FROM universes WHERE run_id = ? AND provider = ?
		ORDER BY created_at DESC LIMIT 1
	`, runID, provider)

	u, err := scanUniverse(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get universe: %w", err)
	}
	return u, nil
}

func (r *UniverseRepo) GetUniverses(runID string) ([]Universe, error) {
	rows, err := r.db.Query(`
		SELECT id, run_id, provider, content_hash, payload, created_at
		FROM universes WHERE run_id = ? ORDER BY provider
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get universes: %w", err)
	}
	defer rows.Close()

	var universes []Universe
	for rows.Next() {
		u, err := scanUniverse(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan universe: %w", err)
		}
		universes = append(universes, *u)
	}
	return universes, rows.Err()
}

func (r *UniverseRepo) GetUniverseCount() (int, error) {
	var count int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM universes`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count universes: %w", err)
	}
	return count, nil
}

// FindCached returns the newest universe with a matching content hash and
// provider created at or after notBefore, or nil when none exists.
func (r *UniverseRepo) FindCached(contentHash, provider string, notBefore time.Time) (*Universe, error) {
	row := r.db.QueryRow(`
		SELECT id, run_id, provider, content_hash, payload, created_at
		FROM universes WHERE content_hash = ? AND provider = ? AND created_at >= ?
		ORDER BY created_at DESC LIMIT 1
	`, contentHash, provider, notBefore)

	u, err := scanUniverse(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find cached universe: %w", err)
	}
	return u, nil
}

func (r *UniverseRepo) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM universes WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old universes: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return deleted, nil
}

func scanUniverse(row rowScanner) (*Universe, error) {
	var u Universe
	err := row.Scan(&u.ID, &u.RunID, &u.Provider, &u.ContentHash, &u.Payload, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
