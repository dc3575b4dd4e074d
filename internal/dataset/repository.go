package dataset

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/finlens/finlens/internal/domain"
)

// Repository persists uploaded datasets so the dashboard survives restarts.
// Datasets are stored as JSON blobs keyed by id; the newest upload is the
// active one.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a dataset repository and ensures its schema.
func NewRepository(db *sql.DB) (*Repository, error) {
	r := &Repository{db: db}
	if err := r.initSchema(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Repository) initSchema() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS datasets (
			id          TEXT PRIMARY KEY,
			company     TEXT NOT NULL DEFAULT '',
			data        TEXT NOT NULL,
			uploaded_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create datasets table: %w", err)
	}
	return nil
}

// Save stores a dataset. Uploads replace wholesale, so an existing row with
// the same id is overwritten.
func (r *Repository) Save(ds *domain.Dataset) error {
	data, err := Serialize(ds)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(
		"INSERT OR REPLACE INTO datasets (id, company, data, uploaded_at) VALUES (?, ?, ?, ?)",
		ds.ID, ds.Company, string(data), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save dataset %s: %w", ds.ID, err)
	}
	return nil
}

// Latest returns the most recently uploaded dataset, or nil if none exists.
func (r *Repository) Latest() (*domain.Dataset, error) {
	var data string
	err := r.db.QueryRow(
		"SELECT data FROM datasets ORDER BY uploaded_at DESC, id DESC LIMIT 1",
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest dataset: %w", err)
	}

	ds, err := Load([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("stored dataset is invalid: %w", err)
	}
	return ds, nil
}

// Get returns a dataset by id, or nil if not found.
func (r *Repository) Get(id string) (*domain.Dataset, error) {
	var data string
	err := r.db.QueryRow("SELECT data FROM datasets WHERE id = ?", id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset %s: %w", id, err)
	}

	ds, err := Load([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("stored dataset %s is invalid: %w", id, err)
	}
	return ds, nil
}

// StoredDataset is the listing metadata for one persisted dataset.
type StoredDataset struct {
	ID         string    `json:"id"`
	Company    string    `json:"company"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// List returns metadata for all stored datasets, newest first.
func (r *Repository) List() ([]StoredDataset, error) {
	rows, err := r.db.Query(
		"SELECT id, company, uploaded_at FROM datasets ORDER BY uploaded_at DESC, id DESC",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	defer rows.Close()

	var out []StoredDataset
	for rows.Next() {
		var item StoredDataset
		var ts int64
		if err := rows.Scan(&item.ID, &item.Company, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan dataset row: %w", err)
		}
		item.UploadedAt = time.Unix(ts, 0).UTC()
		out = append(out, item)
	}
	return out, rows.Err()
}

// Delete removes a dataset by id.
func (r *Repository) Delete(id string) error {
	if _, err := r.db.Exec("DELETE FROM datasets WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete dataset %s: %w", id, err)
	}
	return nil
}
