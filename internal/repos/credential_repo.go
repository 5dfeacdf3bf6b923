package repos

import (
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
)

// CredentialRepo persists the single MercadoLibre OAuth credential as an
// opaque JSON blob. The meli package owns the shape; this repo is just the
// durable backing the token store reads at startup and rewrites on refresh.
type CredentialRepo struct{ db *sqlx.DB }

func NewCredentialRepo(db *sqlx.DB) *CredentialRepo { return &CredentialRepo{db: db} }

func (r *CredentialRepo) Load() ([]byte, error) {
	var data string
	err := r.db.Get(&data, `SELECT data FROM ml_credentials WHERE id = 1`)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(data), nil
}

func (r *CredentialRepo) Save(data []byte) error {
	_, err := r.db.Exec(`
	  INSERT INTO ml_credentials(id, data, updated_at) VALUES(1, ?, ?)
	  ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		string(data), time.Now().UTC().Format(time.RFC3339))
	return err
}

func (r *CredentialRepo) Clear() error {
	_, err := r.db.Exec(`DELETE FROM ml_credentials WHERE id = 1`)
	return err
}
