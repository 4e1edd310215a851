package store

import (
	"database/sql"
	"time"

	"github.com/mtzanidakis/erevna/internal/errs"
)

// PutSecret stores an encrypted value and its nonce under a name, replacing
// any previous value. Encryption happens in the vault package; the store only
// sees ciphertext.
func (s *Store) PutSecret(name string, value, nonce []byte) error {
	if name == "" {
		return errs.Validationf("secret name required")
	}
	_, err := s.db.Exec(`
		INSERT INTO secrets (name, value, nonce, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, nonce = excluded.nonce, updated_at = excluded.updated_at`,
		name, value, nonce, time.Now().UTC())
	if err != nil {
		return errs.Storage("put secret", err)
	}
	return nil
}

func (s *Store) GetSecret(name string) (value, nonce []byte, err error) {
	err = s.db.QueryRow(`SELECT value, nonce FROM secrets WHERE name = ?`, name).Scan(&value, &nonce)
	if err == sql.ErrNoRows {
		return nil, nil, errs.NotFound("secret", name)
	}
	if err != nil {
		return nil, nil, errs.Storage("get secret", err)
	}
	return value, nonce, nil
}

func (s *Store) ListSecretNames() ([]string, error) {
	rows, err := s.db.Query(`SELECT name FROM secrets ORDER BY name`)
	if err != nil {
		return nil, errs.Storage("list secrets", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errs.Storage("scan secret", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *Store) DeleteSecret(name string) error {
	result, err := s.db.Exec(`DELETE FROM secrets WHERE name = ?`, name)
	if err != nil {
		return errs.Storage("delete secret", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return errs.NotFound("secret", name)
	}
	return nil
}
