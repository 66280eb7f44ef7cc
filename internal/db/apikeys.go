package db

import (
	"database/sql"
	"errors"
	"time"

	"github.com/teester/teester/internal/models"
)

const apiKeyColumns = "id, key_prefix, key_hash, label, created_at, revoked_at, last_used_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAPIKey(row rowScanner) (*models.APIKey, error) {
	var k models.APIKey
	if err := row.Scan(&k.ID, &k.KeyPrefix, &k.KeyHash, &k.Label, &k.CreatedAt, &k.RevokedAt, &k.LastUsedAt); err != nil {
		return nil, err
	}
	return &k, nil
}

// CreateAPIKey stores a key hash under its public prefix and returns the row ID.
func CreateAPIKey(d *sql.DB, prefix string, hash []byte, label *string) (int64, error) {
	res, err := d.Exec(
		"INSERT INTO api_keys (key_prefix, key_hash, label, created_at) VALUES (?, ?, ?, ?)",
		prefix, hash, label, time.Now().Unix(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetAPIKeyByPrefix returns nil, nil when no key has the prefix.
func GetAPIKeyByPrefix(d *sql.DB, prefix string) (*models.APIKey, error) {
	k, err := scanAPIKey(d.QueryRow("SELECT "+apiKeyColumns+" FROM api_keys WHERE key_prefix = ?", prefix))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return k, err
}

// ListAPIKeys returns every key, revoked ones included, oldest first.
func ListAPIKeys(d *sql.DB) ([]models.APIKey, error) {
	rows, err := d.Query("SELECT " + apiKeyColumns + " FROM api_keys ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var keys []models.APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, *k)
	}
	return keys, rows.Err()
}

// CountAPIKeys counts keys that have not been revoked.
func CountAPIKeys(d *sql.DB) (int, error) {
	var n int
	err := d.QueryRow("SELECT COUNT(*) FROM api_keys WHERE revoked_at IS NULL").Scan(&n)
	return n, err
}

// TouchAPIKey records that the key was just used to authenticate.
func TouchAPIKey(d *sql.DB, id int64) error {
	_, err := d.Exec("UPDATE api_keys SET last_used_at = ? WHERE id = ?", time.Now().Unix(), id)
	return err
}

// RevokeAPIKey reports whether an active key with the prefix was revoked.
func RevokeAPIKey(d *sql.DB, prefix string) (bool, error) {
	res, err := d.Exec(
		"UPDATE api_keys SET revoked_at = ? WHERE key_prefix = ? AND revoked_at IS NULL",
		time.Now().Unix(), prefix,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
