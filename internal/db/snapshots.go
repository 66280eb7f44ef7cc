package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/teester/teester/internal/models"
)

// EmptySnapshot is what LatestSnapshot returns for a store that has never
// been written.
const EmptySnapshot = "[]"

// SaveSnapshot stores data as the newest snapshot and prunes all but the
// keep most recent ones. keep <= 0 keeps everything.
func SaveSnapshot(d *sql.DB, data string, keep int) (int64, error) {
	tx, err := d.Begin()
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.Exec(
		"INSERT INTO snapshots (data, saved_at) VALUES (?, ?)",
		data, time.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}

	if keep > 0 {
		_, err = tx.Exec(
			"DELETE FROM snapshots WHERE id NOT IN (SELECT id FROM snapshots ORDER BY id DESC LIMIT ?)",
			keep,
		)
		if err != nil {
			return 0, fmt.Errorf("prune snapshots: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// LatestSnapshot returns the newest snapshot, or an EmptySnapshot with ID 0
// when none exists.
func LatestSnapshot(d *sql.DB) (*models.Snapshot, error) {
	var s models.Snapshot
	err := d.QueryRow(
		"SELECT id, data, saved_at FROM snapshots ORDER BY id DESC LIMIT 1",
	).Scan(&s.ID, &s.Data, &s.SavedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.Snapshot{Data: EmptySnapshot}, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSnapshot returns the snapshot with the given id, or nil if absent.
func GetSnapshot(d *sql.DB, id int64) (*models.Snapshot, error) {
	var s models.Snapshot
	err := d.QueryRow(
		"SELECT id, data, saved_at FROM snapshots WHERE id = ?", id,
	).Scan(&s.ID, &s.Data, &s.SavedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSnapshots returns snapshot metadata, newest first. Data is left empty.
func ListSnapshots(d *sql.DB) ([]models.Snapshot, error) {
	rows, err := d.Query("SELECT id, saved_at FROM snapshots ORDER BY id DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots []models.Snapshot
	for rows.Next() {
		var s models.Snapshot
		if err := rows.Scan(&s.ID, &s.SavedAt); err != nil {
			return nil, err
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}
