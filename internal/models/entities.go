package models

// APIKey represents an API key record in the database.
type APIKey struct {
	ID         int64
	KeyPrefix  string
	KeyHash    []byte
	Label      *string
	CreatedAt  int64
	RevokedAt  *int64
	LastUsedAt *int64
}

// Snapshot is one saved copy of the full project list.
type Snapshot struct {
	ID      int64
	Data    string
	SavedAt int64
}
