package persistence

import "time"

// Resource is a lazily created local stand-in for a remote resource,
// keyed by the remote resource URI. It exists solely to anchor
// agreements.
type Resource struct {
	ID        string `gorm:"primaryKey"`
	CreatedAt time.Time

	Agreements []Agreement `gorm:"foreignKey:ResourceID"`
}

// Agreement records one negotiated contract. Agreements are append only:
// they are never mutated and only removed by out of band administration.
type Agreement struct {
	ID         string `gorm:"primaryKey"`
	ResourceID string `gorm:"index"`
	UserID     string `gorm:"index"`
	CreatedAt  time.Time
}
