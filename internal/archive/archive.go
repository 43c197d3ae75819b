// Package archive persists finished match results. Rooms only see the Sink
// interface; when no database is configured the sink is simply nil.
package archive

import (
	"context"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type Sink interface {
	Archive(ctx context.Context, rec *MatchRecord) error
}

type MatchRecord struct {
	ID          uint   `gorm:"primaryKey"`
	RoomID      string `gorm:"index"`
	RoomName    string
	Winner      string // empty when nobody won
	WinnerSkill string
	CommitCount int
	DurationMS  int64
	EndedAt     time.Time
}

type Store struct {
	db *gorm.DB
}

func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&MatchRecord{}); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Archive(ctx context.Context, rec *MatchRecord) error {
	return s.db.WithContext(ctx).Create(rec).Error
}
