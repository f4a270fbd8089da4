package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WarningRecord is one row of the warnings table, keyed (group_id, user_id).
type WarningRecord struct {
	GroupID   int64 `gorm:"primaryKey;autoIncrement:false"`
	UserID    int64 `gorm:"primaryKey;autoIncrement:false"`
	WarnCount int   `gorm:"not null;default:0"`
	UpdatedAt time.Time
}

func (WarningRecord) TableName() string {
	return "warnings"
}

// GormLedger persists warning counts in a relational store (sqlite or
// postgres, per the daemon's database URL). The increment is a single upsert
// statement, so it is atomic on both backends.
type GormLedger struct {
	db *gorm.DB
}

func NewGormLedger(db *gorm.DB) (*GormLedger, error) {
	if err := db.AutoMigrate(&WarningRecord{}); err != nil {
		return nil, fmt.Errorf("initializing warnings table: %w", err)
	}
	return &GormLedger{db: db}, nil
}

func (s *GormLedger) GetCount(ctx context.Context, groupID, userID int64) (int, error) {
	var rec WarningRecord
	err := s.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	} else if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return rec.WarnCount, nil
}

func (s *GormLedger) IncrementAndGet(ctx context.Context, groupID, userID int64) (int, error) {
	var rec WarningRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "group_id"}, {Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"warn_count": gorm.Expr("warn_count + 1"),
				"updated_at": time.Now(),
			}),
		}).Create(&WarningRecord{
			GroupID:   groupID,
			UserID:    userID,
			WarnCount: 1,
		})
		if res.Error != nil {
			return res.Error
		}
		return tx.Where("group_id = ? AND user_id = ?", groupID, userID).First(&rec).Error
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return rec.WarnCount, nil
}

func (s *GormLedger) Reset(ctx context.Context, groupID, userID int64) error {
	err := s.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Delete(&WarningRecord{}).Error
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
