// Package roster stores which groups the service watches and which users hold
// service-level admin rights, plus the per-group anti-link toggle.
//
// Group-role exemptions (platform admins of a chat) are resolved live against
// the platform, not here; this roster only covers state the service itself
// owns.
package roster

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Group struct {
	GroupID  int64 `gorm:"primaryKey;autoIncrement:false"`
	AntiLink bool  `gorm:"not null;default:true"`
}

type Admin struct {
	AdminID int64 `gorm:"primaryKey;autoIncrement:false"`
}

// AdminGroup assigns a service admin to a group they manage.
type AdminGroup struct {
	ID      uint  `gorm:"primaryKey"`
	AdminID int64 `gorm:"index;not null"`
	GroupID int64 `gorm:"not null"`
}

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Group{}, &Admin{}, &AdminGroup{}); err != nil {
		return nil, fmt.Errorf("initializing roster tables: %w", err)
	}
	return &Store{db: db}, nil
}

// SetAntiLink upserts the group row with the given enforcement toggle.
func (s *Store) SetAntiLink(ctx context.Context, groupID int64, enabled bool) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "group_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"anti_link": enabled}),
	}).Create(&Group{GroupID: groupID, AntiLink: enabled}).Error
}

// AntiLinkEnabled reports whether link enforcement is on for the group.
// Unknown groups default to enabled, matching new-group behavior.
func (s *Store) AntiLinkEnabled(ctx context.Context, groupID int64) (bool, error) {
	var g Group
	err := s.db.WithContext(ctx).Where("group_id = ?", groupID).First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return true, nil
	} else if err != nil {
		return false, err
	}
	return g.AntiLink, nil
}

func (s *Store) AddAdmin(ctx context.Context, adminID int64) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&Admin{AdminID: adminID}).Error
}

func (s *Store) RemoveAdmin(ctx context.Context, adminID int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("admin_id = ?", adminID).Delete(&Admin{}).Error; err != nil {
			return err
		}
		return tx.Where("admin_id = ?", adminID).Delete(&AdminGroup{}).Error
	})
}

func (s *Store) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Admin{}).
		Where("admin_id = ?", userID).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) ListAdmins(ctx context.Context) ([]int64, error) {
	var admins []Admin
	if err := s.db.WithContext(ctx).Order("admin_id").Find(&admins).Error; err != nil {
		return nil, err
	}
	out := make([]int64, len(admins))
	for i, a := range admins {
		out[i] = a.AdminID
	}
	return out, nil
}

// AssignGroup records that an admin manages a group, creating the group row
// (enforcement enabled) if it does not exist yet.
func (s *Store) AssignGroup(ctx context.Context, adminID, groupID int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&Group{GroupID: groupID, AntiLink: true}).Error; err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&AdminGroup{}).
			Where("admin_id = ? AND group_id = ?", adminID, groupID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		return tx.Create(&AdminGroup{AdminID: adminID, GroupID: groupID}).Error
	})
}

func (s *Store) GroupsForAdmin(ctx context.Context, adminID int64) ([]int64, error) {
	var rows []AdminGroup
	err := s.db.WithContext(ctx).
		Where("admin_id = ?", adminID).Order("group_id").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]int64, len(rows))
	for i, r := range rows {
		out[i] = r.GroupID
	}
	return out, nil
}
