// Package store provides database access for preferences and the
// transmission log.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rudransh-shrivastava/exchangelink/internal/db"
	"github.com/rudransh-shrivastava/exchangelink/internal/protocol"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	keyLocalID   = "exchangelink_my_id"
	keyRole      = "exchangelink_role"
	keyPartnerID = "exchangelink_partner_id"
)

type PreferenceStore struct {
	db *gorm.DB
}

func NewPreferenceStore(gdb *gorm.DB) *PreferenceStore {
	return &PreferenceStore{db: gdb}
}

func (ps *PreferenceStore) get(ctx context.Context, name string) (string, error) {
	var pref db.Preference
	err := ps.db.WithContext(ctx).Where("name = ?", name).First(&pref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return pref.Value, nil
}

func (ps *PreferenceStore) set(ctx context.Context, name, value string) error {
	return ps.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&db.Preference{Name: name, Value: value}).Error
}

func (ps *PreferenceStore) clear(ctx context.Context, name string) error {
	return ps.db.WithContext(ctx).Where("name = ?", name).Delete(&db.Preference{}).Error
}

func (ps *PreferenceStore) LocalID(ctx context.Context) (string, error) {
	return ps.get(ctx, keyLocalID)
}

// EnsureLocalID returns the stored identity, generating and storing one on
// first use.
func (ps *PreferenceStore) EnsureLocalID(ctx context.Context, generate func() (string, error)) (string, error) {
	id, err := ps.LocalID(ctx)
	if err != nil || id != "" {
		return id, err
	}

	id, err = generate()
	if err != nil {
		return "", err
	}
	if err := ps.set(ctx, keyLocalID, id); err != nil {
		return "", err
	}
	return id, nil
}

func (ps *PreferenceStore) Role(ctx context.Context) (protocol.Role, error) {
	v, err := ps.get(ctx, keyRole)
	return protocol.Role(v), err
}

func (ps *PreferenceStore) SetRole(ctx context.Context, role protocol.Role) error {
	return ps.set(ctx, keyRole, string(role))
}

func (ps *PreferenceStore) ClearRole(ctx context.Context) error {
	return ps.clear(ctx, keyRole)
}

func (ps *PreferenceStore) PartnerID(ctx context.Context) (string, error) {
	return ps.get(ctx, keyPartnerID)
}

func (ps *PreferenceStore) SetPartnerID(ctx context.Context, id string) error {
	return ps.set(ctx, keyPartnerID, id)
}

func (ps *PreferenceStore) ClearPartnerID(ctx context.Context) error {
	return ps.clear(ctx, keyPartnerID)
}

type LogStore struct {
	db *gorm.DB
}

func NewLogStore(gdb *gorm.DB) *LogStore {
	return &LogStore{db: gdb}
}

func (ls *LogStore) AddLog(ctx context.Context, from protocol.Role, message string, typ db.LogType) (db.LogEntry, error) {
	entry := db.LogEntry{
		ID:        uuid.NewString(),
		From:      string(from),
		Message:   message,
		Type:      typ,
		CreatedAt: time.Now(),
	}
	if err := ls.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return db.LogEntry{}, err
	}
	return entry, nil
}

// RecentLogs returns up to limit entries, newest first.
func (ls *LogStore) RecentLogs(ctx context.Context, limit int) ([]db.LogEntry, error) {
	var entries []db.LogEntry
	err := ls.db.WithContext(ctx).
		Order("created_at desc").
		Order("rowid desc").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}
