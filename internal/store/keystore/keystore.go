// Package keystore is the durable store for the handful of global
// scalar values that outlive every chat session: the chat-service
// credential and the optional panel passcode.
package keystore

import (
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	nameAPIKey   = "chat_api_key"
	namePasscode = "panel_passcode"
)

type Setting struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"type:varchar(64);uniqueIndex;not null"`
	Value     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

func (Setting) TableName() string { return "panel_settings" }

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&Setting{})
}

func (s *Store) get(ctx context.Context, name string) (string, error) {
	var row Setting
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return row.Value, nil
}

func (s *Store) set(ctx context.Context, name, value string) error {
	res := s.db.WithContext(ctx).Model(&Setting{}).
		Where("name = ?", name).
		Update("value", value)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return s.db.WithContext(ctx).Create(&Setting{Name: name, Value: value}).Error
	}
	return nil
}

// APIKey returns the stored chat-service credential, "" when unset.
func (s *Store) APIKey(ctx context.Context) (string, error) {
	return s.get(ctx, nameAPIKey)
}

func (s *Store) SetAPIKey(ctx context.Context, key string) error {
	return s.set(ctx, nameAPIKey, key)
}

// HasPasscode reports whether a panel passcode has been set.
func (s *Store) HasPasscode(ctx context.Context) (bool, error) {
	h, err := s.get(ctx, namePasscode)
	return h != "", err
}

// SetPasscode stores a bcrypt hash of the passcode.
func (s *Store) SetPasscode(ctx context.Context, passcode string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(passcode), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.set(ctx, namePasscode, string(hash))
}

// CheckPasscode compares a candidate against the stored hash.
func (s *Store) CheckPasscode(ctx context.Context, passcode string) (bool, error) {
	hash, err := s.get(ctx, namePasscode)
	if err != nil {
		return false, err
	}
	if hash == "" {
		return false, nil
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(passcode)) == nil, nil
}
