package store

import (
	"context"
	"errors"

	"github.com/scribbletales/storypay/models"
	"gorm.io/gorm"
)

// WebhookEventStore is the processed-webhook ledger backed by Postgres
type WebhookEventStore struct {
	db *gorm.DB
}

// NewWebhookEventStore builds a WebhookEventStore on the given gorm handle
func NewWebhookEventStore(db *gorm.DB) *WebhookEventStore {
	return &WebhookEventStore{db: db}
}

// SeenEvent reports whether a gateway event id has already been processed
func (s *WebhookEventStore) SeenEvent(ctx context.Context, providerEventID string) (bool, error) {
	var event models.WebhookEvent
	err := s.db.WithContext(ctx).Where("provider_event_id = ?", providerEventID).First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// RecordEvent persists a processed webhook delivery. A concurrent delivery
// of the same event id loses to the unique index; that duplicate is not an
// error here because the state machine already refused to double-apply it.
func (s *WebhookEventStore) RecordEvent(ctx context.Context, event *models.WebhookEvent) error {
	err := s.db.WithContext(ctx).Create(event).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil
	}
	return err
}
