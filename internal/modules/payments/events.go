package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Journal records accepted notifications and absorbs redelivery.
type Journal struct{ db *gorm.DB }

func NewJournal(db *gorm.DB) *Journal { return &Journal{db: db} }

// Record persists the event and reports whether it is fresh. A duplicate
// (gateway,event_id) insert means the notification was already handled;
// the caller acks without reprocessing.
func (j *Journal) Record(ctx context.Context, gateway, eventID, eventType string, payload []byte) (string, bool, error) {
	pe := ProviderEvent{
		ID:          uuid.NewString(),
		Gateway:     gateway,
		EventID:     eventID,
		EventType:   eventType,
		PayloadJSON: datatypes.JSON(payload),
		ReceivedAt:  time.Now(),
	}
	if err := j.db.WithContext(ctx).Create(&pe).Error; err != nil {
		if isDup(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return pe.ID, true, nil
}

func (j *Journal) MarkProcessed(ctx context.Context, id string) error {
	now := time.Now()
	return j.db.WithContext(ctx).Model(&ProviderEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{"processed_at": &now, "process_error": nil}).Error
}

func (j *Journal) MarkFailed(ctx context.Context, id string, cause error) error {
	msg := truncate(cause.Error(), 250)
	return j.db.WithContext(ctx).Model(&ProviderEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{"process_error": msg}).Error
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
}
