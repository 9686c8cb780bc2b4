package repository

import (
	"context"
	"time"

	statedomain "mailsweep-backend/internal/state/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// gormStore implements Store on top of a relational database.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a database-backed state store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) GetCheckpoint(ctx context.Context, email string) (*statedomain.MailboxCheckpoint, error) {
	var cp statedomain.MailboxCheckpoint
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&cp).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

func (s *gormStore) SetCheckpoint(ctx context.Context, email string, historyID uint64, watchExpiration int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cp statedomain.MailboxCheckpoint
		err := tx.Where("email = ?", email).First(&cp).Error
		if err == gorm.ErrRecordNotFound {
			cp = statedomain.MailboxCheckpoint{
				Email:           email,
				HistoryID:       historyID,
				WatchExpiration: watchExpiration,
				UpdatedAt:       time.Now(),
			}
			return tx.Create(&cp).Error
		}
		if err != nil {
			return err
		}
		// Watermark never moves backwards.
		if historyID > cp.HistoryID {
			cp.HistoryID = historyID
		}
		if watchExpiration != 0 {
			cp.WatchExpiration = watchExpiration
		}
		cp.UpdatedAt = time.Now()
		return tx.Save(&cp).Error
	})
}

func (s *gormStore) GetDecision(ctx context.Context, mailboxEmail, gmailID string) (*statedomain.MessageDecision, error) {
	var decision statedomain.MessageDecision
	err := s.db.WithContext(ctx).
		Where("mailbox_email = ? AND gmail_id = ?", mailboxEmail, gmailID).
		First(&decision).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &decision, nil
}

func (s *gormStore) PutDecision(ctx context.Context, decision *statedomain.MessageDecision) error {
	if decision.ID == "" {
		decision.ID = uuid.New().String()
	}
	if decision.DecidedAt.IsZero() {
		decision.DecidedAt = time.Now()
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "gmail_id"}, {Name: "mailbox_email"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"category", "action", "label", "state", "error_detail", "decided_at",
		}),
	}).Create(decision).Error
}

func (s *gormStore) EnqueueAlert(ctx context.Context, alert *statedomain.AlertItem) error {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now()
	}
	return s.db.WithContext(ctx).Create(alert).Error
}

func (s *gormStore) ListQueuedAlerts(ctx context.Context, mailboxEmail string) ([]*statedomain.AlertItem, error) {
	var alerts []*statedomain.AlertItem
	query := s.db.WithContext(ctx).Where("status = ?", statedomain.AlertQueued)
	if mailboxEmail != "" {
		query = query.Where("mailbox_email = ?", mailboxEmail)
	}
	if err := query.Order("created_at ASC").Find(&alerts).Error; err != nil {
		return nil, err
	}
	return alerts, nil
}

func (s *gormStore) MarkAlertSent(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).
		Model(&statedomain.AlertItem{}).
		Where("id = ?", id).
		Update("status", statedomain.AlertSent).Error
}

func (s *gormStore) MarkAlertError(ctx context.Context, id, detail string) error {
	return s.db.WithContext(ctx).
		Model(&statedomain.AlertItem{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       statedomain.AlertError,
			"error_detail": detail,
		}).Error
}
