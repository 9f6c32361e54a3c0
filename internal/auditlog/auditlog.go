// Package auditlog writes and queries the append-only action log.
package auditlog

import (
	"context"
	"errors"
	"time"

	"go_certbot/internal/model"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const maxDetailLength = 4000

// Log appends action log entries
type Log struct {
	db     *gorm.DB
	logger *logrus.Entry
}

// New creates an action log bound to db
func New(db *gorm.DB, logger *logrus.Entry) *Log {
	return &Log{db: db, logger: logger.WithField("component", "action-log")}
}

// Record appends an entry. Failures are logged and never returned: the audit
// trail must not change the outcome of a transition.
func (l *Log) Record(ctx context.Context, userID, orderID int, action, domain, detail string) {
	if len(detail) > maxDetailLength {
		detail = detail[:maxDetailLength]
	}

	entry := &model.ActionLog{
		UserID:  userID,
		OrderID: orderID,
		Action:  action,
		Domain:  domain,
		Detail:  detail,
	}
	if err := l.db.WithContext(ctx).Create(entry).Error; err != nil {
		l.logger.WithFields(logrus.Fields{
			"userId":  userID,
			"orderId": orderID,
			"action":  action,
		}).Errorf("Failed to write action log: %v", err)
	}
}

// HasRecent reports whether action was recorded for (user, domain) at or after since
func (l *Log) HasRecent(ctx context.Context, userID int, domain, action string, since time.Time) (bool, error) {
	var entry model.ActionLog
	err := l.db.WithContext(ctx).
		Where("user_id = ? AND domain = ? AND action = ? AND created_at >= ?", userID, domain, action, since).
		Order("id DESC").
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Latest returns the most recent entries for a user, newest first
func (l *Log) Latest(ctx context.Context, userID, limit int) ([]model.ActionLog, error) {
	var entries []model.ActionLog
	err := l.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}
