package model

import "time"

// Action names written to the action log
const (
	ActionOrderCreate      = "order_create"
	ActionOrderSubmit      = "order_submit_domain"
	ActionOrderCancel      = "order_cancel"
	ActionOrderExpired     = "order_expired"
	ActionOrderIssued      = "order_issued"
	ActionOrderFailed      = "order_failed"
	ActionDNSVerified      = "dns_verified"
	ActionAcmeIssue        = "acme_issue_dns"
	ActionAcmeRenew        = "acme_renew"
	ActionAcmeInstall      = "acme_install_cert"
	ActionAcmeRemove       = "acme_remove"
	ActionAcmeAlreadyExist = "acme_already_exists"
	ActionOrderError       = "order_error"
	ActionQuotaGrant       = "quota_grant"
)

// ActionLog is an append-only audit entry keyed by user and order
type ActionLog struct {
	ID        int       `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int       `gorm:"column:user_id;not null;index:idx_action_logs_user_action" json:"userId"`
	OrderID   int       `gorm:"column:order_id;not null;default:0;index" json:"orderId"`
	Action    string    `gorm:"type:varchar(64);not null;index:idx_action_logs_user_action" json:"action"`
	Domain    string    `gorm:"type:varchar(253);not null;default:''" json:"domain"`
	Detail    string    `gorm:"type:text" json:"detail"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"createdAt"`
}

// TableName specifies the table name for ActionLog
func (ActionLog) TableName() string {
	return "action_logs"
}
