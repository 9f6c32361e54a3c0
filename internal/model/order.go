package model

import (
	"gorm.io/datatypes"
)

// OrderStatus represents the lifecycle state of a certificate order
type OrderStatus string

const (
	OrderStatusCreated     OrderStatus = "created"
	OrderStatusDNSWait     OrderStatus = "dns_wait"
	OrderStatusDNSVerified OrderStatus = "dns_verified"
	OrderStatusIssued      OrderStatus = "issued"
	OrderStatusFailed      OrderStatus = "failed"
)

// CertType represents the requested certificate coverage
type CertType string

const (
	CertTypeRoot     CertType = "root"
	CertTypeWildcard CertType = "wildcard"
)

// Valid reports whether t is a selectable certificate type
func (t CertType) Valid() bool {
	return t == CertTypeRoot || t == CertTypeWildcard
}

// CancellableStatuses are the statuses an order may be cancelled from
var CancellableStatuses = []OrderStatus{
	OrderStatusCreated,
	OrderStatusDNSWait,
	OrderStatusDNSVerified,
	OrderStatusFailed,
}

// Order represents one certificate request
type Order struct {
	BaseModel
	UserID int `gorm:"column:user_id;not null;index:idx_cert_orders_user_domain" json:"userId"`

	Domain   string      `gorm:"type:varchar(253);not null;default:'';index:idx_cert_orders_user_domain" json:"domain"`
	CertType CertType    `gorm:"column:cert_type;type:varchar(16);not null;default:''" json:"certType"`
	Status   OrderStatus `gorm:"type:varchar(20);not null;default:'created';index" json:"status"`

	NeedsDNSGeneration bool `gorm:"column:needs_dns_generation;not null;default:false" json:"needsDnsGeneration"`
	NeedsIssuance      bool `gorm:"column:needs_issuance;not null;default:false" json:"needsIssuance"`
	NeedsReinstall     bool `gorm:"column:needs_reinstall;not null;default:false" json:"needsReinstall"`

	RetryCount int    `gorm:"column:retry_count;not null;default:0" json:"retryCount"`
	LastError  string `gorm:"column:last_error;type:varchar(500);not null;default:''" json:"lastError"`
	AcmeOutput string `gorm:"column:acme_output;type:text" json:"-"`

	TxtHost   string                      `gorm:"column:txt_host;type:varchar(255);not null;default:''" json:"txtHost"`
	TxtValue  string                      `gorm:"column:txt_value;type:varchar(255);not null;default:''" json:"-"` // legacy single value
	TxtValues datatypes.JSONSlice[string] `gorm:"column:txt_values" json:"txtValues"`

	CertPath      string `gorm:"column:cert_path;type:varchar(512);not null;default:''" json:"certPath"`
	KeyPath       string `gorm:"column:key_path;type:varchar(512);not null;default:''" json:"keyPath"`
	FullchainPath string `gorm:"column:fullchain_path;type:varchar(512);not null;default:''" json:"fullchainPath"`
	CAPath        string `gorm:"column:ca_path;type:varchar(512);not null;default:''" json:"caPath"`
}

// TableName specifies the table name for Order
func (Order) TableName() string {
	return "cert_orders"
}

// ChallengeValues returns the expected TXT values, falling back to the
// legacy single-value column for rows written before the list existed.
func (o *Order) ChallengeValues() []string {
	if len(o.TxtValues) > 0 {
		return []string(o.TxtValues)
	}
	if o.TxtValue != "" {
		return []string{o.TxtValue}
	}
	return nil
}

// HasChallenge reports whether a TXT host and at least one value are stored
func (o *Order) HasChallenge() bool {
	return o.TxtHost != "" && len(o.ChallengeValues()) > 0
}

// AcmeDomains returns the domain list handed to the CA tool
func (o *Order) AcmeDomains() []string {
	if o.Domain == "" {
		return nil
	}
	if o.CertType == CertTypeWildcard {
		return []string{o.Domain, "*." + o.Domain}
	}
	return []string{o.Domain}
}

// PendingSteps returns the work flags currently set on the order
func (o *Order) PendingSteps() []Step {
	var steps []Step
	for _, s := range AllSteps {
		if s.IsSet(o) {
			steps = append(steps, s)
		}
	}
	return steps
}
