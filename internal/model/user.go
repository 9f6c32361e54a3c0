package model

// UserRole represents the role of a chat user
type UserRole string

const (
	UserRoleOwner  UserRole = "owner"
	UserRoleAdmin  UserRole = "admin"
	UserRoleMember UserRole = "member"
)

// User represents a chat user who can request certificates
type User struct {
	BaseModel
	ExternalID int64    `gorm:"column:external_id;uniqueIndex;not null" json:"externalId"`
	Username   string   `gorm:"type:varchar(64);not null;default:''" json:"username"`
	Role       UserRole `gorm:"type:varchar(16);not null;default:'member'" json:"role"`
	Quota      int      `gorm:"column:quota;not null;default:0" json:"quota"`
}

// TableName specifies the table name for User model
func (User) TableName() string {
	return "users"
}

// Privileged reports whether the user bypasses the quota ledger
func (u *User) Privileged() bool {
	return u.Role == UserRoleOwner || u.Role == UserRoleAdmin
}
