package model

import "time"

// ── 角色 ──

const (
	RoleAdmin        = "admin"
	RoleManager      = "manager"
	RoleTrainer      = "trainer"
	RoleReceptionist = "receptionist"
	RoleMember       = "member"
)

// IsStaffRole 除会员以外的角色均视为员工，可见广播通知
func IsStaffRole(role string) bool {
	return role != "" && role != RoleMember
}

// User 用户表 — 对应 users（会员与员工共用）
type User struct {
	UserID          string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"user_id"`
	Name            string     `gorm:"type:varchar(100);not null"                     json:"name"`
	Email           string     `gorm:"type:varchar(255);not null;default:''"          json:"email"`
	EmailVerifiedAt *time.Time `                                                      json:"email_verified_at,omitempty"`
	Phone           string     `gorm:"type:varchar(20);not null;default:''"           json:"phone"`
	Role            string     `gorm:"type:varchar(20);not null;default:'member'"     json:"role"`
	SoftDeleteModel
}

// TableName 指定表名
func (User) TableName() string { return "users" }

// IsStaff 是否员工
func (u *User) IsStaff() bool { return IsStaffRole(u.Role) }

// HasVerifiedEmail 邮箱非空且已验证
func (u *User) HasVerifiedEmail() bool {
	return u.Email != "" && u.EmailVerifiedAt != nil
}

// HasPhone 是否留有手机号
func (u *User) HasPhone() bool { return u.Phone != "" }
