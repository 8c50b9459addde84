package domain

import (
	"time"
)

// Inbox 表示一个有生命周期的临时收件箱。
type Inbox struct {
	ID        string    `json:"id" db:"id" gorm:"primaryKey;type:varchar(36)"`
	Address   string    `json:"emailAddress" db:"email_address" gorm:"column:email_address;type:varchar(255);uniqueIndex;not null"`
	CreatedAt time.Time `json:"createdAt" db:"created_at" gorm:"not null"`
	ExpiresAt time.Time `json:"expiresAt" db:"expires_at" gorm:"index;not null"`
}

// TableName 固定表名，gorm 与 sqlx 两套实现共用同一张表。
func (Inbox) TableName() string {
	return "inboxes"
}

// Expired 判断收件箱在给定时刻是否已过期。
func (i *Inbox) Expired(now time.Time) bool {
	return !i.ExpiresAt.After(now)
}

// Clone 返回副本，避免调用方修改存储中的数据。
func (i *Inbox) Clone() *Inbox {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}
