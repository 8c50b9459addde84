package domain

import "time"

// Message 表示收件箱内的一封邮件。
type Message struct {
	ID            int64      `json:"id" db:"id" gorm:"primaryKey;autoIncrement"`
	InboxID       string     `json:"inboxId" db:"inbox_id" gorm:"type:varchar(36);index;not null"`
	Sender        string     `json:"from" db:"sender" gorm:"type:text"`
	Recipient     string     `json:"to" db:"recipient" gorm:"type:varchar(320)"`
	Subject       string     `json:"subject" db:"subject" gorm:"type:text"` // 折叠解码后的主题不受单行 998 字节限制
	Body          string     `json:"content" db:"body" gorm:"type:text"`
	ReceivedAt    time.Time  `json:"receivedAt" db:"received_at" gorm:"index;not null"`
	Code          string     `json:"otp,omitempty" db:"code" gorm:"type:varchar(32)"`
	CodeExpiresAt *time.Time `json:"otpExpiresAt,omitempty" db:"code_expires_at"`
	Deleted       bool       `json:"deleted" db:"deleted" gorm:"default:false;index"`
}

// TableName 固定表名。
func (Message) TableName() string {
	return "messages"
}

// HasCode 判断邮件是否提取到了验证码。
func (m *Message) HasCode() bool {
	return m.Code != ""
}

// Clone 返回副本。
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	if m.CodeExpiresAt != nil {
		t := *m.CodeExpiresAt
		c.CodeExpiresAt = &t
	}
	return &c
}

// OTPStatus 描述单封邮件验证码的有效状态。
type OTPStatus struct {
	HasOTP    bool       `json:"hasOtp"`
	OTP       string     `json:"otp,omitempty"`
	Expired   bool       `json:"expired"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// NewOTPStatus 根据邮件与当前时间计算验证码状态。
func NewOTPStatus(m *Message, now time.Time) *OTPStatus {
	if m == nil || !m.HasCode() {
		return &OTPStatus{}
	}
	status := &OTPStatus{
		HasOTP:    true,
		OTP:       m.Code,
		ExpiresAt: m.CodeExpiresAt,
	}
	if m.CodeExpiresAt != nil && now.After(*m.CodeExpiresAt) {
		status.Expired = true
	}
	return status
}
