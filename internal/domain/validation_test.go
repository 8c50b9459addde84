package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDomain(t *testing.T) {
	tests := []struct {
		name     string
		domain   string
		expected bool
	}{
		{"Valid domain", "example.com", true},
		{"Valid subdomain", "mail.example.com", true},
		{"Valid single label", "localhost", true},
		{"Valid domain with dash", "my-domain.com", true},
		{"Invalid - empty", "", false},
		{"Invalid - starts with dot", ".example.com", false},
		{"Invalid - double dots", "example..com", false},
		{"Invalid - spaces", "example .com", false},
		{"Invalid - special characters", "example@.com", false},
		{"Invalid - starts with dash", "-example.com", false},
		{"Invalid - ends with dash", "example-.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDomain(tt.domain)
			assert.Equal(t, tt.expected, err == nil, "domain=%q err=%v", tt.domain, err)
		})
	}
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "abc@example.com", NormalizeAddress("  <ABC@Example.COM> "))
	assert.Equal(t, "abc@example.com", NormalizeAddress("abc@example.com"))
	assert.Equal(t, "", NormalizeAddress("<>"))
}

func TestSplitAddress(t *testing.T) {
	local, dom, err := SplitAddress("<User@Mail.Example.com>")
	require.NoError(t, err)
	assert.Equal(t, "user", local)
	assert.Equal(t, "mail.example.com", dom)

	for _, bad := range []string{"", "user", "@example.com", "user@"} {
		_, _, err := SplitAddress(bad)
		assert.ErrorIs(t, err, ErrInvalidAddress, bad)
	}
}

func TestInboxExpired(t *testing.T) {
	now := time.Now()
	inbox := &Inbox{CreatedAt: now.Add(-time.Minute), ExpiresAt: now}
	assert.True(t, inbox.Expired(now))
	assert.False(t, inbox.Expired(now.Add(-time.Second)))
}

func TestNewOTPStatus(t *testing.T) {
	now := time.Now()

	t.Run("无验证码", func(t *testing.T) {
		status := NewOTPStatus(&Message{}, now)
		assert.False(t, status.HasOTP)
		assert.False(t, status.Expired)
		assert.Nil(t, status.ExpiresAt)
	})

	t.Run("验证码有效", func(t *testing.T) {
		exp := now.Add(time.Minute)
		status := NewOTPStatus(&Message{Code: "123456", CodeExpiresAt: &exp}, now)
		assert.True(t, status.HasOTP)
		assert.Equal(t, "123456", status.OTP)
		assert.False(t, status.Expired)
	})

	t.Run("验证码过期", func(t *testing.T) {
		exp := now.Add(-time.Minute)
		status := NewOTPStatus(&Message{Code: "123456", CodeExpiresAt: &exp}, now)
		assert.True(t, status.Expired)
	})
}

func TestMessageClone(t *testing.T) {
	exp := time.Now()
	m := &Message{ID: 1, Code: "1234", CodeExpiresAt: &exp}
	c := m.Clone()
	require.NotNil(t, c.CodeExpiresAt)
	assert.NotSame(t, m.CodeExpiresAt, c.CodeExpiresAt)
	assert.Equal(t, *m.CodeExpiresAt, *c.CodeExpiresAt)
}
