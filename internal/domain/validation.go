package domain

import (
	"errors"
	"regexp"
	"strings"
)

// 验证相关的错误定义
var (
	ErrInvalidDomain  = errors.New("invalid domain format")
	ErrDomainTooLong  = errors.New("domain too long (max 253 chars)")
	ErrInvalidAddress = errors.New("invalid email address")
)

const (
	// MaxDomainLength 域名最大长度
	MaxDomainLength = 253
	// MaxEmailLength 整个邮箱地址最大长度
	MaxEmailLength = 254
)

// 域名验证（支持子域名）
var domainRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]{0,61}[a-zA-Z0-9]?(\.[a-zA-Z0-9][a-zA-Z0-9-]{0,61}[a-zA-Z0-9]?)*$`)

// ValidateDomain 验证收件域名
func ValidateDomain(domain string) error {
	if domain == "" {
		return ErrInvalidDomain
	}
	if len(domain) > MaxDomainLength {
		return ErrDomainTooLong
	}
	if !domainRegex.MatchString(domain) {
		return ErrInvalidDomain
	}
	for _, label := range strings.Split(domain, ".") {
		if len(label) > 63 || strings.HasSuffix(label, "-") {
			return ErrInvalidDomain
		}
	}
	return nil
}

// NormalizeAddress 规范化邮箱地址：去空白、去尖括号、转小写。
func NormalizeAddress(address string) string {
	address = strings.TrimSpace(address)
	address = strings.TrimPrefix(address, "<")
	address = strings.TrimSuffix(address, ">")
	return strings.ToLower(strings.TrimSpace(address))
}

// SplitAddress 拆分地址为本地部分与域名。
func SplitAddress(address string) (local, domain string, err error) {
	address = NormalizeAddress(address)
	if len(address) > MaxEmailLength {
		return "", "", ErrInvalidAddress
	}
	at := strings.LastIndex(address, "@")
	if at <= 0 || at == len(address)-1 {
		return "", "", ErrInvalidAddress
	}
	return address[:at], address[at+1:], nil
}
