// Package otp 从邮件正文中提取一次性验证码。
package otp

import "regexp"

// patterns 按优先级排列，命中第一个即返回，顺序不可调整。
var patterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(\d{6})\b`),
	regexp.MustCompile(`(?i)(?:otp|code|verification|pin)\s*(?:is|:)\s*(\d+)`),
	regexp.MustCompile(`<strong>(\d{4,8})</strong>`),
	regexp.MustCompile(`<b>(\d{4,8})</b>`),
}

// Extract 返回正文中的验证码，未找到时 ok 为 false。
func Extract(body string) (code string, ok bool) {
	if body == "" {
		return "", false
	}
	for _, re := range patterns {
		if m := re.FindStringSubmatch(body); m != nil {
			return m[1], true
		}
	}
	return "", false
}
