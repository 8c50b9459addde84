package service

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// maxAddressAttempts 地址冲突时的最大重试次数
const maxAddressAttempts = 5

// AddressGenerator 生成随机收件箱 ID 与地址。
//
// ID 的 16 个字节全部随机，不写入 UUID 版本位；ID 以 UUID 文本形式保存，
// 地址本地部分是同一 16 字节的小写十六进制，不含连字符。
type AddressGenerator struct {
	domain string
	newID  func() uuid.UUID
}

// NewAddressGenerator 创建地址生成器。
func NewAddressGenerator(domain string) *AddressGenerator {
	return &AddressGenerator{
		domain: strings.ToLower(domain),
		newID:  randomID,
	}
}

// NewAddress 返回新的 ID 与完整地址。
func (g *AddressGenerator) NewAddress() (id, address string) {
	u := g.newID()
	return u.String(), hex.EncodeToString(u[:]) + "@" + g.domain
}

// Domain 返回地址域名。
func (g *AddressGenerator) Domain() string {
	return g.domain
}

// randomID 返回 128 位随机值，crypto/rand 读取失败时进程直接终止
func randomID() uuid.UUID {
	var u uuid.UUID
	_, _ = rand.Read(u[:])
	return u
}
