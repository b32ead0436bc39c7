package session

import (
	"crypto/rand"
	"fmt"
	"strings"
)

const (
	// JoinCodeAlphabet 邀请码字符集，去掉了 0/O 和 1/I
	JoinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	// JoinCodeLength 邀请码长度
	JoinCodeLength = 6
)

// NewJoinCode 生成随机邀请码
func NewJoinCode() (string, error) {
	buf := make([]byte, JoinCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("读取随机数失败: %w", err)
	}
	// 字符集长度为32，取低5位保证均匀分布
	for i, b := range buf {
		buf[i] = JoinCodeAlphabet[b&31]
	}
	return string(buf), nil
}

// NormalizeJoinCode 转为大写并校验格式
func NormalizeJoinCode(code string) (string, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != JoinCodeLength {
		return "", false
	}
	for _, c := range code {
		if !strings.ContainsRune(JoinCodeAlphabet, c) {
			return "", false
		}
	}
	return code, true
}
