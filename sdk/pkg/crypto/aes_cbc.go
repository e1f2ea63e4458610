package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

const (
	// KeySize AES-256 密钥长度
	KeySize = 32
	// keyFiller 密钥不足32字节时的右侧填充字节
	keyFiller = '0'
	separator = ":"
)

// Codec AES-256-CBC 编解码器，密文格式为 "<base64 IV>:<base64 ciphertext>"
type Codec struct {
	key []byte
}

// NewCodec 由配置的密钥派生 32 字节 AES 密钥：不足右补 '0'，超出截断
func NewCodec(secret string) *Codec {
	return &Codec{key: DeriveKey(secret)}
}

// DeriveKey 右补 '0' 或截断到 32 字节
func DeriveKey(secret string) []byte {
	key := []byte(secret)
	if len(key) >= KeySize {
		return append([]byte(nil), key[:KeySize]...)
	}
	return append(key, bytes.Repeat([]byte{keyFiller}, KeySize-len(key))...)
}

// String 返回编解码器的字符串表示（用于调试）
func (c *Codec) String() string {
	return "Codec{key: [REDACTED]}"
}

// GoString 返回编解码器的 Go 字符串表示
func (c *Codec) GoString() string {
	return fmt.Sprintf("&crypto.Codec{keyLen: %d}", len(c.key))
}

// Encrypt 使用随机 IV 加密明文
func (c *Codec) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("failed to generate iv: %w", err)
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return base64.StdEncoding.EncodeToString(iv) + separator +
		base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt 解密 "<base64 IV>:<base64 ciphertext>" 格式的密文
func (c *Codec) Decrypt(payload string) (string, error) {
	ivPart, ctPart, ok := splitPayload(payload)
	if !ok {
		return "", ErrInvalidPayload
	}

	iv, err := base64.StdEncoding.DecodeString(ivPart)
	if err != nil {
		return "", fmt.Errorf("%w: iv: %v", ErrInvalidBase64, err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(ctPart)
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext: %v", ErrInvalidBase64, err)
	}
	if len(iv) != aes.BlockSize {
		return "", ErrInvalidIV
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", ErrInvalidCiphertext
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	unpadded, err := pkcs7Unpad(plaintext, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(unpadded), nil
}

// LooksEncrypted 判断字段是否形如 "<base64>:<base64>"，用于决定是否需要解密。
// 明文字段（如端口号、主机名）不会命中。
func LooksEncrypted(value string) bool {
	ivPart, ctPart, ok := splitPayload(value)
	if !ok {
		return false
	}
	iv, err := base64.StdEncoding.DecodeString(ivPart)
	if err != nil || len(iv) != aes.BlockSize {
		return false
	}
	ct, err := base64.StdEncoding.DecodeString(ctPart)
	return err == nil && len(ct) > 0
}

func splitPayload(payload string) (string, string, bool) {
	parts := strings.Split(strings.TrimSpace(payload), separator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, ErrInvalidPadding
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, ErrInvalidPadding
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, ErrInvalidPadding
		}
	}
	return data[:len(data)-n], nil
}
