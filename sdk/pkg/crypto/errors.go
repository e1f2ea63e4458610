// Package crypto 提供凭证服务下发密文的 AES-256-CBC 解密/加密
package crypto

import (
	"errors"
	"fmt"
)

var (
	// ErrDecryptionFailed 所有解密失败的根错误，调用方用 errors.Is 判断
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrInvalidPayload 密文不是 "<base64 IV>:<base64 ciphertext>" 格式
	ErrInvalidPayload = fmt.Errorf("%w: payload must be <iv>:<ciphertext>", ErrDecryptionFailed)

	// ErrInvalidBase64 IV 或密文不是合法的 Base64
	ErrInvalidBase64 = fmt.Errorf("%w: invalid base64 segment", ErrDecryptionFailed)

	// ErrInvalidIV IV 长度不是一个分组（16字节）
	ErrInvalidIV = fmt.Errorf("%w: iv must be 16 bytes", ErrDecryptionFailed)

	// ErrInvalidCiphertext 密文长度不是分组长度的正整数倍
	ErrInvalidCiphertext = fmt.Errorf("%w: ciphertext is not a multiple of the block size", ErrDecryptionFailed)

	// ErrInvalidPadding PKCS#7 填充无效（通常是密钥错误或密文被篡改）
	ErrInvalidPadding = fmt.Errorf("%w: invalid padding", ErrDecryptionFailed)
)
