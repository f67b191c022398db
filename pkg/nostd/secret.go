package nostd

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const secretNonceSize = 24

// SecretBox 对称加密，用于保存交易所 API Secret
type SecretBox struct {
	key [32]byte
}

// NewSecretBox 使用 64 位 hex 字符串作为密钥
func NewSecretBox(hexKey string) (*SecretBox, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid secret key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("invalid secret key length: %d", len(raw))
	}
	box := &SecretBox{}
	copy(box.key[:], raw)
	return box, nil
}

// Seal 加密并编码为 base64
func (b *SecretBox) Seal(plaintext string) (string, error) {
	var nonce [secretNonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", err
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &b.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open 解密 Seal 的结果
func (b *SecretBox) Open(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("invalid ciphertext: %w", err)
	}
	if len(sealed) < secretNonceSize+secretbox.Overhead {
		return "", errors.New("ciphertext too short")
	}
	var nonce [secretNonceSize]byte
	copy(nonce[:], sealed[:secretNonceSize])
	plaintext, ok := secretbox.Open(nil, sealed[secretNonceSize:], &nonce, &b.key)
	if !ok {
		return "", errors.New("decryption failed")
	}
	return string(plaintext), nil
}
