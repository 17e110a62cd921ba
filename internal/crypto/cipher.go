package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const (
	// NonceSize - размер nonce для AES-GCM
	NonceSize = 12
	// KeySize - длина ключа AES-256
	KeySize = 32
)

// Seal шифрует данные AES-256-GCM.
// aad привязывает шифротекст к контексту (например, имя cookie и домен):
// подмена записи в хранилище обнаруживается при Open.
// Формат результата: nonce + ciphertext + auth_tag.
func Seal(key, plaintext, aad []byte) ([]byte, error) {
	aesGCM, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceSize, NonceSize+len(plaintext)+aesGCM.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return aesGCM.Seal(nonce, nonce, plaintext, aad), nil
}

// Open расшифровывает данные, полученные из Seal, с тем же aad
func Open(key, sealed, aad []byte) ([]byte, error) {
	if len(sealed) < NonceSize {
		return nil, fmt.Errorf("encrypted data too short")
	}
	aesGCM, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := aesGCM.Open(nil, sealed[:NonceSize], sealed[NonceSize:], aad)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: authentication failed or corrupted data: %w", err)
	}
	return plaintext, nil
}

// SealString шифрует строку и возвращает Base64
func SealString(key []byte, plaintext string, aad []byte) (string, error) {
	sealed, err := Seal(key, []byte(plaintext), aad)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// OpenString расшифровывает Base64 строку из SealString
func OpenString(key []byte, encoded string, aad []byte) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}
	plaintext, err := Open(key, sealed, aad)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aesGCM, nil
}
