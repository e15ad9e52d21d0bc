// Package seal encrypts credential stores at rest. A store sealed with any
// key in the ring can still be opened after a key rotation, as long as the
// old key remains in the ring.
package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"time"
)

// MaxKeysInRing is the number of keys kept during rotation.
const MaxKeysInRing = 3

// EncryptAES encrypts a plain text using AES-GCM. The key may be any
// passphrase; a 256-bit cipher key is derived from it.
func EncryptAES(plainText, key string) (string, error) {
	block, err := aes.NewCipher(deriveKey(key))
	if err != nil {
		return "", err
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aesGCM.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	cipherText := aesGCM.Seal(nonce, nonce, []byte(plainText), nil)
	return base64.StdEncoding.EncodeToString(cipherText), nil
}

// DecryptAES decrypts a cipher text using AES-GCM.
func DecryptAES(encryptedText, key string) (string, error) {
	cipherText, err := base64.StdEncoding.DecodeString(encryptedText)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(deriveKey(key))
	if err != nil {
		return "", err
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonceSize := aesGCM.NonceSize()
	if len(cipherText) < nonceSize {
		return "", fmt.Errorf("invalid cipher text length")
	}

	nonce, cipherText := cipherText[:nonceSize], cipherText[nonceSize:]
	plainText, err := aesGCM.Open(nil, nonce, cipherText, nil)
	if err != nil {
		return "", err
	}

	return string(plainText), nil
}

func deriveKey(key string) []byte {
	sum := sha256.Sum256([]byte(key))
	return sum[:]
}

// KeyEntry represents a single key in the key ring with metadata.
type KeyEntry struct {
	Key        string    `json:"key"`
	InsertedAt time.Time `json:"inserted_at"`
}

// KeyRing maintains a ring of keys with the most recent at index 0.
type KeyRing struct {
	Keys []KeyEntry `json:"keys"`
}

// NewKeyRing creates a key ring from the given keys, first key most recent.
func NewKeyRing(keys ...string) *KeyRing {
	kr := &KeyRing{Keys: make([]KeyEntry, 0, MaxKeysInRing)}
	for i := len(keys) - 1; i >= 0; i-- {
		kr.Add(keys[i])
	}
	return kr
}

// Add adds a new key to the ring, pushing out the oldest if at capacity.
// It returns true if the key was newly added, false if already present.
func (kr *KeyRing) Add(key string) bool {
	for _, entry := range kr.Keys {
		if entry.Key == key {
			return false
		}
	}

	newEntry := KeyEntry{Key: key, InsertedAt: time.Now()}
	kr.Keys = append([]KeyEntry{newEntry}, kr.Keys...)

	if len(kr.Keys) > MaxKeysInRing {
		kr.Keys = kr.Keys[:MaxKeysInRing]
	}

	return true
}

// MostRecentKey returns the most recent key, or empty string if no keys.
func (kr *KeyRing) MostRecentKey() string {
	if len(kr.Keys) == 0 {
		return ""
	}
	return kr.Keys[0].Key
}

// Seal encrypts with the most recent key.
func (kr *KeyRing) Seal(plainText string) (string, error) {
	key := kr.MostRecentKey()
	if key == "" {
		return "", fmt.Errorf("key ring is empty")
	}
	return EncryptAES(plainText, key)
}

// Unseal tries every key in the ring, most recent first.
func (kr *KeyRing) Unseal(cipherText string) (string, error) {
	if len(kr.Keys) == 0 {
		return "", fmt.Errorf("key ring is empty")
	}

	var lastErr error
	for _, entry := range kr.Keys {
		plainText, err := DecryptAES(cipherText, entry.Key)
		if err == nil {
			return plainText, nil
		}
		lastErr = err
	}

	return "", fmt.Errorf("no key in the ring could unseal the data: %w", lastErr)
}
