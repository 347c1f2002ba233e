package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/netviz/pkg/domain"
	"github.com/aretw0/netviz/pkg/ports"
)

// EnvelopeKey holds the ciphertext inside an encrypted predicate's data.
const EnvelopeKey = "__encrypted__"

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

type encryptionMiddleware struct {
	next   ports.TripletStore
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that seals each fact's predicate data
// with AES-GCM. Hashes, predicate types and shortnames stay in the clear so the
// store can still index and match facts.
func NewEncryptionMiddleware(config EncryptionConfig) (Middleware, error) {
	if len(config.ActiveKey) != 32 {
		return nil, fmt.Errorf("%w: active key must be 32 bytes (AES-256)", domain.ErrValidation)
	}
	for i, k := range config.FallbackKeys {
		if len(k) != 32 {
			return nil, fmt.Errorf("%w: fallback key %d must be 32 bytes", domain.ErrValidation, i)
		}
	}
	return func(next ports.TripletStore) ports.TripletStore {
		return &encryptionMiddleware{
			next:   next,
			config: config,
		}
	}, nil
}

func (m *encryptionMiddleware) Put(ctx context.Context, facts ...domain.Fact) error {
	sealed := make([]domain.Fact, len(facts))
	for i, f := range facts {
		sealed[i] = f.Clone()
		if len(f.Predicate.Data) == 0 {
			continue
		}

		plainText, err := json.Marshal(f.Predicate.Data)
		if err != nil {
			return fmt.Errorf("failed to marshal predicate data: %w", err)
		}
		ciphertext, err := encrypt(plainText, m.config.ActiveKey)
		if err != nil {
			return fmt.Errorf("failed to encrypt predicate data: %w", err)
		}
		sealed[i].Predicate.Data = map[string]any{
			EnvelopeKey: base64.StdEncoding.EncodeToString(ciphertext),
		}
	}
	return m.next.Put(ctx, sealed...)
}

func (m *encryptionMiddleware) Get(ctx context.Context, pattern domain.Pattern) ([]domain.Fact, error) {
	facts, err := m.next.Get(ctx, pattern)
	if err != nil {
		return nil, err
	}
	for i, f := range facts {
		if len(f.Predicate.Data) == 0 {
			continue
		}

		encryptedStr, ok := f.Predicate.Data[EnvelopeKey].(string)
		if !ok {
			// Plain data under an encrypting store means it was written around us.
			return nil, fmt.Errorf("%w: fact %s is missing its encrypted data envelope", domain.ErrStore, f.Key())
		}
		ciphertext, err := base64.StdEncoding.DecodeString(encryptedStr)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to decode ciphertext base64: %v", domain.ErrStore, err)
		}
		plainText, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
		if err != nil {
			return nil, fmt.Errorf("%w: fact %s: %v", domain.ErrStore, f.Key(), err)
		}
		var data map[string]any
		if err := json.Unmarshal(plainText, &data); err != nil {
			return nil, fmt.Errorf("%w: failed to unmarshal decrypted data: %v", domain.ErrStore, err)
		}
		facts[i].Predicate.Data = data
	}
	return facts, nil
}

func (m *encryptionMiddleware) Delete(ctx context.Context, facts ...domain.Fact) error {
	return m.next.Delete(ctx, facts...)
}

// Helpers

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	ciphertextBytes := ciphertext[gcm.NonceSize():]

	return gcm.Open(nil, nonce, ciphertextBytes, nil)
}
