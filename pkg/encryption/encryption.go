package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the AES-256 key length in bytes
const KeySize = 32

// formatV1 prefixes every sealed blob so the layout can change later
const formatV1 byte = 1

var (
	// ErrInvalidKey is returned when a key is not KeySize bytes long
	ErrInvalidKey = errors.New("encryption key must be 32 bytes")
	// ErrMalformed is returned when a sealed blob cannot be parsed
	ErrMalformed = errors.New("malformed encrypted value")
)

// EncryptionConfig holds encryption configuration
type EncryptionConfig struct {
	// Algorithm is reported in EncryptedData; only AES-256-GCM is implemented
	Algorithm string
	// Info binds derived keys to a purpose (HKDF info parameter)
	Info string
}

// DefaultEncryptionConfig returns default encryption configuration
func DefaultEncryptionConfig() *EncryptionConfig {
	return &EncryptionConfig{
		Algorithm: "AES-256-GCM",
		Info:      "consolesettings secure values v1",
	}
}

// Encryptor defines the interface for encryption operations
type Encryptor interface {
	// Encrypt encrypts data with the given key
	Encrypt(data []byte, key []byte) (*EncryptedData, error)
	// Decrypt decrypts encrypted data with the given key
	Decrypt(encryptedData *EncryptedData, key []byte) ([]byte, error)
	// GenerateKey generates a new random key
	GenerateKey() ([]byte, error)
	// DeriveKey derives a purpose-bound key from a master key and salt
	DeriveKey(master, salt []byte) ([]byte, error)
}

// EncryptedData represents encrypted data with its nonce
type EncryptedData struct {
	Data      []byte `json:"data"`
	IV        []byte `json:"iv"`
	Algorithm string `json:"algorithm"`
}

// Marshal packs the data as version || nonce || ciphertext
func (d *EncryptedData) Marshal() []byte {
	out := make([]byte, 0, 1+len(d.IV)+len(d.Data))
	out = append(out, formatV1)
	out = append(out, d.IV...)
	return append(out, d.Data...)
}

// Unmarshal parses a blob produced by Marshal
func Unmarshal(blob []byte) (*EncryptedData, error) {
	const nonceSize = 12
	if len(blob) < 1+nonceSize {
		return nil, ErrMalformed
	}
	if blob[0] != formatV1 {
		return nil, fmt.Errorf("%w: unknown format version %d", ErrMalformed, blob[0])
	}
	return &EncryptedData{
		IV:        append([]byte(nil), blob[1:1+nonceSize]...),
		Data:      append([]byte(nil), blob[1+nonceSize:]...),
		Algorithm: "AES-256-GCM",
	}, nil
}

// aesGCMEncryptor implements AES-GCM encryption
type aesGCMEncryptor struct {
	config *EncryptionConfig
}

// NewAESGCMEncryptor creates a new AES-GCM encryptor
func NewAESGCMEncryptor(config *EncryptionConfig) Encryptor {
	if config == nil {
		config = DefaultEncryptionConfig()
	}
	return &aesGCMEncryptor{config: config}
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Encrypt encrypts data using AES-GCM with a random nonce
func (e *aesGCMEncryptor) Encrypt(data []byte, key []byte) (*EncryptedData, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("failed to generate IV: %w", err)
	}

	return &EncryptedData{
		Data:      gcm.Seal(nil, iv, data, nil),
		IV:        iv,
		Algorithm: e.config.Algorithm,
	}, nil
}

// Decrypt decrypts and authenticates data using AES-GCM
func (e *aesGCMEncryptor) Decrypt(encryptedData *EncryptedData, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(encryptedData.IV) != gcm.NonceSize() {
		return nil, ErrMalformed
	}

	plaintext, err := gcm.Open(nil, encryptedData.IV, encryptedData.Data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt data: %w", err)
	}
	return plaintext, nil
}

// GenerateKey generates a new 256-bit encryption key
func (e *aesGCMEncryptor) GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate encryption key: %w", err)
	}
	return key, nil
}

// DeriveKey derives a 256-bit key with HKDF-SHA256
func (e *aesGCMEncryptor) DeriveKey(master, salt []byte) ([]byte, error) {
	if len(master) == 0 {
		return nil, ErrInvalidKey
	}
	key := make([]byte, KeySize)
	r := hkdf.New(sha256.New, master, salt, []byte(e.config.Info))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return key, nil
}

// Sealer encrypts values with one fixed data key
type Sealer struct {
	encryptor Encryptor
	key       []byte
}

// NewSealer derives a data key from master and returns a Sealer bound to it
func NewSealer(config *EncryptionConfig, master, salt []byte) (*Sealer, error) {
	encryptor := NewAESGCMEncryptor(config)
	key, err := encryptor.DeriveKey(master, salt)
	if err != nil {
		return nil, err
	}
	return &Sealer{encryptor: encryptor, key: key}, nil
}

// Seal encrypts plaintext into a self-describing blob
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	data, err := s.encryptor.Encrypt(plaintext, s.key)
	if err != nil {
		return nil, err
	}
	return data.Marshal(), nil
}

// Open decrypts a blob produced by Seal
func (s *Sealer) Open(blob []byte) ([]byte, error) {
	data, err := Unmarshal(blob)
	if err != nil {
		return nil, err
	}
	return s.encryptor.Decrypt(data, s.key)
}
