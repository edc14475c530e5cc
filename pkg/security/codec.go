package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrMalformedValue   = errors.New("malformed protected value")
	ErrDecryptionFailed = errors.New("decryption failed")
	ErrEmptyKey         = errors.New("encryption key must not be empty")
)

// Codec converts between cleartext values and protected values. A protected
// value is the opaque string "<iv-hex>:<ciphertext-hex>" produced by AES-256-CBC
// over the canonical JSON form of the input. Safe for concurrent use.
type Codec struct {
	block cipher.Block
}

// NewCodec builds a codec from the configured secret. A secret of exactly
// 32 bytes is used as-is; any other length is normalized with SHA-256 so the
// cipher always sees a fixed-width key.
func NewCodec(secret string) (*Codec, error) {
	if secret == "" {
		return nil, ErrEmptyKey
	}

	key := []byte(secret)
	if len(key) != 32 {
		sum := sha256.Sum256(key)
		key = sum[:]
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}

	return &Codec{block: block}, nil
}

// Encode serializes v to JSON and encrypts it under a fresh random IV.
func (c *Codec) Encode(v interface{}) (string, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to serialize value: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("failed to generate iv: %w", err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(ciphertext, padded)

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(ciphertext), nil
}

// Decode parses the transport form, decrypts, and deserializes into out.
// Returns ErrMalformedValue when the input is not two hex components joined
// by ':' and ErrDecryptionFailed on any cryptographic or JSON error.
func (c *Codec) Decode(protected string, out interface{}) error {
	parts := strings.Split(protected, ":")
	if len(parts) != 2 {
		return ErrMalformedValue
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != aes.BlockSize {
		return ErrMalformedValue
	}

	ciphertext, err := hex.DecodeString(parts[1])
	if err != nil {
		return ErrMalformedValue
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return ErrDecryptionFailed
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(plaintext, ciphertext)

	plaintext, err = pkcs7Unpad(plaintext, aes.BlockSize)
	if err != nil {
		return ErrDecryptionFailed
	}

	if err := json.Unmarshal(plaintext, out); err != nil {
		return ErrDecryptionFailed
	}
	return nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	pad := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(pad)}, pad)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("invalid padded length")
	}
	pad := int(data[len(data)-1])
	if pad == 0 || pad > blockSize || pad > len(data) {
		return nil, errors.New("invalid padding")
	}
	for _, b := range data[len(data)-pad:] {
		if int(b) != pad {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-pad], nil
}
