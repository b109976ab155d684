package storage

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha512"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// pbkdf2Rounds and pbkdf2SaltStr are fixed per the storage format: unlike a
// password-hashing KDF, this is a domain separator for deriving a
// storage-encryption key from a passphrase the caller already validated
// elsewhere, not the sole defense against a weak passphrase.
const (
	pbkdf2Rounds  = 100
	pbkdf2KeyLen  = 32
	pbkdf2SaltStr = "tangle-wallet-core/storage/v1"
)

// EncryptedBlob is an encrypted account or mnemonic record for storage.
type EncryptedBlob struct {
	Version    int    `json:"version"`
	Ciphertext []byte `json:"ciphertext"`
	Nonce      []byte `json:"nonce"`
}

func deriveStorageKey(passphrase string) []byte {
	return pbkdf2.Key([]byte(passphrase), []byte(pbkdf2SaltStr), pbkdf2Rounds, pbkdf2KeyLen, sha512.New)
}

// Encrypt encrypts plaintext under a key derived from passphrase via
// PBKDF2-HMAC-SHA512.
func Encrypt(plaintext []byte, passphrase string) (*EncryptedBlob, error) {
	key := deriveStorageKey(passphrase)
	defer SecureClear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("storage: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("storage: create GCM: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("storage: generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)
	return &EncryptedBlob{Version: 1, Ciphertext: ciphertext, Nonce: nonce}, nil
}

// Decrypt reverses Encrypt. When the passphrase is wrong (GCM auth
// failure) it returns an error wrapping the cipher's own error; it does
// not return walleterr.ErrStorageIsEncrypted.
func Decrypt(blob *EncryptedBlob, passphrase string) ([]byte, error) {
	key := deriveStorageKey(passphrase)
	defer SecureClear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("storage: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("storage: create GCM: %w", err)
	}
	plaintext, err := gcm.Open(nil, blob.Nonce, blob.Ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: decrypt (wrong passphrase?): %w", err)
	}
	return plaintext, nil
}

// SecureClear overwrites a byte slice with zeros.
func SecureClear(data []byte) {
	for i := range data {
		data[i] = 0
	}
}
