package preview

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"time"

	"golang.org/x/crypto/hkdf"
)

// Two independent 32-byte keys are derived from the application secret:
// one for the keyed token digest, one for shareable-link encryption. HKDF
// with distinct info strings keeps the keys unrelated even though they
// share a source secret, so a weakness in one scheme cannot leak the other
// key.
const (
	tokenKeyInfo = "inkwell/preview-token-digest"
	linkKeyInfo  = "inkwell/shareable-link-encryption"
)

// keys holds the derived key material for the preview service.
type keys struct {
	digest []byte
	link   []byte
}

// deriveKeys expands the application secret into the two purpose-bound keys.
func deriveKeys(secret string) (*keys, error) {
	k := &keys{
		digest: make([]byte, 32),
		link:   make([]byte, 32),
	}

	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(tokenKeyInfo))
	if _, err := io.ReadFull(r, k.digest); err != nil {
		return nil, fmt.Errorf("deriving token digest key: %w", err)
	}

	r = hkdf.New(sha256.New, []byte(secret), nil, []byte(linkKeyInfo))
	if _, err := io.ReadFull(r, k.link); err != nil {
		return nil, fmt.Errorf("deriving link encryption key: %w", err)
	}

	return k, nil
}

// tokenDigest computes the opaque preview token: a hex HMAC-SHA256 over the
// canonical payload string. The same inputs always produce the same token,
// which is what lets validation recompute it from the stored record plus
// the post's current revision.
func (k *keys) tokenDigest(postID string, revision, expiresAt time.Time, nonce string) string {
	payload := postID + "|" +
		revision.UTC().Format(time.RFC3339Nano) + "|" +
		strconv.FormatInt(expiresAt.UTC().UnixMilli(), 10) + "|" +
		nonce

	mac := hmac.New(sha256.New, k.digest)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// tokenEqual compares a supplied token against the expected digest in
// constant time.
func tokenEqual(supplied, expected string) bool {
	return hmac.Equal([]byte(supplied), []byte(expected))
}

// encrypt seals plaintext with AES-256-GCM under the link key. The nonce is
// prepended to the ciphertext so decrypt can extract it.
func (k *keys) encrypt(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(k.link)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	// Nonce is prepended to ciphertext: [nonce][ciphertext+tag]
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// decrypt reverses encrypt. Extracts the nonce from the first N bytes.
// Authentication failure (tampered or wrong-key ciphertext) is an error.
func (k *keys) decrypt(ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(k.link)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ct := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}

	return plaintext, nil
}
