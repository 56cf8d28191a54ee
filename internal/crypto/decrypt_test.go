package crypto_test

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/pbkdf2"

	"github.com/nrms/data-bridge/internal/crypto"
	"github.com/nrms/data-bridge/pkg/apperr"
)

// encryptForTest mirrors the production key derivation so tests can
// build a fixture the same shape Decrypt expects: iv || ciphertext || mac.
func encryptForTest(t *testing.T, plaintext []byte, password, salt string) []byte {
	t.Helper()

	key := pbkdf2.Key([]byte(password), []byte(salt), 100000, 32, sha256.New)

	iv := make([]byte, aes.BlockSize)
	_, err := rand.Read(iv)
	require.NoError(t, err)

	block, err := aes.NewCipher(key)
	require.NoError(t, err)

	ciphertext := make([]byte, len(plaintext))
	cipher.NewCTR(block, iv).XORKeyStream(ciphertext, plaintext)

	mac := hmac.New(sha256.New, key)
	mac.Write(iv)
	mac.Write(ciphertext)

	out := append(append([]byte{}, iv...), ciphertext...)
	out = append(out, mac.Sum(nil)...)

	return out
}

func TestDecryptRoundTrip(t *testing.T) {
	plaintext := []byte("REGION|FARM_ID|NAME|CHANGE_TYPE\nNORTH|F001|Alpha|I\n")
	blob := encryptForTest(t, plaintext, "hunter2", "pepper-salt")

	var out bytes.Buffer
	err := crypto.Decrypt(bytes.NewReader(blob), &out, "hunter2", "pepper-salt", int64(len(blob)))
	require.NoError(t, err)
	require.Equal(t, plaintext, out.Bytes())
}

func TestDecryptRejectsTamperedTag(t *testing.T) {
	plaintext := []byte("payload")
	blob := encryptForTest(t, plaintext, "pw", "salt")
	blob[len(blob)-1] ^= 0xFF

	var out bytes.Buffer
	err := crypto.Decrypt(bytes.NewReader(blob), &out, "pw", "salt", int64(len(blob)))
	require.Error(t, err)
	require.True(t, apperr.Is(err, apperr.KindCrypto))
}

func TestDecryptRejectsTruncatedStream(t *testing.T) {
	plaintext := []byte("payload-needs-more-than-one-block-of-data")
	blob := encryptForTest(t, plaintext, "pw", "salt")
	truncated := blob[:len(blob)-5]

	var out bytes.Buffer
	err := crypto.Decrypt(io.NopCloser(bytes.NewReader(truncated)), &out, "pw", "salt", int64(len(blob)))
	require.Error(t, err)
	require.True(t, apperr.Is(err, apperr.KindCrypto))
}
