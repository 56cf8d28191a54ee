// Package crypto implements the streaming password+salt decryptor used
// by the acquisition pipeline, generalized from the teacher's
// pkg/compression chained reader/writer codecs (gzip/lz4/snappy, each
// wrapping an io.Writer without buffering the whole payload) into an
// AES-CTR decrypt stream authenticated by an HMAC-SHA256 trailer.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"hash"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/nrms/data-bridge/pkg/apperr"
)

const (
	saltIterations = 100000
	keyLen         = 32 // AES-256
	ivLen          = aes.BlockSize
	macLen         = sha256.Size
)

// deriveKey turns (password, salt) into a 32-byte AES key via PBKDF2,
// the same password+salt derivation the spec names as the sole key
// material for every source key's decryption.
func deriveKey(password, salt string) []byte {
	return pbkdf2.Key([]byte(password), []byte(salt), saltIterations, keyLen, sha256.New)
}

// Decrypt reads at most encryptedLength bytes from in — a fixed-size IV
// prefix, the ciphertext body, and a trailing HMAC tag — decrypts the
// body with AES-256-CTR keyed by PBKDF2(password, salt), and writes the
// plaintext to out. It never buffers the whole payload: ciphertext is
// read and written in fixed-size chunks through a cipher.StreamWriter.
//
// Authentication is verified only after every ciphertext byte has been
// consumed, by comparing a running HMAC-SHA256 of the ciphertext against
// the trailing tag. A mismatch, or fewer than ivLen+macLen bytes of
// input, returns a CryptoError.
func Decrypt(in io.Reader, out io.Writer, password, salt string, encryptedLength int64) error {
	if encryptedLength < ivLen+macLen {
		return apperr.New(apperr.KindCrypto, "crypto", "Decrypt", "encrypted length too short for iv+mac")
	}

	key := deriveKey(password, salt)

	iv := make([]byte, ivLen)
	if _, err := io.ReadFull(in, iv); err != nil {
		return apperr.Wrap(apperr.KindCrypto, "crypto", "Decrypt", "truncated stream reading iv", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return apperr.Wrap(apperr.KindCrypto, "crypto", "Decrypt", "cipher init failed", err)
	}

	stream := cipher.NewCTR(block, iv)
	mac := hmac.New(sha256.New, key)
	mac.Write(iv)

	bodyLen := encryptedLength - ivLen - macLen
	limited := io.LimitReader(in, bodyLen)
	teed := io.TeeReader(limited, mac)

	decryptWriter := &cipher.StreamWriter{S: stream, W: out}

	written, err := io.Copy(decryptWriter, teed)
	if err != nil {
		return apperr.Wrap(apperr.KindCrypto, "crypto", "Decrypt", "stream copy failed", err)
	}
	if written != bodyLen {
		return apperr.New(apperr.KindCrypto, "crypto", "Decrypt", "truncated ciphertext body")
	}

	if err := verifyTrailer(in, mac); err != nil {
		return err
	}

	return nil
}

func verifyTrailer(in io.Reader, mac hash.Hash) error {
	tag := make([]byte, macLen)
	if _, err := io.ReadFull(in, tag); err != nil {
		return apperr.Wrap(apperr.KindCrypto, "crypto", "Decrypt", "truncated stream reading mac trailer", err)
	}

	if !hmac.Equal(tag, mac.Sum(nil)) {
		return apperr.New(apperr.KindCrypto, "crypto", "Decrypt", "authentication tag mismatch")
	}

	return nil
}
