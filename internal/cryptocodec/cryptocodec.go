// Package cryptocodec wraps passphrase-based authenticated encryption of a
// byte stream using the age format (filippo.io/age, scrypt recipient). The
// codec never caches derived keys between files: every call re-derives the
// key from the passphrase supplied to it.
package cryptocodec

import (
	"fmt"
	"io"

	"filippo.io/age"
)

// EncryptStream writes a self-contained age-encrypted container of the
// bytes read from src to dst, including the key-derivation parameters
// needed for later decryption. It flushes and finalizes before returning.
func EncryptStream(passphrase string, dst io.Writer, src io.Reader) error {
	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("cryptocodec: scrypt recipient: %w", err)
	}

	w, err := age.Encrypt(dst, recipient)
	if err != nil {
		return fmt.Errorf("cryptocodec: encrypt init: %w", err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("cryptocodec: encrypt copy: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("cryptocodec: encrypt finalize: %w", err)
	}
	return nil
}

// DecryptStream returns a reader over the plaintext of src, given the same
// passphrase used to encrypt. Tampering, truncation, or a wrong passphrase
// surface as an error either immediately (bad header) or from the Read call
// that reaches the damaged chunk (bad MAC), never silently yielding wrong
// plaintext. Plaintext of the intact chunks before the damage is returned
// by the earlier Read calls.
func DecryptStream(passphrase string, src io.Reader) (io.Reader, error) {
	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("cryptocodec: scrypt identity: %w", err)
	}
	r, err := age.Decrypt(src, identity)
	if err != nil {
		return nil, fmt.Errorf("cryptocodec: decrypt init: %w", err)
	}
	return r, nil
}
