// Package verify checks detached Minisign signatures on monitor input files.
package verify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	minisign "github.com/jedisct1/go-minisign"
)

// SignatureSuffix is appended to an input path to locate its detached signature.
const SignatureSuffix = ".minisig"

var ErrSignatureMismatch = errors.New("signature verification failed")

// MinisignVerifier verifies payloads signed with Minisign using a trusted public key.
type MinisignVerifier struct {
	publicKey minisign.PublicKey
}

// NewMinisignVerifier parses the provided Minisign public key. Both the bare
// base64 key and the two-line form with an untrusted comment are accepted.
func NewMinisignVerifier(pubKey string) (*MinisignVerifier, error) {
	pubKey = strings.TrimSpace(pubKey)
	if pubKey == "" {
		return nil, errors.New("minisign public key is required")
	}
	if lines := strings.Split(pubKey, "\n"); len(lines) > 1 {
		pubKey = strings.TrimSpace(lines[len(lines)-1])
	}
	publicKey, err := minisign.NewPublicKey(pubKey)
	if err != nil {
		return nil, fmt.Errorf("parse minisign public key: %w", err)
	}
	return &MinisignVerifier{publicKey: publicKey}, nil
}

// Verify validates signature (the contents of a .minisig file) against payload.
func (v *MinisignVerifier) Verify(ctx context.Context, payload, signature []byte) error {
	if v == nil {
		return errors.New("signature verifier not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(signature) == 0 {
		return errors.New("signature is empty")
	}

	sig, err := minisign.DecodeSignature(string(signature))
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	ok, err := v.publicKey.Verify(payload, sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureMismatch, err)
	}
	if !ok {
		return ErrSignatureMismatch
	}
	return nil
}
