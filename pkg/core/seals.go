package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// CertificateResolver returns the certificate cited by a seal, or (nil, nil) if it does not exist.
type CertificateResolver func(ctx context.Context, citation Citation) (*Document, error)

// ValidateSeals verifies every seal on doc, most recent first.
//
// Each seal is checked against the document state that existed when it was
// added: the document with that seal and every later seal removed. A seal whose
// certificate citation names id itself is self-signed and is verified with the
// stripped document as its own certificate. doc is never modified.
func ValidateSeals(ctx context.Context, id string, doc Document, resolve CertificateResolver, notary Notary) error {
	current := doc
	for len(current.Seals) > 0 {
		seal, _ := current.LastSeal()
		current = current.WithoutLastSeal()

		var certificate *Document
		if seal.Certificate.ID() == id {
			self := current
			certificate = &self
		} else {
			cert, err := resolve(ctx, seal.Certificate)
			if err != nil {
				if errors.Is(err, ErrValidation) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				return fmt.Errorf("resolve certificate %s: %w", seal.Certificate, err)
			}
			if cert == nil {
				return fmt.Errorf("%w: certificate %s for %s not found", ErrValidation, seal.Certificate, id)
			}
			certificate = cert
		}

		ok, err := notary.Verify(ctx, current, seal, *certificate)
		if err != nil {
			return fmt.Errorf("%w: seal %d of %s: %v", ErrValidation, len(current.Seals), id, err)
		}
		if !ok {
			return fmt.Errorf("%w: seal %d of %s does not match certificate %s", ErrValidation, len(current.Seals), id, seal.Certificate)
		}
	}
	return nil
}

// Digest returns the hex SHA-256 of doc's encoding.
func Digest(codec Codec, doc Document) (string, error) {
	data, err := codec.Encode(doc)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", doc.ID(), err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
