// Package notary signs documents with an Ed25519 key and verifies seals
// against certificate documents.
package notary

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aretw0/nebula/pkg/core"
	"gopkg.in/yaml.v3"
)

// Algorithm is the signature algorithm recorded in certificates.
const Algorithm = "ed25519"

// Certificate attribute keys.
const (
	AlgorithmKey = "algorithm"
	PublicKeyKey = "publicKey"
)

// Notary implements core.Notary with a private key and its self-signed certificate.
type Notary struct {
	key         ed25519.PrivateKey
	certificate core.Document
	citation    core.Citation
	codec       core.Codec
}

// Generate creates a new key pair and a self-signed certificate for it.
func Generate(codec core.Codec) (*Notary, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate Ed25519 key pair: %w", err)
	}

	cert := core.Document{
		Type:    core.TypeCertificate,
		Tag:     core.NewTag(),
		Version: core.Version{1},
		Attributes: core.Metadata{
			AlgorithmKey: Algorithm,
			PublicKeyKey: hex.EncodeToString(pub),
		},
	}
	n := &Notary{key: priv, codec: codec}

	data, err := codec.Encode(cert)
	if err != nil {
		return nil, err
	}
	cert = cert.WithSeal(core.Seal{
		Certificate: cert.Citation(),
		Signature:   hex.EncodeToString(ed25519.Sign(priv, data)),
	})
	if err := n.setCertificate(cert); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *Notary) setCertificate(cert core.Document) error {
	digest, err := core.Digest(n.codec, cert)
	if err != nil {
		return err
	}
	n.certificate = cert
	n.citation = cert.Citation()
	n.citation.Digest = digest
	return nil
}

// Certificate returns the notary's sealed certificate.
func (n *Notary) Certificate() core.Document {
	return n.certificate.Clone()
}

// Citation returns the citation of the certificate, including its digest.
func (n *Notary) Citation() core.Citation {
	return n.citation.Clone()
}

// Sign implements core.Notary.
func (n *Notary) Sign(ctx context.Context, doc core.Document) (core.Seal, error) {
	data, err := n.codec.Encode(doc)
	if err != nil {
		return core.Seal{}, err
	}
	return core.Seal{
		Certificate: n.Citation(),
		Signature:   hex.EncodeToString(ed25519.Sign(n.key, data)),
	}, nil
}

// Verify implements core.Notary.
func (n *Notary) Verify(ctx context.Context, doc core.Document, seal core.Seal, certificate core.Document) (bool, error) {
	return Verify(n.codec, doc, seal, certificate)
}

// Verify checks seal over doc with the public key held by certificate.
// It returns false for a malformed key or signature.
func Verify(codec core.Codec, doc core.Document, seal core.Seal, certificate core.Document) (bool, error) {
	if certificate.Type != core.TypeCertificate {
		return false, fmt.Errorf("%s is not a certificate", certificate.ID())
	}
	if alg, _ := certificate.Attributes[AlgorithmKey].(string); alg != Algorithm {
		return false, fmt.Errorf("unsupported algorithm %q", alg)
	}
	keyHex, _ := certificate.Attributes[PublicKeyKey].(string)
	publicKey, err := hex.DecodeString(keyHex)
	if err != nil || len(publicKey) != ed25519.PublicKeySize {
		return false, nil
	}
	signature, err := hex.DecodeString(seal.Signature)
	if err != nil || len(signature) != ed25519.SignatureSize {
		return false, nil
	}
	data, err := codec.Encode(doc)
	if err != nil {
		return false, err
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), data, signature), nil
}

// Credentials returns a freshly notarized document citing the notary's certificate.
// Remote repositories send it with every request.
func (n *Notary) Credentials(ctx context.Context) (core.Document, error) {
	creds := core.Document{
		Type:    core.TypeCredentials,
		Tag:     core.NewTag(),
		Version: core.Version{1},
		Attributes: core.Metadata{
			"certificate": n.citation.String(),
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
		},
	}
	seal, err := n.Sign(ctx, creds)
	if err != nil {
		return core.Document{}, err
	}
	return creds.WithSeal(seal), nil
}

// keyFile is the on-disk form of a notary.
type keyFile struct {
	PrivateKey  string        `yaml:"privateKey"`
	Certificate core.Document `yaml:"certificate"`
}

// Save writes the private key and certificate to path with owner-only permissions.
func (n *Notary) Save(path string) error {
	data, err := yaml.Marshal(keyFile{
		PrivateKey:  hex.EncodeToString(n.key),
		Certificate: n.certificate,
	})
	if err != nil {
		return fmt.Errorf("failed to encode key file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: key file %s", core.ErrAlreadyExists, path)
		}
		return fmt.Errorf("failed to create key file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return f.Close()
}

// Load reads a notary written by Save.
func Load(path string, codec core.Codec) (*Notary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	var kf keyFile
	if err := yaml.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("invalid key file %s: %w", path, err)
	}
	key, err := hex.DecodeString(kf.PrivateKey)
	if err != nil || len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid private key in %s", path)
	}
	n := &Notary{key: ed25519.PrivateKey(key), codec: codec}
	if err := n.setCertificate(kf.Certificate); err != nil {
		return nil, err
	}
	seal, ok := kf.Certificate.LastSeal()
	if !ok {
		return nil, fmt.Errorf("certificate in %s is not sealed", path)
	}
	valid, err := Verify(codec, kf.Certificate.WithoutLastSeal(), seal, kf.Certificate.WithoutLastSeal())
	if err != nil || !valid {
		return nil, fmt.Errorf("certificate in %s does not match its seal", path)
	}
	keyHex, _ := kf.Certificate.Attributes[PublicKeyKey].(string)
	if keyHex != hex.EncodeToString(n.key.Public().(ed25519.PublicKey)) {
		return nil, fmt.Errorf("certificate in %s does not belong to its private key", path)
	}
	return n, nil
}

var _ core.Notary = (*Notary)(nil)
