// Package wallet holds the follower's signing key and the wire-level
// transaction codec used to sign swap payloads.
package wallet

import (
	"crypto/ed25519"
	"fmt"

	"github.com/mr-tron/base58"
)

// Keypair wraps the follower's ed25519 signing key. The raw secret is never
// exposed through String or log formatting.
type Keypair struct {
	priv   ed25519.PrivateKey
	pubkey string
}

// KeypairFromBase58 parses a base58-encoded secret key. Accepts the standard
// 64-byte secret (seed || pubkey) and the 32-byte seed form.
func KeypairFromBase58(encoded string) (*Keypair, error) {
	raw, err := base58.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode secret key: %w", err)
	}

	var priv ed25519.PrivateKey
	switch len(raw) {
	case ed25519.PrivateKeySize:
		priv = ed25519.PrivateKey(raw)
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(raw)
	default:
		return nil, fmt.Errorf("secret key must be %d or %d bytes, got %d",
			ed25519.PrivateKeySize, ed25519.SeedSize, len(raw))
	}

	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("derive public key")
	}

	return &Keypair{
		priv:   priv,
		pubkey: base58.Encode(pub),
	}, nil
}

// PublicKey returns the base58-encoded public key.
func (k *Keypair) PublicKey() string {
	return k.pubkey
}

// Sign signs a message with the secret key.
func (k *Keypair) Sign(message []byte) []byte {
	return ed25519.Sign(k.priv, message)
}

// String redacts the key material.
func (k *Keypair) String() string {
	return fmt.Sprintf("Keypair(%s)", k.pubkey)
}
