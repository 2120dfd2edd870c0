package wallet

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"

	"github.com/mr-tron/base58"
)

// TransactionVersion tags the wire format of a decoded transaction.
type TransactionVersion string

// Supported wire formats.
const (
	TxVersionLegacy TransactionVersion = "legacy"
	TxVersionV0     TransactionVersion = "versioned"
)

// signatureSize is the length of an ed25519 signature.
const signatureSize = 64

// DecodedTransaction is a wire transaction split into its signature slots and
// the message payload that signatures cover.
type DecodedTransaction struct {
	Version    TransactionVersion
	Signatures [][]byte // one 64-byte slot per required signer
	Message    []byte   // raw message bytes, the signed payload

	signerKeys []string // base58 static keys occupying signature slots
}

// DecodeTransactionBase64 decodes a base64-encoded transaction payload.
// Versioned-format decoding is attempted first with a fallback to the legacy
// format, matching what the swap API may return for either.
func DecodeTransactionBase64(encoded string) (*DecodedTransaction, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode base64 transaction: %w", err)
	}
	return DecodeTransaction(raw)
}

// DecodeTransaction decodes a raw wire transaction.
func DecodeTransaction(raw []byte) (*DecodedTransaction, error) {
	sigCount, n, err := decodeShortVec(raw)
	if err != nil {
		return nil, fmt.Errorf("decode signature count: %w", err)
	}

	offset := n
	if len(raw) < offset+sigCount*signatureSize {
		return nil, fmt.Errorf("truncated signatures: need %d bytes, have %d",
			sigCount*signatureSize, len(raw)-offset)
	}

	sigs := make([][]byte, sigCount)
	for i := 0; i < sigCount; i++ {
		sig := make([]byte, signatureSize)
		copy(sig, raw[offset:offset+signatureSize])
		sigs[i] = sig
		offset += signatureSize
	}

	message := make([]byte, len(raw)-offset)
	copy(message, raw[offset:])
	if len(message) == 0 {
		return nil, fmt.Errorf("empty transaction message")
	}

	tx := &DecodedTransaction{Signatures: sigs, Message: message}

	// Versioned first, legacy fallback.
	signers, err := parseMessageSigners(message, true)
	if err == nil {
		tx.Version = TxVersionV0
		tx.signerKeys = signers
		return tx, nil
	}

	signers, legacyErr := parseMessageSigners(message, false)
	if legacyErr != nil {
		return nil, fmt.Errorf("parse message: versioned: %v; legacy: %w", err, legacyErr)
	}
	tx.Version = TxVersionLegacy
	tx.signerKeys = signers
	return tx, nil
}

// parseMessageSigners extracts the base58 keys occupying signature slots.
// For versioned messages the leading byte carries the version in its low
// bits with the high bit set; legacy messages start directly with the header.
func parseMessageSigners(message []byte, versioned bool) ([]string, error) {
	offset := 0

	if versioned {
		if len(message) < 1 || message[0]&0x80 == 0 {
			return nil, fmt.Errorf("missing version prefix")
		}
		if v := message[0] & 0x7f; v != 0 {
			return nil, fmt.Errorf("unsupported message version %d", v)
		}
		offset = 1
	} else if len(message) > 0 && message[0]&0x80 != 0 {
		return nil, fmt.Errorf("version prefix present in legacy message")
	}

	if len(message) < offset+3 {
		return nil, fmt.Errorf("truncated message header")
	}
	numRequired := int(message[offset])
	offset += 3

	keyCount, n, err := decodeShortVec(message[offset:])
	if err != nil {
		return nil, fmt.Errorf("decode account key count: %w", err)
	}
	offset += n

	if keyCount < numRequired {
		return nil, fmt.Errorf("account keys (%d) fewer than required signers (%d)", keyCount, numRequired)
	}
	if len(message) < offset+keyCount*32+32 {
		return nil, fmt.Errorf("truncated account keys")
	}

	signers := make([]string, numRequired)
	for i := 0; i < numRequired; i++ {
		signers[i] = base58.Encode(message[offset+i*32 : offset+(i+1)*32])
	}

	return signers, nil
}

// Sign fills the keypair's signature slot. The signature slot count must
// match the message's required-signer count; the swap API returns payloads
// with zeroed placeholder slots.
func (t *DecodedTransaction) Sign(kp *Keypair) error {
	idx := -1
	for i, key := range t.signerKeys {
		if key == kp.PublicKey() {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("wallet %s is not a required signer", kp.PublicKey())
	}

	for len(t.Signatures) < len(t.signerKeys) {
		t.Signatures = append(t.Signatures, make([]byte, signatureSize))
	}

	t.Signatures[idx] = kp.Sign(t.Message)
	return nil
}

// FullySigned reports whether every signature slot holds a non-zero signature.
func (t *DecodedTransaction) FullySigned() bool {
	if len(t.Signatures) < len(t.signerKeys) {
		return false
	}
	zero := make([]byte, signatureSize)
	for _, sig := range t.Signatures {
		if bytes.Equal(sig, zero) {
			return false
		}
	}
	return len(t.Signatures) > 0
}

// Serialize re-encodes the transaction to wire bytes.
func (t *DecodedTransaction) Serialize() []byte {
	out := encodeShortVec(len(t.Signatures))
	for _, sig := range t.Signatures {
		out = append(out, sig...)
	}
	return append(out, t.Message...)
}

// SerializeBase64 re-encodes the transaction to base64 for submission.
func (t *DecodedTransaction) SerializeBase64() string {
	return base64.StdEncoding.EncodeToString(t.Serialize())
}

// BuildCreateAssociatedAccountTransaction builds an unsigned legacy
// transaction creating the payer's associated token account for a mint.
// Uses the idempotent instruction so a concurrent create cannot fail it.
func BuildCreateAssociatedAccountTransaction(payer, mint, recentBlockhash string) (*DecodedTransaction, error) {
	ata, err := DeriveAssociatedTokenAccount(payer, mint)
	if err != nil {
		return nil, fmt.Errorf("derive associated account: %w", err)
	}

	blockhashBytes, err := base58.Decode(recentBlockhash)
	if err != nil || len(blockhashBytes) != 32 {
		return nil, fmt.Errorf("invalid blockhash %q", recentBlockhash)
	}

	// Account ordering: writable signer, writable non-signer, readonly
	// non-signers (programs last).
	keys := []string{payer, ata, mint, SystemProgram, TokenProgram, AssociatedTokenProgram}

	message := []byte{
		1, // numRequiredSignatures
		0, // numReadonlySignedAccounts
		4, // numReadonlyUnsignedAccounts: mint, system, token, ata program
	}
	message = append(message, encodeShortVec(len(keys))...)
	for _, key := range keys {
		keyBytes, err := base58.Decode(key)
		if err != nil || len(keyBytes) != 32 {
			return nil, fmt.Errorf("invalid account key %q", key)
		}
		message = append(message, keyBytes...)
	}
	message = append(message, blockhashBytes...)

	// Single CreateIdempotent instruction:
	// accounts [payer, ata, owner(=payer), mint, system, token]
	message = append(message, encodeShortVec(1)...)
	message = append(message, 5) // program ID index: AssociatedTokenProgram
	message = append(message, encodeShortVec(6)...)
	message = append(message, 0, 1, 0, 2, 3, 4)
	message = append(message, encodeShortVec(1)...)
	message = append(message, 1) // CreateIdempotent discriminator

	return &DecodedTransaction{
		Version:    TxVersionLegacy,
		Signatures: [][]byte{make([]byte, signatureSize)},
		Message:    message,
		signerKeys: []string{payer},
	}, nil
}

// VerifySignature checks a filled slot against its signer key. Test helper
// quality of life; submission relies on the cluster's own verification.
func (t *DecodedTransaction) VerifySignature(idx int) bool {
	if idx < 0 || idx >= len(t.Signatures) || idx >= len(t.signerKeys) {
		return false
	}
	pub, err := base58.Decode(t.signerKeys[idx])
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), t.Message, t.Signatures[idx])
}

// encodeShortVec encodes a compact-u16 length prefix.
func encodeShortVec(n int) []byte {
	var out []byte
	for {
		if n < 0x80 {
			return append(out, byte(n))
		}
		out = append(out, byte(n&0x7f)|0x80)
		n >>= 7
	}
}

// decodeShortVec decodes a compact-u16 length prefix, returning the value
// and the number of bytes consumed.
func decodeShortVec(data []byte) (int, int, error) {
	var value, shift int
	for i := 0; i < 3; i++ {
		if i >= len(data) {
			return 0, 0, fmt.Errorf("truncated compact-u16")
		}
		b := data[i]
		value |= int(b&0x7f) << shift
		if b&0x80 == 0 {
			return value, i + 1, nil
		}
		shift += 7
	}
	return 0, 0, fmt.Errorf("compact-u16 too long")
}
