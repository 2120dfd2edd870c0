package wallet

import (
	"bytes"
	"encoding/base64"
	"testing"

	"github.com/mr-tron/base58"
)

// buildMessage assembles a minimal one-signer message with the given signer
// key in the first slot, optionally carrying the v0 version prefix.
func buildMessage(t *testing.T, signer string, versioned bool) []byte {
	t.Helper()

	signerBytes, err := base58.Decode(signer)
	if err != nil {
		t.Fatalf("decode signer: %v", err)
	}

	var msg []byte
	if versioned {
		msg = append(msg, 0x80) // version 0 prefix
	}
	msg = append(msg, 1, 0, 1) // 1 required signer, 0 ro signed, 1 ro unsigned
	msg = append(msg, encodeShortVec(2)...)
	msg = append(msg, signerBytes...)
	msg = append(msg, bytes.Repeat([]byte{9}, 32)...) // second account key
	msg = append(msg, bytes.Repeat([]byte{3}, 32)...) // recent blockhash
	return msg
}

// buildWireTransaction prepends an empty signature slot to a message.
func buildWireTransaction(msg []byte) []byte {
	out := encodeShortVec(1)
	out = append(out, make([]byte, signatureSize)...)
	return append(out, msg...)
}

func TestDecodeTransaction_Versioned(t *testing.T) {
	kp, err := KeypairFromBase58(base58.Encode(bytes.Repeat([]byte{7}, 32)))
	if err != nil {
		t.Fatalf("KeypairFromBase58: %v", err)
	}

	raw := buildWireTransaction(buildMessage(t, kp.PublicKey(), true))
	tx, err := DecodeTransaction(raw)
	if err != nil {
		t.Fatalf("DecodeTransaction: %v", err)
	}
	if tx.Version != TxVersionV0 {
		t.Fatalf("expected versioned format, got %s", tx.Version)
	}
	if len(tx.Signatures) != 1 {
		t.Fatalf("expected 1 signature slot, got %d", len(tx.Signatures))
	}
}

func TestDecodeTransaction_LegacyFallback(t *testing.T) {
	kp, err := KeypairFromBase58(base58.Encode(bytes.Repeat([]byte{7}, 32)))
	if err != nil {
		t.Fatalf("KeypairFromBase58: %v", err)
	}

	raw := buildWireTransaction(buildMessage(t, kp.PublicKey(), false))
	tx, err := DecodeTransaction(raw)
	if err != nil {
		t.Fatalf("DecodeTransaction: %v", err)
	}
	if tx.Version != TxVersionLegacy {
		t.Fatalf("expected legacy format, got %s", tx.Version)
	}
}

func TestDecodeTransaction_Truncated(t *testing.T) {
	// Claims one signature but carries none.
	raw := encodeShortVec(1)
	if _, err := DecodeTransaction(raw); err == nil {
		t.Fatal("expected error for truncated signatures")
	}

	// Signatures present, empty message.
	raw = buildWireTransaction(nil)
	if _, err := DecodeTransaction(raw); err == nil {
		t.Fatal("expected error for empty message")
	}
}

func TestSignAndSerializeRoundTrip(t *testing.T) {
	kp, err := KeypairFromBase58(base58.Encode(bytes.Repeat([]byte{7}, 32)))
	if err != nil {
		t.Fatalf("KeypairFromBase58: %v", err)
	}

	encoded := base64.StdEncoding.EncodeToString(buildWireTransaction(buildMessage(t, kp.PublicKey(), true)))
	tx, err := DecodeTransactionBase64(encoded)
	if err != nil {
		t.Fatalf("DecodeTransactionBase64: %v", err)
	}

	if tx.FullySigned() {
		t.Fatal("placeholder slots should not count as signed")
	}

	if err := tx.Sign(kp); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !tx.FullySigned() {
		t.Fatal("expected fully signed after Sign")
	}
	if !tx.VerifySignature(0) {
		t.Fatal("signature did not verify against signer key")
	}

	// The serialized form decodes back to an identical transaction.
	again, err := DecodeTransaction(tx.Serialize())
	if err != nil {
		t.Fatalf("re-decode: %v", err)
	}
	if !bytes.Equal(again.Message, tx.Message) {
		t.Fatal("message changed across serialize round trip")
	}
	if !bytes.Equal(again.Signatures[0], tx.Signatures[0]) {
		t.Fatal("signature changed across serialize round trip")
	}
	if !again.VerifySignature(0) {
		t.Fatal("re-decoded signature did not verify")
	}
}

func TestSign_RejectsNonSigner(t *testing.T) {
	signerKp, err := KeypairFromBase58(base58.Encode(bytes.Repeat([]byte{7}, 32)))
	if err != nil {
		t.Fatalf("KeypairFromBase58: %v", err)
	}
	otherKp, err := KeypairFromBase58(base58.Encode(bytes.Repeat([]byte{8}, 32)))
	if err != nil {
		t.Fatalf("KeypairFromBase58: %v", err)
	}

	tx, err := DecodeTransaction(buildWireTransaction(buildMessage(t, signerKp.PublicKey(), true)))
	if err != nil {
		t.Fatalf("DecodeTransaction: %v", err)
	}

	if err := tx.Sign(otherKp); err == nil {
		t.Fatal("expected error signing with a non-signer key")
	}
}

func TestBuildCreateAssociatedAccountTransaction(t *testing.T) {
	kp, err := KeypairFromBase58(base58.Encode(bytes.Repeat([]byte{7}, 32)))
	if err != nil {
		t.Fatalf("KeypairFromBase58: %v", err)
	}
	blockhash := base58.Encode(bytes.Repeat([]byte{5}, 32))

	tx, err := BuildCreateAssociatedAccountTransaction(kp.PublicKey(), WSOLMint, blockhash)
	if err != nil {
		t.Fatalf("BuildCreateAssociatedAccountTransaction: %v", err)
	}

	if tx.Version != TxVersionLegacy {
		t.Fatalf("expected legacy transaction, got %s", tx.Version)
	}
	if err := tx.Sign(kp); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !tx.VerifySignature(0) {
		t.Fatal("signature did not verify")
	}

	// The wire form decodes back with the payer as sole signer.
	again, err := DecodeTransaction(tx.Serialize())
	if err != nil {
		t.Fatalf("re-decode: %v", err)
	}
	if again.Version != TxVersionLegacy {
		t.Fatalf("expected legacy round trip, got %s", again.Version)
	}
	if len(again.signerKeys) != 1 || again.signerKeys[0] != kp.PublicKey() {
		t.Fatalf("unexpected signers: %v", again.signerKeys)
	}

	if _, err := BuildCreateAssociatedAccountTransaction(kp.PublicKey(), WSOLMint, "bogus"); err == nil {
		t.Fatal("expected error for invalid blockhash")
	}
}

func TestShortVecRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 0x7f, 0x80, 0xff, 0x100, 0x3fff, 0x4000} {
		encoded := encodeShortVec(n)
		value, consumed, err := decodeShortVec(encoded)
		if err != nil {
			t.Fatalf("decodeShortVec(%d): %v", n, err)
		}
		if value != n || consumed != len(encoded) {
			t.Fatalf("round trip %d: got value %d consumed %d of %d", n, value, consumed, len(encoded))
		}
	}

	if _, _, err := decodeShortVec(nil); err == nil {
		t.Fatal("expected error for empty input")
	}
	if _, _, err := decodeShortVec([]byte{0x80, 0x80, 0x80}); err == nil {
		t.Fatal("expected error for overlong prefix")
	}
}
