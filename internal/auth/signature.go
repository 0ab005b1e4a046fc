package auth

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
)

var (
	ErrInvalidPublicKey = errors.New("invalid public key")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrAddressMismatch  = errors.New("public key does not own the account address")
)

// VerifySignature checks an ed25519 signature over the raw challenge message.
// Key and signature are standard base64.
func VerifySignature(publicKeyB64, message, signatureB64 string) bool {
	return VerifySignatureDetailed(publicKeyB64, message, signatureB64) == nil
}

func VerifySignatureDetailed(publicKeyB64, message, signatureB64 string) error {
	publicKey, err := DecodePublicKey(publicKeyB64)
	if err != nil {
		return err
	}
	if message == "" {
		return ErrInvalidSignature
	}

	signature, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil || len(signature) != ed25519.SignatureSize {
		return ErrInvalidSignature
	}

	if !ed25519.Verify(publicKey, []byte(message), signature) {
		return ErrInvalidSignature
	}
	return nil
}

func DecodePublicKey(publicKeyB64 string) (ed25519.PublicKey, error) {
	publicKey, err := base64.StdEncoding.DecodeString(publicKeyB64)
	if err != nil || len(publicKey) != ed25519.PublicKeySize {
		return nil, ErrInvalidPublicKey
	}
	return ed25519.PublicKey(publicKey), nil
}

// Sign produces the base64 signature VerifySignature accepts.
func Sign(key ed25519.PrivateKey, message string) string {
	return base64.StdEncoding.EncodeToString(ed25519.Sign(key, []byte(message)))
}

func EncodePublicKey(key ed25519.PublicKey) string {
	return base64.StdEncoding.EncodeToString(key)
}

// Address derives the 20-byte hex wallet address owned by an ed25519 key.
func Address(key ed25519.PublicKey) string {
	sum := sha256.Sum256(key)
	return "0x" + hex.EncodeToString(sum[len(sum)-20:])
}

// AddressFromPublicKey is Address for a base64 public key.
func AddressFromPublicKey(publicKeyB64 string) (string, error) {
	key, err := DecodePublicKey(publicKeyB64)
	if err != nil {
		return "", err
	}
	return Address(key), nil
}

// VerifyAddress checks that address is the one derived from the public key.
// The comparison ignores case.
func VerifyAddress(publicKeyB64, address string) error {
	derived, err := AddressFromPublicKey(publicKeyB64)
	if err != nil {
		return err
	}
	if !strings.EqualFold(derived, address) {
		return ErrAddressMismatch
	}
	return nil
}
