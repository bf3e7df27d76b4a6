package auth

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"
)

const (
	AlgEd25519   = "ed25519"
	AlgSecp256k1 = "secp256k1"
)

// Signer answers the login challenge of a bot account with a registered key.
type Signer interface {
	Alg() string
	PublicKey() string
	Sign(message string) (string, error)
}

// NewSigner parses a private key for alg. Ed25519 keys are a base64 or hex
// seed or full key; secp256k1 keys are hex scalars.
func NewSigner(alg, privateKey string) (Signer, error) {
	switch strings.ToLower(alg) {
	case AlgEd25519:
		b, err := decodeHex(privateKey)
		if err != nil {
			b, err = decodeBase64OrHex(privateKey)
		}
		if err != nil {
			return nil, fmt.Errorf("ed25519 key: %w", err)
		}
		switch len(b) {
		case ed25519.SeedSize:
			return ed25519Signer{key: ed25519.NewKeyFromSeed(b)}, nil
		case ed25519.PrivateKeySize:
			return ed25519Signer{key: ed25519.PrivateKey(b)}, nil
		}
		return nil, errors.New("invalid ed25519 private key length")
	case AlgSecp256k1:
		b, err := decodeHex(privateKey)
		if err != nil {
			return nil, fmt.Errorf("secp256k1 key: %w", err)
		}
		if len(b) != 32 {
			return nil, errors.New("invalid secp256k1 private key length")
		}
		return secp256k1Signer{key: secp256k1.PrivKeyFromBytes(b)}, nil
	default:
		return nil, fmt.Errorf("unsupported alg: %s", alg)
	}
}

type ed25519Signer struct {
	key ed25519.PrivateKey
}

func (ed25519Signer) Alg() string { return AlgEd25519 }

func (s ed25519Signer) PublicKey() string {
	return base64.RawStdEncoding.EncodeToString(s.key.Public().(ed25519.PublicKey))
}

func (s ed25519Signer) Sign(message string) (string, error) {
	return base64.RawStdEncoding.EncodeToString(ed25519.Sign(s.key, []byte(message))), nil
}

type secp256k1Signer struct {
	key *secp256k1.PrivateKey
}

func (secp256k1Signer) Alg() string { return AlgSecp256k1 }

func (s secp256k1Signer) PublicKey() string {
	return hex.EncodeToString(s.key.PubKey().SerializeCompressed())
}

// Sign produces r || s over the personal-message hash of message.
func (s secp256k1Signer) Sign(message string) (string, error) {
	compact := secpecdsa.SignCompact(s.key, ethereumPersonalHash([]byte(message)), false)
	if len(compact) != 65 {
		return "", errors.New("unexpected secp256k1 signature length")
	}
	return hex.EncodeToString(compact[1:]), nil
}

func decodeBase64OrHex(input string) ([]byte, error) {
	input = strings.TrimSpace(input)
	if b, err := base64.StdEncoding.DecodeString(input); err == nil {
		return b, nil
	}
	if b, err := base64.RawStdEncoding.DecodeString(input); err == nil {
		return b, nil
	}
	return decodeHex(input)
}

func decodeHex(input string) ([]byte, error) {
	clean := strings.TrimPrefix(strings.TrimSpace(input), "0x")
	return hex.DecodeString(clean)
}

func ethereumPersonalHash(msg []byte) []byte {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(msg))
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(prefix))
	h.Write(msg)
	return h.Sum(nil)
}
