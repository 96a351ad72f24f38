package crypto

import (
	"crypto/ecdsa"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is the size of an [R || S || V] secp256k1 signature
const SignatureLength = crypto.SignatureLength

// Signer holds a secp256k1 key used to sign order requests
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// GenerateKey creates a new random key
func GenerateKey() (*Signer, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, errors.Wrap(err, "generate key")
	}
	return newSigner(key), nil
}

// FromPrivateKeyHex loads a key from hex, with or without the 0x prefix
func FromPrivateKeyHex(hexKey string) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "parse private key")
	}
	return newSigner(key), nil
}

func newSigner(key *ecdsa.PrivateKey) *Signer {
	return &Signer{privateKey: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}

// Address returns the address derived from the public key
func (s *Signer) Address() common.Address {
	return s.address
}

// PrivateKeyHex returns the private key as hex without the 0x prefix.
// Never log it.
func (s *Signer) PrivateKeyHex() string {
	return hexutil.Encode(crypto.FromECDSA(s.privateKey))[2:]
}

// Sign signs a 32-byte digest. V is the raw recovery id (0 or 1).
func (s *Signer) Sign(hash []byte) ([]byte, error) {
	if len(hash) != 32 {
		return nil, errors.Newf("hash must be 32 bytes, got %d", len(hash))
	}
	sig, err := crypto.Sign(hash, s.privateKey)
	if err != nil {
		return nil, errors.Wrap(err, "sign")
	}
	return sig, nil
}

// RecoverAddress returns the address that signed hash. Wallet signatures
// with V of 27 or 28 are accepted as well as raw recovery ids.
func RecoverAddress(hash, signature []byte) (common.Address, error) {
	if len(signature) != SignatureLength {
		return common.Address{}, errors.Newf("invalid signature length: %d", len(signature))
	}
	if len(hash) != 32 {
		return common.Address{}, errors.Newf("invalid hash length: %d", len(hash))
	}

	sig := make([]byte, SignatureLength)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return common.Address{}, errors.Wrap(err, "recover public key")
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// DecodeSignature parses a 0x-prefixed hex signature
func DecodeSignature(s string) ([]byte, error) {
	sig, err := hexutil.Decode(s)
	if err != nil {
		return nil, errors.Wrap(err, "decode signature")
	}
	if len(sig) != SignatureLength {
		return nil, errors.Newf("invalid signature length: %d", len(sig))
	}
	return sig, nil
}
