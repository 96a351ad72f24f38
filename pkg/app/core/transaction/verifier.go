package transaction

import (
	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/votebook/pkg/crypto"
)

// Verifier authenticates signed requests against one EIP-712 domain
type Verifier struct {
	domain crypto.Domain
	nonces *NonceStore
}

// NewVerifier creates a verifier. A nil nonce store disables replay checks.
func NewVerifier(domain crypto.Domain, nonces *NonceStore) *Verifier {
	return &Verifier{domain: domain, nonces: nonces}
}

func (v *Verifier) Domain() crypto.Domain { return v.domain }

// Verify checks the request's structure and signature, consumes its nonce
// and returns the owner, who becomes the caller of the exchange operation.
// The nonce is spent even if the operation is later rejected.
func (v *Verifier) Verify(req *SignedRequest) (common.Address, error) {
	if err := req.Validate(); err != nil {
		return common.Address{}, err
	}
	payload, _ := req.Payload()

	sig, err := crypto.DecodeSignature(req.Signature)
	if err != nil {
		return common.Address{}, errors.Mark(err, ErrInvalidRequest)
	}
	if err := v.domain.Verify(payload, sig); err != nil {
		return common.Address{}, errors.Wrapf(err, "verify %s request", req.Type)
	}

	owner := payload.Signer()
	if v.nonces != nil {
		if err := v.nonces.Use(owner, payload.RequestNonce()); err != nil {
			return common.Address{}, err
		}
	}
	return owner, nil
}

// RecoverSigner returns the address that signed the request without
// checking ownership or nonces. Useful for debugging.
func (v *Verifier) RecoverSigner(req *SignedRequest) (common.Address, error) {
	payload, err := req.Payload()
	if err != nil {
		return common.Address{}, err
	}
	sig, err := crypto.DecodeSignature(req.Signature)
	if err != nil {
		return common.Address{}, err
	}
	return v.domain.Recover(payload, sig)
}
