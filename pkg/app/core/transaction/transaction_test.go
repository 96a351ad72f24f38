package transaction

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/votebook/pkg/crypto"
	"github.com/uhyunpark/votebook/pkg/storage"
)

func signed(t *testing.T, domain crypto.Domain, s *crypto.Signer, r crypto.Request) *SignedRequest {
	t.Helper()
	sig, err := domain.Sign(s, r)
	require.NoError(t, err)
	req, err := NewSignedRequest(r, sig)
	require.NoError(t, err)
	return req
}

func TestParseRoundTrip(t *testing.T) {
	domain := crypto.DefaultDomain()
	alice, _ := crypto.GenerateKey()

	req := signed(t, domain, alice, &crypto.PlaceOrder{
		AssetID: 1, Side: crypto.SideBid, Price: 550, Amount: 200, Nonce: 1, Owner: alice.Address(),
	})
	data, err := req.Serialize()
	require.NoError(t, err)

	parsed, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, TypePlace, parsed.Type)
	require.NotNil(t, parsed.Place)
	assert.Equal(t, *req.Place, *parsed.Place)
	assert.Equal(t, req.Signature, parsed.Signature)
}

func TestParseRejectsMalformed(t *testing.T) {
	owner := `"owner":"0x00000000000000000000000000000000000000aa"`
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"missing type", `{"signature":"0x01"}`},
		{"unknown type", `{"type":"swap","signature":"0x01"}`},
		{"payload mismatch", `{"type":"close","place":{"assetId":1,` + owner + `},"signature":"0x01"}`},
		{"missing signature", `{"type":"close","close":{"tradeId":1,` + owner + `}}`},
		{"missing owner", `{"type":"close","close":{"tradeId":1},"signature":"0x01"}`},
		{"bad side", `{"type":"close","close":{"tradeId":1,"side":2,` + owner + `},"signature":"0x01"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.body))
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestVerifierReturnsOwner(t *testing.T) {
	domain := crypto.DefaultDomain()
	v := NewVerifier(domain, NewNonceStore(nil))
	alice, _ := crypto.GenerateKey()

	requests := []crypto.Request{
		&crypto.PlaceOrder{AssetID: 1, Side: crypto.SideAsk, Price: 450, Amount: 100, Nonce: 1, Owner: alice.Address()},
		&crypto.UpdatePrice{TradeID: 0, Side: crypto.SideAsk, NewPrice: 400, Nonce: 2, Owner: alice.Address()},
		&crypto.CloseOrder{TradeID: 0, Side: crypto.SideAsk, Nonce: 3, Owner: alice.Address()},
	}
	for _, r := range requests {
		owner, err := v.Verify(signed(t, domain, alice, r))
		require.NoError(t, err, r.PrimaryType())
		assert.Equal(t, alice.Address(), owner)
	}
}

func TestVerifierRejectsImpersonation(t *testing.T) {
	domain := crypto.DefaultDomain()
	v := NewVerifier(domain, NewNonceStore(nil))
	alice, _ := crypto.GenerateKey()
	mallory, _ := crypto.GenerateKey()

	// mallory signs an order claiming to be alice
	req := signed(t, domain, mallory, &crypto.CloseOrder{TradeID: 3, Side: crypto.SideBid, Nonce: 1, Owner: alice.Address()})
	_, err := v.Verify(req)
	require.ErrorIs(t, err, crypto.ErrSignerMismatch)

	signer, err := v.RecoverSigner(req)
	require.NoError(t, err)
	assert.Equal(t, mallory.Address(), signer)

	// rejected signatures do not consume the nonce
	_, ok := v.nonces.Last(alice.Address())
	assert.False(t, ok)
}

func TestVerifierRejectsReplay(t *testing.T) {
	domain := crypto.DefaultDomain()
	v := NewVerifier(domain, NewNonceStore(nil))
	alice, _ := crypto.GenerateKey()

	req := signed(t, domain, alice, &crypto.CloseOrder{TradeID: 3, Side: crypto.SideBid, Nonce: 5, Owner: alice.Address()})
	_, err := v.Verify(req)
	require.NoError(t, err)

	_, err = v.Verify(req)
	require.ErrorIs(t, err, ErrNonceTooLow)

	lower := signed(t, domain, alice, &crypto.CloseOrder{TradeID: 3, Side: crypto.SideBid, Nonce: 4, Owner: alice.Address()})
	_, err = v.Verify(lower)
	require.ErrorIs(t, err, ErrNonceTooLow)

	// gaps are fine
	higher := signed(t, domain, alice, &crypto.CloseOrder{TradeID: 3, Side: crypto.SideBid, Nonce: 9, Owner: alice.Address()})
	_, err = v.Verify(higher)
	require.NoError(t, err)
}

func TestVerifierRejectsBadSignature(t *testing.T) {
	v := NewVerifier(crypto.DefaultDomain(), nil)
	req := &SignedRequest{
		Type:      TypeClose,
		Close:     &crypto.CloseOrder{TradeID: 1, Owner: common.HexToAddress("0xaa")},
		Signature: "0x1234",
	}
	_, err := v.Verify(req)
	assert.True(t, errors.Is(err, ErrInvalidRequest), "got %v", err)
}

func TestNonceStorePersistence(t *testing.T) {
	dir := t.TempDir()
	addr := common.HexToAddress("0x00000000000000000000000000000000000000b0")

	store, err := storage.Open(dir)
	require.NoError(t, err)
	nonces := NewNonceStore(store)
	require.NoError(t, nonces.Use(addr, 0))
	require.NoError(t, nonces.Use(addr, 7))
	require.NoError(t, store.Close())

	store, err = storage.Open(dir)
	require.NoError(t, err)
	defer store.Close()

	reloaded := NewNonceStore(store)
	require.NoError(t, reloaded.Load())
	last, ok := reloaded.Last(addr)
	require.True(t, ok)
	assert.Equal(t, uint64(7), last)
	assert.ErrorIs(t, reloaded.Use(addr, 7), ErrNonceTooLow)
}
