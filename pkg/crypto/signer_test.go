package crypto

import (
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	eth_crypto "github.com/ethereum/go-ethereum/crypto"
)

func TestGenerateKey(t *testing.T) {
	signer, err := GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	if signer.Address() == (common.Address{}) {
		t.Error("generated zero address")
	}

	// 32 bytes
	if privHex := signer.PrivateKeyHex(); len(privHex) != 64 {
		t.Errorf("private key hex length = %d, want 64", len(privHex))
	}
}

func TestFromPrivateKeyHex(t *testing.T) {
	signer1, _ := GenerateKey()
	privHex := signer1.PrivateKeyHex()

	for _, in := range []string{privHex, "0x" + privHex, " " + privHex + "\n"} {
		signer2, err := FromPrivateKeyHex(in)
		if err != nil {
			t.Fatalf("failed to load key %q: %v", in, err)
		}
		if signer2.Address() != signer1.Address() {
			t.Errorf("address = %s, want %s", signer2.Address().Hex(), signer1.Address().Hex())
		}
	}

	if _, err := FromPrivateKeyHex("0xzz"); err == nil {
		t.Error("expected error for malformed key")
	}
}

func TestRecoverAddress(t *testing.T) {
	signer, _ := GenerateKey()
	hash := eth_crypto.Keccak256([]byte("Test message"))

	signature, err := signer.Sign(hash)
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}
	if len(signature) != 65 {
		t.Errorf("signature length = %d, want 65", len(signature))
	}

	recovered, err := RecoverAddress(hash, signature)
	if err != nil {
		t.Fatalf("failed to recover address: %v", err)
	}
	if recovered != signer.Address() {
		t.Errorf("recovered address = %s, want %s", recovered.Hex(), signer.Address().Hex())
	}

	// wallets send V as 27/28
	walletSig := append([]byte(nil), signature...)
	walletSig[64] += 27
	recovered, err = RecoverAddress(hash, walletSig)
	if err != nil || recovered != signer.Address() {
		t.Errorf("wallet-style V: recovered %s, err %v", recovered.Hex(), err)
	}
	if walletSig[64] < 27 {
		t.Error("RecoverAddress must not modify the caller's signature")
	}
}

func TestInvalidSignature(t *testing.T) {
	hash := common.BytesToHash([]byte("test")).Bytes()

	if _, err := RecoverAddress(hash, []byte{1, 2, 3}); err == nil {
		t.Error("short signature should not recover")
	}
	if _, err := RecoverAddress([]byte("short"), make([]byte, 65)); err == nil {
		t.Error("short hash should not recover")
	}
	if _, err := DecodeSignature("0x1234"); err == nil {
		t.Error("short hex signature should not decode")
	}
}

func TestSignAndVerifyRequests(t *testing.T) {
	signer, _ := GenerateKey()
	other, _ := GenerateKey()
	domain := DefaultDomain()

	requests := []Request{
		&PlaceOrder{AssetID: 1, Side: SideBid, Price: 550, Amount: 200, Nonce: 1, Owner: signer.Address()},
		&UpdatePrice{TradeID: 0, Side: SideBid, NewPrice: 520, Nonce: 2, Owner: signer.Address()},
		&CloseOrder{TradeID: 0, Side: SideAsk, Nonce: 3, Owner: signer.Address()},
	}

	for _, req := range requests {
		t.Run(req.PrimaryType(), func(t *testing.T) {
			sig, err := domain.Sign(signer, req)
			if err != nil {
				t.Fatalf("sign: %v", err)
			}
			if err := domain.Verify(req, sig); err != nil {
				t.Errorf("verify: %v", err)
			}

			forged, _ := domain.Sign(other, req)
			if err := domain.Verify(req, forged); !errors.Is(err, ErrSignerMismatch) {
				t.Errorf("forged signature: err = %v, want ErrSignerMismatch", err)
			}

			otherChain := domain
			otherChain.ChainID = common.Big1
			if err := otherChain.Verify(req, sig); !errors.Is(err, ErrSignerMismatch) {
				t.Errorf("cross-chain replay: err = %v, want ErrSignerMismatch", err)
			}
		})
	}
}

func TestTamperedRequestFailsVerification(t *testing.T) {
	signer, _ := GenerateKey()
	domain := DefaultDomain()

	req := &PlaceOrder{AssetID: 1, Side: SideAsk, Price: 450, Amount: 100, Nonce: 7, Owner: signer.Address()}
	sig, _ := domain.Sign(signer, req)

	req.Price = 1
	if err := domain.Verify(req, sig); !errors.Is(err, ErrSignerMismatch) {
		t.Errorf("tampered price: err = %v, want ErrSignerMismatch", err)
	}
}

func TestTypedDataJSON(t *testing.T) {
	req := &CloseOrder{TradeID: 4, Side: SideAsk, Nonce: 9, Owner: common.HexToAddress("0x01")}
	data, err := json.Marshal(DefaultDomain().TypedData(req))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded struct {
		PrimaryType string                       `json:"primaryType"`
		Types       map[string][]json.RawMessage `json:"types"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.PrimaryType != "CloseOrder" {
		t.Errorf("primaryType = %q", decoded.PrimaryType)
	}
	if len(decoded.Types["CloseOrder"]) != 4 {
		t.Errorf("CloseOrder fields = %d, want 4", len(decoded.Types["CloseOrder"]))
	}
}

func TestDecodeSignature(t *testing.T) {
	signer, _ := GenerateKey()
	hash := eth_crypto.Keccak256([]byte("decode"))
	sig, _ := signer.Sign(hash)

	decoded, err := DecodeSignature(hexutil.Encode(sig))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(decoded) != string(sig) {
		t.Error("decoded signature differs")
	}
	if _, err := DecodeSignature("not-hex"); err == nil {
		t.Error("expected error for non-hex input")
	}
}
