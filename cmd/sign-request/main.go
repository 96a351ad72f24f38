// Command sign-request signs a bid, ask, re-price or close request and
// prints the JSON body for POST /api/v1/orders, /orders/price or /orders/close.
//
//	sign-request -key $KEY -type place -side bid -asset 1 -price 550 -amount 200 -nonce 1
//	sign-request -key $KEY -type price -side bid -trade 0 -price 520 -nonce 2
//	sign-request -key $KEY -type close -side ask -trade 3 -nonce 3
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/votebook/pkg/app/core/orderbook"
	"github.com/uhyunpark/votebook/pkg/app/core/transaction"
	"github.com/uhyunpark/votebook/pkg/crypto"
)

func main() {
	var (
		keyHex    = flag.String("key", os.Getenv("PRIVATE_KEY"), "hex private key; a new key is generated when empty")
		reqType   = flag.String("type", "place", "request type: place, price or close")
		sideName  = flag.String("side", "bid", "order side: bid or ask")
		assetID   = flag.Uint64("asset", 1, "asset id (place)")
		px        = flag.Uint64("price", 0, "price per 1000 shares (place) or new price (price)")
		amount    = flag.Uint64("amount", 0, "shares (place)")
		tradeID   = flag.Uint64("trade", 0, "trade id of the resting order (price, close)")
		nonce     = flag.Uint64("nonce", uint64(time.Now().UnixMilli()), "request nonce; must exceed the last one used")
		chainID   = flag.Int64("chain-id", 1337, "EIP-712 chain id")
		custodian = flag.String("custodian", "0x000000000000000000000000000000000000C057", "custodian address (EIP-712 verifying contract)")
	)
	flag.Parse()

	if err := run(*keyHex, *reqType, *sideName, *assetID, *px, *amount, *tradeID, *nonce, *chainID, *custodian); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(keyHex, reqType, sideName string, assetID, px, amount, tradeID, nonce uint64, chainID int64, custodian string) error {
	// Step 1: Load or generate key
	var (
		signer *crypto.Signer
		err    error
	)
	if keyHex == "" {
		signer, err = crypto.GenerateKey()
		if err == nil {
			fmt.Fprintf(os.Stderr, "Generated key %s (KEEP SECRET!)\n", signer.PrivateKeyHex())
		}
	} else {
		signer, err = crypto.FromPrivateKeyHex(keyHex)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Address: %s\n", signer.Address().Hex())

	side, err := orderbook.ParseSide(sideName)
	if err != nil {
		return err
	}
	if !common.IsHexAddress(custodian) {
		return fmt.Errorf("invalid custodian address %q", custodian)
	}

	// Step 2: Build the typed request
	var req crypto.Request
	switch transaction.RequestType(reqType) {
	case transaction.TypePlace:
		req = &crypto.PlaceOrder{AssetID: assetID, Side: uint8(side), Price: px, Amount: amount, Nonce: nonce, Owner: signer.Address()}
	case transaction.TypePrice:
		req = &crypto.UpdatePrice{TradeID: tradeID, Side: uint8(side), NewPrice: px, Nonce: nonce, Owner: signer.Address()}
	case transaction.TypeClose:
		req = &crypto.CloseOrder{TradeID: tradeID, Side: uint8(side), Nonce: nonce, Owner: signer.Address()}
	default:
		return fmt.Errorf("unknown request type %q", reqType)
	}

	// Step 3: Sign with EIP-712
	domain := crypto.DefaultDomain()
	domain.ChainID = big.NewInt(chainID)
	domain.VerifyingContract = common.HexToAddress(custodian)

	signature, err := domain.Sign(signer, req)
	if err != nil {
		return err
	}
	signed, err := transaction.NewSignedRequest(req, signature)
	if err != nil {
		return err
	}

	// Step 4: Verify before printing
	owner, err := transaction.NewVerifier(domain, nil).Verify(signed)
	if err != nil {
		return fmt.Errorf("self-verification failed: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Verified signer: %s\n", owner.Hex())

	// Step 5: Print the request body
	body, err := json.MarshalIndent(signed, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(body))
	return nil
}
