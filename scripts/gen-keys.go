//go:build ignore

// Small helper to generate dev issuer keys (secp256k1) and print
// - private key (hex), usable as issuer.private_key_hex
// - Ethereum address the certificate contract should trust as signer
package main

import (
	"flag"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

func gen(label string) {
	key, err := crypto.GenerateKey()
	if err != nil {
		panic(err)
	}
	priv := fmt.Sprintf("%x", crypto.FromECDSA(key))
	addr := crypto.PubkeyToAddress(key.PublicKey).Hex()
	fmt.Printf("%s_PRIVATE_KEY_HEX=%s\n%s_ADDRESS=%s\n\n", label, priv, label, addr)
}

func main() {
	n := flag.Int("n", 1, "number of keys")
	flag.Parse()

	gen("ISSUER")
	for i := 1; i < *n; i++ {
		gen(fmt.Sprintf("ISSUER%d", i+1))
	}
}
