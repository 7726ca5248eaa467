package crypto

import (
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

func TestParseAddressAcceptsHexAndBech32(t *testing.T) {
	raw := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	fromHex, err := ParseAddress(raw.Hex())
	if err != nil {
		t.Fatalf("parse hex: %v", err)
	}
	if fromHex != raw {
		t.Fatalf("hex mismatch: got %s", fromHex.Hex())
	}
	encoded := FromCommon(raw).String()
	fromBech, err := ParseAddress(encoded)
	if err != nil {
		t.Fatalf("parse bech32 %s: %v", encoded, err)
	}
	if fromBech != raw {
		t.Fatalf("bech32 mismatch: got %s", fromBech.Hex())
	}
}

func TestParseAddressRejectsGarbage(t *testing.T) {
	for _, input := range []string{"", "0x1234", "not-an-address", NewAddress("other", make([]byte, 20)).String()} {
		if _, err := ParseAddress(input); err == nil {
			t.Fatalf("expected error for %q", input)
		}
	}
}

func TestSignRecover(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	digest := ethcrypto.Keccak256([]byte("payload"))
	sig, err := key.Sign(digest)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	recovered, err := RecoverAddress(digest, sig)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if recovered != key.PubKey().Address().Common() {
		t.Fatalf("recovered %s, want %s", recovered.Hex(), key.PubKey().Address().Common().Hex())
	}
	if _, err := RecoverAddress(digest, sig[:10]); err == nil {
		t.Fatalf("expected short signature to fail")
	}
}

func TestRecoverAddressRejectsHighS(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	digest := ethcrypto.Keccak256([]byte("payload"))
	sig, err := key.Sign(digest)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	flipped := malleate(sig)
	if _, err := RecoverAddress(digest, flipped); !errors.Is(err, ErrNonCanonicalSignature) {
		t.Fatalf("expected ErrNonCanonicalSignature, got %v", err)
	}
	// The flipped form is still a valid signature for the same key.
	pub, err := ethcrypto.SigToPub(digest, flipped)
	if err != nil {
		t.Fatalf("sig to pub: %v", err)
	}
	if ethcrypto.PubkeyToAddress(*pub) != key.PubKey().Address().Common() {
		t.Fatalf("flipped signature recovered a different key")
	}
	bad := append([]byte(nil), sig...)
	bad[64] = 27
	if _, err := RecoverAddress(digest, bad); !errors.Is(err, ErrNonCanonicalSignature) {
		t.Fatalf("expected recovery id 27 to be rejected, got %v", err)
	}
}

// malleate returns the (r, n-s, v^1) twin of sig.
func malleate(sig []byte) []byte {
	n := ethcrypto.S256().Params().N
	s := new(big.Int).SetBytes(sig[32:64])
	out := append([]byte(nil), sig...)
	new(big.Int).Sub(n, s).FillBytes(out[32:64])
	out[64] ^= 1
	return out
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	path := filepath.Join(t.TempDir(), "keys", "signer.json")
	if err := SaveToKeystore(path, key, "secret", LightScrypt); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("unexpected keystore mode %v", info.Mode().Perm())
	}
	loaded, err := LoadFromKeystore(path, "secret")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.PubKey().Address().String() != key.PubKey().Address().String() {
		t.Fatalf("keystore changed the key")
	}
	if _, err := LoadFromKeystore(path, "wrong"); err == nil {
		t.Fatalf("expected wrong passphrase to fail")
	}
}
