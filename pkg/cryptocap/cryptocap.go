// Package cryptocap implements the "assumed" Crypto capability spec.md §6
// takes as an external collaborator: 2048-bit RSA keypairs, DER
// SubjectPublicKeyInfo pubkey dumping, RIPEMD160(SHA256(...)) keyhashing,
// and RSASSA-PSS (MGF1-SHA256, max salt length) signing/verification.
//
// Grounded on original_source/bitcoin/crypto.py's literal shapes (the
// Python reference this spec generalizes key handling from) and on the
// teacher's pkg/wallet/wallet.go for the surrounding conventions: an
// in-memory keypair struct and dump/load symmetry, re-targeted at RSA key
// material instead of secp256k1. There is no account map, and DumpPrivkey
// returns the private key unencrypted.
package cryptocap

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // spec-mandated hash, no stdlib equivalent

	"github.com/TomasDanielExpositoTorre/simple-blockchain/pkg/txcodec"
)

const defaultHash = crypto.SHA256

// KeyBits is the RSA modulus size spec §6 names for create_keypair.
const KeyBits = 2048

// Keypair bundles the private and public halves generated together.
type Keypair struct {
	Priv *rsa.PrivateKey
	Pub  *rsa.PublicKey
}

// CreateKeypair generates a fresh 2048-bit RSA keypair.
func CreateKeypair() (*Keypair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, KeyBits)
	if err != nil {
		return nil, fmt.Errorf("generating rsa keypair: %w", err)
	}
	return &Keypair{Priv: priv, Pub: &priv.PublicKey}, nil
}

// DumpPrivkey renders a private key as hex(DER PKCS#1), the `priv` half
// of the `{priv,pub}` pair §4.2/§6's `keys` message carries.
func DumpPrivkey(priv *rsa.PrivateKey) string {
	return hex.EncodeToString(x509.MarshalPKCS1PrivateKey(priv))
}

// LoadPrivkey reverses DumpPrivkey.
func LoadPrivkey(hexKey string) (*rsa.PrivateKey, error) {
	der, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decoding hex privkey: %w", err)
	}
	priv, err := x509.ParsePKCS1PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("parsing pkcs1 private key: %w", err)
	}
	return priv, nil
}

// DumpPubkey renders a public key as hex(DER SubjectPublicKeyInfo).
func DumpPubkey(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("marshaling public key: %w", err)
	}
	return hex.EncodeToString(der), nil
}

// LoadPubkey reverses DumpPubkey, parsing a DER SubjectPublicKeyInfo from
// its hex encoding.
func LoadPubkey(hexKey string) (*rsa.PublicKey, error) {
	der, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decoding hex pubkey: %w", err)
	}
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("parsing pkix public key: %w", err)
	}
	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("pubkey is not RSA")
	}
	return pub, nil
}

// HashPubkey returns hex(RIPEMD160(SHA256(DER-SPKI(pub)))), the owner
// identifier every TxOutput.Keyhash is compared against.
func HashPubkey(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("marshaling public key: %w", err)
	}
	sha := sha256.Sum256(der)
	ripe := ripemd160.New()
	if _, err := ripe.Write(sha[:]); err != nil {
		return "", fmt.Errorf("hashing pubkey: %w", err)
	}
	return hex.EncodeToString(ripe.Sum(nil)), nil
}

// Sign produces a hex RSASSA-PSS (MGF1-SHA256, max salt length) signature
// over SHA256(text), per §6.
func Sign(priv *rsa.PrivateKey, text string) (string, error) {
	digest := sha256.Sum256([]byte(text))
	sig, err := rsa.SignPSS(rand.Reader, priv, defaultHash, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthAuto,
		Hash:       defaultHash,
	})
	if err != nil {
		return "", fmt.Errorf("signing: %w", err)
	}
	return hex.EncodeToString(sig), nil
}

// Verify checks a hex signature produced by Sign against text under pub.
func Verify(pub *rsa.PublicKey, sigHex string, text string) bool {
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}
	digest := sha256.Sum256([]byte(text))
	err = rsa.VerifyPSS(pub, defaultHash, digest[:], sig, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthAuto,
		Hash:       defaultHash,
	})
	return err == nil
}

// HashTransaction returns hex(SHA256(canonicalJSON(tx))), spec §6's
// hash_transaction, shared with the Merkle/txid rule in pkg/block so a
// transaction always hashes the same way regardless of caller.
func HashTransaction(tx any) (string, error) {
	return txcodec.HashJSON(tx)
}
