// Package keys derives the nostr identity that owns a wallet and the
// key used to receive locked ecash.
package keys

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
	"github.com/tyler-smith/go-bip39"
)

const nostrCoinType = 1237

var (
	ErrInvalidKey      = errors.New("invalid private key")
	ErrInvalidMnemonic = errors.New("invalid mnemonic")
)

// Identity is a nostr key pair, hex encoded.
type Identity struct {
	PrivateKey string
	PublicKey  string
}

func newIdentity(sk string) (*Identity, error) {
	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return &Identity{PrivateKey: sk, PublicKey: pk}, nil
}

// Parse accepts a private key as nsec or 64 hex characters.
func Parse(key string) (*Identity, error) {
	key = strings.TrimSpace(key)
	if strings.HasPrefix(key, "nsec") {
		prefix, value, err := nip19.Decode(key)
		if err != nil || prefix != "nsec" {
			return nil, fmt.Errorf("%w: bad nsec", ErrInvalidKey)
		}
		sk, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: bad nsec", ErrInvalidKey)
		}
		return newIdentity(sk)
	}

	if b, err := hex.DecodeString(key); err != nil || len(b) != 32 {
		return nil, fmt.Errorf("%w: expected nsec or 32 byte hex", ErrInvalidKey)
	}
	return newIdentity(strings.ToLower(key))
}

func Generate() *Identity {
	id, _ := newIdentity(nostr.GeneratePrivateKey())
	return id
}

func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		return "", err
	}
	return bip39.NewMnemonic(entropy)
}

func masterKey(mnemonic string) (*hdkeychain.ExtendedKey, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	seed := bip39.NewSeed(mnemonic, "")
	return hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
}

// FromMnemonic derives the identity at m/44'/1237'/0'/0/0 (NIP-06).
func FromMnemonic(mnemonic string) (*Identity, error) {
	master, err := masterKey(mnemonic)
	if err != nil {
		return nil, err
	}

	key := master
	path := []uint32{
		hdkeychain.HardenedKeyStart + 44,
		hdkeychain.HardenedKeyStart + nostrCoinType,
		hdkeychain.HardenedKeyStart + 0,
		0,
		0,
	}
	for _, index := range path {
		key, err = key.Derive(index)
		if err != nil {
			return nil, err
		}
	}

	sk, err := key.ECPrivKey()
	if err != nil {
		return nil, err
	}
	return newIdentity(hex.EncodeToString(sk.Serialize()))
}

func (id Identity) Nsec() (string, error) {
	return nip19.EncodePrivateKey(id.PrivateKey)
}

func (id Identity) Npub() (string, error) {
	return nip19.EncodePublicKey(id.PublicKey)
}

// DecodeNpub returns the hex public key of an npub.
func DecodeNpub(npub string) (string, error) {
	prefix, value, err := nip19.Decode(strings.TrimSpace(npub))
	if err != nil || prefix != "npub" {
		return "", fmt.Errorf("invalid npub %q", npub)
	}
	pubkey, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("invalid npub %q", npub)
	}
	return pubkey, nil
}

// DeriveP2PK derives the key the wallet uses to receive locked ecash.
func DeriveP2PK(key *hdkeychain.ExtendedKey) (*btcec.PrivateKey, error) {
	// m/129372'
	purpose, err := key.Derive(hdkeychain.HardenedKeyStart + 129372)
	if err != nil {
		return nil, err
	}

	// m/129372'/0'
	coinType, err := purpose.Derive(hdkeychain.HardenedKeyStart + 0)
	if err != nil {
		return nil, err
	}

	// m/129372'/0'/1'
	first, err := coinType.Derive(hdkeychain.HardenedKeyStart + 1)
	if err != nil {
		return nil, err
	}

	// m/129372'/0'/1'/0
	extKey, err := first.Derive(0)
	if err != nil {
		return nil, err
	}

	return extKey.ECPrivKey()
}

// P2PKFromMnemonic returns the hex encoded P2PK receive key of the mnemonic.
func P2PKFromMnemonic(mnemonic string) (string, error) {
	master, err := masterKey(mnemonic)
	if err != nil {
		return "", err
	}
	sk, err := DeriveP2PK(master)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sk.Serialize()), nil
}

// NewP2PKKey returns a random hex encoded receive key, for wallets
// that were not created from a mnemonic.
func NewP2PKKey() (string, error) {
	sk, err := btcec.NewPrivateKey()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sk.Serialize()), nil
}
