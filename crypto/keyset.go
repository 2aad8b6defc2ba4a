package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"slices"
	"strconv"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

const MaxOrder = 64

// MintKeyset holds the private keys a mint signs with.
type MintKeyset struct {
	Id          string
	Unit        string
	Active      bool
	InputFeePpk uint
	Keys        map[uint64]KeyPair
}

type KeyPair struct {
	PrivateKey *secp256k1.PrivateKey
	PublicKey  *secp256k1.PublicKey
}

// GenerateKeyset derives one key per power of two amount
// from the seed and derivation path.
func GenerateKeyset(seed, derivationPath, unit string, inputFeePpk uint) *MintKeyset {
	keys := make(map[uint64]KeyPair, MaxOrder)

	for i := 0; i < MaxOrder; i++ {
		amount := uint64(1) << i
		hash := sha256.Sum256([]byte(seed + derivationPath + strconv.FormatUint(amount, 10)))
		privKey := secp256k1.PrivKeyFromBytes(hash[:])
		keys[amount] = KeyPair{PrivateKey: privKey, PublicKey: privKey.PubKey()}
	}

	keyset := &MintKeyset{Unit: unit, Active: true, InputFeePpk: inputFeePpk, Keys: keys}
	keyset.Id = DeriveKeysetId(keyset.PublicKeys())
	return keyset
}

func (ks *MintKeyset) PublicKeys() map[uint64]*secp256k1.PublicKey {
	pubkeys := make(map[uint64]*secp256k1.PublicKey, len(ks.Keys))
	for amount, key := range ks.Keys {
		pubkeys[amount] = key.PublicKey
	}
	return pubkeys
}

// DerivePublic returns the hex encoded public keys keyed by amount.
func (ks *MintKeyset) DerivePublic() map[uint64]string {
	pubkeys := make(map[uint64]string, len(ks.Keys))
	for amount, key := range ks.Keys {
		pubkeys[amount] = hex.EncodeToString(key.PublicKey.SerializeCompressed())
	}
	return pubkeys
}

// WalletKeyset is the public part of a keyset as seen by the wallet.
type WalletKeyset struct {
	Id          string
	MintURL     string
	Unit        string
	Active      bool
	PublicKeys  map[uint64]*secp256k1.PublicKey
	InputFeePpk uint
}

type walletKeysetJSON struct {
	Id          string            `json:"id"`
	MintURL     string            `json:"mint_url"`
	Unit        string            `json:"unit"`
	Active      bool              `json:"active"`
	PublicKeys  map[uint64]string `json:"public_keys,omitempty"`
	InputFeePpk uint              `json:"input_fee_ppk"`
}

func (wk WalletKeyset) MarshalJSON() ([]byte, error) {
	var pubkeys map[uint64]string
	if len(wk.PublicKeys) > 0 {
		pubkeys = make(map[uint64]string, len(wk.PublicKeys))
		for amount, key := range wk.PublicKeys {
			pubkeys[amount] = hex.EncodeToString(key.SerializeCompressed())
		}
	}

	return json.Marshal(walletKeysetJSON{
		Id:          wk.Id,
		MintURL:     wk.MintURL,
		Unit:        wk.Unit,
		Active:      wk.Active,
		PublicKeys:  pubkeys,
		InputFeePpk: wk.InputFeePpk,
	})
}

func (wk *WalletKeyset) UnmarshalJSON(data []byte) error {
	var temp walletKeysetJSON
	if err := json.Unmarshal(data, &temp); err != nil {
		return err
	}

	wk.Id = temp.Id
	wk.MintURL = temp.MintURL
	wk.Unit = temp.Unit
	wk.Active = temp.Active
	wk.InputFeePpk = temp.InputFeePpk
	wk.PublicKeys = nil
	if len(temp.PublicKeys) > 0 {
		keys, err := MapPubKeys(temp.PublicKeys)
		if err != nil {
			return err
		}
		wk.PublicKeys = keys
	}
	return nil
}

// MapPubKeys parses the hex encoded keys returned by the mint.
func MapPubKeys(keys map[uint64]string) (map[uint64]*secp256k1.PublicKey, error) {
	publicKeys := make(map[uint64]*secp256k1.PublicKey, len(keys))
	for amount, key := range keys {
		pkbytes, err := hex.DecodeString(key)
		if err != nil {
			return nil, err
		}
		pubkey, err := secp256k1.ParsePubKey(pkbytes)
		if err != nil {
			return nil, err
		}
		publicKeys[amount] = pubkey
	}
	return publicKeys, nil
}

// DeriveKeysetId returns "00" followed by the first 14 hex characters of
// the sha256 of the compressed public keys sorted by amount.
func DeriveKeysetId(keyset map[uint64]*secp256k1.PublicKey) string {
	amounts := make([]uint64, 0, len(keyset))
	for amount := range keyset {
		amounts = append(amounts, amount)
	}
	slices.Sort(amounts)

	pubkeys := make([]byte, 0, len(amounts)*33)
	for _, amount := range amounts {
		pubkeys = append(pubkeys, keyset[amount].SerializeCompressed()...)
	}
	hash := sha256.Sum256(pubkeys)

	return "00" + hex.EncodeToString(hash[:])[:14]
}
