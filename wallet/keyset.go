package wallet

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/nutsack/nutsack/cashu"
	"github.com/nutsack/nutsack/crypto"
)

// activeKeyset returns the active keyset of the mint for the unit.
// Keyset flags are refreshed from the mint on every call while the
// public keys are fetched once and cached.
func (w *Wallet) activeKeyset(ctx context.Context, mintURL, unit string) (*crypto.WalletKeyset, error) {
	keysets, err := w.refreshKeysets(ctx, mintURL)
	if err != nil {
		return nil, err
	}

	for _, keyset := range keysets {
		// ignore keysets with non-hex ids
		if _, err := hex.DecodeString(keyset.Id); err != nil {
			continue
		}
		if keyset.Active && keyset.Unit == unit {
			return w.loadKeys(ctx, keyset)
		}
	}
	return nil, fmt.Errorf("%w: %v at %v", ErrNoActiveKeyset, unit, mintURL)
}

// refreshKeysets updates the cached keysets of the mint with
// the list from the mint and returns them in the mint's order.
func (w *Wallet) refreshKeysets(ctx context.Context, mintURL string) ([]crypto.WalletKeyset, error) {
	keysetsResponse, err := w.client.GetAllKeysets(ctx, mintURL)
	if err != nil {
		return nil, &TransportError{Op: "get keysets from " + mintURL, Err: err}
	}

	cached := w.keysets.GetKeysets(mintURL)
	keysets := make([]crypto.WalletKeyset, 0, len(keysetsResponse.Keysets))
	for _, response := range keysetsResponse.Keysets {
		keyset, ok := cached[response.Id]
		if !ok || keyset.Active != response.Active || keyset.InputFeePpk != response.InputFeePpk {
			keyset.Id = response.Id
			keyset.MintURL = mintURL
			keyset.Unit = response.Unit
			keyset.Active = response.Active
			keyset.InputFeePpk = response.InputFeePpk
			if err := w.keysets.SaveKeyset(&keyset); err != nil {
				return nil, err
			}
		}
		keysets = append(keysets, keyset)
	}
	return keysets, nil
}

// loadKeys fills in the public keys of the keyset if they are not cached.
func (w *Wallet) loadKeys(ctx context.Context, keyset crypto.WalletKeyset) (*crypto.WalletKeyset, error) {
	if len(keyset.PublicKeys) > 0 {
		return &keyset, nil
	}

	keysResponse, err := w.client.GetKeysetById(ctx, keyset.MintURL, keyset.Id)
	if err != nil {
		return nil, &TransportError{Op: "get keys from " + keyset.MintURL, Err: err}
	}
	if len(keysResponse.Keysets) == 0 {
		return nil, fmt.Errorf("mint did not return keys for keyset %v", keyset.Id)
	}

	keys, err := crypto.MapPubKeys(keysResponse.Keysets[0].Keys)
	if err != nil {
		return nil, &CryptoError{Err: err}
	}
	// only version 00 ids can be derived from the keys
	if strings.HasPrefix(keyset.Id, "00") {
		if id := crypto.DeriveKeysetId(keys); id != keyset.Id {
			return nil, &CryptoError{
				Err: fmt.Errorf("got invalid keyset. Derived id: '%v' but got '%v' from mint", id, keyset.Id),
			}
		}
	}

	keyset.PublicKeys = keys
	if err := w.keysets.SaveKeyset(&keyset); err != nil {
		return nil, err
	}
	return &keyset, nil
}

// keyset returns the keyset with the id, asking the mint
// if it is not cached.
func (w *Wallet) keyset(ctx context.Context, mintURL, id string) (*crypto.WalletKeyset, error) {
	if keyset := w.keysets.GetKeyset(id); keyset != nil && keyset.MintURL == mintURL {
		return w.loadKeys(ctx, *keyset)
	}

	keysets, err := w.refreshKeysets(ctx, mintURL)
	if err != nil {
		return nil, err
	}
	for _, keyset := range keysets {
		if keyset.Id == id {
			return w.loadKeys(ctx, keyset)
		}
	}
	return nil, fmt.Errorf("keyset %v not found at %v", id, mintURL)
}

// feeFunc returns a function computing the fee the mint charges to
// spend proofs: the sum of the keysets' input_fee_ppk rounded up to a
// whole unit.
func (w *Wallet) feeFunc(ctx context.Context, mintURL string) (func(cashu.Proofs) uint64, error) {
	keysets, err := w.refreshKeysets(ctx, mintURL)
	if err != nil {
		return nil, err
	}

	feesPpk := make(map[string]uint, len(keysets))
	for _, keyset := range keysets {
		feesPpk[keyset.Id] = keyset.InputFeePpk
	}
	return func(proofs cashu.Proofs) uint64 {
		var total uint
		for _, proof := range proofs {
			total += feesPpk[proof.Id]
		}
		return feesFromPpk(total)
	}, nil
}

func feesFromPpk(feesPpk uint) uint64 {
	return uint64((feesPpk + 999) / 1000)
}
