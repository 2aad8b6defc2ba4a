package wallet

import (
	"context"
	"fmt"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nutsack/nutsack/cashu"
	"github.com/nutsack/nutsack/nip60"
)

// Redeem claims the proofs of a token received from someone else by
// swapping them at their mint for new proofs only this wallet can
// spend, and stores the new proofs. The token's mint must be trusted.
// Nothing is published unless the swap succeeds.
// It returns the amount added to the wallet, which is the token amount
// minus the mint's input fees. If the new proofs cannot be stored after
// the swap, the error is an *UnsavedProofsError holding them.
func (w *Wallet) Redeem(ctx context.Context, tokenStr string) (uint64, error) {
	token, err := cashu.DecodeToken(tokenStr)
	if err != nil {
		return 0, &CryptoError{Err: err}
	}

	mintURL, err := normalizeURL(token.Mint())
	if err != nil {
		return 0, &CryptoError{Err: err}
	}
	if !w.trusted(mintURL) {
		return 0, fmt.Errorf("%w: %v", ErrUntrustedMint, mintURL)
	}

	proofs := token.Proofs()
	unit := w.resolveUnit(ctx, mintURL, proofs, token.Unit())
	keyset, err := w.activeKeyset(ctx, mintURL, unit)
	if err != nil {
		return 0, err
	}

	fees, err := w.feeFunc(ctx, mintURL)
	if err != nil {
		return 0, err
	}
	inputFees := fees(proofs)
	if proofs.Amount() <= inputFees {
		return 0, fmt.Errorf("token amount %d does not cover the mint fee of %d", proofs.Amount(), inputFees)
	}
	amount := proofs.Amount() - inputFees

	outputs, err := newBlindedOutputs(keyset, cashu.AmountSplit(amount))
	if err != nil {
		return 0, err
	}
	outputs.sort()

	newProofs, err := w.swap(ctx, mintURL, proofs, outputs)
	if err != nil {
		return 0, err
	}

	if err := w.storeProofs(ctx, mintURL, unit, newProofs); err != nil {
		return 0, unsavedProofs(mintURL, unit, newProofs, err)
	}
	w.logger.Info().Str("mint", mintURL).Uint64("amount", amount).Str("unit", unit).Msg("redeemed token")
	return amount, nil
}

// resolveUnit returns the unit of the keyset the proofs were issued
// from, falling back to the unit the token declares.
func (w *Wallet) resolveUnit(ctx context.Context, mintURL string, proofs cashu.Proofs, tokenUnit string) string {
	if len(proofs) > 0 {
		keyset, err := w.keyset(ctx, mintURL, proofs[0].Id)
		if err == nil && keyset.Unit != "" {
			return keyset.Unit
		}
	}
	if tokenUnit == "" {
		return cashu.Sat.String()
	}
	return tokenUnit
}

// storeProofs publishes new proofs in a token event and records
// them in the history.
func (w *Wallet) storeProofs(ctx context.Context, mintURL, unit string, proofs cashu.Proofs) error {
	content := nip60.TokenContent{Mint: mintURL, Unit: unit, Proofs: proofs}
	event, err := nip60.NewTokenEvent(ctx, w.signer, content, nostr.Now())
	if err != nil {
		return &CryptoError{Err: err}
	}
	if err := w.publish(ctx, event); err != nil {
		return err
	}

	refs := []nip60.EventRef{{EventId: event.ID, Marker: nip60.MarkerCreated}}
	w.recordHistory(ctx, nip60.DirectionIn, proofs.Amount(), unit, refs)
	return nil
}
