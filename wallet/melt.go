package wallet

import (
	"context"
	"errors"
	"fmt"
	"slices"

	decodepay "github.com/nbd-wtf/ln-decodepay"
	"github.com/nutsack/nutsack/cashu"
	"github.com/nutsack/nutsack/cashu/nuts/nut05"
	"github.com/nutsack/nutsack/nip60"
)

// Melt pays a lightning invoice with proofs from the mint. The mint is
// given exactly the quoted amount plus its fee reserve; if the wallet
// does not hold proofs adding up to that, a covering set is swapped
// first. When the payment fails after such a swap, the swapped proofs
// are stored back in the wallet.
func (w *Wallet) Melt(ctx context.Context, invoice, mint string) (*nut05.PostMeltQuoteBolt11Response, error) {
	if _, err := decodepay.Decodepay(invoice); err != nil {
		return nil, fmt.Errorf("invalid invoice: %v", err)
	}
	mintURL, err := normalizeURL(mint)
	if err != nil {
		return nil, err
	}
	if !w.trusted(mintURL) {
		return nil, fmt.Errorf("%w: %v", ErrUntrustedMint, mintURL)
	}

	unit := w.unit.String()
	quoteRequest := nut05.PostMeltQuoteBolt11Request{Request: invoice, Unit: unit}
	quote, err := w.client.PostMeltQuoteBolt11(ctx, mintURL, quoteRequest)
	if err != nil {
		return nil, &TransportError{Op: "request melt quote from " + mintURL, Err: err}
	}

	state, err := w.Reconstruct(ctx)
	if err != nil {
		return nil, err
	}

	needed := quote.Amount + quote.FeeReserve
	inputs, spent, change, err := w.meltInputs(ctx, state, mintURL, unit, needed)
	if err != nil {
		return nil, err
	}
	swapped := len(change) > 0 || !sameProofs(inputs, spent)

	meltRequest := nut05.PostMeltBolt11Request{Quote: quote.Quote, Inputs: inputs}
	response, err := w.client.PostMeltBolt11(ctx, mintURL, meltRequest)
	if err == nil && nut05.StringToState(response.State) != nut05.Paid {
		err = fmt.Errorf("quote is %v", response.State)
	}
	if err != nil {
		w.logger.Error().Str("mint", mintURL).Str("quote", quote.Quote).Err(err).Msg("melt failed")
		if swapped {
			// the wallet proofs are gone, keep what the swap returned
			kept := slices.Concat(change, inputs)
			fees := spent.Amount() - kept.Amount()
			if recordErr := w.recordSpend(ctx, state, mintURL, unit, spent, kept, fees); recordErr != nil {
				return nil, errors.Join(fmt.Errorf("%w: %w", ErrMeltFailed, err), recordErr)
			}
		}
		return nil, fmt.Errorf("%w: %w", ErrMeltFailed, err)
	}

	if err := w.recordSpend(ctx, state, mintURL, unit, spent, change, spent.Amount()-change.Amount()); err != nil {
		return response, err
	}
	w.logger.Info().
		Str("mint", mintURL).
		Uint64("amount", quote.Amount).
		Uint64("fee_reserve", quote.FeeReserve).
		Msg("paid invoice")
	return response, nil
}

// meltInputs returns proofs the mint accepts for an amount to melt
// after its input fees, the wallet proofs spent to get them and the
// change of a swap.
func (w *Wallet) meltInputs(
	ctx context.Context,
	state *nip60.WalletState,
	mintURL, unit string,
	needed uint64,
) (inputs, spent, change cashu.Proofs, err error) {
	keyset, err := w.activeKeyset(ctx, mintURL, unit)
	if err != nil {
		return nil, nil, nil, err
	}
	fees, err := w.feeFunc(ctx, mintURL)
	if err != nil {
		return nil, nil, nil, err
	}

	target := meltTarget(needed, keyset.InputFeePpk)
	inputs, spent, change, err = w.prepareProofs(ctx, state, mintURL, unit, target)
	if err != nil {
		return nil, nil, nil, err
	}
	if inputs.Amount() >= needed+fees(inputs) {
		return inputs, spent, change, nil
	}
	if len(change) > 0 || !sameProofs(inputs, spent) {
		// spent is gone at the mint, keep what the swap returned
		kept := slices.Concat(change, inputs)
		if err := w.recordSpend(ctx, state, mintURL, unit, spent, kept, spent.Amount()-kept.Amount()); err != nil {
			return nil, nil, nil, err
		}
		return nil, nil, nil, fmt.Errorf("swapped proofs do not cover the melt fee of %d", fees(inputs))
	}

	// exact proofs that do not cover their own fees
	selected, _, err := selectCovering(mintProofs(state, mintURL, unit), target, fees)
	if err != nil {
		return nil, nil, nil, err
	}
	inputs, change, err = w.swapSplit(ctx, mintURL, unit, selected, target, fees(selected))
	if err != nil {
		return nil, nil, nil, err
	}
	return inputs, selected, change, nil
}

// meltTarget is an amount of at least needed whose split into
// denominations also pays the input fee of spending those proofs.
// The target only grows and the fee is bounded by the number of
// denominations, so the loop ends.
func meltTarget(needed uint64, inputFeePpk uint) uint64 {
	target := needed
	for {
		next := needed + feesFromPpk(uint(len(cashu.AmountSplit(target)))*inputFeePpk)
		if next <= target {
			return target
		}
		target = next
	}
}

func sameProofs(a, b cashu.Proofs) bool {
	if len(a) != len(b) {
		return false
	}
	for _, proof := range a {
		if !containsProof(b, proof) {
			return false
		}
	}
	return true
}
