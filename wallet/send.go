package wallet

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nutsack/nutsack/cashu"
	"github.com/nutsack/nutsack/cashu/nuts/nut03"
	"github.com/nutsack/nutsack/nip60"
)

// Send takes the amount from the wallet's proofs of the mint and returns
// it as a token. When no proofs add up to the amount exactly, the mint
// swaps a covering set into the amount and change, and the change stays
// in the wallet.
//
// The spent proofs are rolled over into a new token event before the
// old events are deleted. If recording the spend fails the token is
// still returned together with the error, since its proofs are no
// longer in a consistent place.
func (w *Wallet) Send(ctx context.Context, amount uint64, mint, memo string) (string, error) {
	if amount == 0 {
		return "", errors.New("amount must be greater than zero")
	}
	mintURL, err := normalizeURL(mint)
	if err != nil {
		return "", err
	}

	state, err := w.Reconstruct(ctx)
	if err != nil {
		return "", err
	}

	unit := w.unit.String()
	send, spent, change, err := w.prepareProofs(ctx, state, mintURL, unit, amount)
	if err != nil {
		return "", err
	}

	token, err := serializeToken(send, mintURL, w.unit, memo)
	if err != nil {
		return "", err
	}

	if err := w.recordSpend(ctx, state, mintURL, unit, spent, change, amount); err != nil {
		return token, err
	}
	return token, nil
}

// SendSplit sends the amount from as many mints as it takes, using the
// mints with the largest balance in the wallet's unit first. It returns
// one token per mint. If a send fails partway, the tokens created so
// far are returned together with the error.
func (w *Wallet) SendSplit(ctx context.Context, amount uint64, memo string) ([]string, error) {
	if amount == 0 {
		return nil, errors.New("amount must be greater than zero")
	}
	balances, err := w.Balances(ctx)
	if err != nil {
		return nil, err
	}

	unit := w.unit.String()
	var total uint64
	sources := make([]ProofBreakdown, 0, len(balances.PerMint))
	for _, breakdown := range balances.PerMint {
		if breakdown.Unit == unit && breakdown.TotalBalance > 0 {
			sources = append(sources, breakdown)
			total += breakdown.TotalBalance
		}
	}
	if total < amount {
		return nil, &InsufficientBalanceError{Needed: amount, Available: total}
	}
	slices.SortStableFunc(sources, func(a, b ProofBreakdown) int {
		return cmp.Compare(b.TotalBalance, a.TotalBalance)
	})

	tokens := make([]string, 0)
	remaining := amount
	for _, source := range sources {
		if remaining == 0 {
			break
		}
		// a whole balance goes out as is, without a swap
		sendAmount := min(remaining, source.TotalBalance)
		token, err := w.Send(ctx, sendAmount, source.MintURL, memo)
		if token != "" {
			tokens = append(tokens, token)
		}
		if err != nil {
			return tokens, fmt.Errorf("send %d from %v: %w", sendAmount, source.MintURL, err)
		}
		remaining -= sendAmount
	}
	return tokens, nil
}

// prepareProofs returns proofs adding up to exactly the amount, the
// wallet proofs they came from and the change of a swap, if any.
func (w *Wallet) prepareProofs(
	ctx context.Context,
	state *nip60.WalletState,
	mintURL, unit string,
	amount uint64,
) (send, spent, change cashu.Proofs, err error) {
	proofs := mintProofs(state, mintURL, unit)

	send, _, err = selectExact(proofs, amount)
	if err == nil {
		return send, send, cashu.Proofs{}, nil
	}
	if !errors.Is(err, ErrExactCombinationNotFound) {
		return nil, nil, nil, err
	}

	fees, err := w.feeFunc(ctx, mintURL)
	if err != nil {
		return nil, nil, nil, err
	}
	selected, _, err := selectCovering(proofs, amount, fees)
	if err != nil {
		return nil, nil, nil, err
	}

	w.logger.Debug().
		Uint64("amount", amount).
		Uint64("inputs", selected.Amount()).
		Msg("no exact proofs, swapping for change")
	send, change, err = w.swapSplit(ctx, mintURL, unit, selected, amount, fees(selected))
	if err != nil {
		return nil, nil, nil, err
	}
	return send, selected, change, nil
}

// swapSplit swaps the inputs for a set of proofs adding up to the amount
// and a set with the change.
func (w *Wallet) swapSplit(
	ctx context.Context,
	mintURL, unit string,
	inputs cashu.Proofs,
	amount, fees uint64,
) (send, change cashu.Proofs, err error) {
	if inputs.Amount() < amount+fees {
		return nil, nil, &InsufficientBalanceError{Needed: amount + fees, Available: inputs.Amount()}
	}

	keyset, err := w.activeKeyset(ctx, mintURL, unit)
	if err != nil {
		return nil, nil, err
	}

	outputs, err := newBlindedOutputs(keyset, cashu.AmountSplit(amount))
	if err != nil {
		return nil, nil, err
	}
	sendSecrets := make(map[string]bool, len(outputs.secrets))
	for _, secret := range outputs.secrets {
		sendSecrets[secret] = true
	}

	changeOutputs, err := newBlindedOutputs(keyset, cashu.AmountSplit(inputs.Amount()-fees-amount))
	if err != nil {
		return nil, nil, err
	}
	outputs.append(changeOutputs)
	outputs.sort()

	proofs, err := w.swap(ctx, mintURL, inputs, outputs)
	if err != nil {
		return nil, nil, err
	}

	send = make(cashu.Proofs, 0, len(sendSecrets))
	change = make(cashu.Proofs, 0, len(proofs)-len(sendSecrets))
	for _, proof := range proofs {
		if sendSecrets[proof.Secret] {
			send = append(send, proof)
		} else {
			change = append(change, proof)
		}
	}
	return send, change, nil
}

// swap exchanges the inputs for signatures on the outputs and
// returns the unblinded proofs.
func (w *Wallet) swap(
	ctx context.Context,
	mintURL string,
	inputs cashu.Proofs,
	outputs *blindedOutputs,
) (cashu.Proofs, error) {
	request := nut03.PostSwapRequest{Inputs: inputs, Outputs: outputs.messages}
	response, err := w.client.PostSwap(ctx, mintURL, request)
	if err != nil {
		w.logger.Error().Str("mint", mintURL).Err(err).Msg("swap failed")

		var cashuErr cashu.Error
		if errors.As(err, &cashuErr) {
			return nil, fmt.Errorf("%w: %w", ErrSwapRejected, err)
		}
		return nil, &TransportError{Op: "swap at " + mintURL, Err: err}
	}

	return outputs.constructProofs(response.Signatures)
}

// recordSpend publishes the new state of the wallet after spent proofs
// left it: a rollover token event with the proofs that were kept from
// the affected events plus the change, a deletion of the affected
// events and a history entry.
func (w *Wallet) recordSpend(
	ctx context.Context,
	state *nip60.WalletState,
	mintURL, unit string,
	spent, change cashu.Proofs,
	amount uint64,
) error {
	affected := make([]string, 0)
	spentIdentities := make(map[string]bool, len(spent))
	for _, proof := range spent {
		spentIdentities[proof.Identity()] = true
		id := state.ProofToEventId[proof.Identity()]
		if id != "" && !slices.Contains(affected, id) {
			affected = append(affected, id)
		}
	}

	rollover := make(cashu.Proofs, 0)
	// created_at must be later than that of every affected event
	createdAt := nostr.Now()
	for _, id := range affected {
		for _, proof := range state.EventProofs(id) {
			if !spentIdentities[proof.Identity()] {
				rollover = append(rollover, proof)
			}
		}
		if event := state.Events[id]; event != nil && event.CreatedAt >= createdAt {
			createdAt = event.CreatedAt + 1
		}
	}
	rollover = append(rollover, change...)

	refs := make([]nip60.EventRef, 0, len(affected)+1)
	if len(rollover) > 0 {
		content := nip60.TokenContent{Mint: mintURL, Unit: unit, Proofs: rollover, Del: affected}
		event, err := nip60.NewTokenEvent(ctx, w.signer, content, createdAt)
		if err == nil {
			err = w.publish(ctx, event)
		} else {
			err = &CryptoError{Err: err}
		}
		if err != nil {
			// kept proofs are still in the affected events, change is not
			if len(change) > 0 {
				return unsavedProofs(mintURL, unit, change, err)
			}
			return err
		}
		refs = append(refs, nip60.EventRef{EventId: event.ID, Marker: nip60.MarkerCreated})
		w.logger.Debug().Str("event", event.ID).Strs("del", affected).Uint64("amount", rollover.Amount()).Msg("rolled over proofs")
	}

	if len(affected) > 0 {
		deletion, err := nip60.NewDeletionEvent(ctx, w.signer, affected, nip60.KindToken)
		if err != nil {
			return &CryptoError{Err: err}
		}
		if err := w.publish(ctx, deletion); err != nil {
			return err
		}
		for _, id := range affected {
			refs = append(refs, nip60.EventRef{EventId: id, Marker: nip60.MarkerDestroyed})
		}
	}

	if amount > 0 {
		w.recordHistory(ctx, nip60.DirectionOut, amount, unit, refs)
	}
	return nil
}

// serializeToken encodes the proofs as a V4 token, or V3 if a keyset
// id is not hex.
func serializeToken(proofs cashu.Proofs, mintURL string, unit cashu.Unit, memo string) (string, error) {
	tokenV4, err := cashu.NewTokenV4(proofs, mintURL, unit, memo)
	if err == nil {
		return tokenV4.Serialize()
	}
	return cashu.NewTokenV3(proofs, mintURL, unit, memo).Serialize()
}
