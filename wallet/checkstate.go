package wallet

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/nutsack/nutsack/cashu"
	"github.com/nutsack/nutsack/cashu/nuts/nut07"
	"github.com/nutsack/nutsack/crypto"
	"github.com/nutsack/nutsack/nip60"
)

// CheckProofs asks the mint which of the wallet's proofs from it
// are already spent.
func (w *Wallet) CheckProofs(ctx context.Context, mint string) (spent cashu.Proofs, err error) {
	mintURL, err := normalizeURL(mint)
	if err != nil {
		return nil, err
	}

	state, err := w.Reconstruct(ctx)
	if err != nil {
		return nil, err
	}
	return w.spentProofs(ctx, mintURL, mintProofs(state, mintURL, ""))
}

func (w *Wallet) spentProofs(ctx context.Context, mintURL string, proofs cashu.Proofs) (cashu.Proofs, error) {
	if len(proofs) == 0 {
		return cashu.Proofs{}, nil
	}

	Ys := make([]string, len(proofs))
	for i, proof := range proofs {
		Y, err := crypto.HashToCurve([]byte(proof.Secret))
		if err != nil {
			return nil, &CryptoError{Err: err}
		}
		Ys[i] = hex.EncodeToString(Y.SerializeCompressed())
	}

	response, err := w.client.PostCheckProofState(ctx, mintURL, nut07.PostCheckStateRequest{Ys: Ys})
	if err != nil {
		return nil, &TransportError{Op: "check proof states at " + mintURL, Err: err}
	}
	if len(response.States) != len(Ys) {
		return nil, fmt.Errorf("mint returned %d states for %d proofs", len(response.States), len(Ys))
	}

	states := make(map[string]nut07.State, len(response.States))
	for _, state := range response.States {
		states[state.Y] = state.State
	}
	spent := make(cashu.Proofs, 0)
	for i, proof := range proofs {
		if states[Ys[i]] == nut07.Spent {
			spent = append(spent, proof)
		}
	}
	return spent, nil
}

// RemoveSpentProofs removes proofs the mint reports as spent from the
// wallet, rolling the rest of their token events over. It returns the
// amount removed.
func (w *Wallet) RemoveSpentProofs(ctx context.Context, mint string) (uint64, error) {
	mintURL, err := normalizeURL(mint)
	if err != nil {
		return 0, err
	}

	state, err := w.Reconstruct(ctx)
	if err != nil {
		return 0, err
	}
	spent, err := w.spentProofs(ctx, mintURL, mintProofs(state, mintURL, ""))
	if err != nil {
		return 0, err
	}
	if len(spent) == 0 {
		return 0, nil
	}

	// the proofs left the wallet earlier, there is no new history to record
	if err := w.removeProofs(ctx, state, mintURL, spent); err != nil {
		return 0, err
	}
	w.logger.Info().Str("mint", mintURL).Int("proofs", len(spent)).Uint64("amount", spent.Amount()).Msg("removed spent proofs")
	return spent.Amount(), nil
}

// removeProofs is recordSpend without change or history, grouped by
// unit since a rollover event holds one unit.
func (w *Wallet) removeProofs(ctx context.Context, state *nip60.WalletState, mintURL string, proofs cashu.Proofs) error {
	byUnit := make(map[string]cashu.Proofs)
	for _, proof := range proofs {
		unit := cashu.Sat.String()
		if event := state.TokenEvent(proof); event != nil {
			unit = event.Unit
		}
		byUnit[unit] = append(byUnit[unit], proof)
	}
	for unit, unitProofs := range byUnit {
		if err := w.recordSpend(ctx, state, mintURL, unit, unitProofs, nil, 0); err != nil {
			return err
		}
	}
	return nil
}
