package wallet

import (
	"slices"

	"github.com/nutsack/nutsack/cashu"
	"github.com/nutsack/nutsack/nip60"
)

// mintProofs returns the proofs in the state held in token events of
// the mint. An empty unit matches every unit.
func mintProofs(state *nip60.WalletState, mint, unit string) cashu.Proofs {
	proofs := make(cashu.Proofs, 0)
	for _, proof := range state.Proofs {
		event := state.TokenEvent(proof)
		if event == nil {
			continue
		}
		eventMint, err := normalizeURL(event.Mint)
		if err != nil || eventMint != mint {
			continue
		}
		if unit != "" && event.Unit != unit {
			continue
		}
		proofs = append(proofs, proof)
	}
	return proofs
}

// SelectExact picks proofs of the mint adding up to exactly the amount.
// Proofs are taken largest first and a proof larger than what is still
// missing is skipped, so some amounts that a subset could make are not
// found: {2, 2} cannot make 3. The remaining proofs of the mint are
// returned as retained.
func SelectExact(state *nip60.WalletState, amount uint64, mint string) (spend, retained cashu.Proofs, err error) {
	mintURL, err := normalizeURL(mint)
	if err != nil {
		return nil, nil, err
	}
	return selectExact(mintProofs(state, mintURL, ""), amount)
}

func selectExact(proofs cashu.Proofs, amount uint64) (spend, retained cashu.Proofs, err error) {
	available := proofs.Amount()
	if available < amount {
		return nil, nil, &InsufficientBalanceError{Needed: amount, Available: available}
	}

	sorted := slices.Clone(proofs)
	sorted.SortDescending()

	spend = make(cashu.Proofs, 0)
	retained = make(cashu.Proofs, 0)
	remainder := amount
	for _, proof := range sorted {
		if remainder > 0 && proof.Amount <= remainder {
			spend = append(spend, proof)
			remainder -= proof.Amount
		} else {
			retained = append(retained, proof)
		}
	}

	if remainder != 0 {
		return nil, nil, ErrExactCombinationNotFound
	}
	return spend, retained, nil
}

// selectCovering picks proofs adding up to at least the amount plus the
// fees to spend them. The smallest single proof that covers it is
// preferred, otherwise proofs are taken largest first.
func selectCovering(
	proofs cashu.Proofs,
	amount uint64,
	fees func(cashu.Proofs) uint64,
) (selected, retained cashu.Proofs, err error) {
	sorted := slices.Clone(proofs)
	sorted.SortDescending()

	selected = make(cashu.Proofs, 0)
	for i := len(sorted) - 1; i >= 0; i-- {
		single := cashu.Proofs{sorted[i]}
		if sorted[i].Amount >= amount+fees(single) {
			selected = single
			break
		}
	}

	if len(selected) == 0 {
		var total uint64
		for _, proof := range sorted {
			selected = append(selected, proof)
			total += proof.Amount
			if total >= amount+fees(selected) {
				break
			}
		}
	}

	needed := amount + fees(selected)
	if selected.Amount() < needed {
		return nil, nil, &InsufficientBalanceError{Needed: needed, Available: proofs.Amount()}
	}

	retained = make(cashu.Proofs, 0, len(sorted))
	for _, proof := range sorted {
		if !containsProof(selected, proof) {
			retained = append(retained, proof)
		}
	}
	return selected, retained, nil
}

func containsProof(proofs cashu.Proofs, proof cashu.Proof) bool {
	identity := proof.Identity()
	return slices.ContainsFunc(proofs, func(p cashu.Proof) bool {
		return p.Identity() == identity
	})
}
