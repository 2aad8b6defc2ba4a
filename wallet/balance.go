package wallet

import (
	"context"
	"fmt"
	"math/big"
	"slices"
	"strings"
	"sync"

	"github.com/nutsack/nutsack/cashu"
	"github.com/nutsack/nutsack/cashu/nuts/nut06"
	"github.com/nutsack/nutsack/nip60"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// ProofBreakdown is the balance held at one mint in one unit.
type ProofBreakdown struct {
	MintURL       string
	Unit          string
	TotalBalance  uint64
	ProofCount    int
	Denominations map[uint64]int
	// TotalBalance in the canonical unit, if Convertible
	Converted   uint64
	Convertible bool
}

type Balances struct {
	// sum of the convertible breakdowns, in Unit
	Total   uint64
	Unit    string
	PerMint []ProofBreakdown
}

// AggregateBalances groups the proofs in the state by mint and unit and
// adds them up in the canonical unit. The unit of a proof is the unit of
// its keyset when known from keysetUnits, else that of its token event.
// Breakdowns are converted as a whole, so msat amounts lose their
// remainder below 1000 only once per breakdown.
func AggregateBalances(
	state *nip60.WalletState,
	canonical cashu.Unit,
	keysetUnits map[string]string,
) *Balances {
	type key struct{ mint, unit string }
	groups := make(map[key]cashu.Proofs)
	for _, proof := range state.Proofs {
		event := state.TokenEvent(proof)
		if event == nil {
			continue
		}
		mintURL, err := normalizeURL(event.Mint)
		if err != nil {
			mintURL = event.Mint
		}
		unit, ok := keysetUnits[proof.Id]
		if !ok {
			unit = event.Unit
		}
		k := key{mintURL, unit}
		groups[k] = append(groups[k], proof)
	}

	balances := &Balances{Unit: canonical.String(), PerMint: make([]ProofBreakdown, 0, len(groups))}
	for k, proofs := range groups {
		breakdown := ProofBreakdown{
			MintURL:       k.mint,
			Unit:          k.unit,
			TotalBalance:  proofs.Amount(),
			ProofCount:    len(proofs),
			Denominations: proofs.Denominations(),
		}
		breakdown.Converted, breakdown.Convertible = convertUnit(breakdown.TotalBalance, k.unit, canonical.String())
		if breakdown.Convertible {
			balances.Total += breakdown.Converted
		}
		balances.PerMint = append(balances.PerMint, breakdown)
	}

	slices.SortFunc(balances.PerMint, func(a, b ProofBreakdown) int {
		if c := strings.Compare(a.MintURL, b.MintURL); c != 0 {
			return c
		}
		return strings.Compare(a.Unit, b.Unit)
	})
	return balances
}

// convertUnit converts between sat and msat. Other units
// only convert to themselves.
func convertUnit(amount uint64, from, to string) (uint64, bool) {
	switch {
	case from == to:
		return amount, true
	case from == cashu.Msat.String() && to == cashu.Sat.String():
		return amount / 1000, true
	case from == cashu.Sat.String() && to == cashu.Msat.String():
		return amount * 1000, true
	}
	return 0, false
}

// Balances reconstructs the wallet and aggregates its balance
// across mints. Keyset units are looked up at each mint concurrently;
// a mint that cannot be reached falls back to the units recorded in
// the token events.
func (w *Wallet) Balances(ctx context.Context) (*Balances, error) {
	state, err := w.Reconstruct(ctx)
	if err != nil {
		return nil, err
	}

	mints := make([]string, 0)
	for _, event := range state.Events {
		if mintURL, err := normalizeURL(event.Mint); err == nil && !slices.Contains(mints, mintURL) {
			mints = append(mints, mintURL)
		}
	}

	var mu sync.Mutex
	keysetUnits := make(map[string]string)
	g, gctx := errgroup.WithContext(ctx)
	for _, mintURL := range mints {
		g.Go(func() error {
			keysets, err := w.refreshKeysets(gctx, mintURL)
			if err != nil {
				w.logger.Warn().Str("mint", mintURL).Err(err).Msg("could not get keysets, using units from events")
				return ctx.Err()
			}
			mu.Lock()
			defer mu.Unlock()
			for _, keyset := range keysets {
				keysetUnits[keyset.Id] = keyset.Unit
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return AggregateBalances(state, w.unit, keysetUnits), nil
}

// Balance is the total balance in the wallet's unit.
func (w *Wallet) Balance(ctx context.Context) (uint64, error) {
	balances, err := w.Balances(ctx)
	if err != nil {
		return 0, err
	}
	return balances.Total, nil
}

// FormatAmount renders an amount for display. Fiat units are in cents.
func FormatAmount(amount uint64, unit string) string {
	cents := func() string {
		return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -2).StringFixed(2)
	}
	switch unit {
	case cashu.Usd.String():
		return "$" + cents()
	case cashu.Eur.String():
		return "€" + cents()
	}
	return fmt.Sprintf("%d %s", amount, unit)
}

type Stats struct {
	Balance     uint64
	Unit        string
	TokenEvents int
	Proofs      int
	Mints       []string
}

func (w *Wallet) Stats(ctx context.Context) (*Stats, error) {
	state, err := w.Reconstruct(ctx)
	if err != nil {
		return nil, err
	}

	balances := AggregateBalances(state, w.unit, nil)
	return &Stats{
		Balance:     balances.Total,
		Unit:        balances.Unit,
		TokenEvents: len(state.Events),
		Proofs:      len(state.Proofs),
		Mints:       w.Mints(),
	}, nil
}

// MintInfo returns the info of the mint, from the cache if
// the mint cannot be reached.
func (w *Wallet) MintInfo(ctx context.Context, mint string) (*nut06.MintInfo, error) {
	mintURL, err := normalizeURL(mint)
	if err != nil {
		return nil, err
	}

	info, err := w.client.GetMintInfo(ctx, mintURL)
	if err != nil {
		if cached := w.keysets.GetMintInfo(mintURL); cached != nil {
			w.logger.Warn().Str("mint", mintURL).Err(err).Msg("using cached mint info")
			return cached, nil
		}
		return nil, &TransportError{Op: "get info from " + mintURL, Err: err}
	}

	if err := w.keysets.SaveMintInfo(mintURL, *info); err != nil {
		w.logger.Warn().Str("mint", mintURL).Err(err).Msg("could not cache mint info")
	}
	return info, nil
}
