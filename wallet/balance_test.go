package wallet

import (
	"context"
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nutsack/nutsack/cashu"
	"github.com/nutsack/nutsack/nip60"
)

func stateFromContents(t *testing.T, contents ...nip60.TokenContent) *nip60.WalletState {
	t.Helper()
	signer, err := nip60.NewKeySigner(nostr.GeneratePrivateKey())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	events := make([]*nostr.Event, len(contents))
	for i, content := range contents {
		events[i], err = nip60.NewTokenEvent(ctx, signer, content, nostr.Now())
		if err != nil {
			t.Fatal(err)
		}
	}
	state, err := nip60.Reconstruct(ctx, signer, events)
	if err != nil {
		t.Fatal(err)
	}
	return state
}

func proofsWithSecret(prefix string, amounts ...uint64) cashu.Proofs {
	proofs := newProofs(amounts...)
	for i := range proofs {
		proofs[i].Secret = prefix + proofs[i].Secret
	}
	return proofs
}

func TestAggregateBalances(t *testing.T) {
	state := stateFromContents(t,
		nip60.TokenContent{Mint: "https://a.com", Unit: "msat", Proofs: proofsWithSecret("a", 1024, 512)},
		nip60.TokenContent{Mint: "https://a.com/", Unit: "msat", Proofs: proofsWithSecret("b", 256, 8)},
		nip60.TokenContent{Mint: "https://a.com", Unit: "sat", Proofs: proofsWithSecret("c", 8, 2)},
		nip60.TokenContent{Mint: "https://b.com", Unit: "sat", Proofs: proofsWithSecret("d", 4)},
		nip60.TokenContent{Mint: "https://b.com", Unit: "usd", Proofs: proofsWithSecret("e", 128)},
	)

	balances := AggregateBalances(state, cashu.Sat, nil)
	if balances.Unit != "sat" {
		t.Errorf("expected 'sat' but got '%v' instead", balances.Unit)
	}
	// 1800 msat is 1 sat, plus 10 and 4 sat
	if balances.Total != 15 {
		t.Errorf("expected '%v' but got '%v' instead", 15, balances.Total)
	}

	expected := []ProofBreakdown{
		{MintURL: "https://a.com", Unit: "msat", TotalBalance: 1800, ProofCount: 4, Converted: 1, Convertible: true},
		{MintURL: "https://a.com", Unit: "sat", TotalBalance: 10, ProofCount: 2, Converted: 10, Convertible: true},
		{MintURL: "https://b.com", Unit: "sat", TotalBalance: 4, ProofCount: 1, Converted: 4, Convertible: true},
		{MintURL: "https://b.com", Unit: "usd", TotalBalance: 128, ProofCount: 1},
	}
	if len(balances.PerMint) != len(expected) {
		t.Fatalf("expected %d breakdowns but got %d", len(expected), len(balances.PerMint))
	}
	for i, breakdown := range balances.PerMint {
		want := expected[i]
		if breakdown.MintURL != want.MintURL || breakdown.Unit != want.Unit {
			t.Errorf("expected '%v %v' but got '%v %v'", want.MintURL, want.Unit, breakdown.MintURL, breakdown.Unit)
		}
		if breakdown.TotalBalance != want.TotalBalance || breakdown.ProofCount != want.ProofCount {
			t.Errorf("%v %v: expected '%v' in %d proofs but got '%v' in %d",
				want.MintURL, want.Unit, want.TotalBalance, want.ProofCount, breakdown.TotalBalance, breakdown.ProofCount)
		}
		if breakdown.Converted != want.Converted || breakdown.Convertible != want.Convertible {
			t.Errorf("%v %v: expected converted '%v' (%v) but got '%v' (%v)",
				want.MintURL, want.Unit, want.Converted, want.Convertible, breakdown.Converted, breakdown.Convertible)
		}
	}

	msat := AggregateBalances(state, cashu.Msat, nil)
	if msat.Total != 1800+14000 {
		t.Errorf("expected '%v' but got '%v' instead", 15800, msat.Total)
	}
}

func TestAggregateBalancesTwoMints(t *testing.T) {
	state := stateFromContents(t,
		nip60.TokenContent{Mint: "https://x.com", Unit: "msat", Proofs: proofsWithSecret("x", 4096, 512, 256, 128, 8)},
		nip60.TokenContent{Mint: "https://y.com", Unit: "sat", Proofs: proofsWithSecret("y", 2, 1)},
	)

	balances := AggregateBalances(state, cashu.Sat, nil)
	if balances.Total != 8 {
		t.Errorf("expected '%v' but got '%v' instead", 8, balances.Total)
	}
	if len(balances.PerMint) != 2 {
		t.Fatalf("expected 2 breakdowns but got %d", len(balances.PerMint))
	}
	if balances.PerMint[0].TotalBalance != 5000 || balances.PerMint[0].Converted != 5 {
		t.Errorf("expected 5000 msat as 5 sat but got '%v' as '%v'", balances.PerMint[0].TotalBalance, balances.PerMint[0].Converted)
	}
	if balances.PerMint[1].Converted != 3 {
		t.Errorf("expected '%v' but got '%v' instead", 3, balances.PerMint[1].Converted)
	}
}

func TestAggregateBalancesKeysetUnit(t *testing.T) {
	// the keyset says msat even though the event says sat
	state := stateFromContents(t,
		nip60.TokenContent{Mint: "https://a.com", Unit: "sat", Proofs: newProofs(2048)},
	)
	balances := AggregateBalances(state, cashu.Sat, map[string]string{"009a1f293253e41e": "msat"})
	if balances.Total != 2 {
		t.Errorf("expected '%v' but got '%v' instead", 2, balances.Total)
	}
	if balances.PerMint[0].Unit != "msat" {
		t.Errorf("expected 'msat' but got '%v' instead", balances.PerMint[0].Unit)
	}
}

func TestAggregateBalancesEmpty(t *testing.T) {
	balances := AggregateBalances(stateFromContents(t), cashu.Sat, nil)
	if balances.Total != 0 || len(balances.PerMint) != 0 {
		t.Errorf("expected empty balances but got %+v", balances)
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		amount   uint64
		unit     string
		expected string
	}{
		{21, "sat", "21 sat"},
		{0, "sat", "0 sat"},
		{5, "msat", "5 msat"},
		{123, "usd", "$1.23"},
		{5, "usd", "$0.05"},
		{100000, "eur", "€1000.00"},
		{7, "btc", "7 btc"},
	}

	for _, test := range tests {
		if formatted := FormatAmount(test.amount, test.unit); formatted != test.expected {
			t.Errorf("expected '%v' but got '%v' instead", test.expected, formatted)
		}
	}
}

func TestSummarizeHistory(t *testing.T) {
	entries := []nip60.HistoryEntry{
		{Direction: nip60.DirectionIn, Amount: 100, Unit: "sat"},
		{Direction: nip60.DirectionOut, Amount: 30, Unit: "sat"},
		{Direction: nip60.DirectionOut, Amount: 500, Unit: "msat"},
		{Direction: nip60.DirectionIn, Amount: 5, Unit: "sat"},
	}

	summary := SummarizeHistory(entries)
	if summary.Entries != 4 {
		t.Errorf("expected '%v' but got '%v' instead", 4, summary.Entries)
	}
	if summary.TotalIn["sat"] != 105 || summary.TotalOut["sat"] != 30 {
		t.Errorf("unexpected sat totals: in %v out %v", summary.TotalIn["sat"], summary.TotalOut["sat"])
	}
	if summary.Net["sat"] != 75 {
		t.Errorf("expected '%v' but got '%v' instead", 75, summary.Net["sat"])
	}
	if summary.Net["msat"] != -500 {
		t.Errorf("expected '%v' but got '%v' instead", -500, summary.Net["msat"])
	}
}
