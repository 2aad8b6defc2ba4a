package wallet

import (
	"context"
	"errors"
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nutsack/nutsack/cashu"
	"github.com/nutsack/nutsack/nip60"
	"github.com/nutsack/nutsack/testutils"
	"github.com/nutsack/nutsack/wallet/relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testWallet struct {
	*Wallet
	relay  *relay.Memory
	signer *nip60.KeySigner
}

func newSigner(t *testing.T) *nip60.KeySigner {
	t.Helper()
	signer, err := nip60.NewKeySigner(nostr.GeneratePrivateKey())
	require.NoError(t, err)
	return signer
}

func newTestWallet(t *testing.T, mints ...string) *testWallet {
	t.Helper()
	signer := newSigner(t)
	transport := relay.NewMemory()
	wallet, err := LoadWallet(context.Background(), Config{
		Signer:    signer,
		Transport: transport,
		Mints:     mints,
		Unit:      "sat",
	})
	require.NoError(t, err)
	return &testWallet{Wallet: wallet, relay: transport, signer: signer}
}

func newTestMint(t *testing.T, inputFeePpk uint) *testutils.Mint {
	t.Helper()
	mint := testutils.NewMint("sat", inputFeePpk)
	t.Cleanup(mint.Close)
	return mint
}

// fund stores proofs issued by the mint, one token event per amount.
func (w *testWallet) fund(t *testing.T, mint *testutils.Mint, amounts ...uint64) cashu.Proofs {
	t.Helper()
	funded := cashu.Proofs{}
	for _, amount := range amounts {
		proofs, err := mint.IssueProofs(amount, "sat")
		require.NoError(t, err)
		require.NoError(t, w.storeProofs(context.Background(), mint.URL(), "sat", proofs))
		funded = append(funded, proofs...)
	}
	return funded
}

func (w *testWallet) balance(t *testing.T) uint64 {
	t.Helper()
	balance, err := w.Balance(context.Background())
	require.NoError(t, err)
	return balance
}

func (w *testWallet) tokenEvents(t *testing.T) []*nip60.TokenEvent {
	t.Helper()
	events := make([]*nip60.TokenEvent, 0)
	for _, event := range w.relay.EventsOfKind(nip60.KindToken) {
		tokenEvent, err := nip60.DecodeTokenEvent(context.Background(), w.signer, event)
		require.NoError(t, err)
		events = append(events, tokenEvent)
	}
	return events
}

func TestLoadWallet(t *testing.T) {
	ctx := context.Background()
	signer := newSigner(t)

	tests := []struct {
		name   string
		config Config
	}{
		{"no signer", Config{Transport: relay.NewMemory(), Mints: []string{"http://localhost:3338"}}},
		{"no transport", Config{Signer: signer, Mints: []string{"http://localhost:3338"}}},
		{"no mints", Config{Signer: signer, Transport: relay.NewMemory()}},
		{"invalid mint", Config{Signer: signer, Transport: relay.NewMemory(), Mints: []string{"localhost"}}},
		{"invalid unit", Config{Signer: signer, Transport: relay.NewMemory(), Mints: []string{"http://localhost:3338"}, Unit: "btc"}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := LoadWallet(ctx, test.config)
			assert.ErrorIs(t, err, ErrConfig)
		})
	}

	// mints from the wallet event are merged with the configured ones
	transport := relay.NewMemory()
	event, err := nip60.NewWalletEvent(ctx, signer, nip60.WalletConfig{
		Mints:   []string{"https://mint2.com/", "http://localhost:3338"},
		PrivKey: "aa",
	})
	require.NoError(t, err)
	transport.Add(event)

	wallet, err := LoadWallet(ctx, Config{
		Signer:    signer,
		Transport: transport,
		Mints:     []string{"http://localhost:3338/"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"http://localhost:3338", "https://mint2.com"}, wallet.Mints())
	assert.Equal(t, cashu.Sat, wallet.Unit())
	assert.Equal(t, signer.PublicKey(), wallet.PublicKey())
}

func TestLoadWalletTransportFailure(t *testing.T) {
	transport := relay.NewMemory()
	transport.SetFetchError(errors.New("connection refused"))

	_, err := LoadWallet(context.Background(), Config{
		Signer:    newSigner(t),
		Transport: transport,
		Mints:     []string{"http://localhost:3338"},
	})
	var transportErr *TransportError
	assert.ErrorAs(t, err, &transportErr)
}

func TestAddRemoveMint(t *testing.T) {
	ctx := context.Background()
	w := newTestWallet(t, "http://localhost:3338")

	require.NoError(t, w.AddMint(ctx, "https://mint2.com"))
	require.Len(t, w.relay.EventsOfKind(nip60.KindWallet), 1)

	reloaded, err := LoadWallet(ctx, Config{Signer: w.signer, Transport: w.relay})
	require.NoError(t, err)
	assert.Equal(t, []string{"http://localhost:3338", "https://mint2.com"}, reloaded.Mints())

	require.NoError(t, w.RemoveMint(ctx, "http://localhost:3338"))
	assert.Equal(t, []string{"https://mint2.com"}, w.Mints())
	assert.Error(t, w.RemoveMint(ctx, "https://mint2.com"), "last mint cannot be removed")

	walletEvent := nip60.LatestWalletEvent(w.signer, w.relay.EventsOfKind(nip60.KindWallet))
	require.NotNil(t, walletEvent)
	walletConfig, err := nip60.DecodeWalletEvent(ctx, w.signer, walletEvent)
	require.NoError(t, err)
	assert.NotEmpty(t, walletConfig.PrivKey)
}

func TestSendExact(t *testing.T) {
	ctx := context.Background()
	mint := newTestMint(t, 0)
	w := newTestWallet(t, mint.URL())
	w.fund(t, mint, 10)
	require.Equal(t, uint64(10), w.balance(t))

	tokenStr, err := w.Send(ctx, 8, mint.URL(), "")
	require.NoError(t, err)

	token, err := cashu.DecodeToken(tokenStr)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), token.Amount())
	assert.Equal(t, mint.URL(), token.Mint())
	assert.Equal(t, 0, mint.Requests("/v1/swap"))
	assert.Equal(t, uint64(2), w.balance(t))

	// the proofs were not spent at the mint, the receiver does that
	for _, proof := range token.Proofs() {
		assert.False(t, mint.IsSpent(proof))
	}

	summary, err := w.HistorySummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Entries)
	assert.Equal(t, uint64(10), summary.TotalIn["sat"])
	assert.Equal(t, uint64(8), summary.TotalOut["sat"])
}

func TestSendWithSwap(t *testing.T) {
	ctx := context.Background()
	mint := newTestMint(t, 0)
	w := newTestWallet(t, mint.URL())
	funded := w.fund(t, mint, 8)

	tokenStr, err := w.Send(ctx, 3, mint.URL(), "coffee")
	require.NoError(t, err)
	assert.Equal(t, 1, mint.Requests("/v1/swap"))
	assert.True(t, mint.IsSpent(funded[0]))

	token, err := cashu.DecodeToken(tokenStr)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), token.Amount())
	assert.Equal(t, "coffee", token.Memo())
	assert.Equal(t, uint64(5), w.balance(t))
}

func TestSendPublishFailure(t *testing.T) {
	ctx := context.Background()
	mint := newTestMint(t, 0)
	w := newTestWallet(t, mint.URL())
	w.fund(t, mint, 8)

	w.relay.SetPublishError(errors.New("relay down"))
	tokenStr, err := w.Send(ctx, 3, mint.URL(), "")
	var unsaved *UnsavedProofsError
	require.ErrorAs(t, err, &unsaved)
	assert.Equal(t, uint64(5), unsaved.Proofs.Amount())

	token, err := cashu.DecodeToken(tokenStr)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), token.Amount())

	w.relay.SetPublishError(nil)
	_, err = w.Redeem(ctx, unsaved.Token)
	require.NoError(t, err)
	removed, err := w.RemoveSpentProofs(ctx, mint.URL())
	require.NoError(t, err)
	assert.Equal(t, uint64(8), removed)
	assert.Equal(t, uint64(5), w.balance(t))
}

func TestSendSplit(t *testing.T) {
	ctx := context.Background()
	mint1 := newTestMint(t, 0)
	mint2 := newTestMint(t, 0)
	w := newTestWallet(t, mint1.URL(), mint2.URL())
	w.fund(t, mint1, 5)
	w.fund(t, mint2, 8, 2)

	tokens, err := w.SendSplit(ctx, 13, "split")
	require.NoError(t, err)
	require.Len(t, tokens, 2)

	// the largest balance goes out whole, the rest comes from mint1
	first, err := cashu.DecodeToken(tokens[0])
	require.NoError(t, err)
	assert.Equal(t, mint2.URL(), first.Mint())
	assert.Equal(t, uint64(10), first.Amount())
	assert.Equal(t, "split", first.Memo())
	assert.Equal(t, 0, mint2.Requests("/v1/swap"))

	second, err := cashu.DecodeToken(tokens[1])
	require.NoError(t, err)
	assert.Equal(t, mint1.URL(), second.Mint())
	assert.Equal(t, uint64(3), second.Amount())
	assert.Equal(t, 1, mint1.Requests("/v1/swap"))

	assert.Equal(t, uint64(2), w.balance(t))
}

func TestSendSplitInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	mint1 := newTestMint(t, 0)
	mint2 := newTestMint(t, 0)
	w := newTestWallet(t, mint1.URL(), mint2.URL())
	w.fund(t, mint1, 4)
	w.fund(t, mint2, 4)

	tokens, err := w.SendSplit(ctx, 9, "")
	assert.Empty(t, tokens)
	var insufficient *InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, uint64(8), insufficient.Available)
	assert.Equal(t, 0, mint1.Requests("/v1/swap")+mint2.Requests("/v1/swap"))
	assert.Equal(t, uint64(8), w.balance(t))

	_, err = w.SendSplit(ctx, 0, "")
	assert.Error(t, err)
}

func TestSendRollover(t *testing.T) {
	ctx := context.Background()
	mint := newTestMint(t, 0)
	w := newTestWallet(t, mint.URL())
	w.fund(t, mint, 7)

	original := w.tokenEvents(t)
	require.Len(t, original, 1)

	_, err := w.Send(ctx, 2, mint.URL(), "")
	require.NoError(t, err)

	events := w.tokenEvents(t)
	require.Len(t, events, 2)
	rollover := events[1]
	assert.Equal(t, []string{original[0].Id}, rollover.Del)
	assert.Greater(t, rollover.CreatedAt, original[0].CreatedAt)
	assert.Equal(t, uint64(5), rollover.Proofs.Amount())

	deletions := w.relay.EventsOfKind(nip60.KindDeletion)
	require.Len(t, deletions, 1)
	assert.Equal(t, []string{original[0].Id}, nip60.DeletedIds(deletions[0]))

	state, err := w.Reconstruct(ctx)
	require.NoError(t, err)
	assert.Len(t, state.Events, 1)
	assert.Equal(t, uint64(5), state.Balance)
}

func TestSendInsufficientBalance(t *testing.T) {
	mint := newTestMint(t, 0)
	w := newTestWallet(t, mint.URL())
	w.fund(t, mint, 10)
	published := len(w.relay.Events())

	_, err := w.Send(context.Background(), 11, mint.URL(), "")
	var balanceErr *InsufficientBalanceError
	require.ErrorAs(t, err, &balanceErr)
	assert.Equal(t, uint64(11), balanceErr.Needed)
	assert.Len(t, w.relay.Events(), published)
}

func TestSendFees(t *testing.T) {
	ctx := context.Background()
	mint := newTestMint(t, 1000)
	w := newTestWallet(t, mint.URL())
	w.fund(t, mint, 8)

	_, err := w.Send(ctx, 3, mint.URL(), "")
	require.NoError(t, err)
	// one input at 1000 ppk
	assert.Equal(t, uint64(4), w.balance(t))
}

func TestRedeem(t *testing.T) {
	ctx := context.Background()
	mint := newTestMint(t, 0)
	sender := newTestWallet(t, mint.URL())
	sender.fund(t, mint, 16)

	tokenStr, err := sender.Send(ctx, 5, mint.URL(), "")
	require.NoError(t, err)

	receiver := newTestWallet(t, mint.URL())
	amount, err := receiver.Redeem(ctx, tokenStr)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), amount)
	assert.Equal(t, uint64(5), receiver.balance(t))
	assert.Equal(t, uint64(11), sender.balance(t))

	entries, err := receiver.History(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, nip60.DirectionIn, entries[0].Direction)
	assert.Equal(t, uint64(5), entries[0].Amount)

	// already claimed
	_, err = receiver.Redeem(ctx, tokenStr)
	assert.ErrorIs(t, err, ErrSwapRejected)
	assert.Equal(t, uint64(5), receiver.balance(t))
}

func TestRedeemFees(t *testing.T) {
	mint := newTestMint(t, 1000)
	w := newTestWallet(t, mint.URL())

	proofs, err := mint.IssueProofs(10, "sat")
	require.NoError(t, err)
	token, err := cashu.NewTokenV4(proofs, mint.URL(), cashu.Sat, "")
	require.NoError(t, err)
	tokenStr, err := token.Serialize()
	require.NoError(t, err)

	// two proofs at 1000 ppk each
	amount, err := w.Redeem(context.Background(), tokenStr)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), amount)
	assert.Equal(t, uint64(8), w.balance(t))
}

func TestRedeemPublishFailure(t *testing.T) {
	ctx := context.Background()
	mint := newTestMint(t, 0)
	w := newTestWallet(t, mint.URL())

	proofs, err := mint.IssueProofs(8, "sat")
	require.NoError(t, err)
	tokenStr, err := cashu.NewTokenV3(proofs, mint.URL(), cashu.Sat, "").Serialize()
	require.NoError(t, err)

	w.relay.SetPublishError(errors.New("relay down"))
	amount, err := w.Redeem(ctx, tokenStr)
	assert.Equal(t, uint64(0), amount)

	var unsaved *UnsavedProofsError
	require.ErrorAs(t, err, &unsaved)
	var transportErr *TransportError
	assert.ErrorAs(t, err, &transportErr)
	assert.Equal(t, uint64(8), unsaved.Proofs.Amount())
	assert.Equal(t, mint.URL(), unsaved.Mint)
	// the token that was redeemed is gone
	assert.True(t, mint.IsSpent(proofs[0]))

	w.relay.SetPublishError(nil)
	amount, err = w.Redeem(ctx, unsaved.Token)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), amount)
	assert.Equal(t, uint64(8), w.balance(t))
}

func TestRedeemUntrustedMint(t *testing.T) {
	trusted := newTestMint(t, 0)
	untrusted := newTestMint(t, 0)
	w := newTestWallet(t, trusted.URL())

	proofs, err := untrusted.IssueProofs(4, "sat")
	require.NoError(t, err)
	tokenStr, err := cashu.NewTokenV3(proofs, untrusted.URL(), cashu.Sat, "").Serialize()
	require.NoError(t, err)

	_, err = w.Redeem(context.Background(), tokenStr)
	assert.ErrorIs(t, err, ErrUntrustedMint)
	assert.Empty(t, w.relay.Events())
	assert.Equal(t, 0, untrusted.Requests("/v1/swap"))
}

func TestRedeemSwapFailure(t *testing.T) {
	mint := newTestMint(t, 0)
	w := newTestWallet(t, mint.URL())

	proofs, err := mint.IssueProofs(4, "sat")
	require.NoError(t, err)
	tokenStr, err := cashu.NewTokenV3(proofs, mint.URL(), cashu.Sat, "").Serialize()
	require.NoError(t, err)

	mint.SetSwapFailure(cashu.StandardErr)
	_, err = w.Redeem(context.Background(), tokenStr)
	assert.ErrorIs(t, err, ErrSwapRejected)
	assert.Empty(t, w.relay.EventsOfKind(nip60.KindToken))
	assert.Equal(t, uint64(0), w.balance(t))
}

func TestRedeemInvalidToken(t *testing.T) {
	w := newTestWallet(t, "http://localhost:3338")
	_, err := w.Redeem(context.Background(), "cashuBnotatoken")
	var cryptoErr *CryptoError
	assert.ErrorAs(t, err, &cryptoErr)
}

func TestNoActiveKeyset(t *testing.T) {
	mint := newTestMint(t, 0)
	w := newTestWallet(t, mint.URL())

	proofs, err := mint.IssueProofs(4, "sat")
	require.NoError(t, err)
	tokenStr, err := cashu.NewTokenV3(proofs, mint.URL(), cashu.Sat, "").Serialize()
	require.NoError(t, err)

	mint.DeactivateKeysets("sat")
	_, err = w.Redeem(context.Background(), tokenStr)
	assert.ErrorIs(t, err, ErrNoActiveKeyset)
}

func TestTransportFailure(t *testing.T) {
	mint := newTestMint(t, 0)
	w := newTestWallet(t, mint.URL())
	w.fund(t, mint, 4)

	w.relay.SetFetchError(errors.New("relay offline"))
	_, err := w.Balance(context.Background())
	var transportErr *TransportError
	assert.ErrorAs(t, err, &transportErr)

	w.relay.SetFetchError(nil)
	w.relay.SetPublishError(errors.New("blocked"))
	_, err = w.Send(context.Background(), 4, mint.URL(), "")
	assert.ErrorAs(t, err, &transportErr)
}

func TestMintFlow(t *testing.T) {
	ctx := context.Background()
	mint := newTestMint(t, 0)
	w := newTestWallet(t, mint.URL())

	quote, err := w.RequestMint(ctx, 100, mint.URL())
	require.NoError(t, err)
	assert.NotEmpty(t, quote.Request)

	quotes, err := w.PendingQuotes(ctx)
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, quote.Quote, quotes[0].QuoteId)
	assert.Equal(t, mint.URL(), quotes[0].Mint)

	_, err = w.MintTokens(ctx, quote.Quote, mint.URL(), 100)
	assert.Error(t, err, "quote is unpaid")

	require.NoError(t, mint.PayQuote(quote.Quote))
	proofs, err := w.MintTokens(ctx, quote.Quote, mint.URL(), 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), proofs.Amount())
	assert.Equal(t, uint64(100), w.balance(t))

	_, err = w.MintTokens(ctx, quote.Quote, mint.URL(), 100)
	assert.Error(t, err, "quote was already issued")
}

func TestMintTokensPublishFailure(t *testing.T) {
	ctx := context.Background()
	mint := newTestMint(t, 0)
	w := newTestWallet(t, mint.URL())

	quote, err := w.RequestMint(ctx, 16, mint.URL())
	require.NoError(t, err)
	require.NoError(t, mint.PayQuote(quote.Quote))

	w.relay.SetPublishError(errors.New("relay down"))
	proofs, err := w.MintTokens(ctx, quote.Quote, mint.URL(), 16)
	var unsaved *UnsavedProofsError
	require.ErrorAs(t, err, &unsaved)
	assert.Equal(t, uint64(16), proofs.Amount())
	assert.Equal(t, proofs, unsaved.Proofs)

	w.relay.SetPublishError(nil)
	amount, err := w.Redeem(ctx, unsaved.Token)
	require.NoError(t, err)
	assert.Equal(t, uint64(16), amount)
	assert.Equal(t, uint64(16), w.balance(t))
}

func TestRequestMintUntrusted(t *testing.T) {
	w := newTestWallet(t, "http://localhost:3338")
	_, err := w.RequestMint(context.Background(), 100, "https://mint2.com")
	assert.ErrorIs(t, err, ErrUntrustedMint)
}

func TestMelt(t *testing.T) {
	ctx := context.Background()
	mint := newTestMint(t, 0)
	mint.SetFeeReserve(2)
	w := newTestWallet(t, mint.URL())
	w.fund(t, mint, 100)

	invoice, err := testutils.CreateFakeInvoice(20)
	require.NoError(t, err)

	response, err := w.Melt(ctx, invoice, mint.URL())
	require.NoError(t, err)
	assert.Equal(t, "PAID", response.State)
	assert.Equal(t, testutils.FakePreimage, response.Preimage)
	assert.Equal(t, uint64(78), w.balance(t))

	summary, err := w.HistorySummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(22), summary.TotalOut["sat"])
}

func TestMeltFees(t *testing.T) {
	ctx := context.Background()
	mint := newTestMint(t, 1000)
	mint.SetFeeReserve(2)
	w := newTestWallet(t, mint.URL())
	w.fund(t, mint, 100)

	invoice, err := testutils.CreateFakeInvoice(20)
	require.NoError(t, err)

	// 22 plus 3 for spending 16+8+1: the 32 proof is swapped for
	// those and 4+2 of change, paying 1 for the swap
	_, err = w.Melt(ctx, invoice, mint.URL())
	require.NoError(t, err)
	assert.Equal(t, 1, mint.Requests("/v1/swap"))
	assert.Equal(t, uint64(74), w.balance(t))

	summary, err := w.HistorySummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(26), summary.TotalOut["sat"])
}

func TestMeltFailure(t *testing.T) {
	ctx := context.Background()
	mint := newTestMint(t, 0)
	w := newTestWallet(t, mint.URL())
	w.fund(t, mint, 100)

	invoice, err := testutils.CreateFakeInvoice(20)
	require.NoError(t, err)

	mint.SetMeltFailure(cashu.BuildCashuError("no route", cashu.StandardErrCode))
	_, err = w.Melt(ctx, invoice, mint.URL())
	assert.ErrorIs(t, err, ErrMeltFailed)
	// the swapped proofs are back in the wallet
	assert.Equal(t, 1, mint.Requests("/v1/swap"))
	assert.Equal(t, uint64(100), w.balance(t))

	_, err = w.Melt(ctx, "lnbcnotaninvoice", mint.URL())
	assert.Error(t, err)
}

func TestCheckProofs(t *testing.T) {
	ctx := context.Background()
	mint := newTestMint(t, 0)
	w := newTestWallet(t, mint.URL())
	proofs := w.fund(t, mint, 8, 4)

	spent, err := w.CheckProofs(ctx, mint.URL())
	require.NoError(t, err)
	assert.Empty(t, spent)

	mint.Spend(proofs[:1])
	spent, err = w.CheckProofs(ctx, mint.URL())
	require.NoError(t, err)
	require.Len(t, spent, 1)
	assert.Equal(t, proofs[0].Secret, spent[0].Secret)

	removed, err := w.RemoveSpentProofs(ctx, mint.URL())
	require.NoError(t, err)
	assert.Equal(t, uint64(8), removed)
	assert.Equal(t, uint64(4), w.balance(t))

	// nothing new in the history
	entries, err := w.History(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestBalances(t *testing.T) {
	ctx := context.Background()
	mint1 := newTestMint(t, 0)
	mint2 := newTestMint(t, 0)
	w := newTestWallet(t, mint1.URL(), mint2.URL())
	w.fund(t, mint1, 8, 2)
	w.fund(t, mint2, 5)

	balances, err := w.Balances(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(15), balances.Total)
	assert.Equal(t, "sat", balances.Unit)
	require.Len(t, balances.PerMint, 2)

	byMint := map[string]ProofBreakdown{}
	for _, breakdown := range balances.PerMint {
		byMint[breakdown.MintURL] = breakdown
	}
	assert.Equal(t, uint64(10), byMint[mint1.URL()].TotalBalance)
	assert.Equal(t, 2, byMint[mint1.URL()].ProofCount)
	assert.Equal(t, map[uint64]int{8: 1, 2: 1}, byMint[mint1.URL()].Denominations)
	assert.Equal(t, uint64(5), byMint[mint2.URL()].TotalBalance)

	// an unreachable mint falls back to the event units
	mint2.Close()
	balances, err = w.Balances(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(15), balances.Total)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = w.Balances(canceled)
	assert.ErrorIs(t, err, context.Canceled)

	stats, err := w.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(15), stats.Balance)
	assert.Equal(t, 3, stats.TokenEvents)
	assert.Equal(t, 4, stats.Proofs)
}

func TestMintInfo(t *testing.T) {
	ctx := context.Background()
	mint := newTestMint(t, 0)
	w := newTestWallet(t, mint.URL())

	info, err := w.MintInfo(ctx, mint.URL())
	require.NoError(t, err)
	assert.Equal(t, "test mint", info.Name)
	assert.True(t, info.Nuts.Nut07.Supported)

	mint.Close()
	cached, err := w.MintInfo(ctx, mint.URL())
	require.NoError(t, err)
	assert.Equal(t, info.Name, cached.Name)

	_, err = w.MintInfo(ctx, "http://127.0.0.1:1")
	var transportErr *TransportError
	assert.ErrorAs(t, err, &transportErr)
}

func TestSendToPubkey(t *testing.T) {
	ctx := context.Background()
	mint := newTestMint(t, 0)
	sender := newTestWallet(t, mint.URL())
	sender.fund(t, mint, 8)

	// both wallets read from the same relay
	receiverSigner := newSigner(t)
	receiver, err := LoadWallet(ctx, Config{
		Signer:    receiverSigner,
		Transport: sender.relay,
		Mints:     []string{mint.URL()},
	})
	require.NoError(t, err)

	_, err = sender.SendToPubkey(ctx, "notapubkey", 2, mint.URL(), "")
	assert.Error(t, err)

	tokenStr, err := sender.SendToPubkey(ctx, receiverSigner.PublicKey(), 2, mint.URL(), "")
	require.NoError(t, err)

	incoming, err := receiver.IncomingTokens(ctx)
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	assert.Equal(t, tokenStr, incoming[0].Token)
	assert.Equal(t, sender.PublicKey(), incoming[0].Sender)
	assert.Equal(t, uint64(2), incoming[0].Amount)

	amount, err := receiver.Redeem(ctx, incoming[0].Token)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), amount)

	// the sender does not see its own message as incoming
	incoming, err = sender.IncomingTokens(ctx)
	require.NoError(t, err)
	assert.Empty(t, incoming)
}
