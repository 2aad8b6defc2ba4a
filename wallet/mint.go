package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nutsack/nutsack/cashu"
	"github.com/nutsack/nutsack/cashu/nuts/nut04"
	"github.com/nutsack/nutsack/nip60"
)

// RequestMint asks the mint for an invoice to mint the amount and
// publishes a quote event so the quote can be finished from another
// device.
func (w *Wallet) RequestMint(ctx context.Context, amount uint64, mint string) (*nut04.PostMintQuoteBolt11Response, error) {
	if amount == 0 {
		return nil, errors.New("amount must be greater than zero")
	}
	mintURL, err := normalizeURL(mint)
	if err != nil {
		return nil, err
	}
	if !w.trusted(mintURL) {
		return nil, fmt.Errorf("%w: %v", ErrUntrustedMint, mintURL)
	}

	request := nut04.PostMintQuoteBolt11Request{Amount: amount, Unit: w.unit.String()}
	quote, err := w.client.PostMintQuoteBolt11(ctx, mintURL, request)
	if err != nil {
		return nil, &TransportError{Op: "request mint quote from " + mintURL, Err: err}
	}

	expiration := time.Unix(quote.Expiry, 0)
	if quote.Expiry == 0 {
		expiration = time.Now().Add(time.Hour)
	}
	event, err := nip60.NewQuoteEvent(ctx, w.signer, quote.Quote, mintURL, expiration)
	if err != nil {
		return nil, &CryptoError{Err: err}
	}
	if err := w.publish(ctx, event); err != nil {
		w.logger.Warn().Str("quote", quote.Quote).Err(err).Msg("could not publish quote event")
	}
	return quote, nil
}

// PendingQuotes returns the mint quotes that have not expired yet.
func (w *Wallet) PendingQuotes(ctx context.Context) ([]nip60.Quote, error) {
	events, err := w.fetch(ctx, nip60.QuoteFilter(w.signer.PublicKey()))
	if err != nil {
		return nil, err
	}

	now := time.Now()
	quotes := make([]nip60.Quote, 0, len(events))
	for _, event := range events {
		quote, err := nip60.DecodeQuoteEvent(ctx, w.signer, event)
		if err != nil {
			w.logger.Warn().Str("event", event.ID).Err(err).Msg("skipping quote event")
			continue
		}
		if !quote.Expiration.IsZero() && quote.Expiration.Before(now) {
			continue
		}
		quotes = append(quotes, *quote)
	}
	return quotes, nil
}

// MintTokens mints the amount of a paid quote and stores the proofs.
// Proofs that were minted but could not be stored are returned with
// an *UnsavedProofsError.
func (w *Wallet) MintTokens(ctx context.Context, quoteId, mint string, amount uint64) (cashu.Proofs, error) {
	mintURL, err := normalizeURL(mint)
	if err != nil {
		return nil, err
	}

	quote, err := w.client.GetMintQuoteState(ctx, mintURL, quoteId)
	if err != nil {
		return nil, &TransportError{Op: "get mint quote from " + mintURL, Err: err}
	}
	switch nut04.StringToState(quote.State) {
	case nut04.Paid:
	case nut04.Unpaid:
		return nil, errors.New("invoice has not been paid")
	case nut04.Issued:
		return nil, errors.New("quote has already been issued")
	default:
		return nil, fmt.Errorf("unknown quote state %q", quote.State)
	}

	unit := w.unit.String()
	keyset, err := w.activeKeyset(ctx, mintURL, unit)
	if err != nil {
		return nil, err
	}
	outputs, err := newBlindedOutputs(keyset, cashu.AmountSplit(amount))
	if err != nil {
		return nil, err
	}

	request := nut04.PostMintBolt11Request{Quote: quoteId, Outputs: outputs.messages}
	response, err := w.client.PostMintBolt11(ctx, mintURL, request)
	if err != nil {
		return nil, &TransportError{Op: "mint at " + mintURL, Err: err}
	}
	proofs, err := outputs.constructProofs(response.Signatures)
	if err != nil {
		return nil, err
	}

	if err := w.storeProofs(ctx, mintURL, unit, proofs); err != nil {
		return proofs, unsavedProofs(mintURL, unit, proofs, err)
	}
	w.logger.Info().Str("mint", mintURL).Str("quote", quoteId).Uint64("amount", amount).Msg("minted tokens")
	return proofs, nil
}
