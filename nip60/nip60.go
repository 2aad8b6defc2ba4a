// Package nip60 implements the encrypted wallet events described in
// [NIP-60] and the reconstruction of the wallet ledger from them.
//
// [NIP-60]: https://github.com/nostr-protocol/nips/blob/master/60.md
package nip60

import (
	"context"
	"errors"
	"fmt"

	"github.com/nbd-wtf/go-nostr"
)

const (
	KindWallet   = 17375
	KindToken    = 7375
	KindHistory  = 7376
	KindQuote    = 7374
	KindDeletion = nostr.KindDeletion
)

var (
	ErrDecrypt      = errors.New("could not decrypt event content")
	ErrInvalidEvent = errors.New("invalid event")
)

// WalletFilter matches every event needed to rebuild the wallet state
// of the given author in a single query.
func WalletFilter(pubkey string) nostr.Filter {
	return nostr.Filter{
		Kinds:   []int{KindWallet, KindToken, KindDeletion},
		Authors: []string{pubkey},
	}
}

func HistoryFilter(pubkey string) nostr.Filter {
	return nostr.Filter{
		Kinds:   []int{KindHistory},
		Authors: []string{pubkey},
	}
}

func QuoteFilter(pubkey string) nostr.Filter {
	return nostr.Filter{
		Kinds:   []int{KindQuote},
		Authors: []string{pubkey},
	}
}

// newEncryptedEvent encrypts the plaintext to the signer's own key
// and returns the signed event.
func newEncryptedEvent(
	ctx context.Context,
	signer Signer,
	kind int,
	tags nostr.Tags,
	plaintext string,
	createdAt nostr.Timestamp,
) (*nostr.Event, error) {
	content, err := signer.Encrypt(ctx, signer.PublicKey(), plaintext)
	if err != nil {
		return nil, fmt.Errorf("error encrypting content: %w", err)
	}

	if tags == nil {
		tags = nostr.Tags{}
	}
	event := &nostr.Event{
		CreatedAt: createdAt,
		Kind:      kind,
		Tags:      tags,
		Content:   content,
	}
	if err := signer.SignEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("error signing event: %w", err)
	}
	return event, nil
}

func decryptEvent(ctx context.Context, signer Signer, event *nostr.Event) (string, error) {
	plaintext, err := signer.Decrypt(ctx, event.PubKey, event.Content)
	if err != nil {
		return "", fmt.Errorf("%w %s: %v", ErrDecrypt, event.ID, err)
	}
	return plaintext, nil
}

// checkAuthor reports whether the event is signed by the signer's key.
func checkAuthor(signer Signer, event *nostr.Event) bool {
	if event.PubKey != signer.PublicKey() {
		return false
	}
	ok, err := event.CheckSignature()
	return err == nil && ok
}
