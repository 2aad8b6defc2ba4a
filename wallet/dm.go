package wallet

import (
	"context"
	"encoding/hex"
	"fmt"
	"slices"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nutsack/nutsack/cashu"
)

// IncomingToken is a token someone sent to the wallet in a direct message.
type IncomingToken struct {
	EventId   string
	Sender    string
	CreatedAt nostr.Timestamp
	Token     string
	Mint      string
	Amount    uint64
	Unit      string
}

// SendToPubkey sends the amount as a token in an encrypted direct
// message to the recipient. The token is returned even if the message
// could not be published, so it is not lost.
func (w *Wallet) SendToPubkey(ctx context.Context, recipient string, amount uint64, mint, memo string) (string, error) {
	if key, err := hex.DecodeString(recipient); err != nil || len(key) != 32 {
		return "", fmt.Errorf("invalid recipient public key %q", recipient)
	}

	token, err := w.Send(ctx, amount, mint, memo)
	if err != nil {
		return token, err
	}

	content, err := w.signer.Encrypt(ctx, recipient, token)
	if err != nil {
		return token, &CryptoError{Err: err}
	}
	event := &nostr.Event{
		Kind:      nostr.KindEncryptedDirectMessage,
		CreatedAt: nostr.Now(),
		Tags:      nostr.Tags{nostr.Tag{"p", recipient}},
		Content:   content,
	}
	if err := w.signer.SignEvent(ctx, event); err != nil {
		return token, &CryptoError{Err: err}
	}
	if err := w.publish(ctx, event); err != nil {
		return token, err
	}
	return token, nil
}

// IncomingTokens lists the direct messages to the wallet that carry a
// token, newest first. Messages that are not tokens are ignored.
func (w *Wallet) IncomingTokens(ctx context.Context) ([]IncomingToken, error) {
	events, err := w.fetch(ctx, nostr.Filter{
		Kinds: []int{nostr.KindEncryptedDirectMessage},
		Tags:  nostr.TagMap{"p": []string{w.signer.PublicKey()}},
	})
	if err != nil {
		return nil, err
	}

	tokens := make([]IncomingToken, 0)
	for _, event := range events {
		if ok, _ := event.CheckSignature(); !ok {
			continue
		}
		plaintext, err := w.signer.Decrypt(ctx, event.PubKey, event.Content)
		if err != nil {
			continue
		}
		token, err := cashu.DecodeToken(plaintext)
		if err != nil {
			continue
		}
		tokens = append(tokens, IncomingToken{
			EventId:   event.ID,
			Sender:    event.PubKey,
			CreatedAt: event.CreatedAt,
			Token:     plaintext,
			Mint:      token.Mint(),
			Amount:    token.Amount(),
			Unit:      token.Unit(),
		})
	}

	slices.SortFunc(tokens, func(a, b IncomingToken) int {
		return int(b.CreatedAt - a.CreatedAt)
	})
	return tokens, nil
}
