package nip60

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nutsack/nutsack/cashu"
)

// TokenContent is the decrypted content of a token event.
type TokenContent struct {
	Mint   string       `json:"mint"`
	Unit   string       `json:"unit,omitempty"`
	Proofs cashu.Proofs `json:"proofs"`
	// ids of token events this one replaces
	Del []string `json:"del,omitempty"`
}

type TokenEvent struct {
	Id        string
	CreatedAt nostr.Timestamp
	TokenContent
}

func NewTokenEvent(
	ctx context.Context,
	signer Signer,
	content TokenContent,
	createdAt nostr.Timestamp,
) (*nostr.Event, error) {
	if content.Del == nil {
		content.Del = []string{}
	}
	plaintext, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}
	return newEncryptedEvent(ctx, signer, KindToken, nil, string(plaintext), createdAt)
}

func DecodeTokenEvent(ctx context.Context, signer Signer, event *nostr.Event) (*TokenEvent, error) {
	if event.Kind != KindToken {
		return nil, fmt.Errorf("%w: expected kind %d but got %d", ErrInvalidEvent, KindToken, event.Kind)
	}

	plaintext, err := decryptEvent(ctx, signer, event)
	if err != nil {
		return nil, err
	}

	var content TokenContent
	if err := json.Unmarshal([]byte(plaintext), &content); err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrDecrypt, event.ID, err)
	}
	if content.Unit == "" {
		content.Unit = cashu.Sat.String()
	}

	return &TokenEvent{Id: event.ID, CreatedAt: event.CreatedAt, TokenContent: content}, nil
}

// NewDeletionEvent builds a NIP-09 deletion for the given event ids
// which are all of the given kind.
func NewDeletionEvent(ctx context.Context, signer Signer, ids []string, kind int) (*nostr.Event, error) {
	tags := make(nostr.Tags, 0, len(ids)+1)
	for _, id := range ids {
		tags = append(tags, nostr.Tag{"e", id})
	}
	tags = append(tags, nostr.Tag{"k", strconv.Itoa(kind)})

	event := &nostr.Event{
		CreatedAt: nostr.Now(),
		Kind:      KindDeletion,
		Tags:      tags,
		Content:   "",
	}
	if err := signer.SignEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("error signing event: %w", err)
	}
	return event, nil
}

// DeletedIds returns the event ids referenced by a deletion event.
func DeletedIds(event *nostr.Event) []string {
	ids := make([]string, 0)
	for _, tag := range event.Tags {
		if len(tag) >= 2 && tag[0] == "e" {
			ids = append(ids, tag[1])
		}
	}
	return ids
}
