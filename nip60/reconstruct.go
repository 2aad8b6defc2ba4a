package nip60

import (
	"context"
	"slices"
	"strings"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nutsack/nutsack/cashu"
)

// WalletState is the ledger derived from a set of wallet events.
// It is recomputed on every read and never updated in place.
type WalletState struct {
	Balance uint64
	Proofs  cashu.Proofs
	// proof identity to the id of the token event that holds it
	ProofToEventId map[string]string
	// token events that are neither deleted nor superseded
	Events map[string]*TokenEvent
	// token events skipped because they could not be decrypted
	Undecryptable []string
}

// TokenEvent returns the surviving event holding the proof.
func (s *WalletState) TokenEvent(proof cashu.Proof) *TokenEvent {
	id, ok := s.ProofToEventId[proof.Identity()]
	if !ok {
		return nil
	}
	return s.Events[id]
}

// EventProofs returns the proofs counted for the event.
func (s *WalletState) EventProofs(eventId string) cashu.Proofs {
	proofs := make(cashu.Proofs, 0)
	for _, proof := range s.Proofs {
		if s.ProofToEventId[proof.Identity()] == eventId {
			proofs = append(proofs, proof)
		}
	}
	return proofs
}

// Reconstruct rebuilds the wallet state from the events authored by the
// signer. Token events are applied newest first: each decrypted event
// invalidates the events it supersedes before its own proofs are counted,
// and a proof is only counted once however many events carry it.
// Events that fail to decrypt are skipped and listed in Undecryptable.
// The only error returned is the context's.
func Reconstruct(ctx context.Context, signer Signer, events []*nostr.Event) (*WalletState, error) {
	state := &WalletState{
		Proofs:         make(cashu.Proofs, 0),
		ProofToEventId: make(map[string]string),
		Events:         make(map[string]*TokenEvent),
		Undecryptable:  make([]string, 0),
	}

	invalid := make(map[string]bool)
	seenEvents := make(map[string]bool)
	tokenEvents := make([]*nostr.Event, 0, len(events))
	for _, event := range events {
		if seenEvents[event.ID] || !checkAuthor(signer, event) {
			continue
		}
		seenEvents[event.ID] = true

		switch event.Kind {
		case KindDeletion:
			for _, id := range DeletedIds(event) {
				invalid[id] = true
			}
		case KindToken:
			tokenEvents = append(tokenEvents, event)
		}
	}

	slices.SortStableFunc(tokenEvents, func(a, b *nostr.Event) int {
		if a.CreatedAt != b.CreatedAt {
			if a.CreatedAt > b.CreatedAt {
				return -1
			}
			return 1
		}
		return strings.Compare(a.ID, b.ID)
	})

	for _, event := range tokenEvents {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if invalid[event.ID] {
			continue
		}

		tokenEvent, err := DecodeTokenEvent(ctx, signer, event)
		if err != nil {
			state.Undecryptable = append(state.Undecryptable, event.ID)
			continue
		}

		for _, id := range tokenEvent.Del {
			invalid[id] = true
		}
		// an event listing itself in del is void
		if invalid[event.ID] {
			continue
		}

		state.Events[event.ID] = tokenEvent
		for _, proof := range tokenEvent.Proofs {
			identity := proof.Identity()
			if _, ok := state.ProofToEventId[identity]; ok {
				continue
			}
			state.ProofToEventId[identity] = event.ID
			state.Proofs = append(state.Proofs, proof)
			state.Balance += proof.Amount
		}
	}

	return state, nil
}
