package nip60

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"

	"github.com/nbd-wtf/go-nostr"
)

type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

type Marker string

const (
	MarkerCreated   Marker = "created"
	MarkerDestroyed Marker = "destroyed"
	MarkerRedeemed  Marker = "redeemed"
)

type EventRef struct {
	EventId string
	Relay   string
	Marker  Marker
}

// HistoryEntry is a spending history record. Entries are never
// edited or deleted once published.
type HistoryEntry struct {
	Id        string
	Direction Direction
	Amount    uint64
	Unit      string
	Refs      []EventRef
	CreatedAt nostr.Timestamp
}

// encodeHistory returns the NIP-60 tag array form of the entry.
func encodeHistory(entry HistoryEntry) ([]byte, error) {
	tags := [][]string{
		{"direction", string(entry.Direction)},
		{"amount", strconv.FormatUint(entry.Amount, 10)},
	}
	if entry.Unit != "" {
		tags = append(tags, []string{"unit", entry.Unit})
	}
	for _, ref := range entry.Refs {
		tags = append(tags, []string{"e", ref.EventId, ref.Relay, string(ref.Marker)})
	}
	return json.Marshal(tags)
}

// legacyHistory is the object form written by older clients.
type legacyHistory struct {
	Direction string      `json:"direction"`
	Amount    string      `json:"amount"`
	Events    [][4]string `json:"events"`
}

// DecodeHistory parses both the tag array and the legacy object form.
func DecodeHistory(plaintext string) (HistoryEntry, error) {
	var entry HistoryEntry

	var tags [][]string
	if err := json.Unmarshal([]byte(plaintext), &tags); err == nil {
		var amount string
		for _, tag := range tags {
			if len(tag) < 2 {
				continue
			}
			switch tag[0] {
			case "direction":
				entry.Direction = Direction(tag[1])
			case "amount":
				amount = tag[1]
			case "unit":
				entry.Unit = tag[1]
			case "e":
				if len(tag) >= 4 {
					entry.Refs = append(entry.Refs, EventRef{EventId: tag[1], Relay: tag[2], Marker: Marker(tag[3])})
				}
			}
		}
		return entry, entry.parse(amount)
	}

	var legacy legacyHistory
	if err := json.Unmarshal([]byte(plaintext), &legacy); err != nil {
		return HistoryEntry{}, fmt.Errorf("invalid history format: %v", err)
	}
	entry.Direction = Direction(legacy.Direction)
	for _, ref := range legacy.Events {
		entry.Refs = append(entry.Refs, EventRef{EventId: ref[1], Relay: ref[2], Marker: Marker(ref[3])})
	}
	return entry, entry.parse(legacy.Amount)
}

func (entry *HistoryEntry) parse(amount string) error {
	if entry.Direction != DirectionIn && entry.Direction != DirectionOut {
		return fmt.Errorf("invalid history direction %q", entry.Direction)
	}
	value, err := strconv.ParseUint(amount, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid history amount %q", amount)
	}
	entry.Amount = value
	if entry.Unit == "" {
		entry.Unit = "sat"
	}
	return nil
}

func NewHistoryEvent(ctx context.Context, signer Signer, entry HistoryEntry) (*nostr.Event, error) {
	plaintext, err := encodeHistory(entry)
	if err != nil {
		return nil, err
	}

	// only redeemed references are public
	tags := nostr.Tags{}
	for _, ref := range entry.Refs {
		if ref.Marker == MarkerRedeemed {
			tags = append(tags, nostr.Tag{"e", ref.EventId, ref.Relay, string(ref.Marker)})
		}
	}

	createdAt := entry.CreatedAt
	if createdAt == 0 {
		createdAt = nostr.Now()
	}
	return newEncryptedEvent(ctx, signer, KindHistory, tags, string(plaintext), createdAt)
}

// DecodeHistoryEvents decrypts the history events, newest first.
// Events that cannot be decrypted or parsed are returned by id in skipped.
func DecodeHistoryEvents(
	ctx context.Context,
	signer Signer,
	events []*nostr.Event,
) (entries []HistoryEntry, skipped []string) {
	entries = make([]HistoryEntry, 0, len(events))
	for _, event := range events {
		if event.Kind != KindHistory || !checkAuthor(signer, event) {
			continue
		}
		plaintext, err := decryptEvent(ctx, signer, event)
		if err != nil {
			skipped = append(skipped, event.ID)
			continue
		}
		entry, err := DecodeHistory(plaintext)
		if err != nil {
			skipped = append(skipped, event.ID)
			continue
		}
		entry.Id = event.ID
		entry.CreatedAt = event.CreatedAt
		entries = append(entries, entry)
	}

	slices.SortStableFunc(entries, func(a, b HistoryEntry) int {
		if a.CreatedAt != b.CreatedAt {
			if a.CreatedAt > b.CreatedAt {
				return -1
			}
			return 1
		}
		if a.Id < b.Id {
			return -1
		}
		if a.Id > b.Id {
			return 1
		}
		return 0
	})
	return entries, skipped
}
