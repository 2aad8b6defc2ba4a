package nip60

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/nbd-wtf/go-nostr"
)

// WalletConfig is the content of the replaceable wallet event.
type WalletConfig struct {
	Mints []string
	// private key used to receive P2PK locked ecash, hex encoded
	PrivKey   string
	CreatedAt nostr.Timestamp
}

type legacyWalletConfig struct {
	Mints []string `json:"mints"`
}

func NewWalletEvent(ctx context.Context, signer Signer, config WalletConfig) (*nostr.Event, error) {
	content := make([][]string, 0, len(config.Mints)+1)
	if config.PrivKey != "" {
		content = append(content, []string{"privkey", config.PrivKey})
	}
	tags := make(nostr.Tags, 0, len(config.Mints))
	for _, mint := range config.Mints {
		content = append(content, []string{"mint", mint})
		tags = append(tags, nostr.Tag{"mint", mint})
	}

	plaintext, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}

	createdAt := config.CreatedAt
	if createdAt == 0 {
		createdAt = nostr.Now()
	}
	return newEncryptedEvent(ctx, signer, KindWallet, tags, string(plaintext), createdAt)
}

func DecodeWalletEvent(ctx context.Context, signer Signer, event *nostr.Event) (*WalletConfig, error) {
	if event.Kind != KindWallet {
		return nil, fmt.Errorf("%w: expected kind %d but got %d", ErrInvalidEvent, KindWallet, event.Kind)
	}

	config := &WalletConfig{Mints: make([]string, 0), CreatedAt: event.CreatedAt}
	addMint := func(mint string) {
		if mint != "" && !slices.Contains(config.Mints, mint) {
			config.Mints = append(config.Mints, mint)
		}
	}

	plaintext, err := decryptEvent(ctx, signer, event)
	if err != nil {
		return nil, err
	}

	var content [][]string
	if err := json.Unmarshal([]byte(plaintext), &content); err == nil {
		for _, tag := range content {
			if len(tag) < 2 {
				continue
			}
			switch tag[0] {
			case "mint":
				addMint(tag[1])
			case "privkey":
				config.PrivKey = tag[1]
			}
		}
	} else {
		var legacy legacyWalletConfig
		if err := json.Unmarshal([]byte(plaintext), &legacy); err != nil {
			return nil, fmt.Errorf("%w %s: %v", ErrDecrypt, event.ID, err)
		}
		for _, mint := range legacy.Mints {
			addMint(mint)
		}
	}

	for _, tag := range event.Tags {
		if len(tag) >= 2 && tag[0] == "mint" {
			addMint(tag[1])
		}
	}
	return config, nil
}

// LatestWalletEvent returns the most recent wallet event authored by
// the signer, or nil if there is none.
func LatestWalletEvent(signer Signer, events []*nostr.Event) *nostr.Event {
	var latest *nostr.Event
	for _, event := range events {
		if event.Kind != KindWallet || !checkAuthor(signer, event) {
			continue
		}
		if latest == nil || event.CreatedAt > latest.CreatedAt ||
			(event.CreatedAt == latest.CreatedAt && event.ID > latest.ID) {
			latest = event
		}
	}
	return latest
}

// Quote tracks a pending mint quote so another device can finish it.
type Quote struct {
	Id         string
	QuoteId    string
	Mint       string
	Expiration time.Time
}

func NewQuoteEvent(
	ctx context.Context,
	signer Signer,
	quoteId, mint string,
	expiration time.Time,
) (*nostr.Event, error) {
	tags := nostr.Tags{
		nostr.Tag{"mint", mint},
		nostr.Tag{"expiration", fmt.Sprintf("%d", expiration.Unix())},
	}
	return newEncryptedEvent(ctx, signer, KindQuote, tags, quoteId, nostr.Now())
}

func DecodeQuoteEvent(ctx context.Context, signer Signer, event *nostr.Event) (*Quote, error) {
	if event.Kind != KindQuote {
		return nil, fmt.Errorf("%w: expected kind %d but got %d", ErrInvalidEvent, KindQuote, event.Kind)
	}

	quoteId, err := decryptEvent(ctx, signer, event)
	if err != nil {
		return nil, err
	}

	quote := &Quote{Id: event.ID, QuoteId: quoteId}
	for _, tag := range event.Tags {
		if len(tag) < 2 {
			continue
		}
		switch tag[0] {
		case "mint":
			quote.Mint = tag[1]
		case "expiration":
			var unix int64
			if _, err := fmt.Sscanf(tag[1], "%d", &unix); err == nil {
				quote.Expiration = time.Unix(unix, 0)
			}
		}
	}
	return quote, nil
}
