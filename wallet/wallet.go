// Package wallet is a Cashu wallet that keeps its proofs, history and
// configuration in encrypted nostr events (NIP-60). There is no local
// database of record: every operation rebuilds the wallet state from
// the events it fetches.
package wallet

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nutsack/nutsack/cashu"
	"github.com/nutsack/nutsack/cashu/nuts/nut01"
	"github.com/nutsack/nutsack/cashu/nuts/nut02"
	"github.com/nutsack/nutsack/cashu/nuts/nut03"
	"github.com/nutsack/nutsack/cashu/nuts/nut04"
	"github.com/nutsack/nutsack/cashu/nuts/nut05"
	"github.com/nutsack/nutsack/cashu/nuts/nut06"
	"github.com/nutsack/nutsack/cashu/nuts/nut07"
	"github.com/nutsack/nutsack/keys"
	"github.com/nutsack/nutsack/nip60"
	"github.com/nutsack/nutsack/wallet/client"
	"github.com/nutsack/nutsack/wallet/relay"
	"github.com/nutsack/nutsack/wallet/storage"
	"github.com/rs/zerolog"
)

const DefaultFetchTimeout = 10 * time.Second

// MintClient is the subset of the mint API used by the wallet.
type MintClient interface {
	GetMintInfo(ctx context.Context, mintURL string) (*nut06.MintInfo, error)
	GetActiveKeysets(ctx context.Context, mintURL string) (*nut01.GetKeysResponse, error)
	GetAllKeysets(ctx context.Context, mintURL string) (*nut02.GetKeysetsResponse, error)
	GetKeysetById(ctx context.Context, mintURL, id string) (*nut01.GetKeysResponse, error)
	PostMintQuoteBolt11(ctx context.Context, mintURL string, req nut04.PostMintQuoteBolt11Request) (*nut04.PostMintQuoteBolt11Response, error)
	GetMintQuoteState(ctx context.Context, mintURL, quoteId string) (*nut04.PostMintQuoteBolt11Response, error)
	PostMintBolt11(ctx context.Context, mintURL string, req nut04.PostMintBolt11Request) (*nut04.PostMintBolt11Response, error)
	PostSwap(ctx context.Context, mintURL string, req nut03.PostSwapRequest) (*nut03.PostSwapResponse, error)
	PostMeltQuoteBolt11(ctx context.Context, mintURL string, req nut05.PostMeltQuoteBolt11Request) (*nut05.PostMeltQuoteBolt11Response, error)
	PostMeltBolt11(ctx context.Context, mintURL string, req nut05.PostMeltBolt11Request) (*nut05.PostMeltQuoteBolt11Response, error)
	PostCheckProofState(ctx context.Context, mintURL string, req nut07.PostCheckStateRequest) (*nut07.PostCheckStateResponse, error)
}

type Config struct {
	Signer    nip60.Signer
	Transport relay.Transport
	// defaults to an HTTP client
	MintClient MintClient
	// defaults to an in-memory cache
	KeysetStore storage.KeysetStore

	// trusted mints, merged with the ones in the wallet event
	Mints []string
	// unit new ecash is sent in and balances are shown in
	Unit string
	// P2PK receive key, used when the wallet event has none
	PrivKey      string
	FetchTimeout time.Duration
	Logger       *zerolog.Logger
}

type Wallet struct {
	signer       nip60.Signer
	transport    relay.Transport
	client       MintClient
	keysets      storage.KeysetStore
	unit         cashu.Unit
	fetchTimeout time.Duration
	logger       zerolog.Logger

	mu      sync.RWMutex
	mints   []string
	privKey string
}

// LoadWallet builds a wallet from the config and the latest wallet
// event published by the signer.
func LoadWallet(ctx context.Context, config Config) (*Wallet, error) {
	if config.Signer == nil {
		return nil, fmt.Errorf("%w: no signer", ErrConfig)
	}
	if config.Transport == nil {
		return nil, fmt.Errorf("%w: no transport", ErrConfig)
	}

	unit, err := cashu.ParseUnit(config.Unit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	wallet := &Wallet{
		signer:       config.Signer,
		transport:    config.Transport,
		client:       config.MintClient,
		keysets:      config.KeysetStore,
		unit:         unit,
		fetchTimeout: config.FetchTimeout,
		logger:       zerolog.Nop(),
		mints:        make([]string, 0),
		privKey:      config.PrivKey,
	}
	if wallet.client == nil {
		wallet.client = client.New(client.DefaultTimeout)
	}
	if wallet.keysets == nil {
		wallet.keysets = storage.NewMemoryStore()
	}
	if wallet.fetchTimeout <= 0 {
		wallet.fetchTimeout = DefaultFetchTimeout
	}
	if config.Logger != nil {
		wallet.logger = *config.Logger
	}

	for _, mint := range config.Mints {
		if err := wallet.addMint(mint); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfig, err)
		}
	}

	walletConfig, err := wallet.fetchWalletConfig(ctx)
	if err != nil {
		return nil, err
	}
	if walletConfig != nil {
		for _, mint := range walletConfig.Mints {
			if err := wallet.addMint(mint); err != nil {
				wallet.logger.Warn().Str("mint", mint).Err(err).Msg("ignoring invalid mint from wallet event")
			}
		}
		if walletConfig.PrivKey != "" {
			wallet.privKey = walletConfig.PrivKey
		}
	}

	if len(wallet.mints) == 0 {
		return nil, fmt.Errorf("%w: no mint configured", ErrConfig)
	}

	wallet.logger.Debug().
		Str("pubkey", wallet.signer.PublicKey()).
		Strs("mints", wallet.mints).
		Str("unit", wallet.unit.String()).
		Msg("wallet loaded")
	return wallet, nil
}

func (w *Wallet) fetchWalletConfig(ctx context.Context) (*nip60.WalletConfig, error) {
	events, err := w.fetch(ctx, nostr.Filter{
		Kinds:   []int{nip60.KindWallet},
		Authors: []string{w.signer.PublicKey()},
	})
	if err != nil {
		return nil, err
	}

	latest := nip60.LatestWalletEvent(w.signer, events)
	if latest == nil {
		return nil, nil
	}
	walletConfig, err := nip60.DecodeWalletEvent(ctx, w.signer, latest)
	if err != nil {
		w.logger.Warn().Str("event", latest.ID).Err(err).Msg("could not read wallet event")
		return nil, nil
	}
	return walletConfig, nil
}

func (w *Wallet) PublicKey() string {
	return w.signer.PublicKey()
}

func (w *Wallet) Unit() cashu.Unit {
	return w.unit
}

// Mints returns the trusted mints.
func (w *Wallet) Mints() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Clone(w.mints)
}

func (w *Wallet) trusted(mint string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Contains(w.mints, mint)
}

func (w *Wallet) addMint(mint string) error {
	mintURL, err := normalizeURL(mint)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !slices.Contains(w.mints, mintURL) {
		w.mints = append(w.mints, mintURL)
	}
	return nil
}

// AddMint trusts a new mint and republishes the wallet event.
func (w *Wallet) AddMint(ctx context.Context, mint string) error {
	if err := w.addMint(mint); err != nil {
		return err
	}
	return w.PublishConfig(ctx)
}

// RemoveMint stops trusting a mint. Proofs already held
// from it remain in the wallet.
func (w *Wallet) RemoveMint(ctx context.Context, mint string) error {
	mintURL, err := normalizeURL(mint)
	if err != nil {
		return err
	}

	w.mu.Lock()
	idx := slices.Index(w.mints, mintURL)
	if idx < 0 || len(w.mints) == 1 {
		w.mu.Unlock()
		return fmt.Errorf("cannot remove mint %v", mintURL)
	}
	w.mints = slices.Delete(w.mints, idx, idx+1)
	w.mu.Unlock()

	return w.PublishConfig(ctx)
}

// PublishConfig publishes the wallet event with the current mints.
// A receive key is generated if the wallet does not have one yet.
func (w *Wallet) PublishConfig(ctx context.Context) error {
	w.mu.Lock()
	if w.privKey == "" {
		privKey, err := keys.NewP2PKKey()
		if err != nil {
			w.mu.Unlock()
			return err
		}
		w.privKey = privKey
	}
	walletConfig := nip60.WalletConfig{Mints: slices.Clone(w.mints), PrivKey: w.privKey}
	w.mu.Unlock()

	event, err := nip60.NewWalletEvent(ctx, w.signer, walletConfig)
	if err != nil {
		return &CryptoError{Err: err}
	}
	return w.publish(ctx, event)
}

// Reconstruct fetches the wallet events and rebuilds the current state.
func (w *Wallet) Reconstruct(ctx context.Context) (*nip60.WalletState, error) {
	events, err := w.fetch(ctx, nip60.WalletFilter(w.signer.PublicKey()))
	if err != nil {
		return nil, err
	}

	state, err := nip60.Reconstruct(ctx, w.signer, events)
	if err != nil {
		return nil, &TransportError{Op: "reconstruct", Err: err}
	}

	for _, id := range state.Undecryptable {
		w.logger.Warn().Str("event", id).Msg("skipping token event that could not be decrypted")
	}
	w.logger.Debug().
		Int("events", len(events)).
		Int("token_events", len(state.Events)).
		Uint64("balance", state.Balance).
		Msg("reconstructed wallet state")
	return state, nil
}

func (w *Wallet) fetch(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, w.fetchTimeout)
	defer cancel()

	events, err := w.transport.FetchEvents(ctx, filter)
	if err != nil {
		return nil, &TransportError{Op: "fetch events", Err: err}
	}
	return events, nil
}

func (w *Wallet) publish(ctx context.Context, event *nostr.Event) error {
	ctx, cancel := context.WithTimeout(ctx, w.fetchTimeout)
	defer cancel()

	if err := w.transport.Publish(ctx, *event); err != nil {
		return &TransportError{Op: fmt.Sprintf("publish kind %d", event.Kind), Err: err}
	}
	w.logger.Debug().Str("event", event.ID).Int("kind", event.Kind).Msg("published event")
	return nil
}

func normalizeURL(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid mint url: %v", err)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return "", fmt.Errorf("invalid mint url %q", rawURL)
	}
	return strings.TrimSuffix(parsed.String(), "/"), nil
}
