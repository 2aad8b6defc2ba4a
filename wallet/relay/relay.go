// Package relay is the event transport of the wallet.
package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/nbd-wtf/go-nostr"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNoRelays        = errors.New("no relays configured")
	ErrAllRelaysFailed = errors.New("all relays failed")
	ErrPublishRejected = errors.New("event was not accepted by any relay")
)

type Transport interface {
	FetchEvents(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error)
	Publish(ctx context.Context, event nostr.Event) error
}

// Pool broadcasts to and queries a set of relays. A relay that cannot
// be reached is skipped as long as at least one other relay answers.
type Pool struct {
	logger zerolog.Logger

	mu     sync.Mutex
	urls   []string
	relays map[string]*nostr.Relay
}

func NewPool(urls []string, logger zerolog.Logger) *Pool {
	pool := &Pool{logger: logger, relays: make(map[string]*nostr.Relay)}
	for _, url := range urls {
		pool.AddRelay(url)
	}
	return pool
}

func (p *Pool) AddRelay(url string) {
	url = nostr.NormalizeURL(strings.TrimSpace(url))
	if url == "" {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, existing := range p.urls {
		if existing == url {
			return
		}
	}
	p.urls = append(p.urls, url)
}

func (p *Pool) Relays() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.urls...)
}

// Connect opens a connection to every relay and returns the number of
// relays reached. Unreachable relays are not an error; a done context is.
func (p *Pool) Connect(ctx context.Context) (int, error) {
	var connected atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	for _, url := range p.Relays() {
		g.Go(func() error {
			if _, err := p.relay(gctx, url); err != nil {
				return ctx.Err()
			}
			connected.Add(1)
			return nil
		})
	}
	err := g.Wait()
	return int(connected.Load()), err
}

func (p *Pool) relay(ctx context.Context, url string) (*nostr.Relay, error) {
	p.mu.Lock()
	relay, ok := p.relays[url]
	p.mu.Unlock()
	if ok && relay.IsConnected() {
		return relay, nil
	}

	relay, err := nostr.RelayConnect(ctx, url)
	if err != nil {
		p.logger.Warn().Str("relay", url).Err(err).Msg("could not connect to relay")
		return nil, err
	}

	p.mu.Lock()
	if previous, ok := p.relays[url]; ok && previous != relay {
		previous.Close()
	}
	p.relays[url] = relay
	p.mu.Unlock()
	return relay, nil
}

// FetchEvents queries all relays concurrently and merges the results,
// dropping duplicates. It only fails if no relay answered.
func (p *Pool) FetchEvents(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error) {
	urls := p.Relays()
	if len(urls) == 0 {
		return nil, ErrNoRelays
	}

	var mu sync.Mutex
	seen := make(map[string]bool)
	events := make([]*nostr.Event, 0)
	failures := make([]error, 0)

	g, gctx := errgroup.WithContext(ctx)
	for _, url := range urls {
		g.Go(func() error {
			relay, err := p.relay(gctx, url)
			if err == nil {
				var result []*nostr.Event
				result, err = relay.QuerySync(gctx, filter)
				if err == nil {
					mu.Lock()
					for _, event := range result {
						if !seen[event.ID] {
							seen[event.ID] = true
							events = append(events, event)
						}
					}
					mu.Unlock()
					return nil
				}
				p.logger.Warn().Str("relay", url).Err(err).Msg("query failed")
			}
			mu.Lock()
			failures = append(failures, fmt.Errorf("%s: %w", url, err))
			mu.Unlock()
			// one relay failing must not cancel the others
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(failures) == len(urls) {
		return nil, fmt.Errorf("%w: %w", ErrAllRelaysFailed, errors.Join(failures...))
	}
	p.logger.Debug().Int("events", len(events)).Int("failed", len(failures)).Msg("fetched events")
	return events, nil
}

// Publish sends the event to every relay and succeeds
// if at least one of them accepted it.
func (p *Pool) Publish(ctx context.Context, event nostr.Event) error {
	urls := p.Relays()
	if len(urls) == 0 {
		return ErrNoRelays
	}

	var mu sync.Mutex
	accepted := 0
	failures := make([]error, 0)

	g, gctx := errgroup.WithContext(ctx)
	for _, url := range urls {
		g.Go(func() error {
			relay, err := p.relay(gctx, url)
			if err == nil {
				err = relay.Publish(gctx, event)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				p.logger.Warn().Str("relay", url).Str("event", event.ID).Err(err).Msg("publish failed")
				failures = append(failures, fmt.Errorf("%s: %w", url, err))
				return ctx.Err()
			}
			accepted++
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if accepted == 0 {
		return fmt.Errorf("%w: %w", ErrPublishRejected, errors.Join(failures...))
	}
	p.logger.Debug().Str("event", event.ID).Int("kind", event.Kind).Int("relays", accepted).Msg("published event")
	return nil
}

func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for url, relay := range p.relays {
		relay.Close()
		delete(p.relays, url)
	}
}
