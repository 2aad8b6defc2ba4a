package nip60

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip44"
)

// Signer holds the wallet identity. Implementations may
// live in another process, so every call takes a context.
type Signer interface {
	PublicKey() string
	Encrypt(ctx context.Context, recipient, plaintext string) (string, error)
	Decrypt(ctx context.Context, sender, ciphertext string) (string, error)
	SignEvent(ctx context.Context, event *nostr.Event) error
}

// KeySigner is a Signer backed by a private key held in memory.
type KeySigner struct {
	sk string
	pk string

	mu               sync.Mutex
	conversationKeys map[string][]byte
}

func NewKeySigner(sk string) (*KeySigner, error) {
	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %v", err)
	}
	return &KeySigner{sk: sk, pk: pk, conversationKeys: make(map[string][]byte)}, nil
}

func (s *KeySigner) PublicKey() string {
	return s.pk
}

func (s *KeySigner) PrivateKey() string {
	return s.sk
}

func (s *KeySigner) conversationKey(pubkey string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key, ok := s.conversationKeys[pubkey]; ok {
		return key, nil
	}
	key, err := nip44.GenerateConversationKey(pubkey, s.sk)
	if err != nil {
		return nil, err
	}
	s.conversationKeys[pubkey] = key
	return key, nil
}

func (s *KeySigner) Encrypt(ctx context.Context, recipient, plaintext string) (string, error) {
	key, err := s.conversationKey(recipient)
	if err != nil {
		return "", err
	}
	// nip44.Encrypt does not fill in its own nonce when none is given.
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	return nip44.Encrypt(plaintext, key, nip44.WithCustomNonce(nonce))
}

func (s *KeySigner) Decrypt(ctx context.Context, sender, ciphertext string) (string, error) {
	key, err := s.conversationKey(sender)
	if err != nil {
		return "", err
	}
	return nip44.Decrypt(ciphertext, key)
}

func (s *KeySigner) SignEvent(ctx context.Context, event *nostr.Event) error {
	event.PubKey = s.pk
	return event.Sign(s.sk)
}
