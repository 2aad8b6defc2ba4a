package storage

import (
	"sync"

	"github.com/nutsack/nutsack/cashu/nuts/nut06"
	"github.com/nutsack/nutsack/crypto"
)

// MemoryStore is a KeysetStore that lives for the process.
type MemoryStore struct {
	mu       sync.RWMutex
	keysets  map[string]map[string]crypto.WalletKeyset
	mintInfo map[string]nut06.MintInfo
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		keysets:  make(map[string]map[string]crypto.WalletKeyset),
		mintInfo: make(map[string]nut06.MintInfo),
	}
}

func (m *MemoryStore) SaveKeyset(keyset *crypto.WalletKeyset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keysets[keyset.MintURL]; !ok {
		m.keysets[keyset.MintURL] = make(map[string]crypto.WalletKeyset)
	}
	m.keysets[keyset.MintURL][keyset.Id] = *keyset
	return nil
}

func (m *MemoryStore) GetKeyset(id string) *crypto.WalletKeyset {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, keysets := range m.keysets {
		if keyset, ok := keysets[id]; ok {
			return &keyset
		}
	}
	return nil
}

func (m *MemoryStore) GetKeysets(mintURL string) map[string]crypto.WalletKeyset {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keysets := make(map[string]crypto.WalletKeyset, len(m.keysets[mintURL]))
	for id, keyset := range m.keysets[mintURL] {
		keysets[id] = keyset
	}
	return keysets
}

func (m *MemoryStore) SaveMintInfo(mintURL string, info nut06.MintInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mintInfo[mintURL] = info
	return nil
}

func (m *MemoryStore) GetMintInfo(mintURL string) *nut06.MintInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.mintInfo[mintURL]
	if !ok {
		return nil
	}
	return &info
}
