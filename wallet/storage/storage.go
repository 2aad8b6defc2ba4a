// Package storage caches mint metadata on disk. It never stores
// proofs: the wallet's ledger lives only in its events.
package storage

import (
	"github.com/nutsack/nutsack/cashu/nuts/nut06"
	"github.com/nutsack/nutsack/crypto"
)

type KeysetStore interface {
	SaveKeyset(*crypto.WalletKeyset) error
	GetKeyset(id string) *crypto.WalletKeyset
	// keysets of a mint, by id
	GetKeysets(mintURL string) map[string]crypto.WalletKeyset
	SaveMintInfo(mintURL string, info nut06.MintInfo) error
	GetMintInfo(mintURL string) *nut06.MintInfo
}
