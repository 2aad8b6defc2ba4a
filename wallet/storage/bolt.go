package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/nutsack/nutsack/cashu/nuts/nut06"
	"github.com/nutsack/nutsack/crypto"
	bolt "go.etcd.io/bbolt"
)

const (
	keysetsBucket  = "keysets"
	mintInfoBucket = "mint_info"
)

type BoltDB struct {
	bolt *bolt.DB
}

func InitBolt(path string) (*BoltDB, error) {
	db, err := bolt.Open(filepath.Join(path, "cache.db"), 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("error setting bolt db: %v", err)
	}

	boltdb := &BoltDB{bolt: db}
	if err := boltdb.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error setting bolt db: %v", err)
	}
	return boltdb, nil
}

func (db *BoltDB) initBuckets() error {
	return db.bolt.Update(func(tx *bolt.Tx) error {
		// keysets are nested in a bucket per mint
		if _, err := tx.CreateBucketIfNotExists([]byte(keysetsBucket)); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists([]byte(mintInfoBucket))
		return err
	})
}

func (db *BoltDB) Close() error {
	return db.bolt.Close()
}

func (db *BoltDB) SaveKeyset(keyset *crypto.WalletKeyset) error {
	jsonKeyset, err := json.Marshal(keyset)
	if err != nil {
		return fmt.Errorf("invalid keyset format: %v", err)
	}

	return db.bolt.Update(func(tx *bolt.Tx) error {
		keysetsb := tx.Bucket([]byte(keysetsBucket))
		mintBucket, err := keysetsb.CreateBucketIfNotExists([]byte(keyset.MintURL))
		if err != nil {
			return err
		}
		return mintBucket.Put([]byte(keyset.Id), jsonKeyset)
	})
}

func (db *BoltDB) GetKeysets(mintURL string) map[string]crypto.WalletKeyset {
	keysets := make(map[string]crypto.WalletKeyset)

	db.bolt.View(func(tx *bolt.Tx) error {
		mintBucket := tx.Bucket([]byte(keysetsBucket)).Bucket([]byte(mintURL))
		if mintBucket == nil {
			return nil
		}
		return mintBucket.ForEach(func(k, v []byte) error {
			var keyset crypto.WalletKeyset
			if err := json.Unmarshal(v, &keyset); err != nil {
				return nil
			}
			keysets[keyset.Id] = keyset
			return nil
		})
	})
	return keysets
}

// GetKeyset looks the id up across all mints.
func (db *BoltDB) GetKeyset(id string) *crypto.WalletKeyset {
	var keyset *crypto.WalletKeyset

	db.bolt.View(func(tx *bolt.Tx) error {
		keysetsb := tx.Bucket([]byte(keysetsBucket))
		return keysetsb.ForEach(func(mint, value []byte) error {
			// nested buckets have a nil value
			if value != nil {
				return nil
			}
			v := keysetsb.Bucket(mint).Get([]byte(id))
			if v == nil {
				return nil
			}
			var found crypto.WalletKeyset
			if err := json.Unmarshal(v, &found); err == nil {
				keyset = &found
			}
			return nil
		})
	})
	return keyset
}

func (db *BoltDB) SaveMintInfo(mintURL string, info nut06.MintInfo) error {
	jsonInfo, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("invalid mint info: %v", err)
	}
	return db.bolt.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(mintInfoBucket)).Put([]byte(mintURL), jsonInfo)
	})
}

func (db *BoltDB) GetMintInfo(mintURL string) *nut06.MintInfo {
	var info *nut06.MintInfo

	db.bolt.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(mintInfoBucket)).Get([]byte(mintURL))
		if v == nil {
			return nil
		}
		var mintInfo nut06.MintInfo
		if err := json.Unmarshal(v, &mintInfo); err == nil {
			info = &mintInfo
		}
		return nil
	})
	return info
}
