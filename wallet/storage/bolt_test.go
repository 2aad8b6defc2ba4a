package storage

import (
	"log"
	"os"
	"testing"

	"github.com/nutsack/nutsack/cashu/nuts/nut06"
	"github.com/nutsack/nutsack/crypto"
)

var (
	db *BoltDB
)

func TestMain(m *testing.M) {
	code, err := testMain(m)
	if err != nil {
		log.Println(err)
	}
	os.Exit(code)
}

func testMain(m *testing.M) (int, error) {
	dbpath := "./testdbbolt"
	err := os.MkdirAll(dbpath, 0750)
	if err != nil {
		return 1, err
	}
	defer os.RemoveAll(dbpath)

	db, err = InitBolt(dbpath)
	if err != nil {
		return 1, err
	}
	defer db.Close()

	return m.Run(), nil
}

func testKeyset(mintURL, seed string, active bool) *crypto.WalletKeyset {
	mintKeyset := crypto.GenerateKeyset(seed, "0/0/0", "sat", 100)
	return &crypto.WalletKeyset{
		Id:          mintKeyset.Id,
		MintURL:     mintURL,
		Unit:        "sat",
		Active:      active,
		PublicKeys:  mintKeyset.PublicKeys(),
		InputFeePpk: 100,
	}
}

func testStores(t *testing.T) map[string]KeysetStore {
	return map[string]KeysetStore{"bolt": db, "memory": NewMemoryStore()}
}

func TestKeysets(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			mintA := "http://mint-a-" + name
			mintB := "http://mint-b-" + name

			keysetA1 := testKeyset(mintA, "seed a1", true)
			keysetA2 := testKeyset(mintA, "seed a2", false)
			keysetB := testKeyset(mintB, "seed b", true)
			for _, keyset := range []*crypto.WalletKeyset{keysetA1, keysetA2, keysetB} {
				if err := store.SaveKeyset(keyset); err != nil {
					t.Fatalf("error saving keyset: %v", err)
				}
			}

			keysets := store.GetKeysets(mintA)
			if len(keysets) != 2 {
				t.Fatalf("expected '2' keysets but got '%v'", len(keysets))
			}
			if keysets[keysetA2.Id].Active {
				t.Errorf("expected keyset '%v' to be inactive", keysetA2.Id)
			}

			keyset := store.GetKeyset(keysetB.Id)
			if keyset == nil {
				t.Fatalf("keyset '%v' not found", keysetB.Id)
			}
			if keyset.MintURL != mintB {
				t.Errorf("expected mint '%v' but got '%v'", mintB, keyset.MintURL)
			}
			if keyset.InputFeePpk != 100 {
				t.Errorf("expected fee '100' but got '%v'", keyset.InputFeePpk)
			}
			if len(keyset.PublicKeys) != crypto.MaxOrder {
				t.Errorf("expected '%v' keys but got '%v'", crypto.MaxOrder, len(keyset.PublicKeys))
			}
			if !keyset.PublicKeys[8].IsEqual(keysetB.PublicKeys[8]) {
				t.Error("public key does not match the saved one")
			}

			// saving again updates in place
			keysetB.Active = false
			if err := store.SaveKeyset(keysetB); err != nil {
				t.Fatalf("error saving keyset: %v", err)
			}
			if store.GetKeyset(keysetB.Id).Active {
				t.Error("expected keyset to be updated")
			}

			if store.GetKeyset("00nonexistent") != nil {
				t.Error("expected nil for unknown keyset")
			}
			if len(store.GetKeysets("http://unknown")) != 0 {
				t.Error("expected no keysets for unknown mint")
			}
		})
	}
}

func TestMintInfo(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			mintURL := "http://mint-" + name
			if store.GetMintInfo(mintURL) != nil {
				t.Fatal("expected no mint info")
			}

			info := nut06.MintInfo{Name: "test mint", Version: "v1", Nuts: nut06.Nuts{Nut07: nut06.Supported{Supported: true}}}
			if err := store.SaveMintInfo(mintURL, info); err != nil {
				t.Fatalf("error saving mint info: %v", err)
			}

			saved := store.GetMintInfo(mintURL)
			if saved == nil {
				t.Fatal("mint info not found")
			}
			if saved.Name != info.Name || !saved.Nuts.Nut07.Supported {
				t.Errorf("expected '%+v' but got '%+v'", info, *saved)
			}
		})
	}
}
