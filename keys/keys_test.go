package keys

import (
	"strings"
	"testing"
)

const (
	testMnemonic = "leader monkey parrot ring guide accident before fence cannon height naive bean"
	testSk       = "7f7ff03d123792d6ac594bfa67bf6d0c0ab55b6b1fdb6249303fe861f1ccba9a"
	testPk       = "17162c921dc4d2518f9a101db33695df1afb56ab82f5ff3e5da6eec3ca5cd917"
)

func TestFromMnemonic(t *testing.T) {
	id, err := FromMnemonic(testMnemonic)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.PrivateKey != testSk {
		t.Errorf("expected private key '%v' but got '%v'", testSk, id.PrivateKey)
	}
	if id.PublicKey != testPk {
		t.Errorf("expected public key '%v' but got '%v'", testPk, id.PublicKey)
	}

	if _, err := FromMnemonic("leader monkey parrot"); err != ErrInvalidMnemonic {
		t.Errorf("expected '%v' but got '%v'", ErrInvalidMnemonic, err)
	}
}

func TestParse(t *testing.T) {
	nsec, err := Identity{PrivateKey: testSk}.Nsec()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(nsec, "nsec1") {
		t.Fatalf("expected nsec but got '%v'", nsec)
	}

	tests := []struct {
		key     string
		wantErr bool
	}{
		{key: testSk},
		{key: strings.ToUpper(testSk)},
		{key: " " + nsec + "\n"},
		{key: "nsec1invalid", wantErr: true},
		{key: "abcd", wantErr: true},
		{key: "", wantErr: true},
	}

	for _, test := range tests {
		id, err := Parse(test.key)
		if test.wantErr {
			if err == nil {
				t.Errorf("expected error for key '%v'", test.key)
			}
			continue
		}
		if err != nil {
			t.Fatalf("unexpected error for key '%v': %v", test.key, err)
		}
		if id.PublicKey != testPk {
			t.Errorf("expected public key '%v' but got '%v'", testPk, id.PublicKey)
		}
	}
}

func TestNewMnemonic(t *testing.T) {
	mnemonic, err := NewMnemonic()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if words := strings.Fields(mnemonic); len(words) != 12 {
		t.Fatalf("expected 12 words but got %v", len(words))
	}
	if _, err := FromMnemonic(mnemonic); err != nil {
		t.Fatalf("generated mnemonic is not usable: %v", err)
	}
}

func TestP2PKFromMnemonic(t *testing.T) {
	key, err := P2PKFromMnemonic(testMnemonic)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(key) != 64 {
		t.Fatalf("expected 32 byte hex key but got '%v'", key)
	}
	again, _ := P2PKFromMnemonic(testMnemonic)
	if key != again {
		t.Errorf("derivation is not deterministic")
	}
	if key == testSk {
		t.Errorf("receive key must differ from the nostr key")
	}
}

func TestDecodeNpub(t *testing.T) {
	npub, err := Identity{PublicKey: testPk}.Npub()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pubkey, err := DecodeNpub(npub)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pubkey != testPk {
		t.Errorf("expected '%v' but got '%v'", testPk, pubkey)
	}

	nsec, _ := Identity{PrivateKey: testSk}.Nsec()
	for _, invalid := range []string{testPk, nsec, "npub1"} {
		if _, err := DecodeNpub(invalid); err == nil {
			t.Errorf("expected error for '%v'", invalid)
		}
	}
}

func TestGenerate(t *testing.T) {
	id := Generate()
	parsed, err := Parse(id.PrivateKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.PublicKey != id.PublicKey {
		t.Errorf("expected public key '%v' but got '%v'", id.PublicKey, parsed.PublicKey)
	}
	if Generate().PrivateKey == id.PrivateKey {
		t.Error("expected distinct keys")
	}
}
