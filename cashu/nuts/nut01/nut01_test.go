package nut01

import (
	"encoding/json"
	"testing"
)

func TestKeysMapMarshalSorted(t *testing.T) {
	keys := KeysMap{
		8: "03b",
		1: "02a",
		2: "02c",
	}

	data, err := json.Marshal(keys)
	if err != nil {
		t.Fatal(err)
	}

	expected := `{"1":"02a","2":"02c","8":"03b"}`
	if string(data) != expected {
		t.Errorf("expected '%v' but got '%v' instead", expected, string(data))
	}

	var decoded KeysMap
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded[8] != "03b" {
		t.Errorf("expected '%v' but got '%v' instead", "03b", decoded[8])
	}
}
