package core

import "testing"

func TestWrapUnwrapRoundTrip(t *testing.T) {
	key, err := GenerateRoundKey()
	if err != nil {
		t.Fatalf("GenerateRoundKey: %v", err)
	}
	plaintext := []byte("global model bytes")
	w, err := WrapGlobalModel(RoundId(7), key, plaintext)
	if err != nil {
		t.Fatalf("WrapGlobalModel: %v", err)
	}
	got, err := UnwrapGlobalModel(w, key)
	if err != nil {
		t.Fatalf("UnwrapGlobalModel: %v", err)
	}
	if string(got) != string(plaintext) {
		t.Fatalf("round trip mismatch: got %q want %q", got, plaintext)
	}
}

func TestUnwrapWrongKeyFails(t *testing.T) {
	key1, _ := GenerateRoundKey()
	key2, _ := GenerateRoundKey()
	w, err := WrapGlobalModel(RoundId(1), key1, []byte("secret"))
	if err != nil {
		t.Fatalf("WrapGlobalModel: %v", err)
	}
	if _, err := UnwrapGlobalModel(w, key2); err == nil {
		t.Fatalf("expected error unwrapping with wrong key")
	}
}

func TestUnwrapWrongRoundFails(t *testing.T) {
	key, _ := GenerateRoundKey()
	w, err := WrapGlobalModel(RoundId(1), key, []byte("secret"))
	if err != nil {
		t.Fatalf("WrapGlobalModel: %v", err)
	}
	w.Round = 2
	if _, err := UnwrapGlobalModel(w, key); err == nil {
		t.Fatalf("expected error unwrapping with mismatched round AAD")
	}
}
