package crypto

import "testing"

func TestSha256HexNoPrefix(t *testing.T) {
	got := Sha256Hex("")
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got != want {
		t.Errorf("Sha256Hex(\"\") = %q, want %q", got, want)
	}
	for _, r := range got {
		if r == 'x' {
			t.Fatalf("hash contains 0x-style marker: %q", got)
		}
	}
}

func TestCanonicalJSONSortsKeys(t *testing.T) {
	a, err := CanonicalJSON([]byte(`{"b":1,"a":2}`))
	if err != nil {
		t.Fatal(err)
	}
	b, err := CanonicalJSON([]byte(`{"a":2,"b":1}`))
	if err != nil {
		t.Fatal(err)
	}
	if string(a) != string(b) {
		t.Errorf("canonical forms differ: %s vs %s", a, b)
	}
	if string(a) != `{"a":2,"b":1}` {
		t.Errorf("unexpected canonical form: %s", a)
	}
}

func TestHashCanonicalStable(t *testing.T) {
	type payload struct {
		Amount string `json:"amount"`
		Owner  string `json:"owner"`
	}
	h1, err := HashCanonical(payload{Amount: "1.0000", Owner: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	h2, err := HashCanonical(payload{Amount: "1.0000", Owner: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Errorf("expected stable hash, got %q vs %q", h1, h2)
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	sk, pk, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	derived, err := DerivePublicKey(sk)
	if err != nil {
		t.Fatal(err)
	}
	if derived != pk {
		t.Errorf("derived public key %q != generated %q", derived, pk)
	}

	hash := Sha256Hex("certificate-payload")
	sig, err := Sign(hash, sk)
	if err != nil {
		t.Fatal(err)
	}
	if !Verify(hash, sig, pk) {
		t.Error("expected signature to verify")
	}
	if Verify(Sha256Hex("tampered"), sig, pk) {
		t.Error("expected tampered hash to fail verification")
	}
}

func TestVerifyRejectsMalformedInput(t *testing.T) {
	if Verify("abc", "not-hex-!!", "also-not-hex") {
		t.Error("expected malformed input to fail closed")
	}
}
