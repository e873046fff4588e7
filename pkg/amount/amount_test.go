package amount

import "testing"

func TestParseFormatRoundTrip(t *testing.T) {
	cases := []string{"0.0000", "1.0000", "1.5000", "100.1234", "999999.9999", "0.0001"}
	for _, c := range cases {
		scaled, err := Parse(c)
		if err != nil {
			t.Fatalf("Parse(%q): %v", c, err)
		}
		got := Format(scaled)
		if got != c {
			t.Errorf("round trip mismatch: Parse(%q)->%d->Format = %q", c, scaled, got)
		}
	}
}

func TestParseAcceptsShortForms(t *testing.T) {
	scaled, err := Parse("5")
	if err != nil {
		t.Fatalf("Parse(5): %v", err)
	}
	if scaled != 5*Scale {
		t.Errorf("expected %d, got %d", 5*Scale, scaled)
	}

	scaled, err = Parse("5.5")
	if err != nil {
		t.Fatalf("Parse(5.5): %v", err)
	}
	if scaled != 5*Scale+5000 {
		t.Errorf("expected %d, got %d", 5*Scale+5000, scaled)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	invalid := []string{"", "-1", "1.", ".5", "1.00001", "abc", "1,000", "1e5"}
	for _, c := range invalid {
		if _, err := Parse(c); err == nil {
			t.Errorf("Parse(%q): expected error, got nil", c)
		}
	}
}

func TestFormatIsAlwaysFourDecimals(t *testing.T) {
	got := Format(10000)
	if got != "1.0000" {
		t.Errorf("expected 1.0000, got %q", got)
	}
}
