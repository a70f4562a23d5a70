package grid

import "testing"

func TestParseDecayLaw(t *testing.T) {
	for _, name := range []string{"exponential", "reciprocal", "linear"} {
		if _, err := ParseDecayLaw(name); err != nil {
			t.Errorf("ParseDecayLaw(%q) failed: %v", name, err)
		}
	}
	if _, err := ParseDecayLaw("quadratic"); err == nil {
		t.Fatalf("expected error for unknown decay law")
	}
}

func TestProfileLength(t *testing.T) {
	// ceil(soft/res) entries.
	p, err := NewProfile(DecayLinear, 0.5, 0.05)
	if err != nil {
		t.Fatal(err)
	}
	if len(p) != 10 {
		t.Fatalf("expected 10 rings, got %d", len(p))
	}

	p, err = NewProfile(DecayLinear, 0.11, 0.05)
	if err != nil {
		t.Fatal(err)
	}
	if len(p) != 3 {
		t.Fatalf("expected 3 rings for 0.11/0.05, got %d", len(p))
	}
}

func TestProfileZeroDistance(t *testing.T) {
	p, err := NewProfile(DecayExponential, 0, 0.05)
	if err != nil {
		t.Fatal(err)
	}
	if len(p) != 0 {
		t.Fatalf("expected empty profile, got %v", p)
	}
}

func TestProfileSingleStep(t *testing.T) {
	// One ring sits at r=0; every law starts at 98 there.
	for _, law := range []DecayLaw{DecayExponential, DecayReciprocal, DecayLinear} {
		p, err := NewProfile(law, 0.05, 0.05)
		if err != nil {
			t.Fatal(err)
		}
		if len(p) != 1 || p[0] != 98 {
			t.Errorf("%s single step = %v, want [98]", law, p)
		}
	}
}

func TestProfileEndpoints(t *testing.T) {
	// All three laws span 98 at r=0 down to 1 at r=1.
	for _, law := range []DecayLaw{DecayExponential, DecayReciprocal, DecayLinear} {
		p, err := NewProfile(law, 0.5, 0.05)
		if err != nil {
			t.Fatal(err)
		}
		if p[0] != 98 {
			t.Errorf("%s first ring = %d, want 98", law, p[0])
		}
		if p[len(p)-1] != 1 {
			t.Errorf("%s last ring = %d, want 1", law, p[len(p)-1])
		}
	}
}

func TestProfileExponentialValues(t *testing.T) {
	p, err := NewProfile(DecayExponential, 0.15, 0.05)
	if err != nil {
		t.Fatal(err)
	}
	// r = 0, 0.5, 1: floor(100*exp(-3.506*r)) - 2.
	want := Profile{98, 15, 1}
	if len(p) != len(want) {
		t.Fatalf("profile = %v, want %v", p, want)
	}
	for i := range want {
		if p[i] != want[i] {
			t.Fatalf("profile = %v, want %v", p, want)
		}
	}
}

func TestProfileNonIncreasingAndBounded(t *testing.T) {
	for _, law := range []DecayLaw{DecayExponential, DecayReciprocal, DecayLinear} {
		p, err := NewProfile(law, 2.0, 0.05)
		if err != nil {
			t.Fatal(err)
		}
		for i, v := range p {
			if v < 1 || v > 98 {
				t.Fatalf("%s ring %d = %d outside [1,98]", law, i, v)
			}
			if i > 0 && v > p[i-1] {
				t.Fatalf("%s profile increases at ring %d: %v", law, i, p)
			}
		}
	}
}
