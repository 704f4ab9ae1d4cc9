package random

import (
	"bytes"
	"errors"
	"testing"
)

func TestUniformBounds(t *testing.T) {
	sources := map[string]Source{
		"seeded": NewSeeded(1),
		"crypto": Crypto{},
	}
	for name, src := range sources {
		t.Run(name, func(t *testing.T) {
			for _, r := range [][2]int64{{0, 1}, {0, 2}, {5, 6}, {-10, 10}, {0, 5000}} {
				for n := 0; n < 200; n++ {
					v, err := src.Uniform(r[0], r[1])
					if err != nil {
						t.Fatalf("Uniform(%d, %d): %v", r[0], r[1], err)
					}
					if v < r[0] || v >= r[1] {
						t.Fatalf("Uniform(%d, %d)=%d", r[0], r[1], v)
					}
				}
			}
			if _, err := src.Uniform(3, 3); !errors.Is(err, ErrInvalidRange) {
				t.Fatalf("empty range: %v", err)
			}
		})
	}
}

func TestSeededIsReproducible(t *testing.T) {
	a, b := NewSeeded(42), NewSeeded(42)
	for n := 0; n < 50; n++ {
		x, _ := a.Uniform(0, 1<<40)
		y, _ := b.Uniform(0, 1<<40)
		if x != y {
			t.Fatalf("draw %d differs: %d vs %d", n, x, y)
		}
	}
}

func TestCryptoReadFailure(t *testing.T) {
	src := Crypto{Reader: bytes.NewReader(nil)}
	if _, err := src.Uniform(0, 100); err == nil {
		t.Fatalf("expected error from exhausted reader")
	}
}

func TestNew(t *testing.T) {
	if _, err := New("", 1); err != nil {
		t.Fatalf("default: %v", err)
	}
	if _, err := New("crypto", 1); err != nil {
		t.Fatalf("crypto: %v", err)
	}
	if _, err := New("dice", 1); err == nil {
		t.Fatalf("unknown source accepted")
	}
}
