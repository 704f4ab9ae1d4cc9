package indicator

import "testing"

func TestParity(t *testing.T) {
	ind := New(0x150c)
	if led, gpio := ind.State(); led || gpio {
		t.Fatalf("initial state led=%v gpio=%v", led, gpio)
	}
	steps := []struct {
		v   int32
		led bool
	}{{1, true}, {2, false}, {-3, true}, {10, false}}
	for _, s := range steps {
		ind.ValueChanged(s.v)
		led, gpio := ind.State()
		if led != s.led || !gpio {
			t.Fatalf("value %d: led=%v gpio=%v", s.v, led, gpio)
		}
	}
	if ind.Updates() != len(steps) {
		t.Fatalf("updates=%d", ind.Updates())
	}
}
