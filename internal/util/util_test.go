package util

import "testing"

func TestNextPow2(t *testing.T) {
	cases := map[uint64]uint64{
		0: 1, 1: 1, 2: 2, 3: 4, 5: 8, 8: 8, 1000: 1024,
	}
	for in, want := range cases {
		if got := NextPow2(in); got != want {
			t.Fatalf("NextPow2(%d) = %d, want %d", in, got, want)
		}
	}
	if got := NextPow2(1<<63 + 1); got != 1<<63 {
		t.Fatalf("overflow must clamp, got %d", got)
	}
}

func TestIsPowerOfTwo(t *testing.T) {
	for _, x := range []uint64{1, 2, 4, 1 << 20} {
		if !IsPowerOfTwo(x) {
			t.Fatalf("%d is a power of two", x)
		}
	}
	for _, x := range []uint64{0, 3, 6, 1<<20 + 1} {
		if IsPowerOfTwo(x) {
			t.Fatalf("%d is not a power of two", x)
		}
	}
}

// Distinct part boundaries must hash differently.
func TestFnv64a_PartBoundaries(t *testing.T) {
	if Fnv64a("ab", "c") == Fnv64a("a", "bc") {
		t.Fatal("part boundaries must affect the hash")
	}
	if Fnv64a("k") == Fnv64aByte(Fnv64a("k"), 1) {
		t.Fatal("folding a byte must change the hash")
	}
}
