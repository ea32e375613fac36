package store

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestVectorRoundTrip(t *testing.T) {
	t.Parallel()

	in := Vector{0.25, -1, 3}
	v, err := in.Value()
	if err != nil {
		t.Fatalf("Value() error = %v", err)
	}
	if v != "[0.25,-1,3]" {
		t.Fatalf("Value() = %v", v)
	}

	var out Vector
	if err := out.Scan([]byte("[0.25, -1, 3]")); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("Scan() mismatch (-want +got):\n%s", diff)
	}
}

func TestVectorNullAndMalformed(t *testing.T) {
	t.Parallel()

	var nilVec Vector
	if v, err := nilVec.Value(); v != nil || err != nil {
		t.Fatalf("nil Value() = %v, %v", v, err)
	}

	out := Vector{1}
	if err := out.Scan(nil); err != nil || out != nil {
		t.Fatalf("Scan(nil) = %v, %v", out, err)
	}
	if err := out.Scan("1,2"); err == nil {
		t.Fatal("expected error for malformed vector")
	}
	if err := out.Scan(42); err == nil {
		t.Fatal("expected error for unsupported source")
	}
}
