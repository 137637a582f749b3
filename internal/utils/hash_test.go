package utils

import "testing"

func TestFNV64aStable(t *testing.T) {
	if FNV64a("report-1") != FNV64a("report-1") {
		t.Fatal("expected identical input to hash identically")
	}
	if FNV64a("report-1") == FNV64a("report-2") {
		t.Fatal("expected different inputs to hash differently")
	}
}
