package utils

import "testing"

func TestIntern(t *testing.T) {
	a := Intern("TRBV12-2")
	b := Intern(string([]byte("TRBV12-2")))
	if a != b {
		t.Error("equal strings interned to different symbols")
	}
	if Intern("TRBJ2-1") == a {
		t.Error("different strings interned to the same symbol")
	}
	if SymbolName(a) != "TRBV12-2" {
		t.Errorf("SymbolName returned %v", SymbolName(a))
	}
	if SymbolName(nil) != "" {
		t.Error("SymbolName(nil) is not empty")
	}
}
