package utils

import (
	"github.com/exascience/pargo/sync"
)

type symbolName string

// Symbol is an interned string, typically a gene name.
type Symbol *string

// Hash implements the hasher interface of pargo's sync.Map (DJBX33A).
func (s symbolName) Hash() (hash uint64) {
	hash = 5381
	for _, b := range s {
		hash = ((hash << 5) + hash) + uint64(b)
	}
	return hash
}

var symbolTable = sync.NewMap(0)

/*
Intern returns a Symbol for the given string.

It always returns the same pointer for strings that are equal, and
different pointers for strings that are not equal. So for two strings
s1 and s2, if s1 == s2, then Intern(s1) == Intern(s2), and if s1 !=
s2, then Intern(s1) != Intern(s2).

Dereferencing the pointer always yields a string that is equal to the
original string: *Intern(s) == s always holds.

It is safe for multiple goroutines to call Intern concurrently.
*/
func Intern(s string) Symbol {
	entry, _ := symbolTable.LoadOrStore(symbolName(s), Symbol(&s))
	return entry.(Symbol)
}

// SymbolName returns the string a Symbol stands for, or "" for nil.
func SymbolName(s Symbol) string {
	if s == nil {
		return ""
	}
	return *s
}
