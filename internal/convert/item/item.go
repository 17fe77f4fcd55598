// Package item defines the canonical identity of an item independent of quantity.
package item

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Key is the equality class of an item: its type plus optional auxiliary data.
// Quantity is never part of a Key. Keys are comparable and may be used as map keys.
type Key struct {
	typ  string
	aux  string // canonical JSON, "" when absent
	hash uint64
}

// NewKey builds a key from an item type and canonical auxiliary data.
// Use Canonical to normalize auxiliary data coming from decoded JSON.
func NewKey(typ, aux string) Key {
	return Key{typ: typ, aux: aux, hash: hashOf(typ, aux)}
}

// AuxSeparator sits between the type and the auxiliary data in Key.String.
// Item types may not contain it.
const AuxSeparator = "#"

// KeyOf builds a key from an item type and a decoded auxiliary data object.
func KeyOf(typ string, aux map[string]any) (Key, error) {
	if strings.Contains(typ, AuxSeparator) {
		return Key{}, fmt.Errorf("item %q: id may not contain %q", typ, AuxSeparator)
	}
	c, err := Canonical(aux)
	if err != nil {
		return Key{}, fmt.Errorf("item %s: %w", typ, err)
	}
	return NewKey(typ, c), nil
}

func hashOf(typ, aux string) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(typ)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(aux)
	return d.Sum64()
}

// Canonical encodes auxiliary data with sorted object keys so that two
// structurally equal objects produce the same string.
func Canonical(aux map[string]any) (string, error) {
	if len(aux) == 0 {
		return "", nil
	}
	// encoding/json sorts map keys at every level.
	b, err := json.Marshal(aux)
	if err != nil {
		return "", fmt.Errorf("aux: %w", err)
	}
	return string(b), nil
}

func (k Key) Type() string { return k.typ }
func (k Key) Aux() string  { return k.aux }
func (k Key) Hash() uint64 { return k.hash }
func (k Key) IsZero() bool { return k.typ == "" }
func (k Key) HasAux() bool { return k.aux != "" }

// AuxMap decodes the auxiliary data. It returns nil when the key has none.
func (k Key) AuxMap() map[string]any {
	if k.aux == "" {
		return nil
	}
	var m map[string]any
	dec := json.NewDecoder(bytes.NewReader([]byte(k.aux)))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return nil
	}
	return m
}

// Equal compares type and auxiliary data, using the cached hash as a fast reject.
func (k Key) Equal(o Key) bool {
	if k.hash != o.hash {
		return false
	}
	return k.typ == o.typ && k.aux == o.aux
}

// String is the stable display name of the key: the type, followed by
// AuxSeparator and the canonical auxiliary data when present.
func (k Key) String() string {
	if k.aux == "" {
		return k.typ
	}
	return k.typ + AuxSeparator + k.aux
}

// Stack is a quantity of one item identity.
type Stack struct {
	Key   Key
	Count int64
}

// NewStack returns count units of key.
func NewStack(key Key, count int64) Stack { return Stack{Key: key, Count: count} }

func (s Stack) IsEmpty() bool { return s.Key.IsZero() || s.Count <= 0 }

// WithCount returns a copy of s holding n units.
func (s Stack) WithCount(n int64) Stack { return Stack{Key: s.Key, Count: n} }

func (s Stack) String() string {
	if s.IsEmpty() {
		return "EMPTY"
	}
	return fmt.Sprintf("%dx%s", s.Count, s.Key)
}

// IdentityOf returns the key of a stack, dropping its quantity.
func IdentityOf(s Stack) Key { return s.Key }

// Test reports whether stack s is an instance of key k: same type and same
// auxiliary data. Empty stacks never match.
func Test(k Key, s Stack) bool {
	if s.IsEmpty() {
		return false
	}
	return k.Equal(s.Key)
}
