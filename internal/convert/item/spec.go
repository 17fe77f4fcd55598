package item

import "fmt"

// Spec is the JSON form of a stack used by rule documents and protocol messages.
type Spec struct {
	Item  string         `json:"item"`
	Count int64          `json:"count,omitempty"`
	Aux   map[string]any `json:"aux,omitempty"`
}

// Stack converts s to a Stack. A missing count means one unit.
func (s Spec) Stack() (Stack, error) {
	if s.Item == "" {
		return Stack{}, fmt.Errorf("empty item id")
	}
	k, err := KeyOf(s.Item, s.Aux)
	if err != nil {
		return Stack{}, err
	}
	n := s.Count
	if n == 0 {
		n = 1
	}
	return Stack{Key: k, Count: n}, nil
}

// Key converts s to a Key, ignoring its count.
func (s Spec) Key() (Key, error) {
	st, err := s.Stack()
	if err != nil {
		return Key{}, err
	}
	return st.Key, nil
}

// SpecOf is the inverse of Spec.Stack.
func SpecOf(s Stack) Spec {
	return Spec{Item: s.Key.Type(), Count: s.Count, Aux: s.Key.AuxMap()}
}
