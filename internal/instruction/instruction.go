// Package instruction models the flattened test-step mapping that drives a
// browser run: dotted key-paths in execution order, each paired with a
// string value.
package instruction

// Instruction is one (key-path, value) unit. The key-path's first segment
// names the action category; later segments qualify how the target is
// located.
type Instruction struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Set is an ordered instruction mapping. Insertion order is execution
// order; re-adding an existing key updates the value but keeps the
// original position.
type Set struct {
	items []Instruction
	index map[string]int
}

// NewSet returns an empty Set.
func NewSet() *Set {
	return &Set{index: make(map[string]int)}
}

// Add appends an instruction, or updates it in place if the key exists.
func (s *Set) Add(key, value string) {
	if i, ok := s.index[key]; ok {
		s.items[i].Value = value
		return
	}
	s.index[key] = len(s.items)
	s.items = append(s.items, Instruction{Key: key, Value: value})
}

// Get returns the value for key and whether it is present.
func (s *Set) Get(key string) (string, bool) {
	i, ok := s.index[key]
	if !ok {
		return "", false
	}
	return s.items[i].Value, true
}

// Len reports the number of instructions.
func (s *Set) Len() int {
	return len(s.items)
}

// Keys returns all keys in insertion order.
func (s *Set) Keys() []string {
	keys := make([]string, len(s.items))
	for i, it := range s.items {
		keys[i] = it.Key
	}
	return keys
}

// Items returns the instructions in insertion order.
func (s *Set) Items() []Instruction {
	items := make([]Instruction, len(s.items))
	copy(items, s.items)
	return items
}
