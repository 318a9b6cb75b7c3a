package instruction

import "strings"

// CommonPrefix computes the longest common prefix of keys by scanning
// position by position up to the length of the shortest key. Empty input
// yields an empty prefix; a single key is its own prefix in full.
func CommonPrefix(keys []string) string {
	if len(keys) == 0 {
		return ""
	}

	shortest := len(keys[0])
	for _, k := range keys[1:] {
		if len(k) < shortest {
			shortest = len(k)
		}
	}

	for i := 0; i < shortest; i++ {
		c := keys[0][i]
		for _, k := range keys[1:] {
			if k[i] != c {
				return keys[0][:i]
			}
		}
	}
	return keys[0][:shortest]
}

// Normalize strips the longest common prefix from every key in the set,
// preserving order. The strip is a literal substring removal, not a
// path-segment removal: a prefix ending mid-segment leaves the segment
// remainder behind, and a prefix ending at a separator leaves the key
// without its leading separator only if the separator is part of the
// prefix. Keys that strip to the empty string are kept as empty keys.
func Normalize(s *Set) (string, *Set) {
	prefix := CommonPrefix(s.Keys())
	relative := NewSet()
	for _, it := range s.items {
		relative.Add(strings.TrimPrefix(it.Key, prefix), it.Value)
	}
	return prefix, relative
}

// PrefixLabel extracts the human-facing run label from a stripped prefix:
// the segment one before the prefix's end. Used solely for logging.
func PrefixLabel(prefix string) string {
	parts := strings.Split(prefix, ".")
	if len(parts) < 2 {
		return prefix
	}
	return parts[len(parts)-2]
}
