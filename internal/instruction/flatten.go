package instruction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Flatten converts a nested JSON document into a Set of dotted key-paths,
// preserving the document's key order. Object keys join with ".", array
// elements get 1-based numeric segments, and scalars stringify: numbers
// keep their literal form, booleans become "true"/"false", null becomes
// the empty string.
func Flatten(data []byte) (*Set, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	set := NewSet()
	if err := flattenValue(dec, "", set); err != nil {
		return nil, fmt.Errorf("flatten test document: %w", err)
	}
	return set, nil
}

func flattenValue(dec *json.Decoder, path string, set *Set) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}

	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return err
				}
				key, ok := keyTok.(string)
				if !ok {
					return fmt.Errorf("object key at %q is not a string", path)
				}
				if err := flattenValue(dec, join(path, key), set); err != nil {
					return err
				}
			}
			_, err = dec.Token() // closing brace
			return err
		case '[':
			i := 0
			for dec.More() {
				i++
				if err := flattenValue(dec, join(path, strconv.Itoa(i)), set); err != nil {
					return err
				}
			}
			_, err = dec.Token() // closing bracket
			return err
		default:
			return fmt.Errorf("unexpected delimiter %q at %q", v, path)
		}
	case string:
		set.Add(path, v)
	case json.Number:
		set.Add(path, v.String())
	case bool:
		set.Add(path, strconv.FormatBool(v))
	case nil:
		set.Add(path, "")
	}
	return nil
}

func join(path, segment string) string {
	if path == "" {
		return segment
	}
	return path + "." + segment
}
