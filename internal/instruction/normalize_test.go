package instruction

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommonPrefix(t *testing.T) {
	cases := []struct {
		name string
		keys []string
		want string
	}{
		{"empty input", nil, ""},
		{"single key is its own prefix", []string{"a.b.url.value"}, "a.b.url.value"},
		{"shared run prefix", []string{"run1.input.placeholder1.Name", "run1.button.Submit"}, "run1."},
		{"prefix ends at separator", []string{"run.alpha.first", "run.alpha.second"}, "run.alpha."},
		{"prefix ends mid-segment", []string{"run.input1.Name", "run.input2.Email"}, "run.input"},
		{"no common prefix", []string{"url.login", "button.Submit"}, ""},
		{"one key contains the other", []string{"run1.url", "run1.url.extra"}, "run1.url"},
		{"identical keys", []string{"same.key", "same.key"}, "same.key"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CommonPrefix(tc.keys))
		})
	}
}

func TestCommonPrefixIsLongestPrefixOfAll(t *testing.T) {
	keys := []string{
		"login_test.case3.url.login",
		"login_test.case3.input.placeholder1.Username",
		"login_test.case3.input.placeholder2.Password",
		"login_test.case3.button.Submit",
	}
	prefix := CommonPrefix(keys)

	for _, k := range keys {
		assert.True(t, strings.HasPrefix(k, prefix), "prefix %q not a prefix of %q", prefix, k)
	}

	// No longer prefix works: extending by one character must fail for
	// at least one key.
	extended := prefix + string(keys[0][len(prefix)])
	allMatch := true
	for _, k := range keys {
		if !strings.HasPrefix(k, extended) {
			allMatch = false
		}
	}
	assert.False(t, allMatch, "prefix %q is not maximal", prefix)
}

func TestNormalizeReattachIdentity(t *testing.T) {
	set := NewSet()
	set.Add("suite.run7.url.login", "https://example.test/login")
	set.Add("suite.run7.input.placeholder1.Email", "user@example.test")
	set.Add("suite.run7.button.Submit", "submit")

	prefix, relative := Normalize(set)
	require.Equal(t, set.Len(), relative.Len())

	original := set.Items()
	for i, it := range relative.Items() {
		assert.Equal(t, original[i].Key, prefix+it.Key)
		assert.Equal(t, original[i].Value, it.Value)
	}
}

func TestNormalizeEmptySet(t *testing.T) {
	prefix, relative := Normalize(NewSet())
	assert.Equal(t, "", prefix)
	assert.Equal(t, 0, relative.Len())
}

func TestNormalizeSingleKeyDegeneratesToEmptyRelative(t *testing.T) {
	set := NewSet()
	set.Add("a.b.url.value", "https://example.test")

	prefix, relative := Normalize(set)
	assert.Equal(t, "a.b.url.value", prefix)
	require.Equal(t, 1, relative.Len())

	items := relative.Items()
	assert.Equal(t, "", items[0].Key)
	assert.Equal(t, "https://example.test", items[0].Value)
}

func TestNormalizePreservesOrder(t *testing.T) {
	set := NewSet()
	set.Add("r.url.login", "https://example.test")
	set.Add("r.input.placeholder1.Name", "Ada")
	set.Add("r.textarea.placeholder1.Bio", "text")
	set.Add("r.button.Submit", "submit")

	_, relative := Normalize(set)
	assert.Equal(t, []string{
		"url.login",
		"input.placeholder1.Name",
		"textarea.placeholder1.Bio",
		"button.Submit",
	}, relative.Keys())
}

func TestNormalizeMidSegmentPrefixLeavesRemainder(t *testing.T) {
	set := NewSet()
	set.Add("run.input1.Name", "Ada")
	set.Add("run.input2.Email", "ada@example.test")

	prefix, relative := Normalize(set)
	assert.Equal(t, "run.input", prefix)
	assert.Equal(t, []string{"1.Name", "2.Email"}, relative.Keys())
}

func TestPrefixLabel(t *testing.T) {
	cases := []struct {
		prefix string
		want   string
	}{
		{"run1.", "run1"},
		{"login_test.case3.", "case3"},
		{"suite.run7.url", "run7"},
		{"nodots", "nodots"},
		{"", ""},
	}

	for _, tc := range cases {
		t.Run(tc.prefix, func(t *testing.T) {
			assert.Equal(t, tc.want, PrefixLabel(tc.prefix))
		})
	}
}

func TestSetAddKeepsPositionOnUpdate(t *testing.T) {
	set := NewSet()
	set.Add("first", "1")
	set.Add("second", "2")
	set.Add("first", "updated")

	assert.Equal(t, []string{"first", "second"}, set.Keys())
	v, ok := set.Get("first")
	require.True(t, ok)
	assert.Equal(t, "updated", v)
}
