package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileByName(t *testing.T) {
	cases := []struct {
		name   string
		width  int
		height int
	}{
		{"HD", 1280, 720},
		{"Full_HD", 1920, 1080},
		{"2K", 2560, 1440},
		{"4K", 3840, 2160},
		{"laptop", 1366, 768},
		{"tablet", 1024, 768},
		{"mobile", 390, 844},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, ok := ProfileByName(tc.name)
			require.True(t, ok)
			assert.Equal(t, tc.width, p.Width)
			assert.Equal(t, tc.height, p.Height)
		})
	}

	_, ok := ProfileByName("CGA")
	assert.False(t, ok)
}

func TestProfilesEnumerable(t *testing.T) {
	all := Profiles()
	require.Len(t, all, 7)

	seen := map[string]bool{}
	for _, p := range all {
		assert.False(t, seen[p.Name], "duplicate profile %s", p.Name)
		seen[p.Name] = true
		assert.Greater(t, p.Width, 0)
		assert.Greater(t, p.Height, 0)
	}

	assert.Equal(t, "Full_HD", DefaultProfile.Name)
}

func TestProfilesReturnsACopy(t *testing.T) {
	all := Profiles()
	all[0].Name = "mutated"

	fresh := Profiles()
	assert.Equal(t, "HD", fresh[0].Name)
}
