package browser

// ViewportProfile is a named resolution preset. It sets both the rendering
// viewport and the screen size the page reports.
type ViewportProfile struct {
	Name   string `json:"name"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

var profiles = []ViewportProfile{
	{Name: "HD", Width: 1280, Height: 720},
	{Name: "Full_HD", Width: 1920, Height: 1080},
	{Name: "2K", Width: 2560, Height: 1440},
	{Name: "4K", Width: 3840, Height: 2160},
	{Name: "laptop", Width: 1366, Height: 768},
	{Name: "tablet", Width: 1024, Height: 768},
	{Name: "mobile", Width: 390, Height: 844},
}

// DefaultProfile is used when no profile is configured.
var DefaultProfile = profiles[1] // Full_HD

// Profiles returns all presets in a stable order.
func Profiles() []ViewportProfile {
	out := make([]ViewportProfile, len(profiles))
	copy(out, profiles)
	return out
}

// ProfileByName looks up a preset by its exact name.
func ProfileByName(name string) (ViewportProfile, bool) {
	for _, p := range profiles {
		if p.Name == name {
			return p, true
		}
	}
	return ViewportProfile{}, false
}
