package device

import "regexp"

// smallScreenWidth is the viewport cutoff below which a touch-capable
// client is treated as mobile.
const smallScreenWidth = 768

var mobileUA = regexp.MustCompile(`(?i)android|webos|iphone|ipad|ipod|blackberry|windows phone`)

// Environment carries the signals available at classification time.
// Present is false when there is no browser-like host to inspect.
type Environment struct {
	UserAgent     string
	ViewportWidth int
	TouchPoints   int
	HasTouch      bool
	Present       bool
}

// IsMobile classifies the client as mobile/camera-capable. A known mobile
// OS in the user agent is decisive on its own; otherwise a small viewport
// with touch support qualifies. Never panics; absent environments are
// desktop by definition.
func IsMobile(env Environment) bool {
	if !env.Present {
		return false
	}
	if mobileUA.MatchString(env.UserAgent) {
		return true
	}
	touch := env.HasTouch || env.TouchPoints > 0
	return env.ViewportWidth <= smallScreenWidth && touch
}
