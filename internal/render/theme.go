package render

import (
	"image/color"
	"time"

	"story-scheduler/internal/domain"
)

// Theme is a named gradient background for the rendered card.
type Theme struct {
	Name  string
	Stops []color.NRGBA // interpolated corner-to-corner (135deg)
}

const (
	ThemeShinyPurple = "SHINY_PURPLE"
	ThemeMangoJuice  = "MANGO_JUICE"
	ThemeOceanBreeze = "OCEAN_BREEZE"
	ThemeForestGlow  = "FOREST_GLOW"
	ThemeSunsetVibes = "SUNSET_VIBES"
)

var themes = map[string]Theme{
	ThemeShinyPurple: {Name: ThemeShinyPurple, Stops: []color.NRGBA{
		{R: 0x66, G: 0x7e, B: 0xea, A: 0xff}, {R: 0x76, G: 0x4b, B: 0xa2, A: 0xff},
	}},
	ThemeMangoJuice: {Name: ThemeMangoJuice, Stops: []color.NRGBA{
		{R: 0xf0, G: 0x93, B: 0xfb, A: 0xff}, {R: 0xf5, G: 0x57, B: 0x6c, A: 0xff}, {R: 0xf9, G: 0xa8, B: 0x25, A: 0xff},
	}},
	ThemeOceanBreeze: {Name: ThemeOceanBreeze, Stops: []color.NRGBA{
		{R: 0x66, G: 0x7e, B: 0xea, A: 0xff}, {R: 0x64, G: 0xb5, B: 0xf6, A: 0xff}, {R: 0x4d, G: 0xd0, B: 0xe1, A: 0xff},
	}},
	ThemeForestGlow: {Name: ThemeForestGlow, Stops: []color.NRGBA{
		{R: 0x13, G: 0x4e, B: 0x5e, A: 0xff}, {R: 0x71, G: 0xb2, B: 0x80, A: 0xff},
	}},
	ThemeSunsetVibes: {Name: ThemeSunsetVibes, Stops: []color.NRGBA{
		{R: 0xfc, G: 0x4a, B: 0x1a, A: 0xff}, {R: 0xf7, G: 0xb7, B: 0x33, A: 0xff},
	}},
}

// ThemeByName resolves a theme id. Unknown names are a validation error so bad
// input never reaches the queue.
func ThemeByName(name string) (Theme, error) {
	t, ok := themes[name]
	if !ok {
		return Theme{}, domain.ErrValidation
	}
	return t, nil
}

// KnownTheme reports whether name is one of the fixed theme set.
func KnownTheme(name string) bool {
	_, ok := themes[name]
	return ok
}

// DefaultTheme picks the theme used when the caller does not choose one:
// MANGO_JUICE on Sundays, SHINY_PURPLE otherwise.
func DefaultTheme(at time.Time) string {
	if at.Weekday() == time.Sunday {
		return ThemeMangoJuice
	}
	return ThemeShinyPurple
}

// at returns the gradient color at position t in [0,1].
func (th Theme) at(t float64) color.NRGBA {
	n := len(th.Stops)
	if n == 1 {
		return th.Stops[0]
	}
	if t <= 0 {
		return th.Stops[0]
	}
	if t >= 1 {
		return th.Stops[n-1]
	}
	seg := t * float64(n-1)
	i := int(seg)
	frac := seg - float64(i)
	a, b := th.Stops[i], th.Stops[i+1]
	lerp := func(x, y uint8) uint8 {
		return uint8(float64(x) + (float64(y)-float64(x))*frac)
	}
	return color.NRGBA{R: lerp(a.R, b.R), G: lerp(a.G, b.G), B: lerp(a.B, b.B), A: 0xff}
}
