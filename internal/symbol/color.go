package symbol

import (
	"encoding/hex"
	"fmt"
	"image/color"
	"strings"
)

var namedColors = map[string]color.NRGBA{
	"black":  {A: 0xff},
	"white":  {R: 0xff, G: 0xff, B: 0xff, A: 0xff},
	"red":    {R: 0xff, A: 0xff},
	"green":  {G: 0x80, A: 0xff},
	"blue":   {B: 0xff, A: 0xff},
	"navy":   {B: 0x80, A: 0xff},
	"gray":   {R: 0x80, G: 0x80, B: 0x80, A: 0xff},
	"grey":   {R: 0x80, G: 0x80, B: 0x80, A: 0xff},
	"yellow": {R: 0xff, G: 0xff, A: 0xff},

	"none":        {},
	"transparent": {},
}

// ParseColor accepts a color name, "#RGB" or "#RRGGBB".
func ParseColor(s string) (color.NRGBA, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if c, ok := namedColors[v]; ok {
		return c, nil
	}
	if !strings.HasPrefix(v, "#") {
		return color.NRGBA{}, fmt.Errorf("%w: unknown color %q", ErrInvalidSpec, s)
	}
	v = v[1:]
	if len(v) == 3 {
		v = string([]byte{v[0], v[0], v[1], v[1], v[2], v[2]})
	}
	if len(v) != 6 {
		return color.NRGBA{}, fmt.Errorf("%w: malformed color %q", ErrInvalidSpec, s)
	}
	b, err := hex.DecodeString(v)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("%w: malformed color %q", ErrInvalidSpec, s)
	}
	return color.NRGBA{R: b[0], G: b[1], B: b[2], A: 0xff}, nil
}

type theme struct{ fg, bg string }

var themes = map[string]theme{
	"light":    {"black", "white"},
	"dark":     {"white", "black"},
	"colorful": {"#FF6B6B", "white"},
	"business": {"#2C3E50", "white"},
	"nature":   {"#2E8B57", "#F0F8E8"},
}

// WithTheme returns a copy of s using the named theme's colors. An empty name
// leaves s unchanged.
func (s Spec) WithTheme(name string) (Spec, error) {
	if name == "" {
		return s, nil
	}
	t, ok := themes[strings.ToLower(name)]
	if !ok {
		return s, fmt.Errorf("%w: unknown theme %q", ErrInvalidSpec, name)
	}
	// Theme tables only hold valid colors.
	s.Foreground, _ = ParseColor(t.fg)
	s.Background, _ = ParseColor(t.bg)
	return s, nil
}
