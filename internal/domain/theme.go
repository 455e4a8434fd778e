package domain

import "regexp"

// ThemeColor names a color scheme.
type ThemeColor string

const (
	ThemeDefault ThemeColor = "default"
	ThemePink    ThemeColor = "pink"
	ThemeBlue    ThemeColor = "blue"
	ThemePurple  ThemeColor = "purple"
	ThemeOcean   ThemeColor = "ocean"
	ThemeSunset  ThemeColor = "sunset"
	ThemeEmerald ThemeColor = "emerald"
	ThemeRose    ThemeColor = "rose"
	ThemeIndigo  ThemeColor = "indigo"
	ThemeTeal    ThemeColor = "teal"
	ThemeAmber   ThemeColor = "amber"
	ThemeLime    ThemeColor = "lime"
	ThemeFuchsia ThemeColor = "fuchsia"
	ThemeSky     ThemeColor = "sky"
	ThemeCustom  ThemeColor = "custom"
)

// Palette is the set of semantic color tokens for a theme.
type Palette struct {
	Primary  string `json:"primary"`
	Accent   string `json:"accent"`
	Gradient string `json:"gradient"`
}

var palettes = map[ThemeColor]Palette{
	ThemeDefault: {Primary: "#06b6d4", Accent: "#3b82f6", Gradient: "from-cyan-500 to-blue-600"},
	ThemePink:    {Primary: "#ec4899", Accent: "#f472b6", Gradient: "from-pink-500 to-rose-500"},
	ThemeBlue:    {Primary: "#3b82f6", Accent: "#60a5fa", Gradient: "from-blue-500 to-indigo-600"},
	ThemePurple:  {Primary: "#a855f7", Accent: "#c084fc", Gradient: "from-purple-500 to-violet-600"},
	ThemeOcean:   {Primary: "#0ea5e9", Accent: "#14b8a6", Gradient: "from-sky-500 to-teal-500"},
	ThemeSunset:  {Primary: "#f97316", Accent: "#ef4444", Gradient: "from-orange-500 to-red-500"},
	ThemeEmerald: {Primary: "#10b981", Accent: "#34d399", Gradient: "from-emerald-500 to-green-600"},
	ThemeRose:    {Primary: "#f43f5e", Accent: "#fb7185", Gradient: "from-rose-500 to-pink-600"},
	ThemeIndigo:  {Primary: "#6366f1", Accent: "#818cf8", Gradient: "from-indigo-500 to-purple-600"},
	ThemeTeal:    {Primary: "#14b8a6", Accent: "#2dd4bf", Gradient: "from-teal-500 to-cyan-600"},
	ThemeAmber:   {Primary: "#f59e0b", Accent: "#fbbf24", Gradient: "from-amber-500 to-orange-500"},
	ThemeLime:    {Primary: "#84cc16", Accent: "#a3e635", Gradient: "from-lime-500 to-green-500"},
	ThemeFuchsia: {Primary: "#d946ef", Accent: "#e879f9", Gradient: "from-fuchsia-500 to-purple-600"},
	ThemeSky:     {Primary: "#0ea5e9", Accent: "#38bdf8", Gradient: "from-sky-500 to-blue-500"},
}

// Valid reports whether t is a known theme.
func (t ThemeColor) Valid() bool {
	if t == ThemeCustom {
		return true
	}
	_, ok := palettes[t]
	return ok
}

// PaletteFor returns the tokens for theme t. The custom theme derives all
// tokens from customColor.
func PaletteFor(t ThemeColor, customColor string) Palette {
	if t == ThemeCustom {
		return Palette{Primary: customColor, Accent: customColor, Gradient: customColor}
	}
	if p, ok := palettes[t]; ok {
		return p
	}
	return palettes[ThemeDefault]
}

var hexColorRe = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// ValidHexColor reports whether s is a #rrggbb color.
func ValidHexColor(s string) bool {
	return hexColorRe.MatchString(s)
}

// Theme is the stored presentation preference set.
type Theme struct {
	Color       ThemeColor `json:"themeColor"`
	DarkMode    bool       `json:"isDarkMode"`
	CustomColor string     `json:"customColor"`
	Palette     Palette    `json:"palette"`
}

// DefaultCustomColor is used until the user picks one.
const DefaultCustomColor = "#ff0080"
