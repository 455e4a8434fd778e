package domain

// Settings holds the user-facing scalar preferences.
type Settings struct {
	FontSize      int    `json:"fontSize"`
	Notifications bool   `json:"notifications"`
	SoundEnabled  bool   `json:"soundEnabled"`
	AutoSave      bool   `json:"autoSave"`
	Language      string `json:"language"`
}

// DefaultSettings returns the preferences used when nothing is stored.
func DefaultSettings() Settings {
	return Settings{
		FontSize:      14,
		Notifications: true,
		SoundEnabled:  true,
		AutoSave:      true,
		Language:      "vi",
	}
}

// Font size bounds in pixels.
const (
	MinFontSize = 12
	MaxFontSize = 18
)

// Languages lists the supported UI languages.
var Languages = []string{"vi", "en", "ja", "ko"}

// SettingsPatch updates a subset of Settings. Nil fields are left alone.
type SettingsPatch struct {
	FontSize      *int    `json:"fontSize,omitempty"`
	Notifications *bool   `json:"notifications,omitempty"`
	SoundEnabled  *bool   `json:"soundEnabled,omitempty"`
	AutoSave      *bool   `json:"autoSave,omitempty"`
	Language      *string `json:"language,omitempty"`
}

// Backup is the downloadable export of one user's data.
type Backup struct {
	Username      string         `json:"username"`
	Conversations *string        `json:"conversations"`
	Settings      map[string]any `json:"settings"`
}
