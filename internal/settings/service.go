// Package settings reads and writes user preferences, the theme and the
// backup file.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"fluxmare/internal/domain"
	"fluxmare/internal/observability"
	"fluxmare/internal/storage"
)

// importableKeys are the setting keys a backup file may write.
var importableKeys = map[string]bool{
	storage.KeyThemeColor:    true,
	storage.KeyDarkMode:      true,
	storage.KeyCustomColor:   true,
	storage.KeyFontSize:      true,
	storage.KeyNotifications: true,
	storage.KeySoundEnabled:  true,
	storage.KeyAutoSave:      true,
	storage.KeyLanguage:      true,
}

type Service struct {
	store  storage.KeyValueStore
	logger observability.Logger
	mu     sync.Mutex
}

func NewService(store storage.KeyValueStore, logger observability.Logger) *Service {
	if logger == nil {
		logger = observability.NewLogger(observability.DefaultConfig())
	}
	return &Service{store: store, logger: logger.WithComponent("settings")}
}

// Get reads the scalar settings. Missing or unparsable values fall back to
// domain.DefaultSettings; booleans are true unless stored as "false".
func (s *Service) Get(ctx context.Context) (domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(ctx)
}

func (s *Service) getLocked(ctx context.Context) (domain.Settings, error) {
	out := domain.DefaultSettings()
	raw, err := s.read(ctx, storage.KeyFontSize, storage.KeyNotifications, storage.KeySoundEnabled, storage.KeyAutoSave, storage.KeyLanguage)
	if err != nil {
		return out, err
	}
	if v, ok := raw[storage.KeyFontSize]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			out.FontSize = n
		}
	}
	if v, ok := raw[storage.KeyNotifications]; ok {
		out.Notifications = v != "false"
	}
	if v, ok := raw[storage.KeySoundEnabled]; ok {
		out.SoundEnabled = v != "false"
	}
	if v, ok := raw[storage.KeyAutoSave]; ok {
		out.AutoSave = v != "false"
	}
	if v, ok := raw[storage.KeyLanguage]; ok && v != "" {
		out.Language = v
	}
	return out, nil
}

// Update applies the non-nil fields of p.
func (s *Service) Update(ctx context.Context, p domain.SettingsPatch) (domain.Settings, error) {
	if p.FontSize != nil && (*p.FontSize < domain.MinFontSize || *p.FontSize > domain.MaxFontSize) {
		return domain.Settings{}, fmt.Errorf("fontSize must be between %d and %d: %w", domain.MinFontSize, domain.MaxFontSize, storage.ErrValidation)
	}
	if p.Language != nil && !slices.Contains(domain.Languages, *p.Language) {
		return domain.Settings{}, fmt.Errorf("unsupported language %q: %w", *p.Language, storage.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	writes := map[string]string{}
	if p.FontSize != nil {
		writes[storage.KeyFontSize] = strconv.Itoa(*p.FontSize)
	}
	if p.Notifications != nil {
		writes[storage.KeyNotifications] = strconv.FormatBool(*p.Notifications)
	}
	if p.SoundEnabled != nil {
		writes[storage.KeySoundEnabled] = strconv.FormatBool(*p.SoundEnabled)
	}
	if p.AutoSave != nil {
		writes[storage.KeyAutoSave] = strconv.FormatBool(*p.AutoSave)
	}
	if p.Language != nil {
		writes[storage.KeyLanguage] = *p.Language
	}
	for k, v := range writes {
		if err := s.store.Set(ctx, k, v); err != nil {
			return domain.Settings{}, err
		}
	}
	return s.getLocked(ctx)
}

// Theme reads the stored theme. Dark mode defaults to on.
func (s *Service) Theme(ctx context.Context) (domain.Theme, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.themeLocked(ctx)
}

func (s *Service) themeLocked(ctx context.Context) (domain.Theme, error) {
	t := domain.Theme{Color: domain.ThemeDefault, DarkMode: true, CustomColor: domain.DefaultCustomColor}
	raw, err := s.read(ctx, storage.KeyThemeColor, storage.KeyDarkMode, storage.KeyCustomColor)
	if err != nil {
		return t, err
	}
	if v, ok := raw[storage.KeyThemeColor]; ok && v != "" {
		t.Color = domain.ThemeColor(v)
	}
	if v, ok := raw[storage.KeyDarkMode]; ok {
		t.DarkMode = v == "true"
	}
	if v, ok := raw[storage.KeyCustomColor]; ok && v != "" {
		t.CustomColor = v
	}
	t.Palette = domain.PaletteFor(t.Color, t.CustomColor)
	return t, nil
}

// SetTheme stores color and, when dark is non-nil, the dark mode flag.
func (s *Service) SetTheme(ctx context.Context, color domain.ThemeColor, dark *bool) (domain.Theme, error) {
	if color != "" && !color.Valid() {
		return domain.Theme{}, fmt.Errorf("unknown theme %q: %w", color, storage.ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if color != "" {
		if err := s.store.Set(ctx, storage.KeyThemeColor, string(color)); err != nil {
			return domain.Theme{}, err
		}
	}
	if dark != nil {
		if err := s.store.Set(ctx, storage.KeyDarkMode, strconv.FormatBool(*dark)); err != nil {
			return domain.Theme{}, err
		}
	}
	return s.themeLocked(ctx)
}

// SetCustomColor stores hex and switches the theme to custom.
func (s *Service) SetCustomColor(ctx context.Context, hex string) (domain.Theme, error) {
	if !domain.ValidHexColor(hex) {
		return domain.Theme{}, fmt.Errorf("color %q must look like #rrggbb: %w", hex, storage.ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Set(ctx, storage.KeyCustomColor, hex); err != nil {
		return domain.Theme{}, err
	}
	if err := s.store.Set(ctx, storage.KeyThemeColor, string(domain.ThemeCustom)); err != nil {
		return domain.Theme{}, err
	}
	return s.themeLocked(ctx)
}

// ExportBackup renders the backup file for username.
func (s *Service) ExportBackup(ctx context.Context, username string, now time.Time) (string, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, err := s.getLocked(ctx)
	if err != nil {
		return "", nil, err
	}
	theme, err := s.themeLocked(ctx)
	if err != nil {
		return "", nil, err
	}
	b := domain.Backup{
		Username: username,
		Settings: map[string]any{
			storage.KeyThemeColor:    string(theme.Color),
			storage.KeyFontSize:      set.FontSize,
			storage.KeyNotifications: set.Notifications,
			storage.KeySoundEnabled:  set.SoundEnabled,
			storage.KeyAutoSave:      set.AutoSave,
			storage.KeyLanguage:      set.Language,
		},
	}
	conv, err := s.store.Get(ctx, storage.ConversationsKey(username))
	switch {
	case err == nil:
		b.Conversations = &conv
	case !errors.Is(err, storage.ErrNotFound):
		return "", nil, err
	}
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return "", nil, err
	}
	name := fmt.Sprintf("fluxmare-backup-%s-%s.json", username, now.UTC().Format("2006-01-02"))
	return name, data, nil
}

// ImportBackup writes a backup file back for username: the conversation blob
// verbatim and each known setting as its string form. Unknown setting keys
// are skipped.
func (s *Service) ImportBackup(ctx context.Context, username string, data []byte) error {
	var b domain.Backup
	if err := json.Unmarshal(data, &b); err != nil {
		return fmt.Errorf("backup file: %w: %v", storage.ErrValidation, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.Conversations != nil && *b.Conversations != "" {
		if err := s.store.Set(ctx, storage.ConversationsKey(username), *b.Conversations); err != nil {
			return err
		}
	}
	for k, v := range b.Settings {
		if !importableKeys[k] {
			s.logger.WarnContext(ctx, "backup setting ignored", "key", k)
			continue
		}
		if err := s.store.Set(ctx, k, stringify(v)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) read(ctx context.Context, keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		v, err := s.store.Get(ctx, k)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		return "null"
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
