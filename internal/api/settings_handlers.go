package api

import (
	"fmt"
	"io"
	"net/http"

	"fluxmare/internal/audit"
	"fluxmare/internal/auth"
	"fluxmare/internal/domain"
)

// GET /api/v1/settings
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	set, err := s.settings.Get(r.Context())
	if err != nil {
		s.writeStoreErr(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

// PATCH /api/v1/settings
func (s *Server) handlePatchSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var patch domain.SettingsPatch
	if err := decodeJSON(r, &patch); err != nil {
		s.writeErr(ctx, w, http.StatusBadRequest, "invalid json", "")
		return
	}
	set, err := s.settings.Update(ctx, patch)
	if err != nil {
		s.writeStoreErr(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

// GET /api/v1/settings/theme
func (s *Server) handleGetTheme(w http.ResponseWriter, r *http.Request) {
	t, err := s.settings.Theme(r.Context())
	if err != nil {
		s.writeStoreErr(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// handlePutTheme sets the theme color and dark mode. A customColor in the
// body switches the theme to custom with that color.
// PUT /api/v1/settings/theme
func (s *Server) handlePutTheme(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var input struct {
		Color       domain.ThemeColor `json:"themeColor"`
		DarkMode    *bool             `json:"isDarkMode"`
		CustomColor string            `json:"customColor"`
	}
	if err := decodeJSON(r, &input); err != nil {
		s.writeErr(ctx, w, http.StatusBadRequest, "invalid json", "")
		return
	}

	if input.CustomColor != "" {
		if _, err := s.settings.SetCustomColor(ctx, input.CustomColor); err != nil {
			s.writeStoreErr(ctx, w, err)
			return
		}
		input.Color = ""
	}
	t, err := s.settings.SetTheme(ctx, input.Color, input.DarkMode)
	if err != nil {
		s.writeStoreErr(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// GET /api/v1/settings/backup
func (s *Server) handleExportBackup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ident, _ := auth.IdentityFromContext(ctx)
	name, data, err := s.settings.ExportBackup(ctx, ident.Username, s.now())
	if err != nil {
		s.writeStoreErr(ctx, w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handleImportBackup restores a backup file for the signed-in user. The
// cached conversation store is dropped so the next request reloads it.
// POST /api/v1/settings/backup
func (s *Server) handleImportBackup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ident, _ := auth.IdentityFromContext(ctx)

	data, err := io.ReadAll(io.LimitReader(r.Body, maxBackupBytes))
	if err != nil {
		s.writeErr(ctx, w, http.StatusBadRequest, "unreadable body", err.Error())
		return
	}
	if err := s.settings.ImportBackup(ctx, ident.Username, data); err != nil {
		s.writeStoreErr(ctx, w, err)
		return
	}
	s.chats.Forget(ident.Username)
	s.logAudit(ctx, audit.ActionUpdate, audit.ResourceConversation, ident.Username, http.StatusOK)

	sess, ok := s.chatSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"imported":      true,
		"conversations": len(sess.Conversations()),
	})
}
