package api

import (
	"fmt"
	"net/http"

	"fluxmare/internal/auth"
	"fluxmare/internal/chat"
	"fluxmare/internal/domain"
	"fluxmare/internal/validation"
)

// chatSession opens the conversation store of the signed-in user. It writes
// the error response itself and reports false on failure.
func (s *Server) chatSession(w http.ResponseWriter, r *http.Request) (*chat.Session, bool) {
	ident, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		s.writeErr(r.Context(), w, http.StatusUnauthorized, "unauthorized", "")
		return nil, false
	}
	sess, err := s.chats.Open(r.Context(), ident.Username)
	if err != nil {
		s.writeStoreErr(r.Context(), w, err)
		return nil, false
	}
	return sess, true
}

// handleEstimate validates a feature form and returns the dashboard without
// touching any conversation. An accepted form is added to the saved inputs;
// its id is returned in X-Saved-Input-ID.
// POST /api/v1/estimate
func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var raw domain.RawFeatures
	if err := decodeJSON(r, &raw); err != nil {
		s.writeErr(ctx, w, http.StatusBadRequest, "invalid json", "")
		return
	}
	in, err := validation.ValidateFeatures(raw)
	if err != nil {
		s.metrics.RecordValidationFailure(chat.FailureReason(err))
		s.writeStoreErr(ctx, w, err)
		return
	}
	if s.history != nil {
		if saved, err := s.history.Record(ctx, raw, in); err != nil {
			s.logger.WarnContext(ctx, "saved input not recorded", "error", err)
		} else {
			w.Header().Set("X-Saved-Input-ID", saved.ID)
		}
	}
	d := s.estimator.Estimate(in)
	s.metrics.RecordEstimation()
	writeJSON(w, http.StatusOK, d)
}

type conversationsResponse struct {
	ActiveID      string                `json:"activeId"`
	Conversations []domain.Conversation `json:"conversations"`
}

// GET /api/v1/conversations
func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.chatSession(w, r)
	if !ok {
		return
	}
	convs := sess.Conversations()
	if q := r.URL.Query().Get("favorite"); q == "true" {
		favs := convs[:0]
		for _, c := range convs {
			if c.Favorite {
				favs = append(favs, c)
			}
		}
		convs = favs
	}
	writeJSON(w, http.StatusOK, conversationsResponse{ActiveID: sess.ActiveID(), Conversations: convs})
}

// POST /api/v1/conversations
func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.chatSession(w, r)
	if !ok {
		return
	}
	conv, err := sess.NewConversation(r.Context())
	if err != nil {
		s.writeStoreErr(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

// DELETE /api/v1/conversations
func (s *Server) handleClearConversations(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.chatSession(w, r)
	if !ok {
		return
	}
	if err := sess.ClearAll(r.Context()); err != nil {
		s.writeStoreErr(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/conversations/{id}
func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.chatSession(w, r)
	if !ok {
		return
	}
	conv, err := sess.Conversation(r.PathValue("id"))
	if err != nil {
		s.writeStoreErr(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// DELETE /api/v1/conversations/{id}
func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.chatSession(w, r)
	if !ok {
		return
	}
	if err := sess.DeleteConversation(r.Context(), r.PathValue("id")); err != nil {
		s.writeStoreErr(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/v1/conversations/{id}/favorite
func (s *Server) handleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.chatSession(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	fav, err := sess.ToggleFavorite(r.Context(), id)
	if err != nil {
		s.writeStoreErr(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "isFavorite": fav})
}

// POST /api/v1/conversations/{id}/activate
func (s *Server) handleActivateConversation(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.chatSession(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	if err := sess.SetActive(id); err != nil {
		s.writeStoreErr(r.Context(), w, err)
		return
	}
	conv, err := sess.Conversation(id)
	if err != nil {
		s.writeStoreErr(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// GET /api/v1/conversations/{id}/export
func (s *Server) handleExportConversation(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.chatSession(w, r)
	if !ok {
		return
	}
	name, text, err := sess.ExportText(r.PathValue("id"))
	if err != nil {
		s.writeStoreErr(r.Context(), w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(text))
}

type submitResponse struct {
	chat.Submission
	ReplyAfterMS int64 `json:"replyAfterMs"`
}

// handleSubmitMessage appends the user turn and schedules the bot reply.
// The reply lands in the conversation later, so the response is 202.
// POST /api/v1/messages
func (s *Server) handleSubmitMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req domain.SubmitRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeErr(ctx, w, http.StatusBadRequest, "invalid json", "")
		return
	}
	sess, ok := s.chatSession(w, r)
	if !ok {
		return
	}
	sub, err := s.responder.Submit(ctx, sess, req)
	if err != nil {
		s.writeStoreErr(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, submitResponse{Submission: sub, ReplyAfterMS: sub.ReplyAfter.Milliseconds()})
}

// GET /api/v1/dashboards
func (s *Server) handleListDashboards(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.chatSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"dashboards": sess.ListDashboards()})
}

// GET /api/v1/inputs
func (s *Server) handleListInputs(w http.ResponseWriter, r *http.Request) {
	inputs, err := s.history.List(r.Context())
	if err != nil {
		s.writeStoreErr(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"inputs": inputs})
}

// GET /api/v1/inputs/{id}
func (s *Server) handleGetInput(w http.ResponseWriter, r *http.Request) {
	in, err := s.history.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStoreErr(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, in)
}

// DELETE /api/v1/inputs
func (s *Server) handleClearInputs(w http.ResponseWriter, r *http.Request) {
	if err := s.history.Clear(r.Context()); err != nil {
		s.writeStoreErr(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/suggestions
func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": chat.Suggestions})
}
