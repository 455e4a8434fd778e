package chat

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"fluxmare/internal/domain"
	"fluxmare/internal/observability"
	"fluxmare/internal/storage"
	"fluxmare/internal/validation"
)

// InputHistory keeps the most recent accepted feature submissions.
type InputHistory struct {
	store  storage.KeyValueStore
	logger observability.Logger
	now    func() time.Time
	mu     sync.Mutex
}

func NewInputHistory(store storage.KeyValueStore, logger observability.Logger, now func() time.Time) *InputHistory {
	if logger == nil {
		logger = observability.NewLogger(observability.DefaultConfig())
	}
	if now == nil {
		now = time.Now
	}
	return &InputHistory{store: store, logger: logger.WithComponent("input-history"), now: now}
}

// List returns saved inputs newest first. A malformed blob reads as empty.
func (h *InputHistory) List(ctx context.Context) ([]domain.SavedInput, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loadLocked(ctx)
}

// Record prepends a SavedInput built from raw and truncates the list.
func (h *InputHistory) Record(ctx context.Context, raw domain.RawFeatures, in domain.FeatureInput) (domain.SavedInput, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	list, err := h.loadLocked(ctx)
	if err != nil {
		return domain.SavedInput{}, err
	}
	now := h.now()
	entry := domain.SavedInput{
		ID:        strconv.FormatInt(now.UnixMilli(), 10),
		Timestamp: now.UTC().Format(time.RFC3339Nano),
		Label:     validation.FeatureLabel(in),
		Data:      raw,
	}
	list = append([]domain.SavedInput{entry}, list...)
	if len(list) > domain.MaxSavedInputs {
		list = list[:domain.MaxSavedInputs]
	}
	if err := storage.SetJSON(ctx, h.store, storage.KeySavedInputs, list); err != nil {
		return domain.SavedInput{}, err
	}
	return entry, nil
}

// Get finds a saved input by id.
func (h *InputHistory) Get(ctx context.Context, id string) (domain.SavedInput, error) {
	list, err := h.List(ctx)
	if err != nil {
		return domain.SavedInput{}, err
	}
	for _, s := range list {
		if s.ID == id {
			return s, nil
		}
	}
	return domain.SavedInput{}, storage.ErrNotFound
}

func (h *InputHistory) Clear(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.store.Delete(ctx, storage.KeySavedInputs)
}

func (h *InputHistory) loadLocked(ctx context.Context) ([]domain.SavedInput, error) {
	var list []domain.SavedInput
	err := storage.GetJSON(ctx, h.store, storage.KeySavedInputs, &list)
	switch {
	case err == nil:
		return list, nil
	case errors.Is(err, storage.ErrNotFound):
		return []domain.SavedInput{}, nil
	case errors.Is(err, storage.ErrDecode):
		h.logger.WarnContext(ctx, "saved inputs unreadable, treating as empty", "error", err)
		return []domain.SavedInput{}, nil
	default:
		return nil, err
	}
}
