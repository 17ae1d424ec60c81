package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/kardai/apiserver/internal/services"
	"github.com/kardai/apiserver/internal/store"
	"github.com/kardai/apiserver/types"
)

const maxCardBodyBytes = 1 << 20

// CardHandler provides HTTP handlers for cards. Every route requires an
// authenticated user.
type CardHandler struct {
	cards    *services.CardService
	validate *validator.Validate
	logger   *slog.Logger
}

func NewCardHandler(cards *services.CardService, logger *slog.Logger) *CardHandler {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &CardHandler{
		cards:    cards,
		validate: validate,
		logger:   logger,
	}
}

// CardRouter registers card routes on the given router.
func CardRouter(
	r chi.Router,
	cards *services.CardService,
	logger *slog.Logger,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewCardHandler(cards, logger)

	r.Use(authMiddleware)
	r.Post("/", handler.CreateCard)
	r.Get("/", handler.ListCards)
	r.Get("/{cardID}", handler.GetCard)
}

// CreateCard generates and stores a card for the current user.
func (h *CardHandler) CreateCard(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "Could not validate credentials")
		return
	}

	var req types.CardRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCardBodyBytes))
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, validationMessage(err))
		return
	}

	card, err := h.cards.Create(r.Context(), user, req)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "create card", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create card")
		return
	}

	writeJSON(w, http.StatusOK, card)
}

// ListCards returns every card of the current user.
func (h *CardHandler) ListCards(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "Could not validate credentials")
		return
	}

	cards, err := h.cards.List(r.Context(), user.ID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list cards", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list cards")
		return
	}

	writeJSON(w, http.StatusOK, cards)
}

// GetCard returns one card of the current user. Cards of other users are
// reported as not found.
func (h *CardHandler) GetCard(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "Could not validate credentials")
		return
	}

	cardID, err := strconv.Atoi(chi.URLParam(r, "cardID"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid card id")
		return
	}

	card, err := h.cards.Get(r.Context(), user.ID, cardID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Card not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "get card", "user_id", user.ID, "card_id", cardID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load card")
		return
	}

	writeJSON(w, http.StatusOK, card)
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request"
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field()+": "+fe.Tag())
	}
	return "invalid fields: " + strings.Join(fields, ", ")
}
