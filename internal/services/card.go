package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kardai/apiserver/internal/generation"
	"github.com/kardai/apiserver/types"
)

const (
	MetaTextSource         = "text_source"
	MetaImageSource        = "image_source"
	MetaImageObjectKey     = "image_object_key"
	MetaImageArchiveFailed = "image_archive_error"

	SourceProvider = "provider"
	SourceFallback = "fallback"
	SourceNone     = "none"

	EventCardCreated = "card.created"

	// persistTimeout bounds the insert and the event publish, which run
	// detached from the request deadline once generation has finished.
	persistTimeout = 5 * time.Second
)

// CardRepository defines persistence operations for cards.
type CardRepository interface {
	Create(ctx context.Context, card types.Card) (types.Card, error)
	ListByOwner(ctx context.Context, ownerID int) ([]types.Card, error)
	GetForOwner(ctx context.Context, ownerID, cardID int) (types.Card, error)
}

// Generator produces card text and illustrations.
type Generator interface {
	GenerateText(ctx context.Context, occasion, style, tone, prompt string) generation.TextResult
	GenerateImage(ctx context.Context, occasion, style, prompt string) generation.ImageResult
}

// ImageArchiver copies a generated image into durable storage.
type ImageArchiver interface {
	Archive(ctx context.Context, userID int, sourceURL string) (string, error)
}

// EventPublisher emits domain events.
type EventPublisher interface {
	PublishJSON(ctx context.Context, eventType string, payload any) (string, error)
}

// CardCreatedEvent is published after a card is stored.
type CardCreatedEvent struct {
	ID          string    `json:"id"`
	CardID      int       `json:"card_id"`
	UserID      int       `json:"user_id"`
	Occasion    string    `json:"occasion"`
	TextSource  string    `json:"text_source"`
	ImageSource string    `json:"image_source"`
	CreatedAt   time.Time `json:"created_at"`
}

// CardService orchestrates generation and persistence of cards.
type CardService struct {
	repo      CardRepository
	generator Generator
	archiver  ImageArchiver
	publisher EventPublisher
	logger    *slog.Logger
}

// CardServiceOption configures optional collaborators.
type CardServiceOption func(*CardService)

// WithArchiver enables archival of generated images.
func WithArchiver(archiver ImageArchiver) CardServiceOption {
	return func(s *CardService) { s.archiver = archiver }
}

// WithPublisher enables card.created events.
func WithPublisher(publisher EventPublisher) CardServiceOption {
	return func(s *CardService) { s.publisher = publisher }
}

func NewCardService(repo CardRepository, generator Generator, logger *slog.Logger, opts ...CardServiceOption) *CardService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &CardService{
		repo:      repo,
		generator: generator,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create generates content for the request and stores the card. Generation,
// archival and publishing failures degrade the card but never fail the call.
func (s *CardService) Create(ctx context.Context, owner types.User, req types.CardRequest) (types.Card, error) {
	style := effective(req.Style, generation.DefaultStyle)
	tone := effective(req.Tone, generation.DefaultTone)
	metadata := map[string]any{}

	text := s.generator.GenerateText(ctx, req.Occasion, style, tone, req.Prompt)
	metadata[MetaTextSource] = SourceProvider
	if text.Degraded() {
		metadata[MetaTextSource] = SourceFallback
		s.logger.WarnContext(ctx, "text generation degraded", "user_id", owner.ID, "error", text.Err)
	}

	image := s.generator.GenerateImage(ctx, req.Occasion, style, req.Prompt)
	var imageURL *string
	metadata[MetaImageSource] = SourceNone
	if image.Degraded() {
		s.logger.WarnContext(ctx, "image generation degraded", "user_id", owner.ID, "error", image.Err)
	} else {
		imageURL = &image.URL
		metadata[MetaImageSource] = SourceProvider
		s.archive(ctx, owner.ID, image.URL, metadata)
	}

	// Generation may have used up the request deadline; the card is stored
	// regardless.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	card, err := s.repo.Create(persistCtx, types.Card{
		UserID:          owner.ID,
		Title:           req.Title,
		Occasion:        req.Occasion,
		Style:           &style,
		Tone:            &tone,
		Prompt:          req.Prompt,
		PersonalMessage: req.PersonalMessage,
		GeneratedText:   &text.Text,
		ImageURL:        imageURL,
		RecipientEmail:  req.RecipientEmail,
		Metadata:        metadata,
	})
	if err != nil {
		return types.Card{}, err
	}

	s.publishCreated(persistCtx, card)
	return card, nil
}

func (s *CardService) List(ctx context.Context, ownerID int) ([]types.Card, error) {
	return s.repo.ListByOwner(ctx, ownerID)
}

func (s *CardService) Get(ctx context.Context, ownerID, cardID int) (types.Card, error) {
	return s.repo.GetForOwner(ctx, ownerID, cardID)
}

func (s *CardService) archive(ctx context.Context, userID int, url string, metadata map[string]any) {
	if s.archiver == nil {
		return
	}
	key, err := s.archiver.Archive(ctx, userID, url)
	if err != nil {
		metadata[MetaImageArchiveFailed] = true
		s.logger.WarnContext(ctx, "image archival failed", "user_id", userID, "error", err)
		return
	}
	metadata[MetaImageObjectKey] = key
}

func (s *CardService) publishCreated(ctx context.Context, card types.Card) {
	if s.publisher == nil {
		return
	}
	event := CardCreatedEvent{
		ID:          uuid.NewString(),
		CardID:      card.ID,
		UserID:      card.UserID,
		Occasion:    card.Occasion,
		TextSource:  metaString(card.Metadata, MetaTextSource),
		ImageSource: metaString(card.Metadata, MetaImageSource),
		CreatedAt:   card.CreatedAt,
	}
	if _, err := s.publisher.PublishJSON(ctx, EventCardCreated, event); err != nil {
		s.logger.WarnContext(ctx, "card event not published", "card_id", card.ID, "error", err)
	}
}

func effective(value *string, fallback string) string {
	if value == nil || strings.TrimSpace(*value) == "" {
		return fallback
	}
	return *value
}

func metaString(metadata map[string]any, key string) string {
	value, _ := metadata[key].(string)
	return value
}
