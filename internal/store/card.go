package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kardai/apiserver/types"
)

const cardColumns = `
	id, user_id, title, occasion, style, tone, prompt, personal_message,
	generated_text, image_url, recipient_email, metadata, created_at, sent_at`

// CardRepository handles persistence for cards. Every read is scoped to an owner.
type CardRepository struct {
	db *sql.DB
}

func NewCardRepository(db *sql.DB) *CardRepository {
	return &CardRepository{db: db}
}

// Create inserts a card. created_at is assigned by the database and sent_at
// is left NULL.
func (r *CardRepository) Create(ctx context.Context, card types.Card) (types.Card, error) {
	if card.Metadata == nil {
		card.Metadata = map[string]any{}
	}
	metadataJSON, err := json.Marshal(card.Metadata)
	if err != nil {
		return types.Card{}, fmt.Errorf("encode card metadata: %w", err)
	}

	const query = `
		INSERT INTO cards (
			user_id, title, occasion, style, tone, prompt, personal_message,
			generated_text, image_url, recipient_email, metadata
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		card.UserID,
		card.Title,
		card.Occasion,
		card.Style,
		card.Tone,
		card.Prompt,
		card.PersonalMessage,
		card.GeneratedText,
		card.ImageURL,
		card.RecipientEmail,
		string(metadataJSON),
	).Scan(&card.ID, &card.CreatedAt); err != nil {
		return types.Card{}, fmt.Errorf("insert card: %w", err)
	}

	card.SentAt = nil
	return card, nil
}

// ListByOwner returns the owner's cards ordered by id.
func (r *CardRepository) ListByOwner(ctx context.Context, ownerID int) ([]types.Card, error) {
	query := `SELECT` + cardColumns + `
		FROM cards
		WHERE user_id = $1
		ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	defer rows.Close()

	cards := make([]types.Card, 0)
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	return cards, nil
}

// GetForOwner returns the card only when it belongs to ownerID. A card owned
// by someone else is reported as ErrNotFound.
func (r *CardRepository) GetForOwner(ctx context.Context, ownerID, cardID int) (types.Card, error) {
	query := `SELECT` + cardColumns + `
		FROM cards
		WHERE id = $1 AND user_id = $2`
	card, err := scanCard(r.db.QueryRowContext(ctx, query, cardID, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Card{}, ErrNotFound
		}
		return types.Card{}, err
	}
	return card, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner) (types.Card, error) {
	var card types.Card
	var metadataJSON []byte
	if err := row.Scan(
		&card.ID,
		&card.UserID,
		&card.Title,
		&card.Occasion,
		&card.Style,
		&card.Tone,
		&card.Prompt,
		&card.PersonalMessage,
		&card.GeneratedText,
		&card.ImageURL,
		&card.RecipientEmail,
		&metadataJSON,
		&card.CreatedAt,
		&card.SentAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Card{}, err
		}
		return types.Card{}, fmt.Errorf("scan card: %w", err)
	}

	card.Metadata = map[string]any{}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &card.Metadata); err != nil {
			return types.Card{}, fmt.Errorf("decode card metadata: %w", err)
		}
	}
	if card.Metadata == nil {
		card.Metadata = map[string]any{}
	}
	return card, nil
}
