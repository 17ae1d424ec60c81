package types

import "time"

// Card is a persisted greeting card request together with the content
// generated for it. Every card belongs to exactly one user.
type Card struct {
	// ID is the unique identifier of the card.
	ID int `json:"id" db:"id"`

	// UserID references the owning user.
	UserID int `json:"user_id" db:"user_id"`

	// Title is the user-facing name of the card.
	Title string `json:"title" db:"title"`

	// Occasion is what the card is for (birthday, anniversary, ...).
	Occasion string `json:"occasion" db:"occasion"`

	// Style is the visual/writing style the content was generated with.
	Style *string `json:"style" db:"style"`

	// Tone is the voice the text was generated with.
	Tone *string `json:"tone" db:"tone"`

	// Prompt is the free-form request text supplied by the user.
	Prompt string `json:"prompt" db:"prompt"`

	// PersonalMessage is an optional note written by the user.
	PersonalMessage *string `json:"personal_message" db:"personal_message"`

	// GeneratedText is the card text. It holds fallback text when the
	// provider could not be reached.
	GeneratedText *string `json:"generated_text" db:"generated_text"`

	// ImageURL references the generated illustration, or nil when image
	// generation failed.
	ImageURL *string `json:"image_url" db:"image_url"`

	// RecipientEmail is where the card is meant to be sent.
	RecipientEmail *string `json:"recipient_email" db:"recipient_email"`

	// Metadata holds free-form attributes such as the generation outcome.
	Metadata map[string]any `json:"metadata" db:"metadata"`

	// CreatedAt is set by the database at insert time.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// SentAt stays nil until the card is dispatched.
	SentAt *time.Time `json:"sent_at" db:"sent_at"`
}

// CardRequest is the payload used to create a card.
type CardRequest struct {
	Title           string  `json:"title" validate:"required"`
	Occasion        string  `json:"occasion" validate:"required"`
	Style           *string `json:"style"`
	Tone            *string `json:"tone"`
	Prompt          string  `json:"prompt" validate:"required"`
	PersonalMessage *string `json:"personal_message"`
	RecipientEmail  *string `json:"recipient_email" validate:"omitempty,email"`
}
