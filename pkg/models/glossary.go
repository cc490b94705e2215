package models

import (
	"time"

	"github.com/google/uuid"
)

// Language is an ISO 639-3 language. Spellings only ever link to translations of the same language.
// Stored in languages table.
type Language struct {
	ID                    string    `json:"id"` // three-letter code, e.g. "eng"
	InternalName          string    `json:"internal_name"`
	BackwardCompatibility *string   `json:"backward_compatibility,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// Glossary is a controlled-vocabulary entry. Its spellings are the per-language tokens
// searched for in item translations.
// Stored in glossaries table.
type Glossary struct {
	ID                    uuid.UUID `json:"id"`
	InternalName          string    `json:"internal_name"`
	BackwardCompatibility *string   `json:"backward_compatibility,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// GlossaryTranslation is the definition of a glossary entry in one language.
// An entry has at most one per language.
// Stored in glossary_translations table.
type GlossaryTranslation struct {
	ID                    uuid.UUID `json:"id"`
	GlossaryID            uuid.UUID `json:"glossary_id"`
	LanguageID            string    `json:"language_id"`
	Definition            string    `json:"definition"`
	BackwardCompatibility *string   `json:"backward_compatibility,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// GlossarySpelling is one literal token of a glossary entry in one language.
// Stored in glossary_spellings table.
type GlossarySpelling struct {
	ID         uuid.UUID `json:"id"`
	GlossaryID uuid.UUID `json:"glossary_id"`
	LanguageID string    `json:"language_id"`
	Spelling   string    `json:"spelling"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// MatchAffected reports whether replacing s with next can change which translations it links to.
func (s *GlossarySpelling) MatchAffected(next *GlossarySpelling) bool {
	return s.Spelling != next.Spelling || s.LanguageID != next.LanguageID
}

// SpellingLink is one row of item_translation_spelling.
type SpellingLink struct {
	ItemTranslationID uuid.UUID `json:"item_translation_id"`
	SpellingID        uuid.UUID `json:"spelling_id"`
}
