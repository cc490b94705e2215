package models

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/k3a/html2text"
)

// Item is a collection object. Its descriptive text lives in per-language translations.
// Stored in items table.
type Item struct {
	ID                    uuid.UUID `json:"id"`
	InternalName          string    `json:"internal_name"`
	BackwardCompatibility *string   `json:"backward_compatibility,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// ItemTranslation is the text of an item in one language.
// Stored in item_translations table.
type ItemTranslation struct {
	ID                    uuid.UUID       `json:"id"`
	ItemID                uuid.UUID       `json:"item_id"`
	LanguageID            string          `json:"language_id"`
	Name                  string          `json:"name"`
	AlternateName         *string         `json:"alternate_name,omitempty"`
	Description           *string         `json:"description,omitempty"`
	Type                  *string         `json:"type,omitempty"`
	Holder                *string         `json:"holder,omitempty"`
	Owner                 *string         `json:"owner,omitempty"`
	InitialOwner          *string         `json:"initial_owner,omitempty"`
	Dates                 *string         `json:"dates,omitempty"`
	Location              *string         `json:"location,omitempty"`
	Dimensions            *string         `json:"dimensions,omitempty"`
	PlaceOfProduction     *string         `json:"place_of_production,omitempty"`
	MethodForDatation     *string         `json:"method_for_datation,omitempty"`
	MethodForProvenance   *string         `json:"method_for_provenance,omitempty"`
	Obtention             *string         `json:"obtention,omitempty"`
	Bibliography          *string         `json:"bibliography,omitempty"`
	BackwardCompatibility *string         `json:"backward_compatibility,omitempty"`
	Extra                 json.RawMessage `json:"extra,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// TranslationTextColumns lists the item_translations columns searched for spellings,
// in the order their values are joined into the matchable text.
var TranslationTextColumns = []string{
	"name", "alternate_name", "description", "type", "holder", "owner", "initial_owner",
	"dates", "location", "dimensions", "place_of_production", "method_for_datation",
	"method_for_provenance", "obtention", "bibliography",
}

// TextFields returns pointers to the searched fields, aligned with TranslationTextColumns.
// Repositories scan into them directly.
func (t *ItemTranslation) TextFields() []*string {
	return []*string{
		&t.Name, t.AlternateName, t.Description, t.Type, t.Holder, t.Owner, t.InitialOwner,
		t.Dates, t.Location, t.Dimensions, t.PlaceOfProduction, t.MethodForDatation,
		t.MethodForProvenance, t.Obtention, t.Bibliography,
	}
}

// ScanTargets returns addresses for scanning the searched fields, aligned with TranslationTextColumns.
func (t *ItemTranslation) ScanTargets() []any {
	return []any{
		&t.Name, &t.AlternateName, &t.Description, &t.Type, &t.Holder, &t.Owner, &t.InitialOwner,
		&t.Dates, &t.Location, &t.Dimensions, &t.PlaceOfProduction, &t.MethodForDatation,
		&t.MethodForProvenance, &t.Obtention, &t.Bibliography,
	}
}

var markupPattern = regexp.MustCompile(`<[a-zA-Z/!][^>]*>|&(#\d+|#x[0-9a-fA-F]+|[a-zA-Z]+);`)

// MatchableText joins the non-empty text fields with newlines.
// Fields containing markup are reduced to their visible text first.
func (t *ItemTranslation) MatchableText() string {
	parts := make([]string, 0, len(TranslationTextColumns))
	for _, field := range t.TextFields() {
		if field == nil {
			continue
		}
		value := *field
		if markupPattern.MatchString(value) {
			value = html2text.HTML2Text(value)
		}
		if strings.TrimSpace(value) == "" {
			continue
		}
		parts = append(parts, value)
	}
	return strings.Join(parts, "\n")
}

// MatchAffected reports whether replacing t with next can change which spellings it links to.
func (t *ItemTranslation) MatchAffected(next *ItemTranslation) bool {
	return t.LanguageID != next.LanguageID || t.MatchableText() != next.MatchableText()
}
