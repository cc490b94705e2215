//go:build integration

package repositories

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/inventory-app/glossary-sync/pkg/models"
	"github.com/inventory-app/glossary-sync/pkg/testhelpers"
)

// fixture seeds rows through the real repositories on an emptied database.
type fixture struct {
	t   *testing.T
	db  *testhelpers.TestDB
	ctx context.Context

	glossaries   GlossaryRepository
	spellings    SpellingRepository
	items        ItemRepository
	translations ItemTranslationRepository
	links        SpellingLinkRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testhelpers.GetTestDB(t)
	db.Reset(t)

	f := &fixture{
		t:            t,
		db:           db,
		ctx:          db.ScopedContext(t),
		glossaries:   NewGlossaryRepository(),
		spellings:    NewSpellingRepository(),
		items:        NewItemRepository(),
		translations: NewItemTranslationRepository(),
		links:        NewSpellingLinkRepository(),
	}

	languages := NewLanguageRepository()
	for _, l := range []*models.Language{{ID: "eng", InternalName: "English"}, {ID: "fra", InternalName: "French"}} {
		require.NoError(t, languages.Upsert(f.ctx, l))
	}
	return f
}

func (f *fixture) glossary(name string) *models.Glossary {
	f.t.Helper()
	g := &models.Glossary{InternalName: name}
	require.NoError(f.t, f.glossaries.Create(f.ctx, g))
	return g
}

func (f *fixture) spelling(glossaryID uuid.UUID, languageID, text string) *models.GlossarySpelling {
	f.t.Helper()
	s := &models.GlossarySpelling{GlossaryID: glossaryID, LanguageID: languageID, Spelling: text}
	require.NoError(f.t, f.spellings.Create(f.ctx, s))
	return s
}

func (f *fixture) item(name string) *models.Item {
	f.t.Helper()
	item := &models.Item{InternalName: name}
	require.NoError(f.t, f.items.Create(f.ctx, item))
	return item
}

func (f *fixture) translation(itemID uuid.UUID, languageID, name string, description *string) *models.ItemTranslation {
	f.t.Helper()
	tr := &models.ItemTranslation{ItemID: itemID, LanguageID: languageID, Name: name, Description: description}
	require.NoError(f.t, f.translations.Create(f.ctx, tr))
	return tr
}

func (f *fixture) count(table string) int {
	f.t.Helper()
	var n int
	require.NoError(f.t, f.db.DB.QueryRow(context.Background(), "SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func strPtr(s string) *string { return &s }
