package services

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/inventory-app/glossary-sync/pkg/apperrors"
	"github.com/inventory-app/glossary-sync/pkg/models"
	"github.com/inventory-app/glossary-sync/pkg/repositories"
	"github.com/inventory-app/glossary-sync/pkg/services/workqueue"
)

// ============================================================================
// In-memory store shared by the repository mocks
// ============================================================================

type synonymPair struct{ a, b uuid.UUID }

type memStore struct {
	mu           sync.Mutex
	glossaries   map[uuid.UUID]*models.Glossary
	synonyms     map[synonymPair]bool
	definitions  map[uuid.UUID]*models.GlossaryTranslation
	spellings    map[uuid.UUID]*models.GlossarySpelling
	items        map[uuid.UUID]*models.Item
	translations map[uuid.UUID]*models.ItemTranslation
	links        map[models.SpellingLink]bool

	locks []string
	// failures maps an operation name to the error it returns.
	failures map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		glossaries:   map[uuid.UUID]*models.Glossary{},
		synonyms:     map[synonymPair]bool{},
		definitions:  map[uuid.UUID]*models.GlossaryTranslation{},
		spellings:    map[uuid.UUID]*models.GlossarySpelling{},
		items:        map[uuid.UUID]*models.Item{},
		translations: map[uuid.UUID]*models.ItemTranslation{},
		links:        map[models.SpellingLink]bool{},
		failures:     map[string]error{},
	}
}

func (s *memStore) fail(op string) error {
	return s.failures[op]
}

// rowLock records a deletion row lock, failing with ErrNotFound when the row is absent.
func (s *memStore) rowLock(name string, id uuid.UUID, exists bool) error {
	if err := s.fail(name + ".Lock"); err != nil {
		return err
	}
	if !exists {
		return apperrors.ErrNotFound
	}
	s.locks = append(s.locks, name+":"+id.String())
	return nil
}

type memSnapshot struct {
	glossaries   map[uuid.UUID]*models.Glossary
	synonyms     map[synonymPair]bool
	definitions  map[uuid.UUID]*models.GlossaryTranslation
	spellings    map[uuid.UUID]*models.GlossarySpelling
	items        map[uuid.UUID]*models.Item
	translations map[uuid.UUID]*models.ItemTranslation
	links        map[models.SpellingLink]bool
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memSnapshot{
		glossaries:   cloneMap(s.glossaries),
		synonyms:     cloneMap(s.synonyms),
		definitions:  cloneMap(s.definitions),
		spellings:    cloneMap(s.spellings),
		items:        cloneMap(s.items),
		translations: cloneMap(s.translations),
		links:        cloneMap(s.links),
	}
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.glossaries = snap.glossaries
	s.synonyms = snap.synonyms
	s.definitions = snap.definitions
	s.spellings = snap.spellings
	s.items = snap.items
	s.translations = snap.translations
	s.links = snap.links
}

func (s *memStore) linkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.links)
}

func (s *memStore) hasLink(translationID, spellingID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.links[models.SpellingLink{ItemTranslationID: translationID, SpellingID: spellingID}]
}

func sortedIDs[V any](m map[uuid.UUID]V) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })
	return ids
}

func after(id, cursor uuid.UUID) bool {
	return bytes.Compare(id[:], cursor[:]) > 0
}

// ============================================================================
// Mock TxRunner: restores the store when fn fails
// ============================================================================

type mockTx struct {
	store *memStore
	calls int
}

func (m *mockTx) WithScope(ctx context.Context) (context.Context, func(), error) {
	m.calls++
	return ctx, func() {}, nil
}

func (m *mockTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls++
	snap := m.store.snapshot()
	err := fn(ctx)
	if err != nil {
		m.store.restore(snap)
	}
	return err
}

// ============================================================================
// Repository mocks
// ============================================================================

type mockGlossaryRepo struct{ s *memStore }

func (m *mockGlossaryRepo) Create(ctx context.Context, g *models.Glossary) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	m.s.glossaries[g.ID] = g
	return nil
}

func (m *mockGlossaryRepo) Update(ctx context.Context, g *models.Glossary) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.glossaries[g.ID]; !ok {
		return apperrors.ErrNotFound
	}
	m.s.glossaries[g.ID] = g
	return nil
}

func (m *mockGlossaryRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Glossary, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	g, ok := m.s.glossaries[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return g, nil
}

func (m *mockGlossaryRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if err := m.s.fail("glossary.Delete"); err != nil {
		return err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.glossaries[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(m.s.glossaries, id)
	return nil
}

func (m *mockGlossaryRepo) LockForDelete(ctx context.Context, id uuid.UUID) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	_, ok := m.s.glossaries[id]
	return m.s.rowLock("glossary", id, ok)
}

func (m *mockGlossaryRepo) AttachSynonym(ctx context.Context, glossaryID, synonymID uuid.UUID) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.glossaries[glossaryID]; !ok {
		return apperrors.ErrNotFound
	}
	if _, ok := m.s.glossaries[synonymID]; !ok {
		return apperrors.ErrNotFound
	}
	m.s.synonyms[synonymPair{glossaryID, synonymID}] = true
	m.s.synonyms[synonymPair{synonymID, glossaryID}] = true
	return nil
}

func (m *mockGlossaryRepo) DetachSynonym(ctx context.Context, glossaryID, synonymID uuid.UUID) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	delete(m.s.synonyms, synonymPair{glossaryID, synonymID})
	delete(m.s.synonyms, synonymPair{synonymID, glossaryID})
	return nil
}

func (m *mockGlossaryRepo) ListSynonyms(ctx context.Context, glossaryID uuid.UUID) ([]*models.Glossary, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []*models.Glossary
	for pair := range m.s.synonyms {
		if pair.a == glossaryID {
			out = append(out, m.s.glossaries[pair.b])
		}
	}
	return out, nil
}

func (m *mockGlossaryRepo) DeleteSynonyms(ctx context.Context, glossaryID uuid.UUID) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var n int64
	for pair := range m.s.synonyms {
		if pair.a == glossaryID || pair.b == glossaryID {
			delete(m.s.synonyms, pair)
			n++
		}
	}
	return n, nil
}

func (m *mockGlossaryRepo) CreateTranslation(ctx context.Context, t *models.GlossaryTranslation) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.glossaries[t.GlossaryID]; !ok {
		return apperrors.ErrNotFound
	}
	for _, existing := range m.s.definitions {
		if existing.GlossaryID == t.GlossaryID && existing.LanguageID == t.LanguageID {
			return apperrors.ErrConflict
		}
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	cp := *t
	m.s.definitions[t.ID] = &cp
	return nil
}

func (m *mockGlossaryRepo) ListTranslations(ctx context.Context, glossaryID uuid.UUID) ([]*models.GlossaryTranslation, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []*models.GlossaryTranslation
	for _, id := range sortedIDs(m.s.definitions) {
		if d := m.s.definitions[id]; d.GlossaryID == glossaryID {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LanguageID < out[j].LanguageID })
	return out, nil
}

func (m *mockGlossaryRepo) DeleteTranslations(ctx context.Context, glossaryID uuid.UUID) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var n int64
	for id, d := range m.s.definitions {
		if d.GlossaryID == glossaryID {
			delete(m.s.definitions, id)
			n++
		}
	}
	return n, nil
}

type mockSpellingRepo struct{ s *memStore }

func (m *mockSpellingRepo) Create(ctx context.Context, sp *models.GlossarySpelling) error {
	if err := m.s.fail("spelling.Create"); err != nil {
		return err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if sp.ID == uuid.Nil {
		sp.ID = uuid.New()
	}
	cp := *sp
	m.s.spellings[sp.ID] = &cp
	return nil
}

func (m *mockSpellingRepo) Update(ctx context.Context, sp *models.GlossarySpelling) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.spellings[sp.ID]; !ok {
		return apperrors.ErrNotFound
	}
	cp := *sp
	m.s.spellings[sp.ID] = &cp
	return nil
}

func (m *mockSpellingRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.GlossarySpelling, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	sp, ok := m.s.spellings[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *sp
	return &cp, nil
}

func (m *mockSpellingRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if err := m.s.fail("spelling.Delete"); err != nil {
		return err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.spellings[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(m.s.spellings, id)
	return nil
}

func (m *mockSpellingRepo) LockForDelete(ctx context.Context, id uuid.UUID) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	_, ok := m.s.spellings[id]
	return m.s.rowLock("spelling", id, ok)
}

func (m *mockSpellingRepo) LockByGlossary(ctx context.Context, glossaryID uuid.UUID) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var n int64
	for _, id := range sortedIDs(m.s.spellings) {
		if m.s.spellings[id].GlossaryID == glossaryID {
			if err := m.s.rowLock("spelling", id, true); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

func (m *mockSpellingRepo) ListByLanguageAfter(ctx context.Context, languageID string, cursor uuid.UUID, limit int) ([]*models.GlossarySpelling, error) {
	if err := m.s.fail("spelling.List"); err != nil {
		return nil, err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []*models.GlossarySpelling
	for _, id := range sortedIDs(m.s.spellings) {
		sp := m.s.spellings[id]
		if sp.LanguageID != languageID || !after(id, cursor) {
			continue
		}
		out = append(out, sp)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *mockSpellingRepo) ListIDsAfter(ctx context.Context, cursor uuid.UUID, limit int) ([]uuid.UUID, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []uuid.UUID
	for _, id := range sortedIDs(m.s.spellings) {
		if !after(id, cursor) {
			continue
		}
		out = append(out, id)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *mockSpellingRepo) DeleteByGlossary(ctx context.Context, glossaryID uuid.UUID) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var n int64
	for id, sp := range m.s.spellings {
		if sp.GlossaryID == glossaryID {
			delete(m.s.spellings, id)
			n++
		}
	}
	return n, nil
}

type mockItemRepo struct{ s *memStore }

func (m *mockItemRepo) Create(ctx context.Context, item *models.Item) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	m.s.items[item.ID] = item
	return nil
}

func (m *mockItemRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	item, ok := m.s.items[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return item, nil
}

func (m *mockItemRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if err := m.s.fail("item.Delete"); err != nil {
		return err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.items[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(m.s.items, id)
	return nil
}

func (m *mockItemRepo) LockForDelete(ctx context.Context, id uuid.UUID) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	_, ok := m.s.items[id]
	return m.s.rowLock("item", id, ok)
}

type mockTranslationRepo struct{ s *memStore }

func cloneTranslation(t *models.ItemTranslation) *models.ItemTranslation {
	cp := *t
	return &cp
}

func (m *mockTranslationRepo) Create(ctx context.Context, t *models.ItemTranslation) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	m.s.translations[t.ID] = cloneTranslation(t)
	return nil
}

func (m *mockTranslationRepo) Update(ctx context.Context, t *models.ItemTranslation) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.translations[t.ID]; !ok {
		return apperrors.ErrNotFound
	}
	m.s.translations[t.ID] = cloneTranslation(t)
	return nil
}

func (m *mockTranslationRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.ItemTranslation, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	t, ok := m.s.translations[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return cloneTranslation(t), nil
}

func (m *mockTranslationRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if err := m.s.fail("translation.Delete"); err != nil {
		return err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.translations[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(m.s.translations, id)
	return nil
}

func (m *mockTranslationRepo) LockForDelete(ctx context.Context, id uuid.UUID) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	_, ok := m.s.translations[id]
	return m.s.rowLock("translation", id, ok)
}

func (m *mockTranslationRepo) LockByItem(ctx context.Context, itemID uuid.UUID) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var n int64
	for _, id := range sortedIDs(m.s.translations) {
		if m.s.translations[id].ItemID == itemID {
			if err := m.s.rowLock("translation", id, true); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

func (m *mockTranslationRepo) ListByLanguageAfter(ctx context.Context, languageID string, cursor uuid.UUID, limit int) ([]*models.ItemTranslation, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []*models.ItemTranslation
	for _, id := range sortedIDs(m.s.translations) {
		t := m.s.translations[id]
		if t.LanguageID != languageID || !after(id, cursor) {
			continue
		}
		out = append(out, cloneTranslation(t))
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *mockTranslationRepo) DeleteByItem(ctx context.Context, itemID uuid.UUID) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var n int64
	for id, t := range m.s.translations {
		if t.ItemID == itemID {
			delete(m.s.translations, id)
			n++
		}
	}
	return n, nil
}

type mockLinkRepo struct{ s *memStore }

func (m *mockLinkRepo) Lock(ctx context.Context, key string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.locks = append(m.s.locks, key)
	return nil
}

func (m *mockLinkRepo) exists(check func() bool) bool {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return check()
}

func (m *mockLinkRepo) replace(owner func(models.SpellingLink) bool, want []models.SpellingLink, exists func(models.SpellingLink) bool) repositories.LinkDelta {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	keep := map[models.SpellingLink]bool{}
	for _, l := range want {
		keep[l] = true
	}
	var delta repositories.LinkDelta
	for l := range m.s.links {
		if owner(l) && !keep[l] {
			delete(m.s.links, l)
			delta.Removed++
		}
	}
	for _, l := range want {
		if !m.s.links[l] && exists(l) {
			m.s.links[l] = true
			delta.Added++
		}
	}
	return delta
}

func (m *mockLinkRepo) ReplaceForTranslation(ctx context.Context, translationID uuid.UUID, spellingIDs []uuid.UUID) (repositories.LinkDelta, error) {
	if err := m.s.fail("links.Replace"); err != nil {
		return repositories.LinkDelta{}, err
	}
	if !m.exists(func() bool { _, ok := m.s.translations[translationID]; return ok }) {
		return repositories.LinkDelta{}, apperrors.ErrNotFound
	}
	want := make([]models.SpellingLink, 0, len(spellingIDs))
	for _, id := range spellingIDs {
		want = append(want, models.SpellingLink{ItemTranslationID: translationID, SpellingID: id})
	}
	return m.replace(
		func(l models.SpellingLink) bool { return l.ItemTranslationID == translationID },
		want,
		func(l models.SpellingLink) bool { _, ok := m.s.spellings[l.SpellingID]; return ok },
	), nil
}

func (m *mockLinkRepo) ReplaceForSpelling(ctx context.Context, spellingID uuid.UUID, translationIDs []uuid.UUID) (repositories.LinkDelta, error) {
	if err := m.s.fail("links.Replace"); err != nil {
		return repositories.LinkDelta{}, err
	}
	if !m.exists(func() bool { _, ok := m.s.spellings[spellingID]; return ok }) {
		return repositories.LinkDelta{}, apperrors.ErrNotFound
	}
	want := make([]models.SpellingLink, 0, len(translationIDs))
	for _, id := range translationIDs {
		want = append(want, models.SpellingLink{ItemTranslationID: id, SpellingID: spellingID})
	}
	return m.replace(
		func(l models.SpellingLink) bool { return l.SpellingID == spellingID },
		want,
		func(l models.SpellingLink) bool { _, ok := m.s.translations[l.ItemTranslationID]; return ok },
	), nil
}

func (m *mockLinkRepo) ListSpellingIDs(ctx context.Context, translationID uuid.UUID) ([]uuid.UUID, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	set := map[uuid.UUID]bool{}
	for l := range m.s.links {
		if l.ItemTranslationID == translationID {
			set[l.SpellingID] = true
		}
	}
	return sortedIDs(set), nil
}

func (m *mockLinkRepo) ListTranslationIDs(ctx context.Context, spellingID uuid.UUID) ([]uuid.UUID, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	set := map[uuid.UUID]bool{}
	for l := range m.s.links {
		if l.SpellingID == spellingID {
			set[l.ItemTranslationID] = true
		}
	}
	return sortedIDs(set), nil
}

func (m *mockLinkRepo) deleteWhere(match func(models.SpellingLink) bool) int64 {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var n int64
	for l := range m.s.links {
		if match(l) {
			delete(m.s.links, l)
			n++
		}
	}
	return n
}

func (m *mockLinkRepo) DeleteByTranslation(ctx context.Context, translationID uuid.UUID) (int64, error) {
	return m.deleteWhere(func(l models.SpellingLink) bool { return l.ItemTranslationID == translationID }), nil
}

func (m *mockLinkRepo) DeleteBySpelling(ctx context.Context, spellingID uuid.UUID) (int64, error) {
	return m.deleteWhere(func(l models.SpellingLink) bool { return l.SpellingID == spellingID }), nil
}

func (m *mockLinkRepo) DeleteByGlossary(ctx context.Context, glossaryID uuid.UUID) (int64, error) {
	m.s.mu.Lock()
	owned := map[uuid.UUID]bool{}
	for id, sp := range m.s.spellings {
		if sp.GlossaryID == glossaryID {
			owned[id] = true
		}
	}
	m.s.mu.Unlock()
	return m.deleteWhere(func(l models.SpellingLink) bool { return owned[l.SpellingID] }), nil
}

func (m *mockLinkRepo) DeleteByItem(ctx context.Context, itemID uuid.UUID) (int64, error) {
	m.s.mu.Lock()
	owned := map[uuid.UUID]bool{}
	for id, t := range m.s.translations {
		if t.ItemID == itemID {
			owned[id] = true
		}
	}
	m.s.mu.Unlock()
	return m.deleteWhere(func(l models.SpellingLink) bool { return owned[l.ItemTranslationID] }), nil
}

// ============================================================================
// Hooks, enqueuer and recorder mocks
// ============================================================================

type recordingHooks struct {
	mu                  sync.Mutex
	translationsSaved   []uuid.UUID
	spellingsSaved      []uuid.UUID
	translationsDeleted []uuid.UUID
	spellingsDeleted    []uuid.UUID
}

func (h *recordingHooks) OnTranslationSaved(ctx context.Context, id uuid.UUID) workqueue.EnqueueResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.translationsSaved = append(h.translationsSaved, id)
	return workqueue.EnqueueAccepted
}

func (h *recordingHooks) OnSpellingSaved(ctx context.Context, id uuid.UUID) workqueue.EnqueueResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.spellingsSaved = append(h.spellingsSaved, id)
	return workqueue.EnqueueAccepted
}

func (h *recordingHooks) OnTranslationDeleted(ctx context.Context, id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.translationsDeleted = append(h.translationsDeleted, id)
}

func (h *recordingHooks) OnSpellingDeleted(ctx context.Context, id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.spellingsDeleted = append(h.spellingsDeleted, id)
}

type recordingEnqueuer struct {
	mu     sync.Mutex
	tasks  []workqueue.Task
	result workqueue.EnqueueResult
}

func (e *recordingEnqueuer) Enqueue(task workqueue.Task) workqueue.EnqueueResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tasks = append(e.tasks, task)
	if e.result == "" {
		return workqueue.EnqueueAccepted
	}
	return e.result
}

type syncRecord struct {
	kind    string
	outcome string
	delta   repositories.LinkDelta
}

type recordingRecorder struct {
	mu      sync.Mutex
	records []syncRecord
}

func (r *recordingRecorder) RecordSync(kind, outcome string, duration time.Duration, delta repositories.LinkDelta) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, syncRecord{kind: kind, outcome: outcome, delta: delta})
}

func (r *recordingRecorder) last() syncRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.records) == 0 {
		return syncRecord{}
	}
	return r.records[len(r.records)-1]
}

var errInjected = errors.New("injected failure")
