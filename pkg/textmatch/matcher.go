// Package textmatch finds glossary spellings inside free text.
//
// A spelling matches when it occurs as a whole word, ignoring case, with the
// spelling taken literally: characters such as '.', '(' or '+' carry no pattern
// meaning. Both sides are put in Unicode NFC form first so that composed and
// decomposed accents compare equal. For English spellings the plural is
// accepted as well, so "pot" matches "pots" but not "potato" or "pottery".
// Other languages match the literal spelling only.
package textmatch

import (
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jinzhu/inflection"
	"github.com/patrickmn/go-cache"
	"golang.org/x/text/unicode/norm"

	"github.com/inventory-app/glossary-sync/pkg/models"
)

// English is the language whose spellings also match their plural.
const English = "eng"

// nonWord is a single character that cannot be part of a word.
const nonWord = `[^\p{L}\p{M}\p{N}_]`

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsMark(r) || unicode.IsNumber(r)
}

func pluralizes(languageID string) bool {
	return strings.EqualFold(strings.TrimSpace(languageID), English)
}

// normalize returns the NFC form of s.
func normalize(s string) string {
	return norm.NFC.String(s)
}

// alternative renders one literal form with boundary guards on its word edges.
// An edge that is itself a non-word character needs no guard.
func alternative(form string) string {
	var b strings.Builder
	first, _ := utf8.DecodeRuneInString(form)
	last, _ := utf8.DecodeLastRuneInString(form)
	if isWordRune(first) {
		b.WriteString(`(?:^|` + nonWord + `)`)
	}
	b.WriteString(regexp.QuoteMeta(form))
	if isWordRune(last) {
		b.WriteString(`(?:` + nonWord + `|$)`)
	}
	return b.String()
}

// Compile builds the pattern for a spelling of the given language. It returns nil
// for a blank spelling, which never matches anything.
func Compile(spelling, languageID string) *regexp.Regexp {
	spelling = strings.TrimSpace(normalize(spelling))
	if spelling == "" {
		return nil
	}

	forms := []string{spelling}
	if pluralizes(languageID) {
		if plural := inflection.Plural(spelling); plural != "" && !strings.EqualFold(plural, spelling) {
			forms = append(forms, normalize(plural))
		}
	}

	alts := make([]string, len(forms))
	for i, form := range forms {
		alts[i] = alternative(form)
	}

	// QuoteMeta output is always a valid expression, so MustCompile cannot panic here.
	return regexp.MustCompile(`(?i)(?:` + strings.Join(alts, "|") + `)`)
}

// Matches reports whether spelling, written in languageID, occurs in text as a whole word.
// Empty text or a blank spelling never match.
func Matches(text, spelling, languageID string) bool {
	if text == "" {
		return false
	}
	re := Compile(spelling, languageID)
	if re == nil {
		return false
	}
	return re.MatchString(normalize(text))
}

// Matcher caches compiled spelling patterns. It is safe for concurrent use.
type Matcher struct {
	patterns *cache.Cache
	ttl      time.Duration
}

// NewMatcher creates a Matcher whose patterns are dropped after ttl without use.
func NewMatcher(ttl time.Duration) *Matcher {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Matcher{
		patterns: cache.New(ttl, 2*ttl),
		ttl:      ttl,
	}
}

func (m *Matcher) pattern(spelling, languageID string) *regexp.Regexp {
	spelling = strings.TrimSpace(normalize(spelling))
	if spelling == "" {
		return nil
	}
	// Languages without plural forms share one entry per spelling.
	key := "\x00" + spelling
	if pluralizes(languageID) {
		key = English + key
	}
	if cached, ok := m.patterns.Get(key); ok {
		re := cached.(*regexp.Regexp)
		m.patterns.Set(key, re, m.ttl)
		return re
	}
	re := Compile(spelling, languageID)
	m.patterns.Set(key, re, m.ttl)
	return re
}

// Matches is the cached equivalent of the package-level Matches.
func (m *Matcher) Matches(text, spelling, languageID string) bool {
	if text == "" {
		return false
	}
	re := m.pattern(spelling, languageID)
	if re == nil {
		return false
	}
	return re.MatchString(normalize(text))
}

// MatchAll returns the IDs of the spellings found in text, in input order.
// Each spelling is matched according to its own language.
// The text is normalized once for the whole batch.
func (m *Matcher) MatchAll(text string, spellings []*models.GlossarySpelling) []uuid.UUID {
	if text == "" || len(spellings) == 0 {
		return nil
	}
	text = normalize(text)

	var matched []uuid.UUID
	for _, s := range spellings {
		re := m.pattern(s.Spelling, s.LanguageID)
		if re != nil && re.MatchString(text) {
			matched = append(matched, s.ID)
		}
	}
	return matched
}

// PatternCount returns the number of cached patterns.
func (m *Matcher) PatternCount() int {
	return m.patterns.ItemCount()
}
