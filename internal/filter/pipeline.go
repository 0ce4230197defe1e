// Package filter implements the ordered Filter Pipeline from spec.md
// §4.4: a pure function from a raw search item to a keep/reject
// verdict, with the rejection stage recorded for debug logging.
//
// Grounded on the validation block inside discover_books_for_skill in
// discover_v2/discover_book_ids_v2.py, which is the authoritative
// source for the exact thresholds spec.md §9 flags as undocumented.
package filter

import (
	"strconv"
	"strings"

	"oreilly-library/internal/config"
	"oreilly-library/internal/models"
)

// Stage identifies which pipeline step produced a rejection.
type Stage string

const (
	StageFormat       Stage = "format"
	StageLanguage     Stage = "language"
	StageTitleLength  Stage = "title_length"
	StageChapterLike  Stage = "chapter_like"
	StageNumericOnly  Stage = "numeric_only"
	StageNeedsISBN    Stage = "needs_isbn_or_long_title"
	StageTopicMatch   Stage = "topic_match"
	StageDuplicate    Stage = "duplicate"
)

// Verdict is the outcome of running one item through the pipeline.
type Verdict struct {
	Keep  bool
	Stage Stage // set only when Keep is false
	Book  models.Book
}

// chapterPatterns are closed-set chapter/section/part markers rejected
// regardless of position in the title (case-insensitive substring
// match), taken verbatim from discover_book_ids_v2.py.
var chapterPatterns = []string{
	"chapter 1:", "chapter 2:", "chapter 3:", "chapter 4:", "chapter 5:",
	"chapter 6:", "chapter 7:", "chapter 8:", "chapter 9:", "chapter 10:",
	"part i:", "part ii:", "part iii:", "part iv:", "part v:",
	"part 1:", "part 2:", "part 3:", "part 4:", "part 5:",
	"section 1:", "section 2:", "section 3:", "section 4:", "section 5:",
	"lesson 1:", "lesson 2:", "lesson 3:", "lesson 4:", "lesson 5:",
	"unit 1:", "unit 2:", "unit 3:", "unit 4:", "unit 5:",
	"exam ref", "certification", "study guide", "practice test",
	"appendix", "glossary", "index", "bibliography",
	"closing thoughts", "conclusion", "summary", "wrap-up",
	"introduction", "preface", "foreword", "acknowledgments",
}

// chapterLikePrefixes are title prefixes rejected outright.
var chapterLikePrefixes = []string{"chapter ", "section ", "lesson ", "unit ", "module "}

// nonBookKeywords disqualify an ISBN-less item unless the title is long
// enough to plausibly be a real book on its own.
var nonBookKeywords = []string{
	"chapter", "part", "section", "lesson", "unit", "module",
	"video", "course", "tutorial", "workshop", "webinar", "audiobook",
}

// Pipeline runs items through the ordered stages for one skill's
// discovery pass. It is pure except for the duplicate-within-batch
// stage, which is why a Pipeline instance is scoped to one topic's
// accumulation rather than shared across skills.
type Pipeline struct {
	thresholds config.FilterThresholds
	skillName  string
	variants   []string
	seen       map[string]bool
}

// New creates a Pipeline for one skill's discovery run. variants are
// the skill's mechanically-derived topic variants, used by the
// strict-mode topic-match stage.
func New(thresholds config.FilterThresholds, skillName string, variants []string) *Pipeline {
	return &Pipeline{
		thresholds: thresholds,
		skillName:  skillName,
		variants:   variants,
		seen:       make(map[string]bool),
	}
}

// Apply runs item through every stage in order, stopping at the first
// rejection.
func (p *Pipeline) Apply(item models.RawSearchItem) Verdict {
	format := strings.ToLower(strings.TrimSpace(item.Format))
	if format != "book" && format != "ebook" && format != "" {
		return Verdict{Stage: StageFormat}
	}

	language := strings.ToLower(strings.TrimSpace(item.Language))
	if language != "" && !strings.HasPrefix(language, "en") && language != "english" {
		return Verdict{Stage: StageLanguage}
	}

	title := strings.TrimSpace(item.Title)
	titleLower := strings.ToLower(title)
	isbn := strings.TrimSpace(item.ISBN)
	hasISBN := isbn != "" && !isPlaceholder(isbn)

	if len(title) < p.thresholds.MinTitleLength {
		return Verdict{Stage: StageTitleLength}
	}
	if len(title) < p.thresholds.MinTitleLengthWithoutISBN && !hasISBN {
		return Verdict{Stage: StageTitleLength}
	}

	for _, pat := range chapterPatterns {
		if strings.Contains(titleLower, pat) {
			return Verdict{Stage: StageChapterLike}
		}
	}
	for _, prefix := range chapterLikePrefixes {
		if strings.HasPrefix(titleLower, prefix) {
			return Verdict{Stage: StageChapterLike}
		}
	}

	if len(title) <= 5 && isAllDigits(title) {
		return Verdict{Stage: StageNumericOnly}
	}
	if title != "" && isDigit(title[0]) {
		words := strings.Fields(title)
		if len(words) <= 3 && strings.HasPrefix(strings.TrimLeft(title, "0123456789"), ".") {
			return Verdict{Stage: StageNumericOnly}
		}
	}

	if !hasISBN {
		disqualified := false
		for _, kw := range nonBookKeywords {
			if strings.Contains(titleLower, kw) {
				disqualified = true
				break
			}
		}
		if disqualified || len(title) < p.thresholds.MinTitleLengthNoISBNKept {
			return Verdict{Stage: StageNeedsISBN}
		}
	}

	if p.thresholds.StrictTopicMatch {
		if !p.topicMatches(item) {
			return Verdict{Stage: StageTopicMatch}
		}
	}

	id := bookID(item)
	if p.seen[id] {
		return Verdict{Stage: StageDuplicate}
	}
	p.seen[id] = true

	book := models.Book{
		ID:     id,
		Title:  title,
		URL:    item.URL,
		ISBN:   isbnOrFallback(isbn, id),
		Format: defaultFormat(item.Format),
		Topics: append(append([]string{}, item.Subjects...), item.Topics...),
	}

	return Verdict{Keep: true, Book: book}
}

func (p *Pipeline) topicMatches(item models.RawSearchItem) bool {
	candidates := item.Subjects
	if len(candidates) == 0 {
		candidates = item.Topics
	}
	if len(candidates) == 0 {
		// No declared subjects/topics: spec.md §4.4 stage 7 only
		// applies "if the item declares a subjects or topics list";
		// absence of the list is not itself a rejection.
		return true
	}

	needles := append([]string{p.skillName}, p.variants...)
	for _, candidate := range candidates {
		cl := strings.ToLower(candidate)
		for _, needle := range needles {
			if strings.Contains(cl, strings.ToLower(needle)) {
				return true
			}
		}
	}
	return false
}

func bookID(item models.RawSearchItem) string {
	if item.ISBN != "" && !isPlaceholder(item.ISBN) {
		return item.ISBN
	}
	if item.ArchiveID != "" {
		return item.ArchiveID
	}
	return item.OURN
}

func isbnOrFallback(isbn, fallback string) string {
	if isbn != "" && !isPlaceholder(isbn) {
		return isbn
	}
	return fallback
}

func defaultFormat(f string) string {
	if f == "" {
		return "book"
	}
	return f
}

func isPlaceholder(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "n/a", "none", "null":
		return true
	default:
		return false
	}
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.Atoi(s)
	return err == nil
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
