// Package download implements the Download Controller: the Phase B
// driver that walks the per-skill result files Discovery produced and
// invokes the EPUB Builder for each surviving book, in priority-skills-
// first order, using one long-lived HTTP session.
//
// Grounded on original_source/download_books.py's BookDownloadManager
// (download_all_books/download_books_for_skill/download_single_book,
// _sanitize_skill_name, _check_epub_exists, the token-save and
// checkpoint cadences) and the teacher's handlers.downloadBookAsync
// Redis-then-MinIO lookup order.
package download

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"oreilly-library/internal/apperrors"
	"oreilly-library/internal/auth"
	"oreilly-library/internal/cache"
	"oreilly-library/internal/config"
	"oreilly-library/internal/epub"
	"oreilly-library/internal/models"
	"oreilly-library/internal/progress"
	"oreilly-library/internal/storage"
)

// LoadSkillResults reads every discovery result file in dir, optionally
// restricted to the skills named in allowList (nil means all).
func LoadSkillResults(dir string, allowList map[string]bool) ([]models.SkillResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, apperrors.New(apperrors.KindConfiguration, "read discovery results directory", err)
	}

	var results []models.SkillResult
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, apperrors.New(apperrors.KindFilesystem, "read skill result file", err)
		}
		var sr models.SkillResult
		if err := json.Unmarshal(data, &sr); err != nil {
			return nil, apperrors.New(apperrors.KindFilesystem, fmt.Sprintf("parse skill result file %s", e.Name()), err)
		}
		if allowList != nil && !allowList[sr.SkillName] {
			continue
		}
		results = append(results, sr)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].SkillName < results[j].SkillName })
	return results, nil
}

// OrderPriorityFirst reorders results so any skill named in priority
// comes first, preserving relative order within each group, matching
// download_books.py's priority_skills reordering of skill_books.
func OrderPriorityFirst(results []models.SkillResult, priority []string) []models.SkillResult {
	isPriority := make(map[string]bool, len(priority))
	for _, p := range priority {
		isPriority[p] = true
	}

	var first, rest []models.SkillResult
	for _, r := range results {
		if isPriority[r.SkillName] {
			first = append(first, r)
		} else {
			rest = append(rest, r)
		}
	}
	return append(first, rest...)
}

var pascalUppercaseWords = map[string]bool{
	"AI": true, "ML": true, "API": true, "UI": true, "UX": true,
	"SQL": true, "CSS": true, "HTML": true, "JS": true, "AWS": true, "GCP": true,
}

var pascalLowercaseWords = map[string]bool{
	"&": true, "and": true, "or": true, "of": true, "the": true,
	"in": true, "on": true, "at": true, "to": true, "for": true,
}

// PascalizeSkillName converts a skill name into the PascalCase-with-
// spaces directory name form used under the output root, grounded on
// download_books.py's _sanitize_skill_name.
func PascalizeSkillName(name string) string {
	sanitized := strings.TrimSpace(name)
	for _, ch := range []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"} {
		sanitized = strings.ReplaceAll(sanitized, ch, " ")
	}
	sanitized = strings.NewReplacer("_", " ", "-", " ").Replace(sanitized)

	words := strings.Fields(sanitized)
	out := make([]string, 0, len(words))
	for _, w := range words {
		switch {
		case pascalUppercaseWords[strings.ToUpper(w)]:
			out = append(out, strings.ToUpper(w))
		case pascalLowercaseWords[strings.ToLower(w)]:
			if len(out) == 0 {
				out = append(out, capitalize(w))
			} else {
				out = append(out, strings.ToLower(w))
			}
		default:
			out = append(out, capitalize(w))
		}
	}
	return strings.Join(out, " ")
}

func capitalize(w string) string {
	lower := strings.ToLower(w)
	r := []rune(lower)
	if len(r) == 0 {
		return lower
	}
	r[0] = []rune(strings.ToUpper(string(r[0])))[0]
	return string(r)
}

// EventFunc receives lifecycle notifications for a book or skill.
// stage is one of "skill_start", "book_skip_disk" (used for both a
// completion-cache hit and an existing file on disk), "book_done",
// "book_failed", "skill_done".
type EventFunc func(skill, bookID, stage, detail string)

// Controller drives Phase B over a set of already-discovered skills.
type Controller struct {
	Builder       *epub.Builder
	Tracker       *progress.Tracker
	Stats         *progress.LiveStats
	Cache         *cache.BookCache  // optional
	Sink          *storage.ObjectSink // optional
	CookieStore   *auth.Store
	Cfg           config.DownloadConfig
	OutputRoot    string
	Variants      []models.Variant
	Force         bool
	PresignExpiry time.Duration
	OnEvent       EventFunc

	// Cancel, if non-nil, is checked between books. Once closed, Run
	// finishes the book already in flight, flushes progress and the
	// cookie bundle, and returns early rather than starting another —
	// the graceful-shutdown behavior spec.md §5 describes for an
	// interrupt signal.
	Cancel <-chan struct{}

	sleep func(time.Duration)
}

// New builds a Controller with production defaults (real time.Sleep).
func New(builder *epub.Builder, tracker *progress.Tracker, stats *progress.LiveStats, cookieStore *auth.Store, cfg config.DownloadConfig, outputRoot string, variants []models.Variant, onEvent EventFunc) *Controller {
	if onEvent == nil {
		onEvent = func(string, string, string, string) {}
	}
	return &Controller{
		Builder:     builder,
		Tracker:     tracker,
		Stats:       stats,
		CookieStore: cookieStore,
		Cfg:         cfg,
		OutputRoot:  outputRoot,
		Variants:    variants,
		OnEvent:     onEvent,
		sleep:       time.Sleep,
	}
}

// Run processes every skill's books in order, persisting progress,
// live stats, and the cookie bundle along the way. It never aborts the
// whole run on a single book's failure; per spec.md §4.8 only
// KindConfiguration/KindCredential failures (surfaced from the Builder
// as fatal apperrors) stop the run early.
func (c *Controller) Run(results []models.SkillResult) error {
	totalBooks := 0
	for _, r := range results {
		totalBooks += len(r.Books)
	}

	pending := make([]string, len(results))
	for i, r := range results {
		pending[i] = r.SkillName
	}

	if err := c.Tracker.StartSession(len(results), totalBooks); err != nil {
		return err
	}
	if err := c.Tracker.SetPendingSkills(pending); err != nil {
		return err
	}
	c.Stats.StartSession(totalBooks)

	var (
		booksSinceTokenSave int
		skillsProcessed     int
		totalDownloaded     int
		totalFailed         int
		totalSkipped        int
		interrupted         bool
	)

skillLoop:
	for _, skill := range results {
		c.OnEvent(skill.SkillName, "", "skill_start", fmt.Sprintf("%d books", len(skill.Books)))
		c.Tracker.UpdateCurrentSkill(skill.SkillName, skillsProcessed+1, len(results))
		c.Stats.UpdateCurrentSkill(skill.SkillName)

		skillDir := filepath.Join(c.OutputRoot, PascalizeSkillName(skill.SkillName))
		c.Builder.WorkDir = skillDir

		for i, book := range skill.Books {
			c.Tracker.UpdateCurrentItem(book.Title, book.ID)

			existed, err := c.processBook(skillDir, book)
			if err != nil {
				c.Tracker.AddFailedItem(book.ID, err.Error())
				c.Stats.BookCompleted(false, false)
				c.OnEvent(skill.SkillName, book.ID, "book_failed", err.Error())
				totalFailed++
				if err2, ok := err.(*apperrors.Error); ok && err2.Kind.Fatal() {
					return err2
				}
			} else {
				c.Tracker.AddCompletedItem(book.ID)
				c.Stats.BookCompleted(!existed, true)
				if existed {
					totalSkipped++
					c.OnEvent(skill.SkillName, book.ID, "book_skip_disk", "")
				} else {
					totalDownloaded++
					c.OnEvent(skill.SkillName, book.ID, "book_done", "")
				}
			}

			if i < len(skill.Books)-1 && c.Cfg.RateLimitDelaySeconds > 0 {
				c.sleep(time.Duration(c.Cfg.RateLimitDelaySeconds * float64(time.Second)))
			}

			booksSinceTokenSave++
			if c.Cfg.TokenSaveInterval > 0 && booksSinceTokenSave >= c.Cfg.TokenSaveInterval {
				c.CookieStore.Persist()
				booksSinceTokenSave = 0
			}

			if c.cancelled() {
				interrupted = true
				break skillLoop
			}
		}

		c.Tracker.CompleteSkill(skill.SkillName)
		c.Stats.SkillCompleted(skill.SkillName)
		c.OnEvent(skill.SkillName, "", "skill_done", "")
		skillsProcessed++

		if c.Cfg.CheckpointEverySkills > 0 && skillsProcessed%c.Cfg.CheckpointEverySkills == 0 {
			c.Tracker.CreateCheckpoint()
		}
	}

	c.CookieStore.Persist()
	if interrupted {
		c.Tracker.PauseSession()
	} else {
		c.Tracker.CompleteSession()
	}
	c.Stats.Finalize(skillsProcessed, totalBooks, totalDownloaded, totalFailed, totalSkipped)
	return nil
}

// cancelled reports whether Cancel has been closed. A nil Cancel
// channel (the default) never cancels.
func (c *Controller) cancelled() bool {
	if c.Cancel == nil {
		return false
	}
	select {
	case <-c.Cancel:
		return true
	default:
		return false
	}
}

// processBook returns (alreadyExisted, error). alreadyExisted is true
// when the cache or an on-disk check satisfied the request without
// invoking the Builder.
func (c *Controller) processBook(skillDir string, book models.Book) (bool, error) {
	if !c.Force {
		if c.Cache != nil {
			if _, hit, err := c.Cache.Get(book.ID, c.Variants); err == nil && hit {
				return true, nil
			}
		}
		if c.hasAllVariantsOnDisk(skillDir, book.ID) {
			return true, nil
		}
	}

	result, err := c.Builder.Build(book.ID, c.Variants)
	if err != nil {
		return false, err
	}

	var lastPath, minioPath, presignedURL string
	var totalSize int64
	for variant, epubPath := range result.EpubPaths {
		finalPath, err := c.finalizeVariant(result.BookDir, result.Metadata, variant, epubPath)
		if err != nil {
			return false, err
		}
		lastPath = finalPath

		if c.Sink != nil {
			name, size, err := c.Sink.Upload(book.ID, string(variant), finalPath)
			if err == nil {
				minioPath = name
				totalSize += size
				if c.PresignExpiry > 0 {
					if url, err := c.Sink.PresignedURL(name, c.PresignExpiry); err == nil {
						presignedURL = url
					}
				}
			}
		}
	}

	if c.Cache != nil {
		c.Cache.Set(cache.Entry{
			BookID:       book.ID,
			BookTitle:    result.Metadata.Title,
			VariantKey:   cache.VariantKey(c.Variants),
			LocalPath:    lastPath,
			MinIOPath:    minioPath,
			PresignedURL: presignedURL,
			FileSize:     totalSize,
			UploadedAt:   time.Now(),
			ISBN:         result.Metadata.ISBN,
		})
	}

	return false, nil
}

// finalizeVariant renames the Builder's working-name epub
// (<bookID>.<variant>.epub) to the externally-meaningful name spec.md
// §6 specifies: "<title> - <authors>[(Kindle)].epub".
func (c *Controller) finalizeVariant(bookDir string, meta models.BookMetadata, variant models.Variant, epubPath string) (string, error) {
	name := epub.SanitizeFilename(meta.Title)
	if authors := strings.Join(meta.Authors, ", "); authors != "" {
		name = fmt.Sprintf("%s - %s", name, epub.SanitizeFilename(authors))
	}
	if variant == models.VariantKindle {
		name += " (Kindle)"
	}
	name += ".epub"

	finalPath := filepath.Join(bookDir, name)
	if finalPath == epubPath {
		return finalPath, nil
	}
	if err := os.Rename(epubPath, finalPath); err != nil {
		return "", apperrors.New(apperrors.KindFilesystem, "rename epub to final name", err)
	}
	return finalPath, nil
}

// hasAllVariantsOnDisk reports whether every requested variant already
// has a matching .epub file under skillDir for bookID. Mirrors
// download_books.py's _check_epub_exists: it cannot distinguish
// legacy from enhanced (both are "standard"), only kindle from
// non-kindle, by filename shape alone.
func (c *Controller) hasAllVariantsOnDisk(skillDir, bookID string) bool {
	matches, err := filepath.Glob(filepath.Join(skillDir, fmt.Sprintf("*(%s)*", bookID), "*.epub"))
	if err != nil || len(matches) == 0 {
		return false
	}

	var hasStandard, hasKindle bool
	for _, m := range matches {
		if strings.Contains(m, "(Kindle)") {
			hasKindle = true
		} else {
			hasStandard = true
		}
	}

	needStandard, needKindle := false, false
	for _, v := range c.Variants {
		if v == models.VariantKindle {
			needKindle = true
		} else {
			needStandard = true
		}
	}

	if needKindle && !hasKindle {
		return false
	}
	if needStandard && !hasStandard {
		return false
	}
	return true
}
