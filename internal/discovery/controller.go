package discovery

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"oreilly-library/internal/apperrors"
	"oreilly-library/internal/config"
	"oreilly-library/internal/filter"
	"oreilly-library/internal/models"
)

// Searcher is the subset of internal/search.Adapter the controller
// depends on, narrowed to an interface so tests can substitute a fake
// without a live HTTP session.
type Searcher interface {
	FetchPage(topic string, page, pageSize int) (*models.SearchPage, error)
}

// EventFunc receives lifecycle notifications the caller may forward to
// the Event Sink or the Progress Tracker. stage is one of
// "skill_start", "skill_page", "skill_skip_too_broad",
// "skill_cap_reached", "skill_done", "skill_error".
type EventFunc func(skill string, stage string, detail string)

// Controller runs the discovery pass for a catalog of skills.
type Controller struct {
	searcher   Searcher
	thresholds config.FilterThresholds
	discCfg    config.DiscoveryConfig
	outputDir  string
	onEvent    EventFunc
	sleep      func(time.Duration)
}

// New builds a Controller writing one JSON file per skill into outputDir.
func New(searcher Searcher, thresholds config.FilterThresholds, discCfg config.DiscoveryConfig, outputDir string, onEvent EventFunc) *Controller {
	if onEvent == nil {
		onEvent = func(string, string, string) {}
	}
	return &Controller{
		searcher:   searcher,
		thresholds: thresholds,
		discCfg:    discCfg,
		outputDir:  outputDir,
		onEvent:    onEvent,
		sleep:      time.Sleep,
	}
}

// estimatePageCap bounds how many pages to fetch for a skill before
// giving up, using the skill's Expected book count (if the catalog
// declares one) plus slack, falling back to the absolute cap. Grounded
// on discover_book_ids_v2.py's per-skill max_pages estimation, which
// exists so a skill with 40 expected books doesn't page through 100
// pages of a near-empty long tail.
func (c *Controller) estimatePageCap(skill models.Skill) int {
	if skill.Expected <= 0 {
		return c.discCfg.MaxPagesAbsolute
	}
	estimated := int(math.Ceil(float64(skill.Expected)/float64(c.discCfg.PageSize))) + c.discCfg.PageSlack
	if estimated > c.discCfg.MaxPagesAbsolute {
		return c.discCfg.MaxPagesAbsolute
	}
	if estimated < 1 {
		return 1
	}
	return estimated
}

// DiscoverSkill runs the full paginated search + filter pass for one
// skill across its alias variants, returning the deduplicated result.
func (c *Controller) DiscoverSkill(skill models.Skill, catalogAliases map[string][]string, knownSkills []string) (*models.SkillResult, error) {
	if skill.Expected > c.discCfg.TooBroadThreshold {
		c.onEvent(skill.Name, "skill_skip_too_broad", fmt.Sprintf("expected %d exceeds cap of %d, skipping before any request", skill.Expected, c.discCfg.TooBroadThreshold))
		return nil, nil
	}

	c.onEvent(skill.Name, "skill_start", "")

	variants := []string{skill.Name}
	if c.discCfg.LenientMode {
		variants = Variants(skill.Name, catalogAliases, knownSkills)
	}
	pipeline := filter.New(c.thresholds, skill.Name, variants)
	pageCap := c.estimatePageCap(skill)

	var books []models.Book
	for _, topic := range variants {
		got, err := c.discoverTopic(skill.Name, topic, pageCap, pipeline)
		if err != nil {
			c.onEvent(skill.Name, "skill_error", err.Error())
			return nil, err
		}
		books = append(books, got...)

		if len(books) >= c.discCfg.TooBroadThreshold {
			c.onEvent(skill.Name, "skill_cap_reached", fmt.Sprintf("%d books after topic %q, stopping variant expansion", len(books), topic))
			break
		}
	}

	result := &models.SkillResult{
		SkillName:          skill.Name,
		DiscoveryTimestamp: float64(time.Now().Unix()),
		TotalBooks:         len(books),
		Books:              books,
	}

	if err := c.writeResult(result); err != nil {
		return nil, err
	}

	c.onEvent(skill.Name, "skill_done", fmt.Sprintf("%d books", len(books)))
	return result, nil
}

func (c *Controller) discoverTopic(skillName, topic string, pageCap int, pipeline *filter.Pipeline) ([]models.Book, error) {
	var books []models.Book
	page := firstPageFor(c.searcher)

	for pagesFetched := 0; pagesFetched < pageCap; pagesFetched++ {
		sp, err := c.fetchPageWithRetry(topic, page, c.discCfg.PageSize)
		if err != nil {
			if apperrors.Is(err, apperrors.KindPermanent) {
				// Topic not found for this variant: not fatal to the
				// skill as a whole, just stop trying this variant.
				break
			}
			if c.discCfg.LenientMode {
				c.onEvent(skillName, "skill_error", fmt.Sprintf("topic %q page %d: %v (continuing, lenient mode)", topic, page, err))
				break
			}
			return nil, err
		}

		for _, item := range sp.Items {
			verdict := pipeline.Apply(item)
			if verdict.Keep {
				books = append(books, verdict.Book)
			}
		}

		c.onEvent(skillName, "skill_page", fmt.Sprintf("topic=%s page=%d items=%d kept_total=%d", topic, page, len(sp.Items), len(books)))

		if !sp.HasNext {
			break
		}
		page++

		if c.discCfg.RequestDelay > 0 {
			c.sleep(time.Duration(c.discCfg.RequestDelay * float64(time.Second)))
		}
	}

	return books, nil
}

// firstPageFor reports the starting page index. The Search Adapter
// takes one-indexed pages for both API versions and converts to v2's
// zero-indexed numbering itself, so discovery always starts at 1.
func firstPageFor(Searcher) int { return 1 }

func (c *Controller) fetchPageWithRetry(topic string, page, pageSize int) (*models.SearchPage, error) {
	const maxAttempts = 3
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		sp, err := c.searcher.FetchPage(topic, page, pageSize)
		if err == nil {
			return sp, nil
		}
		lastErr = err
		if !apperrors.Is(err, apperrors.KindTransient) {
			return nil, err
		}
		backoff := time.Duration(math.Pow(2, float64(attempt))) * time.Second
		c.sleep(backoff)
	}
	return nil, lastErr
}

func (c *Controller) writeResult(result *models.SkillResult) error {
	if err := os.MkdirAll(c.outputDir, 0o755); err != nil {
		return apperrors.New(apperrors.KindFilesystem, "create discovery output dir", err)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return apperrors.New(apperrors.KindFilesystem, "marshal skill result", err)
	}

	final := filepath.Join(c.outputDir, sanitizeSkillFilename(result.SkillName)+".json")
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return apperrors.New(apperrors.KindFilesystem, "write skill result", err)
	}
	return os.Rename(tmp, final)
}

func sanitizeSkillFilename(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		case r == ' ':
			out = append(out, '_')
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

// RunAll discovers every skill in order using a bounded worker pool,
// per spec.md §4.5's default of 3 concurrent workers. Skills run
// concurrently; each skill's own pagination is sequential.
func (c *Controller) RunAll(skills []models.Skill, catalogAliases map[string][]string) (map[string]*models.SkillResult, []error) {
	knownSkills := make([]string, len(skills))
	for i, s := range skills {
		knownSkills[i] = s.Name
	}

	workers := c.discCfg.Workers
	if workers < 1 {
		workers = 1
	}

	type job struct {
		skill models.Skill
	}
	type outcome struct {
		skill  string
		result *models.SkillResult
		err    error
	}

	jobs := make(chan job, len(skills))
	outcomes := make(chan outcome, len(skills))
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				res, err := c.DiscoverSkill(j.skill, catalogAliases, knownSkills)
				outcomes <- outcome{skill: j.skill.Name, result: res, err: err}
				if c.discCfg.SkillDelay > 0 {
					c.sleep(time.Duration(c.discCfg.SkillDelay * float64(time.Second)))
				}
			}
		}()
	}

	for _, s := range skills {
		jobs <- job{skill: s}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	results := make(map[string]*models.SkillResult)
	var errs []error
	for o := range outcomes {
		if o.err != nil {
			errs = append(errs, fmt.Errorf("skill %s: %w", o.skill, o.err))
			continue
		}
		results[o.skill] = o.result
	}

	return results, errs
}
