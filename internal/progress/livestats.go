package progress

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// LiveStats writes a plain-text, tail -f-friendly progress summary,
// rewritten in full on every update rather than appended to. Grounded
// directly on progress_stats_writer.py's ProgressStatsWriter.
type LiveStats struct {
	mu sync.Mutex

	path string

	totalBooks      int
	downloadedBooks int
	failedBooks     int
	skippedBooks    int
	currentSkill    string
	startTime       time.Time
}

// NewLiveStats creates the stats file (and its parent directory) and
// writes the initial "Initializing..." state.
func NewLiveStats(path string) (*LiveStats, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create live stats dir: %w", err)
		}
	}
	ls := &LiveStats{
		path:         path,
		currentSkill: "Initializing...",
		startTime:    time.Now(),
	}
	ls.write()
	return ls, nil
}

// StartSession records the expected total and resets the clock.
func (ls *LiveStats) StartSession(totalBooks int) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.totalBooks = totalBooks
	ls.startTime = time.Now()
	ls.write()
}

// UpdateCurrentSkill records which skill is active.
func (ls *LiveStats) UpdateCurrentSkill(skillName string) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.currentSkill = skillName
	ls.write()
}

// BookCompleted records the outcome of one book: downloaded, skipped
// (already present), or failed.
func (ls *LiveStats) BookCompleted(wasDownloaded, wasSuccessful bool) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	switch {
	case !wasSuccessful:
		ls.failedBooks++
	case wasDownloaded:
		ls.downloadedBooks++
	default:
		ls.skippedBooks++
	}
	ls.write()
}

// SkillCompleted marks the named skill done in the current-skill field.
func (ls *LiveStats) SkillCompleted(skillName string) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.currentSkill = "Completed: " + skillName
	ls.write()
}

// Finalize writes the closing state plus a summary block.
func (ls *LiveStats) Finalize(skillsProcessed, totalBooks, totalDownloaded, totalFailed, totalSkipped int) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.currentSkill = "Session Completed"
	ls.write()

	f, err := os.OpenFile(ls.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()

	fmt.Fprintf(f, "\n%s\n", divider)
	fmt.Fprintf(f, "FINAL SUMMARY\n")
	fmt.Fprintf(f, "%s\n", divider)
	fmt.Fprintf(f, "Skills Processed: %d\n", skillsProcessed)
	fmt.Fprintf(f, "Total Books: %d\n", totalBooks)
	fmt.Fprintf(f, "Successfully Downloaded: %d\n", totalDownloaded)
	fmt.Fprintf(f, "Failed Downloads: %d\n", totalFailed)
	fmt.Fprintf(f, "Skipped (Already Downloaded): %d\n", totalSkipped)
	fmt.Fprintf(f, "Total Time: %s\n", formatDuration(time.Since(ls.startTime)))
	fmt.Fprintf(f, "%s\n", divider)
}

const divider = "============================================================"

// write rewrites the file from scratch. Caller must hold ls.mu. Write
// errors are swallowed: a broken stats file must never abort the run
// it is merely observing, matching progress_stats_writer.py's own
// best-effort posture.
func (ls *LiveStats) write() {
	processed := ls.downloadedBooks + ls.skippedBooks + ls.failedBooks
	var progressPct float64
	if ls.totalBooks > 0 {
		progressPct = float64(processed) / float64(ls.totalBooks) * 100
	}

	elapsed := time.Since(ls.startTime)
	status := "Running"
	if progressPct >= 100 {
		status = "Completed"
	}

	f, err := os.Create(ls.path)
	if err != nil {
		return
	}
	defer f.Close()

	fmt.Fprintf(f, "%s\n", divider)
	fmt.Fprintf(f, "O'Reilly Books Download Progress\n")
	fmt.Fprintf(f, "%s\n", divider)
	fmt.Fprintf(f, "Status: %s\n", status)
	fmt.Fprintf(f, "Started: %s\n", ls.startTime.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(f, "Current Skill: %s\n", ls.currentSkill)
	fmt.Fprintf(f, "Total Books: %d\n", ls.totalBooks)
	fmt.Fprintf(f, "Downloaded: %d\n", ls.downloadedBooks)
	fmt.Fprintf(f, "Failed: %d\n", ls.failedBooks)
	fmt.Fprintf(f, "Skipped: %d\n", ls.skippedBooks)
	fmt.Fprintf(f, "Progress: %.1f%%\n", progressPct)
	fmt.Fprintf(f, "Elapsed: %s\n", formatDuration(elapsed))
	fmt.Fprintf(f, "ETA: %s\n", ls.eta(elapsed, progressPct, processed))
	fmt.Fprintf(f, "%s\n", divider)
	fmt.Fprintf(f, "Last Updated: %s\n", time.Now().Format("2006-01-02 15:04:05"))
}

func (ls *LiveStats) eta(elapsed time.Duration, progressPct float64, processed int) string {
	if progressPct <= 0 {
		return "Calculating..."
	}
	if progressPct >= 100 {
		return "Completed"
	}
	elapsedSeconds := elapsed.Seconds()
	if processed > 0 && elapsedSeconds > 0 {
		rate := float64(processed) / elapsedSeconds
		remaining := ls.totalBooks - processed
		etaSeconds := float64(remaining) / rate
		return formatDuration(time.Duration(etaSeconds * float64(time.Second)))
	}
	return "Calculating..."
}

func formatDuration(d time.Duration) string {
	total := int(d.Seconds())
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
}
