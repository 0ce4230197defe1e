package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	events []Event
}

func (r *recordingSink) Emit(e Event) {
	r.events = append(r.events, e)
}

func TestDiscoveryEventFunc_AssignsLevelsFromStage(t *testing.T) {
	sink := &recordingSink{}
	fn := DiscoveryEventFunc(sink)

	fn("golang", "skill_start", "")
	fn("golang", "skill_error", "boom")
	fn("golang", "skill_skip_too_broad", "too many hits")

	require.Len(t, sink.events, 3)
	assert.Equal(t, LevelInfo, sink.events[0].Level)
	assert.Equal(t, LevelError, sink.events[1].Level)
	assert.Equal(t, LevelWarning, sink.events[2].Level)
	assert.Equal(t, "discovery", sink.events[0].Component)
	assert.Equal(t, "golang", sink.events[0].Fields["skill"])
}

func TestDownloadEventFunc_IncludesBookID(t *testing.T) {
	sink := &recordingSink{}
	fn := DownloadEventFunc(sink)

	fn("golang", "1001", "book_failed", "assembly error")

	require.Len(t, sink.events, 1)
	assert.Equal(t, "download", sink.events[0].Component)
	assert.Equal(t, LevelError, sink.events[0].Level)
	assert.Equal(t, "1001", sink.events[0].Fields["book_id"])
}

func TestMultiSink_FansOutToEveryMember(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	multi := MultiSink{a, nil, b}

	multi.Emit(Event{Timestamp: time.Now(), Level: LevelInfo, Component: "test", Message: "hi"})

	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
}

func TestLogSink_EmitWritesWithoutError(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewLogSink(dir + "/events.log")
	require.NoError(t, err)
	defer sink.Close()

	sink.Emit(Event{
		Timestamp: time.Now(),
		Level:     LevelWarning,
		Component: "download",
		Message:   "asset fetch failed",
		Fields:    map[string]interface{}{"book_id": "1001"},
	})
}

func TestMetricsSink_CountsByComponentAndLevel(t *testing.T) {
	sink := NewMetricsSink()
	sink.Emit(Event{Level: LevelInfo, Component: "discovery"})
	sink.Emit(Event{Level: LevelInfo, Component: "discovery"})
	sink.Emit(Event{Level: LevelError, Component: "download"})

	metrics, err := sink.Registry().Gather()
	require.NoError(t, err)
	require.Len(t, metrics, 1)
	assert.Equal(t, "oreilly_library_events_total", metrics[0].GetName())
	assert.Len(t, metrics[0].GetMetric(), 2)
}
