package epub

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFilename_DropsLateSubtitle(t *testing.T) {
	got := SanitizeFilename("Designing Data-Intensive Applications: The Big Ideas Behind Reliable Systems")
	assert.Equal(t, "Designing Data-Intensive Applications", got)
}

func TestSanitizeFilename_ReplacesEarlyColon(t *testing.T) {
	got := SanitizeFilename("Go: The Basics")
	assert.NotContains(t, got, ":")
}

func TestSanitizeFilename_StripsForbiddenChars(t *testing.T) {
	got := SanitizeFilename(`Weird/File*Name?"Test"`)
	for _, ch := range []string{"/", "*", "?", "\""} {
		assert.NotContains(t, got, ch)
	}
}

func TestSanitizeFilename_CapsLength(t *testing.T) {
	long := ""
	for i := 0; i < 200; i++ {
		long += "a"
	}
	got := SanitizeFilename(long)
	assert.LessOrEqual(t, len(got), maxTitleLength)
}
