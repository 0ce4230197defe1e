// Package discovery implements the Discovery Controller: per-skill
// pagination against the Search Adapter, alias/variant expansion, and
// the worker pool that fans discovery out across skills.
//
// Grounded on the top-level loop of discover_v2/discover_book_ids_v2.py
// (discover_books_for_skill, _get_topic_candidates) and on the
// teacher's DownloadContent worker-pool shape in internal/oreilly/client.go.
package discovery

import "strings"

// builtinAliases maps a handful of skill names to known catalog-side
// synonyms the remote search index uses under a different string.
// Grounded on the ALIAS_MAP constant in discover_book_ids_v2.py.
var builtinAliases = map[string][]string{
	"javascript":      {"js", "ecmascript"},
	"typescript":      {"ts"},
	"golang":          {"go"},
	"kubernetes":      {"k8s"},
	"machine learning": {"ml", "machine-learning"},
	"artificial intelligence": {"ai"},
	"postgresql":      {"postgres"},
	"continuous integration": {"ci/cd", "ci-cd"},
	"object-oriented programming": {"oop"},
	"user experience": {"ux"},
	"user interface":  {"ui"},
}

// maxVariants caps the number of alias/variant candidates tried per
// skill, per spec.md §4.5's "capped at 5 candidates" rule — the
// remote service's rate limits make unlimited expansion too costly.
const maxVariants = 5

// Variants returns the query candidates to try for a skill, in the
// order: the skill name itself, any catalog-declared aliases, any
// built-in alias table entries, then catalog-substring heuristics —
// deduplicated and capped at maxVariants.
func Variants(skillName string, catalogAliases map[string][]string, knownSkills []string) []string {
	seen := map[string]bool{}
	var out []string

	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" || seen[strings.ToLower(s)] {
			return
		}
		seen[strings.ToLower(s)] = true
		out = append(out, s)
	}

	add(skillName)

	key := strings.ToLower(skillName)
	for _, a := range catalogAliases[key] {
		if len(out) >= maxVariants {
			return out
		}
		add(a)
	}
	for _, a := range builtinAliases[key] {
		if len(out) >= maxVariants {
			return out
		}
		add(a)
	}

	// Catalog-substring heuristic: other catalog skill names that
	// contain this skill as a substring are plausible narrower/wider
	// phrasings of the same topic (e.g. "react" -> "react native").
	for _, other := range knownSkills {
		if len(out) >= maxVariants {
			break
		}
		ol := strings.ToLower(other)
		if ol != key && strings.Contains(ol, key) {
			add(other)
		}
	}

	if len(out) > maxVariants {
		out = out[:maxVariants]
	}
	return out
}
