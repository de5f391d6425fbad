// Package classify turns a segment into ranked label candidates, either with
// a hosted language model or with a deterministic offline model trained on
// earlier registrations
package classify

import (
	"context"
	"math"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/maruel/natural"

	"github.com/ayoisaiah/tally/internal/apperr"
	"github.com/ayoisaiah/tally/internal/models"
)

// Classifier produces candidates for a segment, ordered by descending
// confidence.
type Classifier interface {
	Classify(ctx context.Context, seg *models.Segment) ([]models.Candidate, error)
}

// History gives access to earlier registrations.
type History interface {
	// Records returns the records that end within [start, end]
	Records(start, end time.Time) ([]*models.RegistrationRecord, error)
}

var (
	errClassification = &apperr.Error{
		Kind:    apperr.KindClassification,
		Message: "online classification failed",
	}

	errOnlineStatus = &apperr.Error{
		Kind:    apperr.KindClassification,
		Message: "classifier endpoint returned status %d",
	}

	errMalformed = &apperr.Error{
		Kind:    apperr.KindClassification,
		Message: "malformed classifier response: %s",
	}

	errNotConfigured = &apperr.Error{
		Kind:    apperr.KindConfiguration,
		Message: "online classifier requires an endpoint and an api key",
	}
)

// Sort orders candidates by descending confidence, breaking ties by label in
// natural order and then by project.
func Sort(candidates []models.Candidate) {
	slices.SortStableFunc(candidates, func(a, b models.Candidate) int {
		if a.Confidence != b.Confidence {
			if a.Confidence > b.Confidence {
				return -1
			}

			return 1
		}

		if a.Label != b.Label {
			if natural.Less(a.Label, b.Label) {
				return -1
			}

			return 1
		}

		return strings.Compare(a.Project, b.Project)
	})
}

// dedupe keeps the most confident candidate for each label and project,
// compared case-insensitively.
func dedupe(candidates []models.Candidate) []models.Candidate {
	best := make(map[string]int, len(candidates))
	out := make([]models.Candidate, 0, len(candidates))

	for _, c := range candidates {
		k := strings.ToLower(c.Label) + "\x00" + strings.ToLower(c.Project)

		i, ok := best[k]
		if !ok {
			best[k] = len(out)
			out = append(out, c)

			continue
		}

		if c.Confidence > out[i].Confidence {
			out[i] = c
		}
	}

	return out
}

// clamp bounds a score to [0, 1] and rounds it so that scores print and
// compare the same everywhere.
func clamp(f float64) float64 {
	f = math.Max(0, math.Min(1, f))

	return math.Round(f*1e4) / 1e4
}

// tokens splits s into lower-cased words of two or more characters.
func tokens(s string) map[string]struct{} {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !isWordRune(r)
	})

	set := make(map[string]struct{}, len(words))

	for _, w := range words {
		if len([]rune(w)) >= 2 {
			set[w] = struct{}{}
		}
	}

	return set
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.'
}

// jaccard returns the Jaccard similarity of two word sets.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	var inter int

	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}

	return float64(inter) / float64(len(a)+len(b)-inter)
}
