// Package detector decides whether fetched page content differs meaningfully
// from the previously stored version.
package detector

import "strings"

// DefaultThreshold is the similarity at or above which two contents are
// considered the same page.
const DefaultThreshold = 0.9

// Detector compares content snapshots using token-set similarity.
type Detector struct {
	threshold float64
}

// New returns a Detector with the given similarity threshold. Values
// outside (0,1] fall back to DefaultThreshold.
func New(threshold float64) *Detector {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Detector{threshold: threshold}
}

// Changed reports whether new content is a meaningful change from old
// content. An empty old content (no prior observation) always counts as
// changed.
func (d *Detector) Changed(oldContent, newContent string) bool {
	if oldContent == "" {
		return true
	}
	return Similarity(oldContent, newContent) < d.threshold
}

// Similarity returns the Jaccard similarity of the two contents' token
// sets: tokens are lowercased whitespace-separated words, and the score is
// the intersection size over the union size. Two empty contents score 1.
func Similarity(a, b string) float64 {
	tokensA := tokenSet(a)
	tokensB := tokenSet(b)
	if len(tokensA) == 0 && len(tokensB) == 0 {
		return 1
	}

	intersection := 0
	for token := range tokensA {
		if _, ok := tokensB[token]; ok {
			intersection++
		}
	}
	union := len(tokensA) + len(tokensB) - intersection
	if union == 0 {
		return 1
	}
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
