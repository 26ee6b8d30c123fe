package retrieval

import (
	"sort"
	"strings"

	"nlsql/internal/embedding"
)

// moduleRoutingThreshold is the combined score a module must clear to be
// considered relevant (spec.md §4.4 step 2). Kept as an unexported
// constant rather than a config field: it is a scoring-internals detail,
// not an operator-facing tuning knob.
const moduleRoutingThreshold = 0.15

// routeModules scores every known module by keyword overlap plus cosine
// similarity against its centroid, keeping those above threshold
// (min 1, max MaxModules). Explicit moduleHints are always included
// first, ahead of scored modules, up to MaxModules.
func (r *Retriever) routeModules(question string, queryVector []float32, moduleHints []string) []string {
	hintSet := make(map[string]bool, len(moduleHints))
	var out []string
	for _, h := range moduleHints {
		h = normalize(h)
		if h == "" || hintSet[h] {
			continue
		}
		hintSet[h] = true
		out = append(out, h)
	}

	maxModules := r.Config.MaxModules
	if maxModules <= 0 {
		maxModules = 3
	}
	minModules := r.Config.MinModules
	if minModules <= 0 {
		minModules = 1
	}

	type scored struct {
		name  string
		score float64
	}
	var candidates []scored
	for _, m := range r.Modules {
		if hintSet[normalize(m.Name)] {
			continue
		}
		score := keywordOverlapScore(question, m.Keywords)
		if len(m.Centroid) > 0 {
			if sim, err := embedding.CosineSimilarity(queryVector, m.Centroid); err == nil {
				score = (score + sim) / 2
			}
		}
		candidates = append(candidates, scored{name: m.Name, score: score})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].name < candidates[j].name
	})

	for _, c := range candidates {
		if len(out) >= maxModules {
			break
		}
		if c.score >= moduleRoutingThreshold || len(out) < minModules {
			out = append(out, c.name)
		}
	}
	return out
}

// keywordOverlapScore is the fraction of a module's keyword vocabulary
// that appears as a whole word in question.
func keywordOverlapScore(question string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	lower := " " + strings.ToLower(question) + " "
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(lower, " "+strings.ToLower(kw)+" ") {
			hits++
		}
	}
	return float64(hits) / float64(len(keywords))
}
