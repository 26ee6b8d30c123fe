package retrieval

import (
	"sort"

	"nlsql/internal/schema"
)

// expandViaForeignKeys implements spec.md §4.4 step 5: for each table
// already scored, look at its FK neighbors and add one only if it
// contributes a column the question also matched (matchedCols), capped
// at maxExpansion additions total across the whole candidate set. Added
// tables are given a score equal to the minimum score already present so
// they rank behind organically retrieved tables rather than displacing
// them.
func expandViaForeignKeys(
	scores map[string]float64,
	edges []schema.ForeignKeyEdge,
	tableByName map[string]schema.Table,
	matchedCols map[string]bool,
	maxExpansion int,
) map[string]float64 {
	if maxExpansion <= 0 {
		maxExpansion = 3
	}

	neighbors := make(map[string]map[string]bool) // table -> neighbor tables
	for _, e := range edges {
		if neighbors[e.FromTable] == nil {
			neighbors[e.FromTable] = make(map[string]bool)
		}
		neighbors[e.FromTable][e.ToTable] = true
		if neighbors[e.ToTable] == nil {
			neighbors[e.ToTable] = make(map[string]bool)
		}
		neighbors[e.ToTable][e.FromTable] = true
	}

	baseline := minScore(scores)
	added := 0
	seed := make([]string, 0, len(scores))
	for table := range scores {
		seed = append(seed, table)
	}
	sort.Strings(seed)
	for _, table := range seed {
		if added >= maxExpansion {
			break
		}
		tableNeighbors := make([]string, 0, len(neighbors[table]))
		for neighbor := range neighbors[table] {
			tableNeighbors = append(tableNeighbors, neighbor)
		}
		sort.Strings(tableNeighbors)
		for _, neighbor := range tableNeighbors {
			if added >= maxExpansion {
				break
			}
			if _, already := scores[neighbor]; already {
				continue
			}
			if _, known := tableByName[neighbor]; !known {
				continue
			}
			if !matchedCols[neighbor] {
				continue
			}
			scores[neighbor] = baseline
			added++
		}
	}
	return scores
}

func minScore(scores map[string]float64) float64 {
	first := true
	var min float64
	for _, s := range scores {
		if first || s < min {
			min = s
			first = false
		}
	}
	return min
}
