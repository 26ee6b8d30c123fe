package retrieval

import (
	"sort"

	"nlsql/internal/embedding"
	"nlsql/internal/schema"
)

// fuseScores implements spec.md §4.4 steps 3-4: independently rank table
// embeddings and (generic-downweighted, table-aggregated) column
// embeddings by cosine similarity to the question, then combine the two
// rankings with reciprocal rank fusion and add a hub bonus.
func (r *Retriever) fuseScores(
	queryVector []float32,
	tableEmbeddings, columnEmbeddings []schema.Embedding,
	tableByName map[string]schema.Table,
	moduleSet map[string]bool,
) map[string]float64 {
	tableRank := rankByCosine(queryVector, filterByModule(tableEmbeddings, tableByName, moduleSet))
	columnAggRank := rankColumnsAggregatedByTable(queryVector, filterByModule(columnEmbeddings, tableByName, moduleSet), r.Config.GenericDownweight)

	k := float64(r.Config.RRFK)
	fused := make(map[string]float64)
	for table, rank := range tableRank {
		fused[table] += 1.0 / (k + float64(rank))
	}
	for table, rank := range columnAggRank {
		fused[table] += 1.0 / (k + float64(rank))
	}

	hubBonus := r.Config.HubBonus
	hubFloor := r.Config.HubDegreeFloor
	if hubFloor <= 0 {
		hubFloor = 8
	}
	for table := range fused {
		if t, ok := tableByName[table]; ok && t.FKDegree >= hubFloor {
			fused[table] += hubBonus
		}
	}
	return fused
}

func filterByModule(embeddings []schema.Embedding, tableByName map[string]schema.Table, moduleSet map[string]bool) []schema.Embedding {
	if len(moduleSet) == 0 {
		return embeddings
	}
	var out []schema.Embedding
	for _, e := range embeddings {
		t, ok := tableByName[e.TableName]
		if !ok || moduleSet[t.ModuleTag] {
			out = append(out, e)
		}
	}
	return out
}

// rankByCosine orders table embeddings by cosine similarity descending
// and returns each table's 1-based rank.
func rankByCosine(queryVector []float32, embeddings []schema.Embedding) map[string]int {
	type scored struct {
		table string
		sim   float64
	}
	var scoredList []scored
	for _, e := range embeddings {
		sim, err := embedding.CosineSimilarity(queryVector, e.Vector)
		if err != nil {
			continue
		}
		scoredList = append(scoredList, scored{table: e.TableName, sim: sim})
	}
	sort.Slice(scoredList, func(i, j int) bool {
		if scoredList[i].sim != scoredList[j].sim {
			return scoredList[i].sim > scoredList[j].sim
		}
		return scoredList[i].table < scoredList[j].table
	})
	ranks := make(map[string]int, len(scoredList))
	for i, s := range scoredList {
		if _, exists := ranks[s.table]; !exists {
			ranks[s.table] = i + 1
		}
	}
	return ranks
}

// rankColumnsAggregatedByTable scores each column embedding against the
// question, downweights generic columns by downweight, keeps each
// table's best column score (spec.md §4.4: "Aggregate column scores up
// to their tables"), then ranks tables by that best score.
func rankColumnsAggregatedByTable(queryVector []float32, columnEmbeddings []schema.Embedding, downweight float64) map[string]int {
	if downweight <= 0 {
		downweight = 1
	}
	best := make(map[string]float64)
	for _, e := range columnEmbeddings {
		sim, err := embedding.CosineSimilarity(queryVector, e.Vector)
		if err != nil {
			continue
		}
		if isGenericColumnEmbedding(e) {
			sim *= downweight
		}
		if sim > best[e.TableName] {
			best[e.TableName] = sim
		}
	}

	type scored struct {
		table string
		sim   float64
	}
	var scoredList []scored
	for table, sim := range best {
		scoredList = append(scoredList, scored{table: table, sim: sim})
	}
	sort.Slice(scoredList, func(i, j int) bool {
		if scoredList[i].sim != scoredList[j].sim {
			return scoredList[i].sim > scoredList[j].sim
		}
		return scoredList[i].table < scoredList[j].table
	})
	ranks := make(map[string]int, len(scoredList))
	for i, s := range scoredList {
		ranks[s.table] = i + 1
	}
	return ranks
}

func isGenericColumnEmbedding(e schema.Embedding) bool {
	return schema.IsGenericColumnName(e.ColumnName)
}

// matchedColumnsByTable returns, per table, whether at least one of its
// columns scores above threshold against the question — the signal FK
// expansion uses to decide a neighbor is relevant rather than a random
// hub (spec.md §4.4 step 5).
func matchedColumnsByTable(queryVector []float32, columnEmbeddings []schema.Embedding, threshold float64) map[string]bool {
	matched := make(map[string]bool)
	for _, e := range columnEmbeddings {
		sim, err := embedding.CosineSimilarity(queryVector, e.Vector)
		if err != nil || sim < threshold {
			continue
		}
		matched[e.TableName] = true
	}
	return matched
}
