package memory

import (
	"context"
	"math"
	"sort"
	"strconv"
	"strings"
)

// HybridSearch fuses vector-similarity and full-text results for query,
// scoring each candidate chunk as w_vec*vec_score + w_txt*txt_score and
// returning up to limit chunks sorted by descending score with a stable
// tie-break on id.
func (idx *Index) HybridSearch(ctx context.Context, query string, limit int, wVec, wText float64) ([]IndexedChunk, error) {
	if limit <= 0 {
		limit = 10
	}

	vecScores := idx.vectorScores(ctx, query, limit)
	txtScores, err := idx.textScores(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	candidates := make(map[int64]struct{}, len(vecScores)+len(txtScores))
	for id := range vecScores {
		candidates[id] = struct{}{}
	}
	for id := range txtScores {
		candidates[id] = struct{}{}
	}

	type scored struct {
		id    int64
		score float64
	}
	ranked := make([]scored, 0, len(candidates))
	for id := range candidates {
		ranked = append(ranked, scored{id: id, score: wVec*vecScores[id] + wText*txtScores[id]})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].id < ranked[j].id
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	out := make([]IndexedChunk, 0, len(ranked))
	for _, r := range ranked {
		var source, content string
		err := idx.db.QueryRowContext(ctx, "SELECT source, content FROM chunks WHERE id = ?", r.id).
			Scan(&source, &content)
		if err != nil {
			continue // chunk vanished from the table since the candidate scan
		}
		out = append(out, IndexedChunk{ID: r.id, Source: source, Content: content, Score: r.score})
	}
	return out, nil
}

// vectorScores runs a KNN query against the vector collection; each
// returned rowid is resolved to its chunk id with per-chunk score
// 1/(1+distance), keeping the maximum when a chunk id recurs. Errors
// (including an empty or all-zero-vector collection) degrade to no
// vector candidates rather than failing the whole search.
func (idx *Index) vectorScores(ctx context.Context, query string, limit int) map[int64]float64 {
	scores := make(map[int64]float64)
	if idx.vecColl.Count() == 0 {
		return scores
	}
	n := limit
	if n > idx.vecColl.Count() {
		n = idx.vecColl.Count()
	}
	results, err := idx.vecColl.Query(ctx, query, n, nil, nil)
	if err != nil {
		return scores
	}
	for _, r := range results {
		id, err := strconv.ParseInt(r.ID, 10, 64)
		if err != nil {
			continue
		}
		if math.IsNaN(float64(r.Similarity)) {
			continue // all-zero embeddings have no defined similarity
		}
		distance := 1 - float64(r.Similarity)
		score := 1 / (1 + distance)
		if existing, ok := scores[id]; !ok || score > existing {
			scores[id] = score
		}
	}
	return scores
}

// textScores runs the FTS5 query and min-max normalizes bm25 ranks so the
// best-ranked row scores 1 and the worst scores 0; when every rank is
// equal, every result scores 1.
func (idx *Index) textScores(ctx context.Context, query string, limit int) (map[int64]float64, error) {
	scores := make(map[int64]float64)
	if query == "" {
		return scores, nil
	}

	rows, err := idx.db.QueryContext(ctx, `
		SELECT rowid, bm25(memory_fts) AS rank
		FROM memory_fts
		WHERE memory_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, ftsQuery(query), limit)
	if err != nil {
		// A malformed FTS query (e.g. bare punctuation) degrades to no
		// text candidates rather than failing hybrid_search.
		return scores, nil
	}
	defer rows.Close()

	type ranked struct {
		id   int64
		rank float64
	}
	var all []ranked
	for rows.Next() {
		var r ranked
		if err := rows.Scan(&r.id, &r.rank); err != nil {
			return nil, err
		}
		all = append(all, r)
	}

	if len(all) == 0 {
		return scores, nil
	}
	min, max := all[0].rank, all[0].rank
	for _, r := range all {
		if r.rank < min {
			min = r.rank
		}
		if r.rank > max {
			max = r.rank
		}
	}
	// bm25() in SQLite returns more-negative values for better matches, so
	// the best rank is the minimum; normalize so it maps to 1.
	span := max - min
	for _, r := range all {
		if span == 0 {
			scores[r.id] = 1
			continue
		}
		scores[r.id] = (max - r.rank) / span
	}
	return scores, nil
}

// ftsQuery turns free text into an FTS5 prefix query: each word becomes
// its own quoted prefix term, space-joined (implicit AND).
func ftsQuery(q string) string {
	words := strings.Fields(q)
	if len(words) == 0 {
		return q
	}
	parts := make([]string, 0, len(words))
	for _, w := range words {
		parts = append(parts, "\""+escapeFTS(w)+"\"*")
	}
	return strings.Join(parts, " ")
}

func escapeFTS(s string) string {
	return strings.ReplaceAll(s, "\"", "\"\"")
}
