package vector

import (
	"fmt"
	"strings"
)

const (
	minTopK = 1
	maxTopK = 100
)

// ClampTopK bounds a caller-supplied result limit to a safe range rather
// than trusting it.
func ClampTopK(topK int) int {
	if topK < minTopK {
		return minTopK
	}
	if topK > maxTopK {
		return maxTopK
	}
	return topK
}

// BuildSearchQuery assembles the owner-scoped nearest-neighbor query.
// Rows with a NULL or zero-dimension embedding are filtered out before
// ranking, so a partially written row degrades to "not retrieved" instead
// of aborting the whole search.
func BuildSearchQuery(literal, ownerID string, topK int) string {
	return fmt.Sprintf(strings.TrimSpace(`
SELECT id, user_id, document_id, text, created_at
FROM chunks
WHERE user_id = '%s'
  AND embedding IS NOT NULL
  AND vector_dims(embedding) > 0
ORDER BY embedding <-> CAST('%s' AS vector)
LIMIT %d`),
		EscapeLiteral(ownerID), EscapeLiteral(literal), ClampTopK(topK))
}

// BuildEmbeddingUpdate assembles the scoped update attaching an embedding
// to an existing chunk.
func BuildEmbeddingUpdate(literal, chunkID string) string {
	return fmt.Sprintf(`UPDATE chunks SET embedding = '%s'::vector WHERE id = '%s'`,
		EscapeLiteral(literal), EscapeLiteral(chunkID))
}

// BuildCleanupDelete assembles the maintenance delete for chunks whose
// embedding is NULL or has zero dimensions. An empty ownerID means global.
func BuildCleanupDelete(ownerID string) string {
	q := `DELETE FROM chunks WHERE (embedding IS NULL OR vector_dims(embedding) = 0)`
	if ownerID != "" {
		q += fmt.Sprintf(` AND user_id = '%s'`, EscapeLiteral(ownerID))
	}
	return q
}

// BuildValidCount assembles the count of retrieval-eligible chunks for one
// owner.
func BuildValidCount(ownerID string) string {
	return fmt.Sprintf(strings.TrimSpace(`
SELECT COUNT(*)
FROM chunks
WHERE user_id = '%s'
  AND embedding IS NOT NULL
  AND vector_dims(embedding) > 0`),
		EscapeLiteral(ownerID))
}
