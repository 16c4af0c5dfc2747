// internal/pipeline/interpret/cache.go
package interpret

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"orgdiag-pipeline/internal/models"
)

// CacheKey derives the narrative cache key for one team's aggregate: the team
// identifier plus a SHA-256 over the canonical JSON of its stats. Any change
// in the underlying numbers invalidates the entry.
func CacheKey(agg *models.TeamAggregate) string {
	payload, _ := json.Marshal(agg.Stats)
	sum := sha256.Sum256(payload)
	return fmt.Sprintf("%s:%s", agg.TeamID, hex.EncodeToString(sum[:]))
}
