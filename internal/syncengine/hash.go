package syncengine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/scullers68/sprint-reports/internal/tracker"
)

// canonicalSprint is the fixed-shape projection of a remote sprint used
// for content hashing. Field order is fixed by the struct; timestamps are
// normalized to UTC RFC 3339 so hash comparisons survive zone differences.
type canonicalSprint struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	State     string `json:"state"`
	Goal      string `json:"goal"`
	Start     string `json:"start"`
	End       string `json:"end"`
	Complete  string `json:"complete"`
	BoardID   int64  `json:"board_id"`
}

func canonicalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// HashSprint computes the SHA-256 content hash of a remote sprint's
// canonical form. Equal hashes mean the entity is unchanged since the
// last successful sync.
func HashSprint(dto tracker.SprintDTO) string {
	c := canonicalSprint{
		ID:       dto.ID,
		Name:     dto.Name,
		State:    dto.State,
		Goal:     dto.Goal,
		Start:    canonicalTime(dto.StartDate),
		End:      canonicalTime(dto.EndDate),
		Complete: canonicalTime(dto.CompleteDate),
		BoardID:  dto.OriginBoardID,
	}
	b, _ := json.Marshal(c)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
