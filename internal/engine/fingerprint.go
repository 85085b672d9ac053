package engine

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/MRamiBalles/GalacticCiv/internal/domain/simulation"
)

// Fingerprint derives the cache key for a context decided by typeTag.
// Contexts that serialize identically always share a key. xxhash64 is not
// collision-free, so unrelated contexts may alias, with negligible probability.
func Fingerprint(typeTag string, dc simulation.DecisionContext) (string, error) {
	b, err := json.Marshal(dc)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	h := xxhash.New()
	_, _ = h.WriteString(typeTag)
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(b)
	return typeTag + ":" + strconv.FormatUint(h.Sum64(), 16), nil
}
