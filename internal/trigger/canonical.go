package trigger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// CanonicalRunID derives a stable identifier for a run from the pipeline name
// and the trigger parameters that shape the run's input. Two trigger requests
// that would process the same content produce the same canonical id, which is
// how concurrent duplicate runs are detected. When keys is empty, every
// parameter participates.
func CanonicalRunID(pipelineName string, params map[string]any, keys []string) string {
	selected := append([]string(nil), keys...)
	if len(selected) == 0 {
		selected = make([]string, 0, len(params))
		for key := range params {
			selected = append(selected, key)
		}
	}
	sort.Strings(selected)

	var sb strings.Builder
	sb.WriteString(pipelineName)
	for _, key := range selected {
		sb.WriteString("|")
		sb.WriteString(key)
		sb.WriteString("=")
		fmt.Fprintf(&sb, "%v", params[key])
	}

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:16])
}
