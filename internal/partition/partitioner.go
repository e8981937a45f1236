// Package partition implements token-based content partitioning: splitting
// extracted text into ordered, token-bounded parts with configurable overlap.
// The algorithm is deterministic and has no pipeline-state awareness.
package partition

import (
	"fmt"

	"github.com/alexisbeaulieu97/conveyor/internal/model"
	conveyorerrors "github.com/alexisbeaulieu97/conveyor/pkg/errors"
)

// Split partitions text into parts of at most sizeTokens tokens, consecutive
// parts overlapping by exactly overlapTokens. Parts carry 1-based contiguous
// positions and exact token counts. A trailing part smaller than 2*overlap is
// merged into the previous one instead of being emitted on its own.
func Split(tok Tokenizer, canonicalID, text string, sizeTokens, overlapTokens int) ([]model.ContentPart, error) {
	if sizeTokens <= 0 {
		return nil, conveyorerrors.NewValidationError("partition_size_tokens",
			"partition size must be positive", nil)
	}
	if overlapTokens < 0 || overlapTokens >= sizeTokens {
		return nil, conveyorerrors.NewValidationError("partition_overlap_tokens",
			fmt.Sprintf("overlap %d must be non-negative and smaller than partition size %d",
				overlapTokens, sizeTokens), nil)
	}

	tokens := tok.Encode(text)
	step := sizeTokens - overlapTokens
	count := ceilDiv(len(tokens)-overlapTokens, step)

	if count <= 1 {
		return []model.ContentPart{{
			ContentItemCanonicalID: canonicalID,
			Position:               1,
			Content:                text,
			TokenCount:             len(tokens),
		}}, nil
	}

	parts := make([]model.ContentPart, 0, count)
	for i := 0; i < count-1; i++ {
		slice := tokens[i*step : i*step+sizeTokens]
		parts = append(parts, model.ContentPart{
			ContentItemCanonicalID: canonicalID,
			Position:               i + 1,
			Content:                tok.Decode(slice),
			TokenCount:             len(slice),
		})
	}

	lastStart := (count - 1) * step
	if len(tokens)-lastStart < 2*overlapTokens {
		// The final part would be too small; fold it into the previous one.
		lastStart = (count - 2) * step
		parts = parts[:len(parts)-1]
	}

	slice := tokens[lastStart:]
	parts = append(parts, model.ContentPart{
		ContentItemCanonicalID: canonicalID,
		Position:               len(parts) + 1,
		Content:                tok.Decode(slice),
		TokenCount:             len(slice),
	})

	return parts, nil
}

func ceilDiv(a, b int) int {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
