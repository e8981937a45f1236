package model

// ContentItem is one unit of source data (typically one file) entering the
// pipeline for a run. The canonical identifier is stable across stages so
// content parts and downstream artifacts can be correlated back to it.
type ContentItem struct {
	CanonicalID string            `json:"canonical_id"`
	Name        string            `json:"name"`
	URL         string            `json:"url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ContentPart is an ordered, token-bounded partition of one content item's text.
// Positions are 1-based and contiguous within an item.
type ContentPart struct {
	ContentItemCanonicalID string `json:"content_item_canonical_id"`
	Position               int    `json:"position"`
	Content                string `json:"content"`
	TokenCount             int    `json:"content_size_tokens"`
}
