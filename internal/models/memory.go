package models

// MemoryItem is the core domain entity stored in SQLite.
//
// An item is in exactly one of three states at any time: a normal active
// item, a merged/archived item (IsMerged, inactive, MergedIntoID set), or a
// canonical item produced by a merge (IsCanonical, MergeSourceIDs set). A
// canonical item can later be merged again into a newer canonical item.
type MemoryItem struct {
	ID             string         `json:"id"`
	ProjectID      string         `json:"projectId"`
	UserID         string         `json:"userId,omitempty"`
	MemoryType     MemoryType     `json:"memoryType"`
	Content        string         `json:"content"`
	Summary        string         `json:"summary,omitempty"`
	Tags           []string       `json:"tags"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Embedding      []byte         `json:"-"`
	IsActive       bool           `json:"isActive"`
	IsMergeable    bool           `json:"isMergeable"`
	IsMerged       bool           `json:"isMerged"`
	IsCanonical    bool           `json:"isCanonical"`
	MergedIntoID   *string        `json:"mergedIntoId,omitempty"`
	MergeSourceIDs []string       `json:"mergeSourceIds,omitempty"`
	MergeVersion   int            `json:"mergeVersion"`
	IsPrivate      bool           `json:"isPrivate"`
	HasSecrets     bool           `json:"hasSecrets"`
	Confidence     float64        `json:"confidence"`
	Relevance      float64        `json:"relevance"`
	CreatedAt      int64          `json:"createdAt"`
	UpdatedAt      int64          `json:"updatedAt"`
}

// Project scopes memory items; all detection and merging happens within one.
type Project struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"createdAt"`
}

// HashCacheEntry holds precomputed fingerprints for one memory item.
// It is stale whenever ContentHash no longer matches a fresh hash of the
// item's current content. Its lifecycle is tied 1:1 to the item.
type HashCacheEntry struct {
	MemoryID    string      `json:"memoryId"`
	SimHash     uint64      `json:"-"`
	MinHash     [128]uint64 `json:"-"`
	ContentHash string      `json:"contentHash"`
	UpdatedAt   int64       `json:"updatedAt"`
}

// EmbeddingCacheEntry stores a cached embedding keyed by content hash.
type EmbeddingCacheEntry struct {
	ContentHash string `json:"contentHash"`
	Embedding   []byte `json:"embedding"`
	Dimension   int    `json:"dimension"`
	Model       string `json:"model"`
	UpdatedAt   int64  `json:"updatedAt"`
}
