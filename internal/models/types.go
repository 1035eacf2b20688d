package models

// MemoryType classifies what kind of knowledge a memory item represents.
// It is also the dispatch key for merge strategy selection.
type MemoryType string

const (
	MemoryTypeFact        MemoryType = "fact"
	MemoryTypePreference  MemoryType = "preference"
	MemoryTypeDecision    MemoryType = "decision"
	MemoryTypeObservation MemoryType = "observation"
	MemoryTypeContext     MemoryType = "context"
)

var ValidMemoryTypes = map[MemoryType]bool{
	MemoryTypeFact:        true,
	MemoryTypePreference:  true,
	MemoryTypeDecision:    true,
	MemoryTypeObservation: true,
	MemoryTypeContext:     true,
}

func (t MemoryType) IsValid() bool {
	return ValidMemoryTypes[t]
}

// DetectionMethod records which similarity signal produced a duplicate pair.
// MethodBoth appears only on stage-1 diagnostics, when the simhash and
// minhash filters fire together; a proposal always carries one of the other
// three.
type DetectionMethod string

const (
	MethodSimhash   DetectionMethod = "simhash"
	MethodMinhash   DetectionMethod = "minhash"
	MethodEmbedding DetectionMethod = "embedding"
	MethodBoth      DetectionMethod = "both"
)

// ConfidenceLevel is a coarse classification of how trustworthy a detected
// duplicate pair is.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// ProposalStatus is the lifecycle state of a merge proposal.
type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "pending"
	ProposalApproved ProposalStatus = "approved"
	ProposalRejected ProposalStatus = "rejected"
	ProposalExpired  ProposalStatus = "expired"
)

var ValidProposalStatuses = map[ProposalStatus]bool{
	ProposalPending:  true,
	ProposalApproved: true,
	ProposalRejected: true,
	ProposalExpired:  true,
}

func (s ProposalStatus) IsValid() bool {
	return ValidProposalStatuses[s]
}

// --- Item requests/responses ---

// StoreRequest is the payload for POST /projects/{projectID}/memories.
type StoreRequest struct {
	UserID      string         `json:"userId"`
	Content     string         `json:"content"`
	MemoryType  MemoryType     `json:"memoryType"`
	Summary     string         `json:"summary,omitempty"`
	Tags        []string       `json:"tags"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Confidence  float64        `json:"confidence"`
	Relevance   float64        `json:"relevance"`
	IsPrivate   bool           `json:"isPrivate"`
	IsMergeable *bool          `json:"isMergeable,omitempty"` // nil means mergeable
}

// StoreResponse is returned from POST /projects/{projectID}/memories.
// Deduplicated means the content already existed and ID names the prior item.
type StoreResponse struct {
	ID           string `json:"id"`
	HasSecrets   bool   `json:"hasSecrets"`
	Embedded     bool   `json:"embedded"`
	Deduplicated bool   `json:"deduplicated,omitempty"`
}

// UpdateRequest is the payload for PATCH /memories/{id}.
type UpdateRequest struct {
	Content     *string         `json:"content,omitempty"`
	Summary     *string         `json:"summary,omitempty"`
	Tags        *[]string       `json:"tags,omitempty"`
	Metadata    *map[string]any `json:"metadata,omitempty"`
	Confidence  *float64        `json:"confidence,omitempty"`
	Relevance   *float64        `json:"relevance,omitempty"`
	IsActive    *bool           `json:"isActive,omitempty"`
	IsMergeable *bool           `json:"isMergeable,omitempty"`
}

// BulkStoreRequest is the payload for POST /projects/{projectID}/memories/bulk.
type BulkStoreRequest struct {
	Items []StoreRequest `json:"items"`
}

// BulkStoreResponse is returned from POST /projects/{projectID}/memories/bulk.
type BulkStoreResponse struct {
	Stored int      `json:"stored"`
	Failed int      `json:"failed"`
	IDs    []string `json:"ids"`
}

// ListRequest holds parsed query params for GET /projects/{projectID}/memories.
type ListRequest struct {
	ProjectID  string     `json:"projectId"`
	MemoryType MemoryType `json:"memoryType,omitempty"`
	ActiveOnly bool       `json:"activeOnly"`
	Limit      int        `json:"limit"`
	Offset     int        `json:"offset"`
}

// ListResponse is returned from GET /projects/{projectID}/memories.
type ListResponse struct {
	Items []*MemoryItem `json:"items"`
	Total int           `json:"total"`
}

// --- Detection ---

// DetectRequest is the payload for POST /projects/{projectID}/dedup/detect.
type DetectRequest struct {
	MemoryType          MemoryType `json:"memoryType,omitempty"`
	Threshold           *float64   `json:"threshold,omitempty"`
	Limit               int        `json:"limit,omitempty"`
	Stage1Only          bool       `json:"stage1Only,omitempty"`
	AutoCreateProposals bool       `json:"autoCreateProposals,omitempty"`
}

// DuplicateCandidate is one ranked duplicate pair from detection.
type DuplicateCandidate struct {
	ID1               string          `json:"id1"`
	ID2               string          `json:"id2"`
	Similarity        float64         `json:"similarity"`
	Confidence        ConfidenceLevel `json:"confidence"`
	Method            DetectionMethod `json:"method"`
	SimhashDistance   int             `json:"simhashDistance"`
	MinhashSimilarity float64         `json:"minhashSimilarity"`
}

// DetectionTimings reports per-stage elapsed time in milliseconds.
type DetectionTimings struct {
	Stage1Ms int64 `json:"stage1Ms"`
	Stage2Ms int64 `json:"stage2Ms"`
	TotalMs  int64 `json:"totalMs"`
}

// DetectionStats reports scan counters for observability.
type DetectionStats struct {
	ItemsScanned     int            `json:"itemsScanned"`
	PairsCompared    int            `json:"pairsCompared"`
	Stage1Candidates int            `json:"stage1Candidates"`
	RankedPairs      int            `json:"rankedPairs"`
	ByType           map[string]int `json:"byType"`
}

// DetectionResult is returned from the detect operation.
type DetectionResult struct {
	Candidates       []DuplicateCandidate `json:"candidates"`
	Timings          DetectionTimings     `json:"timings"`
	Stats            DetectionStats       `json:"stats"`
	ProposalsCreated []string             `json:"proposalsCreated,omitempty"`
}

// --- Proposal workflow ---

// ProposalListResponse is returned from GET /projects/{projectID}/dedup/proposals.
type ProposalListResponse struct {
	Proposals []*MergeProposal `json:"proposals"`
	Total     int              `json:"total"`
}

// MergePreview is a live recomputation of a proposal's merge output.
type MergePreview struct {
	Content          string         `json:"content"`
	Summary          string         `json:"summary,omitempty"`
	Tags             []string       `json:"tags"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	MergeReason      string         `json:"mergeReason"`
	ConflictWarnings []string       `json:"conflictWarnings,omitempty"`
	TokensSaved      int            `json:"tokensSaved"`
}

// PreviewResponse is returned from GET /dedup/proposals/{id}/preview.
// Drifted is true when the live recomputation no longer matches the
// content stored on the proposal.
type PreviewResponse struct {
	Proposal *MergeProposal `json:"proposal"`
	Sources  []*MemoryItem  `json:"sources"`
	Live     *MergePreview  `json:"live"`
	Drifted  bool           `json:"drifted"`
}

// ReviewRequest is the payload for approve and reject.
type ReviewRequest struct {
	ReviewNotes string `json:"reviewNotes,omitempty"`
}

// ApproveResponse is returned from POST /dedup/proposals/{id}/approve.
type ApproveResponse struct {
	ProposalID  string `json:"proposalId"`
	CanonicalID string `json:"canonicalId"`
	HistoryID   string `json:"historyId"`
	TokensSaved int    `json:"tokensSaved"`
}

// ReverseRequest is the payload for POST /dedup/history/{id}/reverse.
type ReverseRequest struct {
	Reason     string `json:"reason,omitempty"`
	ReversedBy string `json:"reversedBy,omitempty"`
}

// ReverseResponse is returned from POST /dedup/history/{id}/reverse.
type ReverseResponse struct {
	HistoryID   string   `json:"historyId"`
	CanonicalID string   `json:"canonicalId"`
	RestoredIDs []string `json:"restoredIds"`
}

// --- Stats ---

// DedupStats is returned from GET /projects/{projectID}/dedup/stats.
type DedupStats struct {
	ProjectID         string         `json:"projectId"`
	ActiveItems       int            `json:"activeItems"`
	MergedItems       int            `json:"mergedItems"`
	CanonicalItems    int            `json:"canonicalItems"`
	ItemsByType       map[string]int `json:"itemsByType"`
	ProposalsByStatus map[string]int `json:"proposalsByStatus"`
	HistoryCount      int            `json:"historyCount"`
	ReversedCount     int            `json:"reversedCount"`
	TokensSaved       int            `json:"tokensSaved"`
	CacheEntries      int            `json:"cacheEntries"`
	ItemsMissingCache int            `json:"itemsMissingCache"`
}

// RebuildResponse is returned from POST /projects/{projectID}/dedup/cache/rebuild.
type RebuildResponse struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Embedded  int `json:"embedded"`
	Orphans   int `json:"orphansRemoved"`
}

// HealthResponse is returned from GET /health.
type HealthResponse struct {
	Status    string       `json:"status"`
	Ollama    ServiceCheck `json:"ollama"`
	DB        ServiceCheck `json:"db"`
	ItemCount int          `json:"itemCount"`
}

type ServiceCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}
