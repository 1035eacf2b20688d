package models

// MergeProposal is a candidate consolidation awaiting a decision. Proposals
// are created only by detection, mutated only by approve/reject/expiry, and
// never deleted (kept for audit).
type MergeProposal struct {
	ID               string          `json:"id"`
	ProjectID        string          `json:"projectId"`
	SourceIDs        []string        `json:"sourceIds"`
	ProposedContent  string          `json:"proposedContent"`
	ProposedSummary  string          `json:"proposedSummary,omitempty"`
	ProposedTags     []string        `json:"proposedTags"`
	ProposedMetadata map[string]any  `json:"proposedMetadata,omitempty"`
	DetectionMethod  DetectionMethod `json:"detectionMethod"`
	SimilarityScore  float64         `json:"similarityScore"`
	Confidence       ConfidenceLevel `json:"confidence"`
	MergeReason      string          `json:"mergeReason"`
	ConflictWarnings []string        `json:"conflictWarnings,omitempty"`
	Status           ProposalStatus  `json:"status"`
	ReviewedAt       *int64          `json:"reviewedAt,omitempty"`
	ReviewNotes      string          `json:"reviewNotes,omitempty"`
	CreatedAt        int64           `json:"createdAt"`
	ExpiresAt        *int64          `json:"expiresAt,omitempty"`
}

// SourceSnapshot is a point-in-time copy of a source item taken at merge
// time. Reversal restores items from these snapshots, so they carry every
// field a merge archives or a later edit could disturb.
type SourceSnapshot struct {
	ID         string         `json:"id"`
	Content    string         `json:"content"`
	Summary    string         `json:"summary,omitempty"`
	Tags       []string       `json:"tags"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Confidence float64        `json:"confidence"`
	Relevance  float64        `json:"relevance"`
	CreatedAt  int64          `json:"createdAt"`
}

// MergeHistory is the immutable audit record of a completed merge. It is
// created atomically with the merge and mutated exactly once, to flip
// IsReversed.
type MergeHistory struct {
	ID          string           `json:"id"`
	ProposalID  string           `json:"proposalId,omitempty"`
	SourceIDs   []string         `json:"sourceIds"`
	CanonicalID string           `json:"canonicalId"`
	Snapshots   []SourceSnapshot `json:"snapshots"`
	Strategy    string           `json:"strategy"`
	TokensSaved int              `json:"tokensSaved"`
	IsReversed  bool             `json:"isReversed"`
	ReversedAt  *int64           `json:"reversedAt,omitempty"`
	ReversedBy  string           `json:"reversedBy,omitempty"`
	ReverseNote string           `json:"reverseNote,omitempty"`
	CreatedAt   int64            `json:"createdAt"`
}
