package mcp

// ToolDefinitions returns the MCP tool definitions for the memfold server.
func ToolDefinitions() []ToolDefinition {
	return []ToolDefinition{
		{
			Name: "memory_store",
			Description: "Store a memory item for a project. Exact duplicates are detected at " +
				"ingest and return the ID of the existing item instead of creating a copy.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"project":    {Type: "string", Description: "Project name the memory belongs to"},
					"content":    {Type: "string", Description: "The memory content, written as a standalone statement"},
					"summary":    {Type: "string", Description: "Optional one-line summary"},
					"memoryType": {Type: "string", Description: "Type of memory",
						Enum: []string{"fact", "preference", "decision", "observation", "context"}},
					"confidence": {Type: "number", Description: "Confidence level 0.0-1.0 (default 0.8)",
						Default: 0.8},
					"tags": {Type: "array", Description: "Descriptive tags for categorization",
						Items: &Items{Type: "string"}},
				},
				Required: []string{"project", "content", "memoryType"},
			},
		},
		{
			Name: "memory_list",
			Description: "List memory items for a project, newest first. " +
				"Merged-away items are excluded unless all=true.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"project": {Type: "string", Description: "Project name"},
					"memoryType": {Type: "string", Description: "Filter to a single memory type",
						Enum: []string{"fact", "preference", "decision", "observation", "context"}},
					"limit": {Type: "number", Description: "Maximum items to return (default 50)",
						Default: 50},
					"all": {Type: "boolean", Description: "Include merged-away and archived items",
						Default: false},
				},
				Required: []string{"project"},
			},
		},
		{
			Name: "dedup_detect",
			Description: "Scan a project for near-duplicate memories. Returns candidate groups " +
				"with similarity scores and confidence levels. Set createProposals=true to " +
				"also file merge proposals for the groups found.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"project": {Type: "string", Description: "Project name to scan"},
					"memoryType": {Type: "string", Description: "Restrict the scan to one memory type",
						Enum: []string{"fact", "preference", "decision", "observation", "context"}},
					"threshold": {Type: "number", Description: "Semantic similarity threshold 0.0-1.0 (default 0.85)"},
					"createProposals": {Type: "boolean", Description: "File merge proposals for detected groups",
						Default: false},
				},
				Required: []string{"project"},
			},
		},
		{
			Name: "dedup_proposals",
			Description: "List merge proposals for a project. Each proposal shows the merged " +
				"content that approval would produce, plus any conflict warnings.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"project": {Type: "string", Description: "Project name"},
					"status": {Type: "string", Description: "Filter by proposal status",
						Enum: []string{"pending", "approved", "rejected", "expired"}},
					"limit": {Type: "number", Description: "Maximum proposals to return (default 20)",
						Default: 20},
				},
				Required: []string{"project"},
			},
		},
		{
			Name: "dedup_preview",
			Description: "Preview what approving a proposal would produce right now. " +
				"Flags drift when the source items changed since the proposal was filed.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"proposalId": {Type: "string", Description: "ID of the proposal to preview"},
				},
				Required: []string{"proposalId"},
			},
		},
		{
			Name: "dedup_approve",
			Description: "Approve a merge proposal. The source items are archived into a new " +
				"canonical item, with full snapshots kept so the merge can be reversed.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"proposalId":  {Type: "string", Description: "ID of the proposal to approve"},
					"reviewNotes": {Type: "string", Description: "Optional note recorded with the review"},
				},
				Required: []string{"proposalId"},
			},
		},
		{
			Name: "dedup_reject",
			Description: "Reject a merge proposal. The source items stay untouched and the " +
				"pair will not be re-proposed from the same detection run.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"proposalId":  {Type: "string", Description: "ID of the proposal to reject"},
					"reviewNotes": {Type: "string", Description: "Optional note recorded with the review"},
				},
				Required: []string{"proposalId"},
			},
		},
		{
			Name: "dedup_reverse",
			Description: "Reverse an approved merge. The canonical item is removed and the " +
				"original source items are restored byte-for-byte from their snapshots.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"historyId": {Type: "string", Description: "ID of the merge history record to reverse"},
					"reason":    {Type: "string", Description: "Why the merge is being reversed"},
				},
				Required: []string{"historyId"},
			},
		},
		{
			Name: "dedup_stats",
			Description: "Deduplication statistics for a project: item counts by state and " +
				"type, proposal counts by status, merges performed and reversed, tokens saved.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"project": {Type: "string", Description: "Project name"},
				},
				Required: []string{"project"},
			},
		},
	}
}
