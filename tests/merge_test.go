package tests

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/memfold/memfold/internal/models"
)

func getHistory(t *testing.T, baseURL, project string) []*models.MergeHistory {
	t.Helper()
	resp, err := http.Get(baseURL + "/projects/" + project + "/dedup/history")
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	var out struct {
		History []*models.MergeHistory `json:"history"`
	}
	decodeInto(t, resp, &out)
	return out.History
}

func approveProposal(t *testing.T, baseURL, proposalID string) models.ApproveResponse {
	t.Helper()
	resp := post(t, baseURL+"/dedup/proposals/"+proposalID+"/approve", models.ReviewRequest{})
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		t.Fatalf("approve: expected 200, got %d", resp.StatusCode)
	}
	var out models.ApproveResponse
	decodeInto(t, resp, &out)
	return out
}

func reverseMerge(t *testing.T, baseURL, historyID string, req models.ReverseRequest) (int, models.ReverseResponse) {
	t.Helper()
	resp := post(t, baseURL+"/dedup/history/"+historyID+"/reverse", req)
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return resp.StatusCode, models.ReverseResponse{}
	}
	var out models.ReverseResponse
	decodeInto(t, resp, &out)
	return http.StatusOK, out
}

func TestMergeApproveReverseFlow(t *testing.T) {
	srv, cleanup := setupIntegrationTest(t)
	defer cleanup()

	id1, id2 := seedStandupFacts(t, srv.URL, "workflow")

	result := runDetect(t, srv.URL, "workflow", models.DetectRequest{AutoCreateProposals: true})
	if len(result.ProposalsCreated) != 1 {
		t.Fatalf("expected 1 proposal, got %v", result.ProposalsCreated)
	}
	proposalID := result.ProposalsCreated[0]
	wantContent := "coffee provided. weekly standup meeting moved to tuesday mornings at nine."

	// Preview shows the live recomputation against unchanged sources.
	resp, err := http.Get(srv.URL + "/dedup/proposals/" + proposalID + "/preview")
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		t.Fatalf("preview: expected 200, got %d", resp.StatusCode)
	}
	var preview models.PreviewResponse
	decodeInto(t, resp, &preview)
	if len(preview.Sources) != 2 {
		t.Fatalf("expected 2 sources in preview, got %d", len(preview.Sources))
	}
	if preview.Drifted {
		t.Fatal("sources are untouched, preview must not report drift")
	}
	if preview.Live.Content != wantContent {
		t.Fatalf("live preview content mismatch: %q", preview.Live.Content)
	}
	if preview.Live.TokensSaved != 15 {
		t.Fatalf("expected 15 tokens saved, got %d", preview.Live.TokensSaved)
	}

	approved := approveProposal(t, srv.URL, proposalID)
	if approved.ProposalID != proposalID {
		t.Fatalf("approve echoed wrong proposal: %s", approved.ProposalID)
	}
	if approved.CanonicalID == "" || approved.HistoryID == "" {
		t.Fatalf("approve must name the canonical and history rows: %+v", approved)
	}
	if approved.TokensSaved != 15 {
		t.Fatalf("expected 15 tokens saved, got %d", approved.TokensSaved)
	}

	canonical := getItem(t, srv.URL, approved.CanonicalID)
	if canonical.Content != wantContent {
		t.Fatalf("canonical content mismatch: %q", canonical.Content)
	}
	if !canonical.IsCanonical || !canonical.IsActive || canonical.IsMerged {
		t.Fatalf("bad canonical flags: %+v", canonical)
	}
	if canonical.MergeVersion != 1 {
		t.Fatalf("first merge should produce version 1, got %d", canonical.MergeVersion)
	}
	if !sameIDSet(canonical.MergeSourceIDs, []string{id1, id2}) {
		t.Fatalf("canonical sources mismatch: %v", canonical.MergeSourceIDs)
	}
	if canonical.Summary != "Consolidated 2 facts" {
		t.Fatalf("unexpected canonical summary: %q", canonical.Summary)
	}

	for _, id := range []string{id1, id2} {
		src := getItem(t, srv.URL, id)
		if src.IsActive || !src.IsMerged {
			t.Fatalf("source %s should be archived", id)
		}
		if src.MergedIntoID == nil || *src.MergedIntoID != approved.CanonicalID {
			t.Fatalf("source %s should point at the canonical", id)
		}
	}

	if listed := listProposals(t, srv.URL, "workflow", "approved"); listed.Total != 1 {
		t.Fatalf("expected 1 approved proposal, got %d", listed.Total)
	}

	stats := getStats(t, srv.URL, "workflow")
	if stats.ActiveItems != 2 { // canonical plus the unrelated fact
		t.Fatalf("expected 2 active items, got %d", stats.ActiveItems)
	}
	if stats.MergedItems != 2 || stats.CanonicalItems != 1 {
		t.Fatalf("unexpected merge counters: %+v", stats)
	}
	if stats.HistoryCount != 1 || stats.TokensSaved != 15 {
		t.Fatalf("unexpected history counters: %+v", stats)
	}

	history := getHistory(t, srv.URL, "workflow")
	if len(history) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(history))
	}
	h := history[0]
	if h.ID != approved.HistoryID || h.CanonicalID != approved.CanonicalID {
		t.Fatalf("history does not match approve response: %+v", h)
	}
	if h.Strategy != "fact" {
		t.Fatalf("expected fact strategy, got %s", h.Strategy)
	}
	if len(h.Snapshots) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(h.Snapshots))
	}
	if h.IsReversed {
		t.Fatal("fresh merge must not be reversed")
	}

	status, reversed := reverseMerge(t, srv.URL, approved.HistoryID, models.ReverseRequest{
		Reason:     "merged too eagerly",
		ReversedBy: "reviewer-1",
	})
	if status != http.StatusOK {
		t.Fatalf("reverse: expected 200, got %d", status)
	}
	if !sameIDSet(reversed.RestoredIDs, []string{id1, id2}) {
		t.Fatalf("expected both sources restored, got %v", reversed.RestoredIDs)
	}

	for _, id := range []string{id1, id2} {
		src := getItem(t, srv.URL, id)
		if !src.IsActive || src.IsMerged || src.MergedIntoID != nil {
			t.Fatalf("source %s should be fully restored: %+v", id, src)
		}
	}
	if c := getItem(t, srv.URL, approved.CanonicalID); c.IsActive {
		t.Fatal("reversed canonical should be retired")
	}

	h = getHistory(t, srv.URL, "workflow")[0]
	if !h.IsReversed || h.ReversedAt == nil {
		t.Fatal("history should record the reversal")
	}
	if h.ReversedBy != "reviewer-1" || h.ReverseNote != "merged too eagerly" {
		t.Fatalf("reversal attribution missing: by=%q note=%q", h.ReversedBy, h.ReverseNote)
	}

	stats = getStats(t, srv.URL, "workflow")
	if stats.ActiveItems != 3 || stats.MergedItems != 0 || stats.CanonicalItems != 0 {
		t.Fatalf("counters after reverse: %+v", stats)
	}
	if stats.ReversedCount != 1 || stats.TokensSaved != 0 {
		t.Fatalf("reversal counters: %+v", stats)
	}

	// Reversal is one-shot.
	status, _ = reverseMerge(t, srv.URL, approved.HistoryID, models.ReverseRequest{})
	if status != http.StatusConflict {
		t.Fatalf("second reverse: expected 409, got %d", status)
	}

	// The restored pair is detectable again.
	result = runDetect(t, srv.URL, "workflow", models.DetectRequest{})
	if len(result.Candidates) != 1 {
		t.Fatalf("restored pair should be detectable, got %d candidates", len(result.Candidates))
	}
}

func TestPreviewDetectsSourceDrift(t *testing.T) {
	srv, cleanup := setupIntegrationTest(t)
	defer cleanup()

	_, id2 := seedStandupFacts(t, srv.URL, "drift")
	result := runDetect(t, srv.URL, "drift", models.DetectRequest{AutoCreateProposals: true})
	proposalID := result.ProposalsCreated[0]

	// Edit one source while the proposal waits for review.
	newContent := "weekly standup meeting moved to tuesday mornings at nine. coffee and tea provided."
	body, _ := json.Marshal(models.UpdateRequest{Content: &newContent})
	patch, _ := http.NewRequest(http.MethodPatch, srv.URL+"/memories/"+id2, strings.NewReader(string(body)))
	patch.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(patch)
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch: expected 200, got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/dedup/proposals/" + proposalID + "/preview")
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	var preview models.PreviewResponse
	decodeInto(t, resp, &preview)
	if !preview.Drifted {
		t.Fatal("preview should flag that a source changed since detection")
	}
	if preview.Live.Content == preview.Proposal.ProposedContent {
		t.Fatal("live output should differ from the stored proposal")
	}
}

func TestApproveIsOneShotUnderConcurrency(t *testing.T) {
	srv, cleanup := setupIntegrationTest(t)
	defer cleanup()

	seedStandupFacts(t, srv.URL, "race")
	result := runDetect(t, srv.URL, "race", models.DetectRequest{AutoCreateProposals: true})
	if len(result.ProposalsCreated) != 1 {
		t.Fatalf("expected 1 proposal, got %v", result.ProposalsCreated)
	}
	url := srv.URL + "/dedup/proposals/" + result.ProposalsCreated[0] + "/approve"

	codes := make(chan int, 2)
	for i := 0; i < 2; i++ {
		go func() {
			resp, err := http.Post(url, "application/json", strings.NewReader("{}"))
			if err != nil {
				codes <- 0
				return
			}
			resp.Body.Close()
			codes <- resp.StatusCode
		}()
	}
	first, second := <-codes, <-codes
	if !(first == http.StatusOK && second == http.StatusConflict) &&
		!(first == http.StatusConflict && second == http.StatusOK) {
		t.Fatalf("expected exactly one approval to win, got %d and %d", first, second)
	}

	stats := getStats(t, srv.URL, "race")
	if stats.CanonicalItems != 1 {
		t.Fatalf("racing approvals produced %d canonicals", stats.CanonicalItems)
	}
	if stats.HistoryCount != 1 {
		t.Fatalf("racing approvals produced %d history rows", stats.HistoryCount)
	}
}

func TestChainedMergeReversalOrder(t *testing.T) {
	srv, cleanup := setupIntegrationTest(t)
	defer cleanup()

	storeMemory(t, srv.URL, "chains", models.StoreRequest{
		Content:    "incident runbook lives in the ops wiki under runbooks.",
		MemoryType: models.MemoryTypeFact,
		Confidence: 0.9,
	})
	storeMemory(t, srv.URL, "chains", models.StoreRequest{
		Content:    "incident runbook lives in the ops wiki under runbooks. update quarterly.",
		MemoryType: models.MemoryTypeFact,
		Confidence: 0.9,
	})

	result := runDetect(t, srv.URL, "chains", models.DetectRequest{AutoCreateProposals: true})
	if len(result.ProposalsCreated) != 1 {
		t.Fatalf("first merge: expected 1 proposal, got %v", result.ProposalsCreated)
	}
	first := approveProposal(t, srv.URL, result.ProposalsCreated[0])

	// A near-duplicate of the canonical arrives later.
	storeMemory(t, srv.URL, "chains", models.StoreRequest{
		Content:    "incident runbook lives in the ops wiki under runbooks. update quarterly. review after drills.",
		MemoryType: models.MemoryTypeFact,
		Confidence: 0.9,
	})

	result = runDetect(t, srv.URL, "chains", models.DetectRequest{AutoCreateProposals: true})
	if len(result.ProposalsCreated) != 1 {
		t.Fatalf("second merge: expected 1 proposal, got %v", result.ProposalsCreated)
	}
	second := approveProposal(t, srv.URL, result.ProposalsCreated[0])

	if c := getItem(t, srv.URL, second.CanonicalID); c.MergeVersion != 2 {
		t.Fatalf("stacked merge should bump the version to 2, got %d", c.MergeVersion)
	}

	// The first merge's canonical is now a source of the second; reversing
	// the first would leave that merge dangling.
	status, _ := reverseMerge(t, srv.URL, first.HistoryID, models.ReverseRequest{})
	if status != http.StatusConflict {
		t.Fatalf("reversing under a stacked merge: expected 409, got %d", status)
	}

	// Unwinding newest-first works.
	status, _ = reverseMerge(t, srv.URL, second.HistoryID, models.ReverseRequest{})
	if status != http.StatusOK {
		t.Fatalf("reverse second merge: expected 200, got %d", status)
	}
	status, _ = reverseMerge(t, srv.URL, first.HistoryID, models.ReverseRequest{})
	if status != http.StatusOK {
		t.Fatalf("reverse first merge after unwinding: expected 200, got %d", status)
	}

	stats := getStats(t, srv.URL, "chains")
	if stats.ActiveItems != 3 {
		t.Fatalf("expected the 3 original items back, got %d active", stats.ActiveItems)
	}
	if stats.MergedItems != 0 || stats.CanonicalItems != 0 {
		t.Fatalf("counters after full unwind: %+v", stats)
	}
	if stats.ReversedCount != 2 {
		t.Fatalf("expected 2 reversals, got %d", stats.ReversedCount)
	}
}

func TestReverseUnknownHistory(t *testing.T) {
	srv, cleanup := setupIntegrationTest(t)
	defer cleanup()

	status, _ := reverseMerge(t, srv.URL, "no-such-history", models.ReverseRequest{})
	if status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
}
