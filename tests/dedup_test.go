package tests

import (
	"math"
	"net/http"
	"strings"
	"testing"

	"github.com/memfold/memfold/internal/models"
)

func listProposals(t *testing.T, baseURL, project, status string) models.ProposalListResponse {
	t.Helper()
	url := baseURL + "/projects/" + project + "/dedup/proposals"
	if status != "" {
		url += "?status=" + status
	}
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("list proposals: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		t.Fatalf("list proposals: expected 200, got %d", resp.StatusCode)
	}
	var out models.ProposalListResponse
	decodeInto(t, resp, &out)
	return out
}

// seedStandupFacts stores the near-duplicate fact pair plus one unrelated
// fact and returns the pair's IDs.
func seedStandupFacts(t *testing.T, baseURL, project string) (string, string) {
	t.Helper()
	first := storeMemory(t, baseURL, project, models.StoreRequest{
		Content:    "weekly standup meeting moved to tuesday mornings at nine.",
		MemoryType: models.MemoryTypeFact,
		Tags:       []string{"meetings", "schedule"},
		Confidence: 0.9,
	})
	second := storeMemory(t, baseURL, project, models.StoreRequest{
		Content:    "weekly standup meeting moved to tuesday mornings at nine. coffee provided.",
		MemoryType: models.MemoryTypeFact,
		Tags:       []string{"meetings"},
		Confidence: 0.8,
	})
	storeMemory(t, baseURL, project, models.StoreRequest{
		Content:    "the deploy pipeline runs on jenkins every night at two.",
		MemoryType: models.MemoryTypeFact,
		Tags:       []string{"ci"},
		Confidence: 0.9,
	})
	return first.ID, second.ID
}

func TestDetectCreatesProposal(t *testing.T) {
	srv, cleanup := setupIntegrationTest(t)
	defer cleanup()

	id1, id2 := seedStandupFacts(t, srv.URL, "worklog")

	result := runDetect(t, srv.URL, "worklog", models.DetectRequest{AutoCreateProposals: true})

	if result.Stats.ItemsScanned != 3 {
		t.Fatalf("expected 3 items scanned, got %d", result.Stats.ItemsScanned)
	}
	if result.Stats.PairsCompared != 3 {
		t.Fatalf("expected 3 pairs compared, got %d", result.Stats.PairsCompared)
	}
	if result.Stats.Stage1Candidates != 1 {
		t.Fatalf("expected 1 stage-1 candidate, got %d", result.Stats.Stage1Candidates)
	}
	if len(result.Candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(result.Candidates))
	}

	c := result.Candidates[0]
	if !sameIDSet([]string{c.ID1, c.ID2}, []string{id1, id2}) {
		t.Fatalf("candidate pair mismatch: %s/%s", c.ID1, c.ID2)
	}
	if c.Method != models.MethodEmbedding {
		t.Fatalf("ranked candidates carry the embedding method, got %s", c.Method)
	}
	if c.Similarity < 0.9 || c.Similarity > 1.0 {
		t.Fatalf("similarity out of expected range: %v", c.Similarity)
	}
	if c.Confidence != models.ConfidenceHigh {
		t.Fatalf("same type plus shared tags at this score should be high, got %s", c.Confidence)
	}
	if math.Abs(c.MinhashSimilarity-0.7421875) > 1e-9 {
		t.Fatalf("unexpected minhash similarity: %v", c.MinhashSimilarity)
	}

	if len(result.ProposalsCreated) != 1 {
		t.Fatalf("expected 1 proposal created, got %v", result.ProposalsCreated)
	}

	listed := listProposals(t, srv.URL, "worklog", "pending")
	if listed.Total != 1 {
		t.Fatalf("expected 1 pending proposal, got %d", listed.Total)
	}
	p := listed.Proposals[0]
	if !sameIDSet(p.SourceIDs, []string{id1, id2}) {
		t.Fatalf("proposal sources mismatch: %v", p.SourceIDs)
	}
	want := "coffee provided. weekly standup meeting moved to tuesday mornings at nine."
	if p.ProposedContent != want {
		t.Fatalf("proposed content mismatch:\n got %q\nwant %q", p.ProposedContent, want)
	}
	if len(p.ProposedTags) != 2 || p.ProposedTags[0] != "meetings" || p.ProposedTags[1] != "schedule" {
		t.Fatalf("expected sorted tag union, got %v", p.ProposedTags)
	}
	if p.MergeReason != "merged 2 overlapping facts into one" {
		t.Fatalf("unexpected merge reason: %q", p.MergeReason)
	}
	if p.ExpiresAt == nil || *p.ExpiresAt <= p.CreatedAt {
		t.Fatal("proposal should carry a future expiry")
	}

	// A pair that is already awaiting review is not re-proposed.
	again := runDetect(t, srv.URL, "worklog", models.DetectRequest{AutoCreateProposals: true})
	if len(again.ProposalsCreated) != 0 {
		t.Fatalf("pending pair was proposed twice: %v", again.ProposalsCreated)
	}
	if listed := listProposals(t, srv.URL, "worklog", "pending"); listed.Total != 1 {
		t.Fatalf("expected the single pending proposal to remain, got %d", listed.Total)
	}
}

func TestDetectStage1Only(t *testing.T) {
	srv, cleanup := setupIntegrationTest(t)
	defer cleanup()

	seedStandupFacts(t, srv.URL, "worklog")

	result := runDetect(t, srv.URL, "worklog", models.DetectRequest{
		Stage1Only:          true,
		AutoCreateProposals: true,
	})

	if len(result.Candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(result.Candidates))
	}
	c := result.Candidates[0]
	if c.Method != models.MethodMinhash {
		t.Fatalf("this pair passes stage 1 on minhash alone, got %s", c.Method)
	}
	if c.Confidence != models.ConfidenceLow {
		t.Fatalf("stage-1 scores are approximations, confidence must be low, got %s", c.Confidence)
	}
	if math.Abs(c.Similarity-0.921875) > 1e-9 {
		t.Fatalf("stage-1 similarity should be the stronger signal, got %v", c.Similarity)
	}

	// Diagnostics never write proposals, even when asked to.
	if len(result.ProposalsCreated) != 0 {
		t.Fatalf("stage-1-only run created proposals: %v", result.ProposalsCreated)
	}
	if listed := listProposals(t, srv.URL, "worklog", ""); listed.Total != 0 {
		t.Fatalf("expected no proposals, got %d", listed.Total)
	}
}

func TestDetectThresholdOverride(t *testing.T) {
	srv, cleanup := setupIntegrationTest(t)
	defer cleanup()

	// This pair lands around 0.89 on the semantic stage.
	storeMemory(t, srv.URL, "ops", models.StoreRequest{
		Content:    "grafana admin password = hunter2swordfish for the staging dashboard.",
		MemoryType: models.MemoryTypeFact,
		Confidence: 0.9,
	})
	storeMemory(t, srv.URL, "ops", models.StoreRequest{
		Content:    "grafana admin password = hunter2swordfish for the stage dashboard.",
		MemoryType: models.MemoryTypeFact,
		Confidence: 0.9,
	})

	strict := 0.95
	result := runDetect(t, srv.URL, "ops", models.DetectRequest{Threshold: &strict})
	if len(result.Candidates) != 0 {
		t.Fatalf("expected no candidates at 0.95, got %d", len(result.Candidates))
	}

	loose := 0.85
	result = runDetect(t, srv.URL, "ops", models.DetectRequest{Threshold: &loose})
	if len(result.Candidates) != 1 {
		t.Fatalf("expected 1 candidate at 0.85, got %d", len(result.Candidates))
	}

	bad := 1.5
	resp := post(t, srv.URL+"/projects/ops/dedup/detect", models.DetectRequest{Threshold: &bad})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("threshold 1.5 should be rejected, got %d", resp.StatusCode)
	}
}

func TestCrossTypeCandidateNotProposed(t *testing.T) {
	srv, cleanup := setupIntegrationTest(t)
	defer cleanup()

	storeMemory(t, srv.URL, "builds", models.StoreRequest{
		Content:    "the build cache misses spike after lockfile updates.",
		MemoryType: models.MemoryTypeObservation,
		Confidence: 0.8,
	})
	storeMemory(t, srv.URL, "builds", models.StoreRequest{
		Content:    "the build cache misses spike after the lockfile updates.",
		MemoryType: models.MemoryTypeDecision,
		Confidence: 0.8,
	})

	// The raw stage-1 view reports the near-identical wording.
	stage1 := runDetect(t, srv.URL, "builds", models.DetectRequest{Stage1Only: true})
	if len(stage1.Candidates) != 1 {
		t.Fatalf("stage 1 should report the cross-type pair, got %d candidates", len(stage1.Candidates))
	}

	// The full pipeline drops the pair before ranking, so nothing is proposed.
	result := runDetect(t, srv.URL, "builds", models.DetectRequest{AutoCreateProposals: true})
	if result.Stats.Stage1Candidates != 1 {
		t.Fatalf("stage-1 stats should count the pair, got %d", result.Stats.Stage1Candidates)
	}
	if len(result.Candidates) != 0 {
		t.Fatalf("cross-type pairs must not survive ranking, got %d candidates", len(result.Candidates))
	}
	if len(result.ProposalsCreated) != 0 {
		t.Fatalf("cross-type pair must not be proposed: %v", result.ProposalsCreated)
	}
	if listed := listProposals(t, srv.URL, "builds", ""); listed.Total != 0 {
		t.Fatalf("expected no proposals, got %d", listed.Total)
	}
}

func TestSecretsSurfaceInProposalWarnings(t *testing.T) {
	srv, cleanup := setupIntegrationTest(t)
	defer cleanup()

	first := storeMemory(t, srv.URL, "ops", models.StoreRequest{
		Content:    "grafana admin password = hunter2swordfish for the staging dashboard.",
		MemoryType: models.MemoryTypeFact,
		Confidence: 0.9,
	})
	if !first.HasSecrets {
		t.Fatal("password assignment should be flagged at ingest")
	}
	storeMemory(t, srv.URL, "ops", models.StoreRequest{
		Content:    "grafana admin password = hunter2swordfish for the stage dashboard.",
		MemoryType: models.MemoryTypeFact,
		Confidence: 0.9,
	})

	result := runDetect(t, srv.URL, "ops", models.DetectRequest{AutoCreateProposals: true})
	if len(result.ProposalsCreated) != 1 {
		t.Fatalf("secrets warn but do not block, expected 1 proposal, got %v", result.ProposalsCreated)
	}

	p := listProposals(t, srv.URL, "ops", "pending").Proposals[0]
	joined := strings.Join(p.ConflictWarnings, "\n")
	if !strings.Contains(joined, "may contain secrets") {
		t.Fatalf("expected a secrets warning on the proposal, got %v", p.ConflictWarnings)
	}
}

func TestRejectProposal(t *testing.T) {
	srv, cleanup := setupIntegrationTest(t)
	defer cleanup()

	first := storeMemory(t, srv.URL, "prefs", models.StoreRequest{
		Content:    "prefers tabs over spaces for indentation in go files.",
		MemoryType: models.MemoryTypePreference,
		Tags:       []string{"style", "go"},
		Confidence: 0.9,
	})
	second := storeMemory(t, srv.URL, "prefs", models.StoreRequest{
		Content:    "prefers tabs over spaces for indentation in all go files.",
		MemoryType: models.MemoryTypePreference,
		Tags:       []string{"style"},
		Confidence: 0.9,
	})

	result := runDetect(t, srv.URL, "prefs", models.DetectRequest{AutoCreateProposals: true})
	if len(result.ProposalsCreated) != 1 {
		t.Fatalf("expected 1 proposal, got %v", result.ProposalsCreated)
	}
	proposalID := result.ProposalsCreated[0]

	p := listProposals(t, srv.URL, "prefs", "pending").Proposals[0]
	if !strings.Contains(strings.Join(p.ConflictWarnings, "\n"), "preferences diverge") {
		t.Fatalf("expected a divergence warning, got %v", p.ConflictWarnings)
	}
	if p.ProposedContent != "prefers tabs over spaces for indentation in go files." &&
		p.ProposedContent != "prefers tabs over spaces for indentation in all go files." {
		t.Fatalf("preference merge must keep one statement verbatim, got %q", p.ProposedContent)
	}

	resp := post(t, srv.URL+"/dedup/proposals/"+proposalID+"/reject",
		models.ReviewRequest{ReviewNotes: "these are different scopes"})
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		t.Fatalf("reject: expected 200, got %d", resp.StatusCode)
	}
	var rejected models.MergeProposal
	decodeInto(t, resp, &rejected)
	if rejected.Status != models.ProposalRejected {
		t.Fatalf("expected rejected status, got %s", rejected.Status)
	}
	if rejected.ReviewNotes != "these are different scopes" {
		t.Fatalf("review notes not recorded: %q", rejected.ReviewNotes)
	}
	if rejected.ReviewedAt == nil {
		t.Fatal("expected a review timestamp")
	}

	// A decided proposal cannot be approved afterwards.
	resp = post(t, srv.URL+"/dedup/proposals/"+proposalID+"/approve", models.ReviewRequest{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("approve after reject: expected 409, got %d", resp.StatusCode)
	}

	// Rejection leaves both items untouched.
	for _, id := range []string{first.ID, second.ID} {
		if item := getItem(t, srv.URL, id); !item.IsActive || item.IsMerged {
			t.Fatalf("item %s should be untouched after reject", id)
		}
	}

	// Rejection is not permanent suppression: the next run may re-propose.
	again := runDetect(t, srv.URL, "prefs", models.DetectRequest{AutoCreateProposals: true})
	if len(again.ProposalsCreated) != 1 {
		t.Fatalf("rejected pair should be proposable again, got %v", again.ProposalsCreated)
	}
}

func TestCacheRebuildEndpoint(t *testing.T) {
	srv, cleanup := setupIntegrationTest(t)
	defer cleanup()

	contents := []string{
		"vault tokens rotate every thirty days in production.",
		"the android build needs java seventeen since gradle eight.",
		"customer exports run from the replica, never the primary.",
	}
	for _, c := range contents {
		storeMemory(t, srv.URL, "runbook", models.StoreRequest{
			Content: c, MemoryType: models.MemoryTypeFact, Confidence: 0.9,
		})
	}

	resp := post(t, srv.URL+"/projects/runbook/dedup/cache/rebuild", nil)
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		t.Fatalf("rebuild: expected 200, got %d", resp.StatusCode)
	}
	var rebuilt models.RebuildResponse
	decodeInto(t, resp, &rebuilt)
	if rebuilt.Processed != 3 || rebuilt.Succeeded != 3 || rebuilt.Failed != 0 {
		t.Fatalf("unexpected rebuild counts: %+v", rebuilt)
	}
	// Every item was embedded on store, so the backfill has nothing to do.
	if rebuilt.Embedded != 0 {
		t.Fatalf("expected no backfilled embeddings, got %d", rebuilt.Embedded)
	}

	stats := getStats(t, srv.URL, "runbook")
	if stats.CacheEntries != 3 {
		t.Fatalf("expected 3 cache entries, got %d", stats.CacheEntries)
	}
	if stats.ItemsMissingCache != 0 {
		t.Fatalf("expected no missing entries, got %d", stats.ItemsMissingCache)
	}

	// These three items share nothing; detection should stay quiet.
	result := runDetect(t, srv.URL, "runbook", models.DetectRequest{})
	if len(result.Candidates) != 0 {
		t.Fatalf("expected no candidates, got %d", len(result.Candidates))
	}

	// Nothing is due for expiry on a fresh store.
	resp = post(t, srv.URL+"/dedup/expire", nil)
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		t.Fatalf("expire: expected 200, got %d", resp.StatusCode)
	}
	var expired map[string]int64
	decodeInto(t, resp, &expired)
	if expired["expired"] != 0 {
		t.Fatalf("expected 0 expired, got %d", expired["expired"])
	}
}
