package engine

import (
	"context"

	"memhybrid.app/pkg/cloudclient"
	"memhybrid.app/pkg/models"
	"memhybrid.app/pkg/utils"
)

// duplicateThreshold is the Jaccard similarity at or above which a write is
// rejected as a near-duplicate (§4.8).
const duplicateThreshold = 0.85

// duplicateCandidates is the maximum number of cloud search results
// compared against the incoming text.
const duplicateCandidates = 5

// duplicatePrefixLen is how much of the incoming text is used as the cloud
// search query for candidate retrieval (§4.8: "first 100 chars").
const duplicatePrefixLen = 100

// duplicateAuditor is the subset of *DuplicateAuditLog the pipeline
// depends on, broken out the same way invalidation/service.go extracts
// AuditLoggerInterface so tests can substitute an in-memory recorder
// instead of a real Postgres connection.
type duplicateAuditor interface {
	Record(ctx context.Context, userID, candidateID string, similarity float64, rejected bool) error
}

// checkDuplicate runs the duplicate detector (C8): it searches the cloud
// for near-matches on a prefix of text and compares each candidate with
// Jaccard similarity. A cloud search failure fails open - it never blocks a
// write, it just skips the check. audit may be nil, in which case no
// verdict is persisted.
func checkDuplicate(ctx context.Context, cloud cloudclient.Client, audit duplicateAuditor, userID, text string) (*models.Error, error) {
	if text == "" {
		return nil, nil
	}
	prefix := text
	if len(prefix) > duplicatePrefixLen {
		prefix = prefix[:duplicatePrefixLen]
	}

	candidates, err := cloud.Search(ctx, userID, prefix, duplicateCandidates)
	if err != nil {
		return nil, nil // fail open: cloud search errors never block a write
	}

	for _, c := range candidates {
		sim := utils.JaccardSimilarity(text, c.Content)
		if sim >= duplicateThreshold {
			if audit != nil {
				_ = audit.Record(ctx, userID, c.ID, sim, true)
			}
			return models.NewDuplicateMemory(c.ID, sim), nil
		}
	}
	return nil, nil
}
