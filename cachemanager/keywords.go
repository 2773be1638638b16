package cachemanager

import (
	"context"
	"log"

	"memhybrid.app/pkg/hotstore"
	"memhybrid.app/pkg/utils"
)

// indexKeywords extracts tokens from content and records both the forward
// index (keyword:{word} -> set of ids) and the reverse index
// (memory:keywords:{id} -> set of words) needed for O(1) cleanup on delete
// (§3's Keyword index). Called in the background from PutMemory; a failure
// here never fails the write, it only means the memory is not yet
// search-able by keyword until the next PutMemory.
func indexKeywords(ctx context.Context, store hotstore.Client, id, content string) {
	words := utils.ExtractKeywords(content)
	if len(words) == 0 {
		return
	}

	if err := store.SetAdd(ctx, utils.MemoryKeywordsKey(id), words...); err != nil {
		log.Printf("cachemanager: index reverse keywords for %s: %v", id, err)
		return
	}
	for _, w := range words {
		if err := store.SetAdd(ctx, utils.KeywordKey(w), id); err != nil {
			log.Printf("cachemanager: index keyword %q for %s: %v", w, id, err)
		}
	}
}

// deindexKeywords removes id from every keyword set it was indexed under,
// then drops its reverse set. A crash partway through this leaves some
// keyword:{w} sets pointing at a dead id; that is tolerated by design
// (§5's Shared-resource policy) because BatchGet resolves a stale id to a
// miss, and any later PutMemory for the same id rebuilds the index fresh.
func deindexKeywords(ctx context.Context, store hotstore.Client, id string) error {
	words, err := store.SetMembers(ctx, utils.MemoryKeywordsKey(id))
	if err != nil {
		return err
	}
	for _, w := range words {
		if err := store.SetRemove(ctx, utils.KeywordKey(w), id); err != nil {
			log.Printf("cachemanager: deindex keyword %q for %s: %v", w, id, err)
		}
	}
	return store.Del(ctx, utils.MemoryKeywordsKey(id))
}
