package engine

import (
	"context"
	"testing"

	"memhybrid.app/cachemanager"
	"memhybrid.app/pkg/cloudclient"
	"memhybrid.app/pkg/degradation"
	"memhybrid.app/pkg/hotstore"
	"memhybrid.app/pkg/models"
	"memhybrid.app/pkg/utils"
)

func TestDispatchToCloudPutsLowPriorityMemoryAtL1TTL(t *testing.T) {
	store, mr, err := hotstore.NewSubstitute()
	if err != nil {
		t.Fatalf("NewSubstitute() error = %v", err)
	}
	t.Cleanup(func() {
		store.Close()
		mr.Close()
	})

	cloud := cloudclient.NewDemo()
	degr := degradation.New(store, false, degradation.ModeHybrid)
	cfg := cachemanager.DefaultConfig()
	manager := cachemanager.New(store, cfg)
	p := newPipeline(cloud, manager, store, degr, noopBus{}, nil)

	result, ok := p.dispatchAsync(context.Background(), AddMemoryParams{
		UserID: "u1",
		Input:  models.WriteInput{Content: "a low priority note for ttl checking"},
	}, models.PriorityMedium)
	if !ok {
		t.Fatal("dispatchAsync() ok = false")
	}
	if _, err := p.WaitForJob(result.JobID); err != nil {
		t.Fatalf("WaitForJob() error = %v", err)
	}

	all, err := cloud.ListAll(context.Background(), "u1", 10)
	if err != nil || len(all) == 0 {
		t.Fatalf("ListAll() = %+v, err = %v", all, err)
	}

	ttl, err := store.TTL(context.Background(), utils.MemoryKey(all[0].ID))
	if err != nil {
		t.Fatalf("TTL() error = %v", err)
	}
	// §4.5 step 3c: every async-path write lands at L1 TTL for
	// read-your-writes, even for a medium-priority memory that would
	// otherwise place at L2.
	if ttl <= 0 || ttl > cfg.L1TTL {
		t.Errorf("cached medium-priority async write TTL = %v, want (0, %v]", ttl, cfg.L1TTL)
	}
}
