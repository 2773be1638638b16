package models

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorIsMatchesKindOnly(t *testing.T) {
	e1 := NewJobTimeout("job-1")
	e2 := NewJobTimeout("job-2")

	if !errors.Is(e1, e2) {
		t.Error("expected two JobTimeout errors of the same kind to match via errors.Is")
	}
	if errors.Is(e1, NewCacheTimeout("get")) {
		t.Error("expected different kinds to not match")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	e := NewHotStoreUnavailable("get", cause)

	if !errors.Is(e, cause) {
		t.Error("expected wrapped cause to be reachable via errors.Is")
	}
}

func TestDuplicateMemoryCarriesFields(t *testing.T) {
	e := NewDuplicateMemory("mem-42", 0.91)
	if e.ExistingID != "mem-42" || e.Similarity != 0.91 {
		t.Errorf("expected fields to roundtrip, got %+v", e)
	}
}

func TestKindIsRetryable(t *testing.T) {
	retryable := []Kind{KindHotStoreUnavailable, KindHotStoreOperation, KindCloudServer5xx, KindCloudNetwork}
	for _, k := range retryable {
		if !k.IsRetryable() {
			t.Errorf("expected %s to be retryable", k)
		}
	}
	nonRetryable := []Kind{KindValidation, KindDuplicateMemory, KindCloudClient4xx, KindJobTimeout}
	for _, k := range nonRetryable {
		if k.IsRetryable() {
			t.Errorf("expected %s to not be retryable", k)
		}
	}
}
