// Package pubsub defines the three named channels of the job queue & bus
// (C4) and the versioned event envelopes carried on them. Topics are plain
// string constants so callers and encore.dev/pubsub topic declarations never
// drift apart.
package pubsub

// Channel name constants, bit-exact per the hot-store pub/sub contract.
const (
	// ChannelCacheInvalidate carries {memoryId, operation}; subscribers
	// remove the id from every cache tier and clear the search cache.
	ChannelCacheInvalidate = "cache:invalidate"

	// ChannelMemoryProcess carries {memoryId, priority}; subscribers
	// re-fetch the memory from the cloud and re-cache it.
	ChannelMemoryProcess = "memory:process"

	// ChannelJobComplete carries {jobId, result|error}; subscribers resolve
	// or reject the matching pending-job entry.
	ChannelJobComplete = "job:complete"
)

// AllChannels returns all defined channel names.
func AllChannels() []string {
	return []string{ChannelCacheInvalidate, ChannelMemoryProcess, ChannelJobComplete}
}

// IsValidChannel reports whether name is one of the recognized channels.
func IsValidChannel(name string) bool {
	for _, c := range AllChannels() {
		if c == name {
			return true
		}
	}
	return false
}
