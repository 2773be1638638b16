package hotstore

import (
	"github.com/alicebob/miniredis/v2"
)

// NewSubstitute starts an in-process miniredis server and returns a
// RedisClient pointed at it. The Demo and HotOnly-without-a-real-Redis
// degradation modes use this so the engine still has a working cache tier
// with no external process to stand up; tests use it for the same reason.
//
// The caller owns the returned miniredis.Miniredis and must call its Close
// once the RedisClient is done with it.
func NewSubstitute() (*RedisClient, *miniredis.Miniredis, error) {
	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, err
	}
	return New(Options{Addr: mr.Addr()}), mr, nil
}
