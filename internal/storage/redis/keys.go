package redis

import (
	"fmt"

	"github.com/mcoot/relsync/internal/model"
)

// Key prefix for all cached profile data
const keyPrefix = "relsync"

// profileKey returns the Redis key for a cached profile
func profileKey(id model.PeerID) string {
	return fmt.Sprintf("%s:profile:%d", keyPrefix, id)
}

// selfMarkerKey returns the Redis key holding the id of the self record
func selfMarkerKey() string {
	return fmt.Sprintf("%s:self", keyPrefix)
}
