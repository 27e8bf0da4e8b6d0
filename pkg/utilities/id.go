package utilities

import (
	"crypto/rand"
	"os"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/segmentio/ksuid"
)

// NewKSUID generates a new globally unique KSUID string.
func NewKSUID() string {
	return ksuid.New().String()
}

// NewULID generates a monotonically sortable ULID string, used for event IDs.
func NewULID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// NewSnowflakeID generates a snowflake ID using a node ID from the
// SNOWFLAKE_NODE environment variable, defaulting to node 1.
func NewSnowflakeID() int64 {
	nodeEnv := os.Getenv("SNOWFLAKE_NODE")
	if nodeEnv == "" {
		return NewSnowflakeIDWithNode(1)
	}
	nodeID, err := strconv.ParseInt(nodeEnv, 10, 64)
	if err != nil {
		return NewSnowflakeIDWithNode(1)
	}
	return NewSnowflakeIDWithNode(nodeID)
}

// NewSnowflakeIDWithNode generates a snowflake ID using the provided node ID.
// Node initialization only fails for out-of-range node IDs; fall back to node 0
// in that case so callers always get an ID.
func NewSnowflakeIDWithNode(nodeID int64) int64 {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		node, _ = snowflake.NewNode(0)
	}
	return node.Generate().Int64()
}
