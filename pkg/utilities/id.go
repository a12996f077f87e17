package utilities

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

// NewKSUID generates a new globally unique KSUID string.
func NewKSUID() string {
	return ksuid.New().String()
}

var (
	nodeMu sync.Mutex
	node   *snowflake.Node
)

// SetSnowflakeNode configures the node used by NewSnowflakeID. It must be
// called before the first ID is generated to take effect.
func SetSnowflakeNode(nodeID int64) error {
	n, err := snowflake.NewNode(nodeID)
	if err != nil {
		return err
	}
	nodeMu.Lock()
	node = n
	nodeMu.Unlock()
	return nil
}

// NewSnowflakeID generates a snowflake ID. Defaults to node 1 when no node was configured.
func NewSnowflakeID() int64 {
	nodeMu.Lock()
	if node == nil {
		// node 1 is always within range
		node, _ = snowflake.NewNode(1)
	}
	n := node
	nodeMu.Unlock()
	return n.Generate().Int64()
}

// NewOpaqueToken returns n cryptographically random bytes hex-encoded.
// Used for session identifiers and SSO nonces.
func NewOpaqueToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hex.EncodeToString(b), nil
}
