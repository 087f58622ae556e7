package ids

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// Snowflake mints time-ordered int64 identity ids. Each instance needs its
// own node number.
type Snowflake struct {
	node *snowflake.Node
}

func NewSnowflake(node int64) (*Snowflake, error) {
	n, err := snowflake.NewNode(node)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", node, err)
	}
	return &Snowflake{node: n}, nil
}

func (s *Snowflake) NextID() int64 {
	return s.node.Generate().Int64()
}
