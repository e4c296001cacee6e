// Package bridge wires two peer pools so that each pool broadcasts into the
// other.
package bridge

import "github.com/omochice/bridge-chat/internal/chat"

// Side is the registry pair an accepted connection is bound to: it joins
// Own and its lines are broadcast to Target.
type Side struct {
	Own    *chat.Registry
	Target *chat.Registry
}

// Name returns the name of the pool the side's peers join.
func (s Side) Name() string {
	return s.Own.Name()
}

// Spawn creates the Agent for a connection accepted on this side.
func (s Side) Spawn(conn chat.Conn, cfg chat.AgentConfig) *chat.Agent {
	return chat.NewAgent(conn, s.Own, s.Target, cfg)
}

// Bridge holds the two sides. It has no state beyond the registries.
type Bridge struct {
	A Side
	B Side
}

// New creates a Bridge between two fresh pools named nameA and nameB.
func New(nameA, nameB string) *Bridge {
	regA := chat.NewRegistry(nameA)
	regB := chat.NewRegistry(nameB)
	return &Bridge{
		A: Side{Own: regA, Target: regB},
		B: Side{Own: regB, Target: regA},
	}
}
