package server

import (
	"fmt"
	"net"

	"golang.org/x/sync/errgroup"

	"github.com/omochice/bridge-chat/internal/bridge"
)

// Relay serves both pools of a Bridge: peers accepted on listener A join
// pool A and reach pool B, and the other way round.
type Relay struct {
	bridge *bridge.Bridge
	a      *Server
	b      *Server
}

// NewRelay creates a Relay bridging two fresh pools.
func NewRelay(nameA, nameB string, opts Options) *Relay {
	b := bridge.New(nameA, nameB)
	return &Relay{
		bridge: b,
		a:      New(b.A, opts),
		b:      New(b.B, opts),
	}
}

// Bridge returns the bridge whose pools the Relay serves.
func (r *Relay) Bridge() *bridge.Bridge {
	return r.bridge
}

// ListenAndServe binds both addresses and serves them.
func (r *Relay) ListenAndServe(addrA, addrB string) error {
	lnA, err := net.Listen("tcp", addrA)
	if err != nil {
		return fmt.Errorf("listening for pool %s: %w", r.bridge.A.Name(), err)
	}
	lnB, err := net.Listen("tcp", addrB)
	if err != nil {
		lnA.Close()
		return fmt.Errorf("listening for pool %s: %w", r.bridge.B.Name(), err)
	}
	return r.Serve(lnA, lnB)
}

// Serve accepts on two already bound listeners until Stop is called. If
// either listener fails, both pools are stopped and the error is returned.
func (r *Relay) Serve(lnA, lnB net.Listener) error {
	var g errgroup.Group
	g.Go(func() error {
		if err := r.a.Serve(lnA); err != nil {
			r.Stop()
			return fmt.Errorf("pool %s: %w", r.bridge.A.Name(), err)
		}
		return nil
	})
	g.Go(func() error {
		if err := r.b.Serve(lnB); err != nil {
			r.Stop()
			return fmt.Errorf("pool %s: %w", r.bridge.B.Name(), err)
		}
		return nil
	})
	return g.Wait()
}

// Stop stops both pools.
func (r *Relay) Stop() {
	r.a.Stop()
	r.b.Stop()
}

// AddrA returns the listening address of pool A.
func (r *Relay) AddrA() string {
	return r.a.Addr()
}

// AddrB returns the listening address of pool B.
func (r *Relay) AddrB() string {
	return r.b.Addr()
}
