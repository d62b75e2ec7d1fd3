package realtime

import (
	"sync/atomic"

	"github.com/nextlevelbuilder/auraxis/pkg/protocol"
)

// subscriptionState holds the settings the client wants the server to apply.
// Each Store swaps in a fresh deep copy, so a loaded snapshot is never
// mutated and readers need no lock. Last write wins.
type subscriptionState struct {
	v atomic.Pointer[protocol.SubscriptionSettings]
}

func newSubscriptionState(initial protocol.SubscriptionSettings) *subscriptionState {
	s := &subscriptionState{}
	s.Store(initial)
	return s
}

func (s *subscriptionState) Store(settings protocol.SubscriptionSettings) {
	c := settings.Clone()
	s.v.Store(&c)
}

// Load returns the current snapshot. Callers must treat it as read-only.
func (s *subscriptionState) Load() *protocol.SubscriptionSettings {
	return s.v.Load()
}
