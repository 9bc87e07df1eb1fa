package menu

import "sync/atomic"

// Gate tracks host device-authentication state: an out-of-band fact
// the USB authentication handshake sets, independent of onboarding
// progress. Both must hold before the main menu is reachable.
type Gate struct {
	authenticated int32
}

// NewGate returns a Gate in the unauthenticated state.
func NewGate() *Gate {
	return &Gate{}
}

// SetAuthenticated records the outcome of the device-authentication
// handshake.
func (g *Gate) SetAuthenticated(v bool) {
	var i int32
	if v {
		i = 1
	}
	atomic.StoreInt32(&g.authenticated, i)
}

// Authenticated reports the current handshake state.
func (g *Gate) Authenticated() bool {
	return atomic.LoadInt32(&g.authenticated) != 0
}
