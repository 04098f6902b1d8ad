package contracts

import (
	"fmt"
	"regexp"
)

// Addr is an opaque account identifier resolved by the hosting ledger.
// Wallets and service instances share the same address space.
type Addr string

func (a Addr) String() string { return string(a) }

var addrPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{2,89}$`)

// ValidateAddress checks that a is a well-formed account identifier.
func ValidateAddress(a Addr) error {
	if !addrPattern.MatchString(string(a)) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, string(a))
	}
	return nil
}

// Peer is the address of a collaborating service. The zero value is
// Unconfigured; Configured(addr) carries a validated address.
type Peer struct {
	Address Addr `cbor:"address,omitempty" json:"address,omitempty"`
}

// Unconfigured is the empty peer reference.
var Unconfigured = Peer{}

// Configured wraps addr as a peer reference.
func Configured(addr Addr) Peer { return Peer{Address: addr} }

// Get reports the peer address and whether it has been configured.
func (p Peer) Get() (Addr, bool) {
	if p.Address == "" {
		return "", false
	}
	return p.Address, true
}

// Require returns the configured address, or ErrNotInitialized naming the peer.
func (p Peer) Require(name string) (Addr, error) {
	addr, ok := p.Get()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotInitialized, name)
	}
	return addr, nil
}

// Is reports whether the peer is configured and equal to addr.
func (p Peer) Is(addr Addr) bool {
	configured, ok := p.Get()
	return ok && configured == addr
}

// Replace returns the peer after applying an optional replacement.
// A nil replacement keeps the current value.
func (p Peer) Replace(addr *Addr) (Peer, error) {
	if addr == nil {
		return p, nil
	}
	if err := ValidateAddress(*addr); err != nil {
		return p, err
	}
	return Configured(*addr), nil
}
