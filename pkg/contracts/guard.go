package contracts

import (
	"fmt"
	"strconv"
)

// RejectFunds fails when a message that must not carry funds does.
func RejectFunds(funds uint64) error {
	if funds != 0 {
		return fmt.Errorf("%w: %d", ErrUnexpectedFunds, funds)
	}
	return nil
}

// RequireSender fails unless sender is want.
func RequireSender(sender, want Addr) error {
	if sender != want {
		return fmt.Errorf("%w: %s", ErrUnauthorized, sender)
	}
	return nil
}

// RequirePeer fails with ErrNotInitialized when the peer is unconfigured
// and with ErrUnauthorized when sender is not that peer.
func RequirePeer(p Peer, name string, sender Addr) error {
	addr, err := p.Require(name)
	if err != nil {
		return err
	}
	return RequireSender(sender, addr)
}

// FormatID renders a ticket id for event attributes.
func FormatID(id uint64) string { return strconv.FormatUint(id, 10) }
