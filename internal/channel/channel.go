// Package channel derives broadcast channel identifiers from handshake
// parameters. Identifiers are plain strings: "group:<room>" for named rooms
// and "dm:<lo>:<hi>" for two-party conversations, where lo/hi is the
// lexicographic ordering of the pair so both participants land on the same
// channel no matter who connects first.
package channel

import (
	"errors"
	"regexp"
)

const (
	groupPrefix = "group:"
	dmPrefix    = "dm:"
	sep         = ":"
)

var (
	ErrInvalidRoom = errors.New("invalid room name")
	ErrInvalidUser = errors.New("invalid username")
)

// Same character class the routing layer accepts for path segments. It also
// rules out the ':' separator, so composed identifiers stay unambiguous.
var ident = regexp.MustCompile(`^\w+$`)

// Group resolves a room name to its channel identifier.
func Group(room string) (string, error) {
	if !ident.MatchString(room) {
		return "", ErrInvalidRoom
	}
	return groupPrefix + room, nil
}

// Direct resolves a pair of usernames to their conversation channel.
// Direct(a, b) == Direct(b, a) for all valid pairs.
func Direct(a, b string) (string, error) {
	if !ident.MatchString(a) || !ident.MatchString(b) {
		return "", ErrInvalidUser
	}
	if a > b {
		a, b = b, a
	}
	return dmPrefix + a + sep + b, nil
}
