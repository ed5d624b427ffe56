package network

import (
	"errors"
	"fmt"
)

// ErrMalformedNetwork matches every MalformedNetworkError via errors.Is.
var ErrMalformedNetwork = errors.New("malformed network")

// MalformedKind classifies a network defect.
type MalformedKind string

const (
	KindDangling MalformedKind = "dangling"
	KindCycle    MalformedKind = "cycle"
)

// MalformedNetworkError reports a dangling downstream reference or a cycle.
// Component lists every basin of the quarantined connected component.
type MalformedNetworkError struct {
	Kind       MalformedKind
	Mid        int64
	Downstream int64
	Component  []int64
}

func (e *MalformedNetworkError) Error() string {
	switch e.Kind {
	case KindDangling:
		return fmt.Sprintf("malformed network: basin %d references missing downstream basin %d (component of %d basins)",
			e.Mid, e.Downstream, len(e.Component))
	case KindCycle:
		return fmt.Sprintf("malformed network: basin %d is reachable from itself via downstream links (component of %d basins)",
			e.Mid, len(e.Component))
	default:
		return fmt.Sprintf("malformed network at basin %d", e.Mid)
	}
}

func (e *MalformedNetworkError) Unwrap() error {
	return ErrMalformedNetwork
}
