package session

import "fmt"

// ReusePolicy decides what a refresh with an unknown, consumed, or mismatched
// rotation id does beyond failing.
//
// RevokeSubject deletes every live record of the presented subject, so a
// replayed credential logs out every device of that subject. This includes the
// case where the record merely expired and was swept before the lookup.
// RejectOnly fails the refresh and leaves other records alone.
type ReusePolicy int

const (
	RevokeSubject ReusePolicy = iota
	RejectOnly
)

func ParseReusePolicy(s string) (ReusePolicy, error) {
	switch s {
	case "", "revoke_subject":
		return RevokeSubject, nil
	case "reject_only":
		return RejectOnly, nil
	default:
		return 0, fmt.Errorf("unknown reuse policy %q", s)
	}
}

func (p ReusePolicy) String() string {
	switch p {
	case RevokeSubject:
		return "revoke_subject"
	case RejectOnly:
		return "reject_only"
	default:
		return fmt.Sprintf("ReusePolicy(%d)", int(p))
	}
}
