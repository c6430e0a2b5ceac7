package tx

import (
	"errors"

	"github.com/tokility/tokilityd/internal/crypto"
)

// MaxGroupLegs caps how many legs one atomic group may carry.
const MaxGroupLegs = 16

var (
	ErrEmptyGroup    = errors.New("group has no legs")
	ErrGroupTooLarge = errors.New("group exceeds the leg limit")
	ErrUnboundLeg    = errors.New("leg is not bound to the group identifier")
)

// Group is an ordered sequence of legs that commit atomically. Composing a
// group is two-phase: build the legs, Bind them to the computed group
// identifier, then sign and submit. After binding, changing any leg
// invalidates every signature in the group.
type Group struct {
	Legs []Leg
}

// NewGroup builds a group from legs in submission order.
func NewGroup(legs ...Leg) *Group {
	return &Group{Legs: legs}
}

// ComputeID derives the shared group identifier: a hash over the canonical
// serialization of every leg in order. Any change to leg order, count, or
// content produces a different identifier.
func (g *Group) ComputeID() [32]byte {
	inputs := make([][]byte, 0, len(g.Legs)+1)
	inputs = append(inputs, []byte("tokility/group/v1"))
	for _, leg := range g.Legs {
		inputs = append(inputs, leg.CanonicalBytes())
	}
	return crypto.Sha256(inputs...)
}

// Bind writes the computed group identifier into every leg and returns it.
func (g *Group) Bind() [32]byte {
	id := g.ComputeID()
	for _, leg := range g.Legs {
		leg.Common().GroupID = id
	}
	return id
}

// CheckBinding verifies the structural soundness of the group: leg count,
// per-leg validity, and that every leg carries the identifier recomputed
// from the group's current content.
func (g *Group) CheckBinding() error {
	if len(g.Legs) == 0 {
		return ErrEmptyGroup
	}
	if len(g.Legs) > MaxGroupLegs {
		return ErrGroupTooLarge
	}
	id := g.ComputeID()
	for _, leg := range g.Legs {
		if err := leg.Validate(); err != nil {
			return err
		}
		if leg.Common().GroupID != id {
			return ErrUnboundLeg
		}
	}
	return nil
}

// SigningDigest returns the digest a holder signs for one leg: the group
// identifier concatenated with the leg's canonical bytes, hashed. Signing
// over the group identifier ties the signature to this exact group.
func SigningDigest(groupID [32]byte, leg Leg) [32]byte {
	return crypto.Sha256(groupID[:], leg.CanonicalBytes())
}

// SignLeg signs a leg with the holder's keypair. The group must be bound
// first.
func SignLeg(leg Leg, kp *crypto.KeyPair) {
	common := leg.Common()
	digest := SigningDigest(common.GroupID, leg)
	common.SigningPubKey = kp.PubKeyBytes()
	common.Signature = kp.Sign(digest)
}

// VerifyLegSignature checks that the leg's signature was produced by the
// key controlling the leg's sender address.
func VerifyLegSignature(leg Leg) error {
	common := leg.Common()
	digest := SigningDigest(common.GroupID, leg)
	return crypto.VerifySigner(leg.Sender(), common.SigningPubKey, digest, common.Signature)
}
