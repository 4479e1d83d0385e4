package authority

// RevocationIndex is the host-owned set of revoked token identifiers.
// Revocation is extrinsic: tokens never carry a revoked flag, so one
// index can evaluate many token collections without mutating them.
//
// The index performs no internal locking. Validation only reads it and
// tokens are immutable, so concurrent readers are safe; the host must
// serialize writers against readers (see the registry).
type RevocationIndex struct {
	revoked map[TokenID]struct{}
}

// NewRevocationIndex returns an empty index.
func NewRevocationIndex() *RevocationIndex {
	return &RevocationIndex{revoked: make(map[TokenID]struct{})}
}

// Revoke marks a token id as revoked. Idempotent. There is no
// un-revoke operation: the engine never removes entries.
func (x *RevocationIndex) Revoke(tokenID TokenID) {
	x.revoked[tokenID] = struct{}{}
}

// IsRevoked reports whether a token id has been revoked.
func (x *RevocationIndex) IsRevoked(tokenID TokenID) bool {
	if x == nil {
		return false
	}
	_, ok := x.revoked[tokenID]
	return ok
}

// Revoked returns a snapshot of revoked ids for persistence. Order is
// unspecified.
func (x *RevocationIndex) Revoked() []TokenID {
	out := make([]TokenID, 0, len(x.revoked))
	for id := range x.revoked {
		out = append(out, id)
	}
	return out
}
