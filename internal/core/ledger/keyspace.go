package ledger

import (
	"encoding/binary"

	"github.com/tokility/tokilityd/internal/crypto"
)

// Space identifiers for state key derivation. A state key is its space
// byte followed by 31 bytes of the SHA-256 over the entry's natural key,
// so entries of different kinds never collide and each space is a
// contiguous range for prefix iteration.
const (
	spaceAccount    byte = 'a'
	spaceAsset      byte = 's'
	spaceApp        byte = 'p'
	spaceLocalState byte = 'l'
)

// StateKey addresses one entry in the ledger's persistent keyspace.
type StateKey [32]byte

func indexHash(space byte, data ...[]byte) StateKey {
	h := crypto.Sha256(data...)
	var key StateKey
	key[0] = space
	copy(key[1:], h[:31])
	return key
}

// SpacePrefix returns the iteration bounds covering every key in a space.
func spacePrefix(space byte) (start, end []byte) {
	return []byte{space}, []byte{space + 1}
}

// AccountKey returns the state key of an account entry.
func AccountKey(addr string) StateKey {
	return indexHash(spaceAccount, []byte(addr))
}

// AssetKey returns the state key of an asset entry.
func AssetKey(assetID uint64) StateKey {
	return indexHash(spaceAsset, itob(assetID))
}

// AppKey returns the state key of an application entry.
func AppKey(appID uint64) StateKey {
	return indexHash(spaceApp, itob(appID))
}

// LocalStateKey returns the state key of one (account, app, asset) local
// state slot. This is where sell offers live: the slot is owned by the
// seller's account inside the app's namespace, keyed by the asset.
func LocalStateKey(addr string, appID, assetID uint64) StateKey {
	return indexHash(spaceLocalState, []byte(addr), itob(appID), itob(assetID))
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
