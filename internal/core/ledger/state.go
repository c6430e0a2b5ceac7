package ledger

import "time"

// Account is one funded ledger account.
type Account struct {
	Address  string          `json:"address"`
	Balance  uint64          `json:"balance"`
	Sequence uint64          `json:"sequence"`
	Holdings map[uint64]uint64 `json:"holdings,omitempty"`
	OptedIn  map[uint64]bool   `json:"opted_in,omitempty"`
}

func (a *Account) clone() *Account {
	cp := *a
	cp.Holdings = make(map[uint64]uint64, len(a.Holdings))
	for k, v := range a.Holdings {
		cp.Holdings[k] = v
	}
	cp.OptedIn = make(map[uint64]bool, len(a.OptedIn))
	for k, v := range a.OptedIn {
		cp.OptedIn[k] = v
	}
	return &cp
}

// AssetParams is the immutable parameter block of a unique asset. A
// marketplace asset is default-frozen with zero manager/freeze/reserve
// authority and its clawback set to the escrow authority, so the authority
// is the only entity that can ever move it.
type AssetParams struct {
	ID            uint64   `json:"id"`
	Creator       string   `json:"creator"`
	UnitName      string   `json:"unit_name"`
	AssetName     string   `json:"asset_name"`
	Total         uint64   `json:"total"`
	DefaultFrozen bool     `json:"default_frozen"`
	Manager       string   `json:"manager"`
	Freeze        string   `json:"freeze"`
	Reserve       string   `json:"reserve"`
	Clawback      string   `json:"clawback"`
	MetadataDigest [32]byte `json:"metadata_digest"`

	// Metadata is the off-ledger ticket record, stored inline. Its
	// economics section must hash to MetadataDigest.
	Metadata []byte `json:"metadata,omitempty"`
}

// EscrowControlled reports whether the asset has the structural shape that
// guarantees only its clawback authority can move it.
func (p *AssetParams) EscrowControlled() bool {
	return p.DefaultFrozen &&
		p.Manager == "" &&
		p.Freeze == "" &&
		p.Reserve == "" &&
		p.Clawback != ""
}

// AppParams is the parameter block of a deployed application. The platform
// fee address is the app's single piece of global state, set once at
// deployment.
type AppParams struct {
	ID                 uint64 `json:"id"`
	Creator            string `json:"creator"`
	PlatformFeeAddress string `json:"platform_fee_address"`
}

// View is read access to ledger state as of the group being evaluated.
// Both the marketplace program and the escrow authority see state only
// through this interface.
type View interface {
	Now() time.Time
	Account(addr string) (*Account, bool)
	Holding(addr string, assetID uint64) uint64
	OptedIn(addr string, appID uint64) bool
	Asset(assetID uint64) (*AssetParams, bool)
	App(appID uint64) (*AppParams, bool)
	LocalState(addr string, appID, assetID uint64) ([]byte, bool)
}

// StateWriter extends View with the local-state mutations an application
// program may perform while a group is being evaluated. Writes land in the
// group's sandbox and are discarded unless the whole group commits.
type StateWriter interface {
	View
	PutLocal(addr string, appID, assetID uint64, value []byte)
	DeleteLocal(addr string, appID, assetID uint64)
}
