package ledger

import "time"

// localRef names one (account, app, asset) local state slot.
type localRef struct {
	Addr    string
	AppID   uint64
	AssetID uint64
}

// StateKey returns the slot's hashed key in the persistent keyspace.
func (r localRef) StateKey() StateKey {
	return LocalStateKey(r.Addr, r.AppID, r.AssetID)
}

// sandbox overlays pending group effects on the committed ledger state.
// Reads fall through to the parent; writes stay in the overlay until the
// whole group succeeds and apply() folds them back. Dropping the sandbox
// is the "nothing happened" outcome.
type sandbox struct {
	parent *Ledger

	accounts map[string]*Account
	localPut map[localRef][]byte
	localDel map[localRef]bool
}

func newSandbox(l *Ledger) *sandbox {
	return &sandbox{
		parent:   l,
		accounts: make(map[string]*Account),
		localPut: make(map[localRef][]byte),
		localDel: make(map[localRef]bool),
	}
}

func (s *sandbox) Now() time.Time { return s.parent.clock.Now() }

func (s *sandbox) Account(addr string) (*Account, bool) {
	if acc, ok := s.accounts[addr]; ok {
		return acc, true
	}
	acc, ok := s.parent.accounts[addr]
	if !ok {
		return nil, false
	}
	cp := acc.clone()
	s.accounts[addr] = cp
	return cp, true
}

func (s *sandbox) Holding(addr string, assetID uint64) uint64 {
	acc, ok := s.Account(addr)
	if !ok {
		return 0
	}
	return acc.Holdings[assetID]
}

func (s *sandbox) OptedIn(addr string, appID uint64) bool {
	acc, ok := s.Account(addr)
	if !ok {
		return false
	}
	return acc.OptedIn[appID]
}

func (s *sandbox) Asset(assetID uint64) (*AssetParams, bool) {
	p, ok := s.parent.assets[assetID]
	return p, ok
}

func (s *sandbox) App(appID uint64) (*AppParams, bool) {
	entry, ok := s.parent.apps[appID]
	if !ok {
		return nil, false
	}
	return entry.params, true
}

func (s *sandbox) LocalState(addr string, appID, assetID uint64) ([]byte, bool) {
	ref := localRef{Addr: addr, AppID: appID, AssetID: assetID}
	if s.localDel[ref] {
		return nil, false
	}
	if v, ok := s.localPut[ref]; ok {
		return v, true
	}
	v, ok := s.parent.localState[ref]
	return v, ok
}

func (s *sandbox) PutLocal(addr string, appID, assetID uint64, value []byte) {
	ref := localRef{Addr: addr, AppID: appID, AssetID: assetID}
	delete(s.localDel, ref)
	s.localPut[ref] = append([]byte(nil), value...)
}

func (s *sandbox) DeleteLocal(addr string, appID, assetID uint64) {
	ref := localRef{Addr: addr, AppID: appID, AssetID: assetID}
	delete(s.localPut, ref)
	s.localDel[ref] = true
}

// apply folds the overlay into the parent ledger and write-through store.
// Caller holds the ledger write lock.
func (s *sandbox) apply() {
	for addr, acc := range s.accounts {
		s.parent.accounts[addr] = acc
		s.parent.persistAccount(acc)
	}
	for ref, v := range s.localPut {
		s.parent.localState[ref] = v
		s.parent.persistLocal(ref, v)
	}
	for ref := range s.localDel {
		delete(s.parent.localState, ref)
		s.parent.removeLocal(ref)
	}
}
