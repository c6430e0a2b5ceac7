// Package ledger is the settlement substrate: accounts, unique assets,
// application state, and the all-or-nothing evaluation of atomic
// transaction groups. It serializes every group that touches the ledger,
// so programs never observe concurrent mutation of the same state.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/tokility/tokilityd/internal/core/tx"
	"github.com/tokility/tokilityd/internal/crypto"
	"github.com/tokility/tokilityd/internal/storage/keyvalue"
)

// AppProgram is the stateful logic evaluated for an application-call leg.
// It sees the whole group, may read any state through the writer's view,
// and may mutate only local state. A non-tes result aborts the group.
type AppProgram interface {
	Call(leg *tx.AppCallLeg, group *tx.Group, st StateWriter) tx.Result
}

// TransferAuthority is the stateless predicate that authorizes
// authority-sent asset transfer legs. It is evaluated once per group that
// contains a leg sent from its address; a non-tes result aborts the group.
type TransferAuthority interface {
	Address() string
	Validate(group *tx.Group, view View) tx.Result
}

// CommitEvent is published to subscribers after a group commits.
type CommitEvent struct {
	GroupID [32]byte
}

type appEntry struct {
	params  *AppParams
	program AppProgram
}

// Ledger holds the committed marketplace state and applies groups against
// it. An optional keyvalue store receives a write-through copy of every
// committed entry so state survives restarts.
type Ledger struct {
	mu    sync.Mutex
	clock Clock

	accounts   map[string]*Account
	assets     map[uint64]*AssetParams
	apps       map[uint64]*appEntry
	localState map[localRef][]byte

	authorities map[string]TransferAuthority

	nextAssetID uint64
	nextAppID   uint64

	store keyvalue.Store
	subs  []chan CommitEvent
}

// New creates an empty in-memory ledger.
func New(clock Clock) *Ledger {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Ledger{
		clock:       clock,
		accounts:    make(map[string]*Account),
		assets:      make(map[uint64]*AssetParams),
		apps:        make(map[uint64]*appEntry),
		localState:  make(map[localRef][]byte),
		authorities: make(map[string]TransferAuthority),
		nextAssetID: 1,
		nextAppID:   1,
	}
}

// Open creates a ledger backed by the given store, reloading any state a
// previous run persisted. Programs and transfer authorities are logic, not
// state; callers re-register them after reload.
func Open(store keyvalue.Store, clock Clock) (*Ledger, error) {
	l := New(clock)
	l.store = store
	if err := l.reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Clock returns the ledger clock.
func (l *Ledger) Clock() Clock { return l.clock }

// Now returns the current ledger time.
func (l *Ledger) Now() int64 { return l.clock.Now().Unix() }

// --- administrative operations ---

var (
	ErrAccountExists   = errors.New("account already exists")
	ErrNoSuchAccount   = errors.New("no such account")
	ErrNoSuchApp       = errors.New("no such application")
	ErrNotEscrowShaped = errors.New("asset parameters do not give the escrow authority exclusive control")
)

// CreateAccount funds a new account.
func (l *Ledger) CreateAccount(addr string, balance uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.accounts[addr]; ok {
		return ErrAccountExists
	}
	acc := &Account{
		Address:  addr,
		Balance:  balance,
		Holdings: make(map[uint64]uint64),
		OptedIn:  make(map[uint64]bool),
	}
	l.accounts[addr] = acc
	l.persistAccount(acc)
	return nil
}

// CreateApp deploys an application with its platform fee address global
// and the program evaluated for its call legs.
func (l *Ledger) CreateApp(creator, platformFeeAddress string, program AppProgram) (uint64, error) {
	if !crypto.IsValidAddress(platformFeeAddress) {
		return 0, fmt.Errorf("platform fee address %q is malformed", platformFeeAddress)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextAppID
	l.nextAppID++
	params := &AppParams{ID: id, Creator: creator, PlatformFeeAddress: platformFeeAddress}
	l.apps[id] = &appEntry{params: params, program: program}
	l.persistApp(params)
	return id, nil
}

// SetAppProgram re-attaches program logic after a reload from storage.
func (l *Ledger) SetAppProgram(appID uint64, program AppProgram) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.apps[appID]
	if !ok {
		return ErrNoSuchApp
	}
	entry.program = program
	return nil
}

// OptInApp opens an account's local state namespace for an app. Required
// before the account can hold sell offers.
func (l *Ledger) OptInApp(addr string, appID uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, ok := l.accounts[addr]
	if !ok {
		return ErrNoSuchAccount
	}
	if _, ok := l.apps[appID]; !ok {
		return ErrNoSuchApp
	}
	acc.OptedIn[appID] = true
	l.persistAccount(acc)
	return nil
}

// MintAsset creates a unique escrow-controlled asset held by its creator.
// The ledger assigns the asset ID and hands it to bind, which constructs
// the transfer authority for exactly that asset; the authority's address
// becomes the asset's clawback. The parameter shape is validated: supply
// 1, default-frozen, zero manager/freeze/reserve. The asset's metadata
// digest is the tamper-detection anchor every later call is checked
// against.
func (l *Ledger) MintAsset(params AssetParams, bind func(assetID uint64) (TransferAuthority, error)) (uint64, error) {
	if params.Total != 1 {
		return 0, fmt.Errorf("marketplace assets are unique: total must be 1, got %d", params.Total)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	creator, ok := l.accounts[params.Creator]
	if !ok {
		return 0, ErrNoSuchAccount
	}

	id := l.nextAssetID
	authority, err := bind(id)
	if err != nil {
		return 0, err
	}
	if authority == nil || authority.Address() == "" {
		return 0, errors.New("asset needs a transfer authority")
	}
	params.Clawback = authority.Address()
	if !params.EscrowControlled() {
		return 0, ErrNotEscrowShaped
	}

	l.nextAssetID++
	params.ID = id
	l.assets[id] = &params
	l.authorities[params.Clawback] = authority
	creator.Holdings[id] = 1
	l.persistAsset(&params)
	l.persistAccount(creator)
	return id, nil
}

// RegisterAuthority re-attaches a transfer authority after reload.
func (l *Ledger) RegisterAuthority(authority TransferAuthority) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.authorities[authority.Address()] = authority
}

// --- read access ---

// Account returns a copy of an account's committed state.
func (l *Ledger) Account(addr string) (Account, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, ok := l.accounts[addr]
	if !ok {
		return Account{}, false
	}
	return *acc.clone(), true
}

// Balance returns an account's balance, zero if absent.
func (l *Ledger) Balance(addr string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if acc, ok := l.accounts[addr]; ok {
		return acc.Balance
	}
	return 0
}

// Holding returns how many units of an asset an account holds.
func (l *Ledger) Holding(addr string, assetID uint64) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if acc, ok := l.accounts[addr]; ok {
		return acc.Holdings[assetID]
	}
	return 0
}

// Asset returns a copy of an asset's parameter block.
func (l *Ledger) Asset(assetID uint64) (AssetParams, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.assets[assetID]
	if !ok {
		return AssetParams{}, false
	}
	return *p, true
}

// App returns a copy of an app's parameter block.
func (l *Ledger) App(appID uint64) (AppParams, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.apps[appID]
	if !ok {
		return AppParams{}, false
	}
	return *entry.params, true
}

// LocalState reads one local state slot.
func (l *Ledger) LocalState(addr string, appID, assetID uint64) ([]byte, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.localState[localRef{Addr: addr, AppID: appID, AssetID: assetID}]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), v...), true
}

// ForEachLocalState visits every local state slot of one app. Used by the
// offer discovery read path.
func (l *Ledger) ForEachLocalState(appID uint64, fn func(addr string, assetID uint64, value []byte) bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ref, v := range l.localState {
		if ref.AppID != appID {
			continue
		}
		if !fn(ref.Addr, ref.AssetID, append([]byte(nil), v...)) {
			return
		}
	}
}

// ForEachApp visits every deployed app's parameter block.
func (l *Ledger) ForEachApp(fn func(params AppParams) bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, entry := range l.apps {
		if !fn(*entry.params) {
			return
		}
	}
}

// ForEachAsset visits every asset parameter block.
func (l *Ledger) ForEachAsset(fn func(params AssetParams) bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range l.assets {
		if !fn(*p) {
			return
		}
	}
}

// Subscribe registers a commit event channel. Events are delivered
// best-effort; a slow subscriber misses events rather than blocking
// commits.
func (l *Ledger) Subscribe() <-chan CommitEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch := make(chan CommitEvent, 16)
	l.subs = append(l.subs, ch)
	return ch
}

// Unsubscribe removes a commit event channel registered with Subscribe.
func (l *Ledger) Unsubscribe(ch <-chan CommitEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, sub := range l.subs {
		if sub == ch {
			l.subs = append(l.subs[:i], l.subs[i+1:]...)
			return
		}
	}
}

// --- group application ---

// ApplyGroup evaluates a group against current state and commits its
// effects if and only if every check passes. The whole evaluation runs
// under the ledger write lock: groups touching the same state are
// serialized, and a rejected group leaves no trace.
func (l *Ledger) ApplyGroup(g *tx.Group) tx.Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	if r := l.admitGroup(g); r != tx.TesSUCCESS {
		return r
	}

	sb := newSandbox(l)

	// Authority predicates run against pre-group state: they certify the
	// group's shape, not its effects.
	if r := l.validateAuthorities(g, sb); r != tx.TesSUCCESS {
		return r
	}

	for _, leg := range g.Legs {
		var r tx.Result
		switch leg := leg.(type) {
		case *tx.AppCallLeg:
			r = l.applyAppCall(leg, g, sb)
		case *tx.PaymentLeg:
			r = applyPayment(leg, sb)
		case *tx.AssetTransferLeg:
			r = applyAssetTransfer(leg, sb)
		default:
			r = tx.TemBAD_LEG
		}
		if r != tx.TesSUCCESS {
			// The sandbox is dropped wholesale; no partial effects survive.
			return r
		}
	}

	sb.apply()
	l.notify(CommitEvent{GroupID: g.ComputeID()})
	return tx.TesSUCCESS
}

// admitGroup runs structural and signature admission before any state is
// touched.
func (l *Ledger) admitGroup(g *tx.Group) tx.Result {
	switch err := g.CheckBinding(); {
	case err == nil:
	case errors.Is(err, tx.ErrEmptyGroup), errors.Is(err, tx.ErrGroupTooLarge):
		return tx.TemBAD_GROUP_SIZE
	case errors.Is(err, tx.ErrUnboundLeg):
		return tx.TemBAD_GROUP_ID
	default:
		return tx.TemMALFORMED
	}

	for _, leg := range g.Legs {
		if leg.Common().Fee > tx.MaxLegFee {
			return tx.TemBAD_FEE
		}
		if xfer, ok := leg.(*tx.AssetTransferLeg); ok {
			// The transfer leg carries no key signature: it is admitted
			// only if its sender is the asset's transfer authority, whose
			// predicate is evaluated separately.
			asset, ok := l.assets[xfer.AssetID]
			if !ok {
				return tx.TecNO_ASSET
			}
			if xfer.Account != asset.Clawback {
				return tx.TemBAD_SENDER
			}
			if _, ok := l.authorities[xfer.Account]; !ok {
				return tx.TecNOT_ESCROWED
			}
			continue
		}
		if _, ok := l.accounts[leg.Sender()]; !ok {
			return tx.TecNO_ACCOUNT
		}
		if err := tx.VerifyLegSignature(leg); err != nil {
			return tx.TemBAD_SIGNATURE
		}
	}
	return tx.TesSUCCESS
}

// validateAuthorities runs each touched transfer authority exactly once.
func (l *Ledger) validateAuthorities(g *tx.Group, view View) tx.Result {
	seen := make(map[string]bool)
	for _, leg := range g.Legs {
		xfer, ok := leg.(*tx.AssetTransferLeg)
		if !ok || seen[xfer.Account] {
			continue
		}
		seen[xfer.Account] = true
		if r := l.authorities[xfer.Account].Validate(g, view); r != tx.TesSUCCESS {
			return r
		}
	}
	return tx.TesSUCCESS
}

func (l *Ledger) applyAppCall(leg *tx.AppCallLeg, g *tx.Group, sb *sandbox) tx.Result {
	entry, ok := l.apps[leg.AppID]
	if !ok || entry.program == nil {
		return tx.TecNO_APP
	}
	return entry.program.Call(leg, g, sb)
}

func applyPayment(leg *tx.PaymentLeg, sb *sandbox) tx.Result {
	if leg.CloseTo != "" || leg.RekeyTo != "" {
		return tx.TemBAD_SIDE_FX
	}
	sender, ok := sb.Account(leg.Account)
	if !ok {
		return tx.TecNO_ACCOUNT
	}
	// Checked as two subtractions so amount+fee cannot wrap past the
	// balance check.
	if sender.Balance < leg.Amount || sender.Balance-leg.Amount < leg.Fee {
		return tx.TecUNFUNDED
	}
	receiver, ok := sb.Account(leg.Destination)
	if !ok {
		return tx.TecNO_ACCOUNT
	}
	sender.Balance -= leg.Amount + leg.Fee // the fee is burned, not routed
	receiver.Balance += leg.Amount
	sender.Sequence++
	return tx.TesSUCCESS
}

func applyAssetTransfer(leg *tx.AssetTransferLeg, sb *sandbox) tx.Result {
	if leg.CloseTo != "" || leg.RekeyTo != "" {
		return tx.TemBAD_SIDE_FX
	}
	holder, ok := sb.Account(leg.RevocationTarget)
	if !ok {
		return tx.TecNO_ACCOUNT
	}
	if holder.Holdings[leg.AssetID] < leg.Amount {
		return tx.TecNOT_HOLDER
	}
	receiver, ok := sb.Account(leg.Destination)
	if !ok {
		return tx.TecNO_ACCOUNT
	}
	holder.Holdings[leg.AssetID] -= leg.Amount
	if holder.Holdings[leg.AssetID] == 0 {
		delete(holder.Holdings, leg.AssetID)
	}
	receiver.Holdings[leg.AssetID] += leg.Amount
	return tx.TesSUCCESS
}

func (l *Ledger) notify(ev CommitEvent) {
	for _, ch := range l.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// --- persistence ---

type persistedLocal struct {
	Addr    string `json:"addr"`
	AppID   uint64 `json:"app_id"`
	AssetID uint64 `json:"asset_id"`
	Value   []byte `json:"value"`
}

func (l *Ledger) persistAccount(acc *Account) {
	if l.store == nil {
		return
	}
	data, err := json.Marshal(acc)
	if err != nil {
		return
	}
	key := AccountKey(acc.Address)
	_ = l.store.Write(context.Background(), key[:], data)
}

func (l *Ledger) persistAsset(p *AssetParams) {
	if l.store == nil {
		return
	}
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	key := AssetKey(p.ID)
	_ = l.store.Write(context.Background(), key[:], data)
}

func (l *Ledger) persistApp(p *AppParams) {
	if l.store == nil {
		return
	}
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	key := AppKey(p.ID)
	_ = l.store.Write(context.Background(), key[:], data)
}

func (l *Ledger) persistLocal(ref localRef, value []byte) {
	if l.store == nil {
		return
	}
	data, err := json.Marshal(persistedLocal{Addr: ref.Addr, AppID: ref.AppID, AssetID: ref.AssetID, Value: value})
	if err != nil {
		return
	}
	key := ref.StateKey()
	_ = l.store.Write(context.Background(), key[:], data)
}

func (l *Ledger) removeLocal(ref localRef) {
	if l.store == nil {
		return
	}
	key := ref.StateKey()
	_ = l.store.Delete(context.Background(), key[:])
}

func (l *Ledger) reload() error {
	if err := l.reloadSpace(spaceAccount, func(data []byte) error {
		var acc Account
		if err := json.Unmarshal(data, &acc); err != nil {
			return err
		}
		if acc.Holdings == nil {
			acc.Holdings = make(map[uint64]uint64)
		}
		if acc.OptedIn == nil {
			acc.OptedIn = make(map[uint64]bool)
		}
		l.accounts[acc.Address] = &acc
		return nil
	}); err != nil {
		return err
	}

	if err := l.reloadSpace(spaceAsset, func(data []byte) error {
		var p AssetParams
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		l.assets[p.ID] = &p
		if p.ID >= l.nextAssetID {
			l.nextAssetID = p.ID + 1
		}
		return nil
	}); err != nil {
		return err
	}

	if err := l.reloadSpace(spaceApp, func(data []byte) error {
		var p AppParams
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		l.apps[p.ID] = &appEntry{params: &p}
		if p.ID >= l.nextAppID {
			l.nextAppID = p.ID + 1
		}
		return nil
	}); err != nil {
		return err
	}

	return l.reloadSpace(spaceLocalState, func(data []byte) error {
		var rec persistedLocal
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		l.localState[localRef{Addr: rec.Addr, AppID: rec.AppID, AssetID: rec.AssetID}] = rec.Value
		return nil
	})
}

func (l *Ledger) reloadSpace(space byte, fn func(data []byte) error) error {
	start, end := spacePrefix(space)
	it, err := l.store.Iterator(context.Background(), start, end)
	if err != nil {
		return err
	}
	defer it.Close()
	for it.Next() {
		if err := fn(it.Value()); err != nil {
			return fmt.Errorf("reload state space %q: %w", space, err)
		}
	}
	return it.Error()
}
