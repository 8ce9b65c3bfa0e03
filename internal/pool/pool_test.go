package pool

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"ammpool/internal/ledger"
	"ammpool/internal/metadata"
	"ammpool/internal/model"
)

const (
	poolID = model.AccountID("amm.test")
	owner  = model.AccountID("owner.test")
	alice  = model.AccountID("alice.test")
	bob    = model.AccountID("bob.test")
	tokenA = model.AssetID("rick.test")
	tokenB = model.AssetID("morty.test")
	zombie = model.AssetID("zombie.test")
)

func u(v uint64) *uint256.Int {
	return uint256.NewInt(v)
}

func newPool(t *testing.T, open bool) *Pool {
	t.Helper()
	p := New(Config{ID: poolID, OpenLiquidity: open}, zap.NewNop())
	if err := p.Initialize(owner, tokenA, tokenB); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return p
}

func withMetadata(t *testing.T, p *Pool, decA, decB uint8) {
	t.Helper()
	if err := p.SetMetadata(model.SlotA, model.TokenMeta{Name: "Rick", Symbol: "RICK", Decimals: decA}); err != nil {
		t.Fatalf("set metadata a: %v", err)
	}
	if err := p.SetMetadata(model.SlotB, model.TokenMeta{Name: "Morty", Symbol: "MORTY", Decimals: decB}); err != nil {
		t.Fatalf("set metadata b: %v", err)
	}
}

func deposit(t *testing.T, p *Pool, asset model.AssetID, account model.AccountID, amount uint64) {
	t.Helper()
	unused, err := p.OnDepositNotification(context.Background(), asset, account, u(amount), "")
	if err != nil {
		t.Fatalf("deposit %d %s to %s: %v", amount, asset, account, err)
	}
	if !unused.IsZero() {
		t.Fatalf("unused = %s, want 0", unused.Dec())
	}
}

func assertBalance(t *testing.T, p *Pool, asset model.AssetID, account model.AccountID, want uint64) {
	t.Helper()
	got, err := p.BalanceOf(asset, account)
	if err != nil {
		t.Fatalf("balance of %s in %s: %v", account, asset, err)
	}
	if !got.Eq(u(want)) {
		t.Fatalf("balance of %s in %s = %s, want %d", account, asset, got.Dec(), want)
	}
}

// swapPool has reserves A=50000, B=10000 and alice holding 10000 A.
func swapPool(t *testing.T) *Pool {
	t.Helper()
	p := newPool(t, false)
	withMetadata(t, p, 8, 8)
	deposit(t, p, tokenA, poolID, 50000)
	deposit(t, p, tokenB, poolID, 10000)
	deposit(t, p, tokenA, alice, 10000)
	return p
}

func TestInitialize(t *testing.T) {
	p := newPool(t, false)
	if err := p.Initialize(owner, tokenA, tokenB); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected already initialized, got %v", err)
	}
	for _, asset := range []model.AssetID{tokenA, tokenB, model.AssetID(poolID)} {
		assertBalance(t, p, asset, owner, 0)
	}
	total, err := p.TotalSupply(model.AssetID(poolID))
	if err != nil || !total.IsZero() {
		t.Fatalf("share supply = %v, %v", total, err)
	}

	cases := []struct {
		a, b model.AssetID
	}{
		{tokenA, tokenA},
		{tokenA, model.AssetID(poolID)},
		{"", tokenB},
	}
	for _, tc := range cases {
		fresh := New(Config{ID: poolID}, nil)
		err := fresh.Initialize(owner, tc.a, tc.b)
		if !errors.Is(err, ErrInvalidAssets) || !errors.Is(err, model.ErrValidation) {
			t.Fatalf("initialize(%q, %q): expected invalid assets, got %v", tc.a, tc.b, err)
		}
		if fresh.Initialized() {
			t.Fatalf("initialize(%q, %q) left the pool initialized", tc.a, tc.b)
		}
	}
}

func TestOperationsRequireInitialize(t *testing.T) {
	p := New(Config{ID: poolID}, nil)
	if _, err := p.BalanceOf(tokenA, alice); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}
	if err := p.SetMetadata(model.SlotA, model.TokenMeta{Symbol: "X"}); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}
}

func TestMetadataThroughPool(t *testing.T) {
	p := newPool(t, false)
	if _, err := p.GetMetadata(model.SlotA); !errors.Is(err, metadata.ErrNoMetadata) {
		t.Fatalf("expected no metadata, got %v", err)
	}
	meta := model.TokenMeta{Name: "Example NEAR fungible token", Symbol: "FTA", Decimals: 8}
	if err := p.SetMetadata(model.SlotB, meta); err != nil {
		t.Fatalf("set b: %v", err)
	}
	if err := p.SetMetadata(model.SlotA, meta); !errors.Is(err, metadata.ErrSameToken) {
		t.Fatalf("expected same token, got %v", err)
	}
	if err := p.SetMetadata(model.SlotB, model.TokenMeta{Symbol: "FTB"}); !errors.Is(err, metadata.ErrAlreadySet) {
		t.Fatalf("expected already set, got %v", err)
	}
	got, err := p.GetMetadata(model.SlotB)
	if err != nil || got != meta {
		t.Fatalf("get b = %+v, %v", got, err)
	}
}

func TestSwapScenario(t *testing.T) {
	p := swapPool(t)

	quoted, err := p.Quote(tokenA, tokenB, u(10000))
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	dy, err := p.Swap(alice, tokenA, tokenB, u(10000))
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if dy.Uint64() != 1667 || !quoted.Eq(dy) {
		t.Fatalf("dy = %s, quote = %s, want 1667", dy.Dec(), quoted.Dec())
	}
	assertBalance(t, p, tokenA, alice, 0)
	assertBalance(t, p, tokenB, alice, 1667)
	assertBalance(t, p, tokenA, poolID, 60000)
	assertBalance(t, p, tokenB, poolID, 8333)

	events := p.DrainEvents()
	last := events[len(events)-1]
	if last.EventName != model.EventSwap {
		t.Fatalf("last event = %s", last.EventName)
	}
	data := last.Data.(model.SwapEventData)
	if data.AmountOut != "1667" || data.ReserveIn != "50000" || data.ReserveOut != "10000" {
		t.Fatalf("swap event = %+v", data)
	}
	if len(p.DrainEvents()) != 0 {
		t.Fatalf("events not drained")
	}
}

func TestSwapAcrossDecimals(t *testing.T) {
	p := newPool(t, false)
	withMetadata(t, p, 2, 0)
	deposit(t, p, tokenA, poolID, 10000)
	deposit(t, p, tokenB, poolID, 200)
	deposit(t, p, tokenA, alice, 2000)

	// 2 units of B at the common scale truncate to nothing
	if _, err := p.Swap(alice, tokenA, tokenB, u(1)); !errors.Is(err, ErrZeroOutput) {
		t.Fatalf("expected zero output, got %v", err)
	}
	assertBalance(t, p, tokenA, alice, 2000)

	dy, err := p.Swap(alice, tokenA, tokenB, u(2000))
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if dy.Uint64() != 33 {
		t.Fatalf("dy = %s, want 33", dy.Dec())
	}
	assertBalance(t, p, tokenB, poolID, 167)
}

func TestSwapFailuresMutateNothing(t *testing.T) {
	p := swapPool(t)
	before := p.Snapshot()

	cases := []struct {
		name   string
		trader model.AccountID
		sell   model.AssetID
		buy    model.AssetID
		amount uint64
		want   error
	}{
		{"same asset", alice, tokenA, tokenA, 10, ErrSameAsset},
		{"unsupported sell", alice, zombie, tokenB, 10, ErrNotSupported},
		{"unsupported buy", alice, tokenA, zombie, 10, ErrNotSupported},
		{"zero amount", alice, tokenA, tokenB, 0, ErrZeroAmount},
		{"overdraft", alice, tokenA, tokenB, 10001, ledger.ErrInsufficientBalance},
		{"unregistered trader", bob, tokenA, tokenB, 10, ledger.ErrNotRegistered},
		{"custody trader", poolID, tokenA, tokenB, 10, ErrPermissionDenied},
	}
	for _, tc := range cases {
		if _, err := p.Swap(tc.trader, tc.sell, tc.buy, u(tc.amount)); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
	if after := p.Snapshot(); !reflect.DeepEqual(before, after) {
		t.Fatalf("failed swaps mutated state")
	}
}

func TestSwapRequiresMetadata(t *testing.T) {
	p := newPool(t, false)
	deposit(t, p, tokenA, alice, 10)
	if _, err := p.Swap(alice, tokenA, tokenB, u(10)); !errors.Is(err, metadata.ErrNotInitiated) {
		t.Fatalf("expected please init metadata, got %v", err)
	}
}

func TestUnsupportedAssetIsUniform(t *testing.T) {
	p := newPool(t, true)
	withMetadata(t, p, 8, 8)
	deposit(t, p, tokenA, alice, 100)
	p.BindAsset(model.SlotA, newFakeAsset(tokenA))
	before := p.Snapshot()

	checks := map[string]error{}
	_, checks["swap"] = p.Swap(alice, zombie, tokenA, u(1))
	checks["add"] = p.AddLiquidity(alice, zombie, u(1), "")
	checks["remove"] = p.RemoveLiquidity(alice, zombie, u(1), "")
	_, checks["withdraw"] = p.Withdraw(context.Background(), alice, zombie, u(1))
	_, checks["request"] = p.RequestWithdrawal(alice, zombie, u(1))
	_, checks["balance"] = p.BalanceOf(zombie, alice)
	_, checks["deposit"] = p.OnDepositNotification(context.Background(), zombie, alice, u(1), "")
	for name, err := range checks {
		if !errors.Is(err, ErrNotSupported) || !errors.Is(err, model.ErrValidation) {
			t.Fatalf("%s: expected not supported, got %v", name, err)
		}
	}
	if after := p.Snapshot(); !reflect.DeepEqual(before, after) {
		t.Fatalf("unsupported asset mutated state")
	}
}

func TestAddRemoveRoundTrip(t *testing.T) {
	p := newPool(t, true)
	withMetadata(t, p, 8, 8)
	deposit(t, p, tokenA, alice, 500)

	if err := p.AddLiquidity(alice, tokenA, u(200), "seed"); err != nil {
		t.Fatalf("add: %v", err)
	}
	assertBalance(t, p, tokenA, alice, 300)
	assertBalance(t, p, tokenA, poolID, 200)
	assertBalance(t, p, model.AssetID(poolID), alice, 200)

	if err := p.RemoveLiquidity(alice, tokenA, u(200), ""); err != nil {
		t.Fatalf("remove: %v", err)
	}
	assertBalance(t, p, tokenA, alice, 500)
	assertBalance(t, p, tokenA, poolID, 0)
	assertBalance(t, p, model.AssetID(poolID), alice, 0)

	if err := p.RemoveLiquidity(alice, tokenA, u(1), ""); !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient shares, got %v", err)
	}
}

func TestAddLiquidityPermission(t *testing.T) {
	p := newPool(t, false)
	withMetadata(t, p, 8, 8)
	deposit(t, p, tokenA, alice, 100)
	deposit(t, p, tokenB, poolID, 100)

	if err := p.AddLiquidity(alice, tokenA, u(10), ""); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
	assertBalance(t, p, tokenA, alice, 100)

	if err := p.AddLiquidity(poolID, tokenB, u(60), ""); err != nil {
		t.Fatalf("custody add: %v", err)
	}
	assertBalance(t, p, tokenB, poolID, 100)
	assertBalance(t, p, model.AssetID(poolID), poolID, 60)

	if err := p.RemoveLiquidity(poolID, tokenB, u(60), ""); err != nil {
		t.Fatalf("custody remove: %v", err)
	}
	assertBalance(t, p, tokenB, poolID, 100)
	assertBalance(t, p, model.AssetID(poolID), poolID, 0)
}

func TestCustodyLiquidityMustBeHeld(t *testing.T) {
	p := newPool(t, false)
	withMetadata(t, p, 8, 8)
	deposit(t, p, tokenB, poolID, 100)

	before := p.Snapshot()
	if err := p.AddLiquidity(poolID, tokenB, u(101), ""); !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if err := p.AddLiquidity(poolID, tokenA, u(1), ""); !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance for empty slot, got %v", err)
	}
	if after := p.Snapshot(); !reflect.DeepEqual(before, after) {
		t.Fatalf("rejected add changed the pool:\nbefore %+v\nafter  %+v", before, after)
	}
	assertBalance(t, p, model.AssetID(poolID), poolID, 0)
}

func TestCustodyRemoveLimitedByHoldings(t *testing.T) {
	p := swapPool(t)
	if err := p.AddLiquidity(poolID, tokenB, u(10000), ""); err != nil {
		t.Fatalf("custody add: %v", err)
	}
	if _, err := p.Swap(alice, tokenA, tokenB, u(10000)); err != nil {
		t.Fatalf("swap: %v", err)
	}
	assertBalance(t, p, tokenB, poolID, 8333)

	before := p.Snapshot()
	if err := p.RemoveLiquidity(poolID, tokenB, u(10000), ""); !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if after := p.Snapshot(); !reflect.DeepEqual(before, after) {
		t.Fatalf("rejected remove changed the pool")
	}
	if err := p.RemoveLiquidity(poolID, tokenB, u(8333), ""); err != nil {
		t.Fatalf("custody remove: %v", err)
	}
	assertBalance(t, p, model.AssetID(poolID), poolID, 1667)
}

func TestOpenLiquidityRejectsCustody(t *testing.T) {
	p := newPool(t, true)
	withMetadata(t, p, 8, 8)
	deposit(t, p, tokenA, bob, 1000)
	if err := p.AddLiquidity(bob, tokenA, u(1000), ""); err != nil {
		t.Fatalf("bob add: %v", err)
	}
	assertBalance(t, p, tokenA, poolID, 1000)

	if err := p.AddLiquidity(poolID, tokenA, u(1000), ""); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected custody add to be denied, got %v", err)
	}
	if err := p.RemoveLiquidity(poolID, tokenA, u(1), ""); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected custody remove to be denied, got %v", err)
	}
	assertBalance(t, p, model.AssetID(poolID), poolID, 0)
	assertBalance(t, p, model.AssetID(poolID), bob, 1000)
	assertBalance(t, p, tokenA, poolID, 1000)
}

func TestAddLiquidityRequiresMetadata(t *testing.T) {
	p := newPool(t, false)
	if err := p.AddLiquidity(poolID, tokenA, u(10), ""); !errors.Is(err, metadata.ErrNotInitiated) {
		t.Fatalf("expected please init metadata, got %v", err)
	}
	if err := p.AddLiquidity(poolID, zombie, u(10), ""); !errors.Is(err, ErrNotSupported) {
		t.Fatalf("expected not supported, got %v", err)
	}
}

func TestBalanceOfPoolIDRoutesToShares(t *testing.T) {
	p := newPool(t, true)
	withMetadata(t, p, 8, 8)
	deposit(t, p, tokenB, alice, 40)
	if err := p.AddLiquidity(alice, tokenB, u(40), ""); err != nil {
		t.Fatalf("add: %v", err)
	}
	assertBalance(t, p, model.AssetID(poolID), alice, 40)
	supply, err := p.TotalSupply(model.AssetID(poolID))
	if err != nil || supply.Uint64() != 40 {
		t.Fatalf("share supply = %v, %v", supply, err)
	}
}

func TestTransferShares(t *testing.T) {
	p := newPool(t, true)
	withMetadata(t, p, 8, 8)
	deposit(t, p, tokenA, alice, 100)
	if err := p.AddLiquidity(alice, tokenA, u(100), ""); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := p.TransferShares(alice, bob, u(10), ""); !errors.Is(err, ledger.ErrNotRegistered) {
		t.Fatalf("expected not registered, got %v", err)
	}
	if _, err := p.RegisterAccount(bob); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := p.TransferShares(alice, bob, u(30), "gift"); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	assertBalance(t, p, model.AssetID(poolID), alice, 70)
	assertBalance(t, p, model.AssetID(poolID), bob, 30)
	if err := p.TransferShares(alice, alice, u(1), ""); !errors.Is(err, ledger.ErrSameAccount) {
		t.Fatalf("expected same account, got %v", err)
	}
}

func TestRegisterAndUnregister(t *testing.T) {
	p := newPool(t, false)
	created, err := p.RegisterAccount(bob)
	if err != nil || !created {
		t.Fatalf("register = %v, %v", created, err)
	}
	if created, _ := p.RegisterAccount(bob); created {
		t.Fatalf("second register reported created")
	}
	deposit(t, p, tokenA, bob, 25)

	if err := p.UnregisterAccount(bob, false); !errors.Is(err, ledger.ErrNonZeroBalance) {
		t.Fatalf("expected non-zero balance, got %v", err)
	}
	assertBalance(t, p, tokenA, bob, 25)
	if err := p.UnregisterAccount(poolID, true); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}

	p.DrainEvents()
	if err := p.UnregisterAccount(bob, true); err != nil {
		t.Fatalf("force unregister: %v", err)
	}
	total, _ := p.TotalSupply(tokenA)
	if !total.IsZero() {
		t.Fatalf("burned balance still counted: %s", total.Dec())
	}
	events := p.DrainEvents()
	if len(events) != 1 || events[0].EventName != model.EventAccountClosed {
		t.Fatalf("events = %+v", events)
	}
	if burned := events[0].Data.(model.AccountEventData).Burned; burned[string(tokenA)] != "25" {
		t.Fatalf("burned = %v", burned)
	}
	if err := p.UnregisterAccount(bob, false); !errors.Is(err, ledger.ErrNotRegistered) {
		t.Fatalf("expected not registered, got %v", err)
	}
}

func TestDepositNotificationRegistersSender(t *testing.T) {
	p := newPool(t, false)
	deposit(t, p, tokenB, bob, 7)
	deposit(t, p, tokenB, bob, 3)
	assertBalance(t, p, tokenB, bob, 10)
	assertBalance(t, p, model.AssetID(poolID), bob, 0)

	var names []string
	for _, event := range p.DrainEvents() {
		names = append(names, event.EventName)
	}
	want := []string{model.EventInitialized, model.EventAccountRegistered, model.EventDeposit, model.EventDeposit}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("events = %v, want %v", names, want)
	}
}

func TestSnapshotRestore(t *testing.T) {
	p := swapPool(t)
	if _, err := p.Swap(alice, tokenA, tokenB, u(4000)); err != nil {
		t.Fatalf("swap: %v", err)
	}
	pending, err := p.RequestWithdrawal(alice, tokenA, u(5000))
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	raw, err := json.Marshal(p.Snapshot())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var snap model.PoolSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	restored := New(Config{ID: poolID}, nil)
	if err := restored.Restore(snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	for _, asset := range []model.AssetID{tokenA, tokenB} {
		for _, account := range []model.AccountID{alice, poolID} {
			want, _ := p.BalanceOf(asset, account)
			assertBalance(t, restored, asset, account, want.Uint64())
		}
	}
	// the restored hold still covers 5000 of alice's 6000 A
	if _, err := restored.Swap(alice, tokenA, tokenB, u(1001)); !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected held balance to block swap, got %v", err)
	}
	if err := restored.CompleteWithdrawal(pending.ID, model.TransferResult{Outcome: model.TransferSucceeded}); err != nil {
		t.Fatalf("complete restored withdrawal: %v", err)
	}
	assertBalance(t, restored, tokenA, alice, 1000)

	if err := restored.Restore(snap); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected already initialized, got %v", err)
	}
	other := New(Config{ID: "other.test"}, nil)
	if err := other.Restore(snap); !errors.Is(err, model.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestRestoreRejectsBrokenLedger(t *testing.T) {
	snap := swapPool(t).Snapshot()
	snap.LedgerA.Total = "1"
	p := New(Config{ID: poolID}, nil)
	if err := p.Restore(snap); !errors.Is(err, model.ErrInvariant) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
	if p.Initialized() {
		t.Fatalf("failed restore left the pool initialized")
	}
}

func TestRestoreRejectsBrokenIdentity(t *testing.T) {
	cases := map[string]func(*model.PoolSnapshot){
		"empty asset b":   func(s *model.PoolSnapshot) { s.Meta.AssetB = "" },
		"asset is pool":   func(s *model.PoolSnapshot) { s.Meta.AssetA = model.AssetID(poolID) },
		"identical asset": func(s *model.PoolSnapshot) { s.Meta.AssetB = s.Meta.AssetA },
		"empty owner":     func(s *model.PoolSnapshot) { s.Meta.Owner = "" },
	}
	for name, corrupt := range cases {
		t.Run(name, func(t *testing.T) {
			snap := swapPool(t).Snapshot()
			corrupt(&snap)
			p := New(Config{ID: poolID}, nil)
			if err := p.Restore(snap); !errors.Is(err, ErrInvalidAssets) {
				t.Fatalf("expected invalid assets, got %v", err)
			}
			if p.Initialized() {
				t.Fatalf("failed restore left the pool initialized")
			}
		})
	}
}

func TestCheckpointPairsSnapshotWithEvents(t *testing.T) {
	p := swapPool(t)
	if _, err := p.Swap(alice, tokenA, tokenB, u(100)); err != nil {
		t.Fatalf("swap: %v", err)
	}
	snap, events := p.Checkpoint()
	if len(events) == 0 || events[len(events)-1].Seq != snap.EventSeq {
		t.Fatalf("events %+v do not end at snapshot seq %d", events, snap.EventSeq)
	}
	if rest := p.DrainEvents(); len(rest) != 0 {
		t.Fatalf("checkpoint left %d events", len(rest))
	}

	seq := snap.EventSeq
	snap, events = p.Checkpoint()
	if len(events) != 0 || snap.EventSeq != seq {
		t.Fatalf("second checkpoint = %d events at seq %d, want 0 at %d", len(events), snap.EventSeq, seq)
	}
}

func TestReconcile(t *testing.T) {
	p := swapPool(t)
	external := newFakeAsset(tokenA)
	external.setBalance(poolID, 60000)
	if err := p.BindAsset(model.SlotA, external); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if err := p.BindAsset(model.SlotB, newFakeAsset(tokenA)); !errors.Is(err, ErrNotSupported) {
		t.Fatalf("expected mismatched bind to fail, got %v", err)
	}

	reports, err := p.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(reports) != 1 || reports[0].Asset != tokenA || !reports[0].Covered() {
		t.Fatalf("reports = %+v", reports)
	}

	external.setBalance(poolID, 59999)
	reports, _ = p.Reconcile(context.Background())
	if reports[0].Covered() {
		t.Fatalf("deficit reported as covered")
	}
}

func TestEventTimestampsUseClock(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p := New(Config{ID: poolID, Now: func() time.Time { return fixed }}, nil)
	if err := p.Initialize(owner, tokenA, tokenB); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	events := p.DrainEvents()
	if len(events) != 1 || !events[0].Timestamp.Equal(fixed) || events[0].Seq != 1 || events[0].PoolID != poolID {
		t.Fatalf("events = %+v", events)
	}
}

type fakeAsset struct {
	id model.AssetID

	mu       sync.Mutex
	balances map[model.AccountID]*uint256.Int
	gate     chan struct{}
	err      error
	calls    int
}

func newFakeAsset(id model.AssetID) *fakeAsset {
	return &fakeAsset{id: id, balances: make(map[model.AccountID]*uint256.Int)}
}

func (f *fakeAsset) ID() model.AssetID {
	return f.id
}

func (f *fakeAsset) Register(ctx context.Context, account model.AccountID) error {
	return nil
}

func (f *fakeAsset) Transfer(ctx context.Context, from, to model.AccountID, amount *uint256.Int, memo string) error {
	f.mu.Lock()
	gate := f.gate
	f.calls++
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeAsset) BalanceOf(ctx context.Context, account model.AccountID) (*uint256.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if bal, ok := f.balances[account]; ok {
		return new(uint256.Int).Set(bal), nil
	}
	return new(uint256.Int), nil
}

func (f *fakeAsset) setBalance(account model.AccountID, amount uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[account] = u(amount)
}
