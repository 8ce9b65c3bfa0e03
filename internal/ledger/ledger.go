// Package ledger implements a single fungible balance table.
//
// A Ledger is not safe for concurrent use; its owner serialises access.
package ledger

import (
	"fmt"
	"sort"

	"github.com/holiman/uint256"

	"ammpool/internal/fixedpoint"
	"ammpool/internal/model"
)

var (
	ErrNotRegistered       = fmt.Errorf("%w: account not registered", model.ErrLedger)
	ErrInsufficientBalance = fmt.Errorf("%w: insufficient balance", model.ErrLedger)
	ErrSameAccount         = fmt.Errorf("%w: sender and receiver should be different", model.ErrLedger)
	ErrNonZeroBalance      = fmt.Errorf("%w: account has a positive balance", model.ErrLedger)
	ErrOverflow            = fmt.Errorf("%w: amount overflow", model.ErrLedger)
)

// Ledger maps accounts to balances and tracks the issued total.
type Ledger struct {
	name     string
	accounts map[model.AccountID]uint256.Int
	total    uint256.Int
}

// New returns an empty ledger. The name only appears in errors.
func New(name string) *Ledger {
	return &Ledger{
		name:     name,
		accounts: make(map[model.AccountID]uint256.Int),
	}
}

// Name returns the ledger name.
func (l *Ledger) Name() string {
	return l.name
}

// Register opens an account with a zero balance. It reports false if the
// account already existed.
func (l *Ledger) Register(account model.AccountID) bool {
	if _, ok := l.accounts[account]; ok {
		return false
	}
	l.accounts[account] = uint256.Int{}
	return true
}

// IsRegistered reports whether the account exists.
func (l *Ledger) IsRegistered(account model.AccountID) bool {
	_, ok := l.accounts[account]
	return ok
}

// Unregister closes an account. A positive balance is refused unless force
// is set, in which case the balance is burned and returned.
func (l *Ledger) Unregister(account model.AccountID, force bool) (*uint256.Int, error) {
	bal, ok := l.accounts[account]
	if !ok {
		return nil, l.errorf(ErrNotRegistered, account)
	}
	if !bal.IsZero() && !force {
		return nil, l.errorf(ErrNonZeroBalance, account)
	}
	l.total.Sub(&l.total, &bal)
	delete(l.accounts, account)
	return &bal, nil
}

// BalanceOf returns the balance of account, zero if unregistered.
func (l *Ledger) BalanceOf(account model.AccountID) *uint256.Int {
	bal := l.accounts[account]
	return &bal
}

// TotalSupply returns the issued total.
func (l *Ledger) TotalSupply() *uint256.Int {
	return new(uint256.Int).Set(&l.total)
}

// Deposit credits account and grows the issued total.
func (l *Ledger) Deposit(account model.AccountID, amount *uint256.Int) error {
	bal, ok := l.accounts[account]
	if !ok {
		return l.errorf(ErrNotRegistered, account)
	}
	total, overflow := new(uint256.Int).AddOverflow(&l.total, amount)
	if overflow || !fixedpoint.Fits(total) {
		return l.errorf(ErrOverflow, account)
	}
	// bal <= total, so it cannot overflow once total does not
	bal.Add(&bal, amount)
	l.accounts[account] = bal
	l.total = *total
	return nil
}

// Withdraw debits account and shrinks the issued total.
func (l *Ledger) Withdraw(account model.AccountID, amount *uint256.Int) error {
	bal, ok := l.accounts[account]
	if !ok {
		return l.errorf(ErrNotRegistered, account)
	}
	if bal.Lt(amount) {
		return l.errorf(ErrInsufficientBalance, account)
	}
	bal.Sub(&bal, amount)
	l.accounts[account] = bal
	l.total.Sub(&l.total, amount)
	return nil
}

// Transfer moves amount between two registered accounts.
func (l *Ledger) Transfer(from, to model.AccountID, amount *uint256.Int) error {
	if from == to {
		return l.errorf(ErrSameAccount, from)
	}
	src, ok := l.accounts[from]
	if !ok {
		return l.errorf(ErrNotRegistered, from)
	}
	dst, ok := l.accounts[to]
	if !ok {
		return l.errorf(ErrNotRegistered, to)
	}
	if src.Lt(amount) {
		return l.errorf(ErrInsufficientBalance, from)
	}
	src.Sub(&src, amount)
	dst.Add(&dst, amount)
	l.accounts[from] = src
	l.accounts[to] = dst
	return nil
}

// Accounts returns the registered accounts in sorted order.
func (l *Ledger) Accounts() []model.AccountID {
	out := make([]model.AccountID, 0, len(l.accounts))
	for account := range l.accounts {
		out = append(out, account)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Export copies the ledger into its persisted form.
func (l *Ledger) Export() model.LedgerSnapshot {
	snap := model.LedgerSnapshot{
		Total:    l.total.Dec(),
		Balances: make(map[model.AccountID]string, len(l.accounts)),
	}
	for account, bal := range l.accounts {
		snap.Balances[account] = bal.Dec()
	}
	return snap
}

// Import builds a ledger from its persisted form, checking that the
// balances add up to the recorded total.
func Import(name string, snap model.LedgerSnapshot) (*Ledger, error) {
	l := New(name)
	sum := new(uint256.Int)
	for account, raw := range snap.Balances {
		bal, err := fixedpoint.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("import %s balance of %s: %w", name, account, err)
		}
		var overflow bool
		sum, overflow = sum.AddOverflow(sum, bal)
		if overflow || !fixedpoint.Fits(sum) {
			return nil, fmt.Errorf("import %s: %w", name, ErrOverflow)
		}
		l.accounts[account] = *bal
	}
	total, err := fixedpoint.Parse(snap.Total)
	if err != nil {
		return nil, fmt.Errorf("import %s total: %w", name, err)
	}
	if !total.Eq(sum) {
		return nil, fmt.Errorf("%w: %s balances sum to %s, total is %s", model.ErrInvariant, name, sum.Dec(), total.Dec())
	}
	l.total = *total
	return l, nil
}

func (l *Ledger) errorf(err error, account model.AccountID) error {
	return fmt.Errorf("%s ledger, account %s: %w", l.name, account, err)
}
