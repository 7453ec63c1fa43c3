package memory

import (
	"context"
	"errors"
	"sync"

	"arkiv/contexts/market-core/settlement-engine/ports"
)

var ErrInsufficientFunds = errors.New("insufficient funds")

// ReceiveHook runs when an account is credited, after the balances have
// moved. It models payees that execute logic on receipt. A returned error
// fails the transfer and restores both balances.
type ReceiveHook func(ctx context.Context, from string, amount int64) error

// Ledger is an in-memory value ledger with per-account receive hooks.
type Ledger struct {
	mu       sync.Mutex
	balances map[string]int64
	hooks    map[string]ReceiveHook
}

func NewLedger() *Ledger {
	return &Ledger{
		balances: make(map[string]int64),
		hooks:    make(map[string]ReceiveHook),
	}
}

// Credit seeds an account balance. Test and bootstrap helper.
func (l *Ledger) Credit(account string, amount int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[account] += amount
}

func (l *Ledger) Balance(account string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account]
}

// SetReceiveHook installs a hook invoked whenever the account receives a
// transfer.
func (l *Ledger) SetReceiveHook(account string, hook ReceiveHook) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hooks[account] = hook
}

func (l *Ledger) Transfer(ctx context.Context, from string, to string, amount int64) error {
	l.mu.Lock()
	if l.balances[from] < amount {
		l.mu.Unlock()
		return ErrInsufficientFunds
	}
	l.balances[from] -= amount
	l.balances[to] += amount
	hook := l.hooks[to]
	l.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, from, amount); err != nil {
			l.mu.Lock()
			l.balances[to] -= amount
			l.balances[from] += amount
			l.mu.Unlock()
			return err
		}
	}
	return nil
}

var _ ports.Ledger = (*Ledger)(nil)
