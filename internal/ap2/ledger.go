package ap2

import "sync"

// TransactionStatus tracks a payment recorded in the Ledger.
type TransactionStatus string

const (
	TxPending   TransactionStatus = "pending"
	TxConfirmed TransactionStatus = "confirmed"
	TxFailed    TransactionStatus = "failed"
)

// Transaction is one entry of the payment history.
type Transaction struct {
	ID        string            `json:"id"`
	TxHash    string            `json:"txHash"`
	Amount    string            `json:"amount"`
	Service   string            `json:"service"`
	Network   string            `json:"network"`
	Timestamp int64             `json:"timestamp"`
	Status    TransactionStatus `json:"status"`
	Brief     string            `json:"brief,omitempty"`
}

// Ledger keeps the payment history for the lifetime of the process.
type Ledger struct {
	mu  sync.RWMutex
	txs []Transaction
}

func NewLedger() *Ledger {
	return &Ledger{}
}

// Record stores tx as the newest entry.
func (l *Ledger) Record(tx Transaction) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.txs = append(l.txs, tx)
}

// List returns the history, newest first.
func (l *Ledger) List() []Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Transaction, len(l.txs))
	for i, tx := range l.txs {
		out[len(l.txs)-1-i] = tx
	}
	return out
}

func (l *Ledger) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.txs)
}
