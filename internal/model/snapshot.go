package model

// LedgerSnapshot is the persisted form of one balance table. Amounts are
// base-10 strings.
type LedgerSnapshot struct {
	Total    string               `json:"total"`
	Balances map[AccountID]string `json:"balances"`
}

// PoolSnapshot is the persisted form of a whole pool.
type PoolSnapshot struct {
	Version       int            `json:"version"`
	Initialized   bool           `json:"initialized"`
	Meta          PoolMeta       `json:"meta"`
	OpenLiquidity bool           `json:"open_liquidity"`
	MetadataA     *TokenMeta     `json:"metadata_a,omitempty"`
	MetadataB     *TokenMeta     `json:"metadata_b,omitempty"`
	LedgerA       LedgerSnapshot `json:"ledger_a"`
	LedgerB       LedgerSnapshot `json:"ledger_b"`
	Shares        LedgerSnapshot `json:"shares"`
	Withdrawals   []Withdrawal   `json:"withdrawals,omitempty"`
	EventSeq      uint64         `json:"event_seq"`
}

// SnapshotVersion is the layout version written by this build.
const SnapshotVersion = 1
