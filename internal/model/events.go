package model

// Event names recorded in the journal.
const (
	EventInitialized         = "initialized"
	EventMetadataSet         = "metadata_set"
	EventAccountRegistered   = "account_registered"
	EventAccountClosed       = "account_closed"
	EventDeposit             = "deposit"
	EventLiquidityAdded      = "liquidity_added"
	EventLiquidityRemoved    = "liquidity_removed"
	EventSwap                = "swap"
	EventSharesTransferred   = "shares_transferred"
	EventWithdrawalRequested = "withdrawal_requested"
	EventWithdrawalFinalized = "withdrawal_finalized"
	EventWithdrawalFailed    = "withdrawal_failed"
)

// InitializedEventData is the payload of a pool initialization.
type InitializedEventData struct {
	Owner  AccountID `json:"owner"`
	AssetA AssetID   `json:"asset_a"`
	AssetB AssetID   `json:"asset_b"`
}

// MetadataSetEventData records a descriptor written to a slot.
type MetadataSetEventData struct {
	Slot string    `json:"slot"`
	Meta TokenMeta `json:"meta"`
}

// AccountEventData records a registration change. Burned holds the amounts
// removed from each table on a forced close.
type AccountEventData struct {
	Account AccountID         `json:"account"`
	Burned  map[string]string `json:"burned,omitempty"`
}

// DepositEventData is an inbound transfer credited by the receiver.
type DepositEventData struct {
	Asset  AssetID   `json:"asset"`
	Sender AccountID `json:"sender"`
	Amount string    `json:"amount"`
	Msg    string    `json:"msg,omitempty"`
}

// LiquidityEventData covers both add and remove.
type LiquidityEventData struct {
	Asset    AssetID   `json:"asset"`
	Provider AccountID `json:"provider"`
	Amount   string    `json:"amount"`
	Shares   string    `json:"shares"`
	Memo     string    `json:"memo,omitempty"`
}

// SwapEventData is the payload of an executed swap.
type SwapEventData struct {
	Trader     AccountID `json:"trader"`
	SellAsset  AssetID   `json:"sell_asset"`
	BuyAsset   AssetID   `json:"buy_asset"`
	AmountIn   string    `json:"amount_in"`
	AmountOut  string    `json:"amount_out"`
	ReserveIn  string    `json:"reserve_in"`
	ReserveOut string    `json:"reserve_out"`
}

// SharesTransferEventData is a pool-share transfer between accounts.
type SharesTransferEventData struct {
	From   AccountID `json:"from"`
	To     AccountID `json:"to"`
	Amount string    `json:"amount"`
	Memo   string    `json:"memo,omitempty"`
}

// WithdrawalEventData tracks a withdrawal through its states.
type WithdrawalEventData struct {
	RequestID string    `json:"request_id"`
	Asset     AssetID   `json:"asset"`
	Requester AccountID `json:"requester"`
	Amount    string    `json:"amount"`
	Reason    string    `json:"reason,omitempty"`
}
