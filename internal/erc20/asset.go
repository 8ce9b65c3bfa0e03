// Package erc20 binds an ERC-20 token on an Ethereum JSON-RPC node as an
// external pool asset.
package erc20

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"ammpool/internal/chain"
	"ammpool/internal/model"
	"ammpool/internal/retry"
)

// tokenABIJSON covers the calls an Asset makes plus the string metadata
// getters.
const tokenABIJSON = `[
  {"name": "decimals", "type": "function", "stateMutability": "view", "inputs": [], "outputs": [{"type": "uint8"}]},
  {"name": "symbol", "type": "function", "stateMutability": "view", "inputs": [], "outputs": [{"type": "string"}]},
  {"name": "name", "type": "function", "stateMutability": "view", "inputs": [], "outputs": [{"type": "string"}]},
  {"name": "balanceOf", "type": "function", "stateMutability": "view",
   "inputs": [{"name": "account", "type": "address"}], "outputs": [{"type": "uint256"}]},
  {"name": "transfer", "type": "function", "stateMutability": "nonpayable",
   "inputs": [{"name": "to", "type": "address"}, {"name": "amount", "type": "uint256"}], "outputs": [{"type": "bool"}]}
]`

var parseTokenABI = sync.OnceValues(func() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(tokenABIJSON))
})

// Backend is the part of chain.Client an Asset needs.
type Backend interface {
	Caller
	SendTransaction(ctx context.Context, args chain.TxArgs) (common.Hash, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

var (
	ErrReverted       = fmt.Errorf("%w: transfer reverted", model.ErrExternal)
	ErrInvalidAccount = fmt.Errorf("%w: account is not an address", model.ErrValidation)
)

var errPending = errors.New("receipt pending")

// Config describes one token.
type Config struct {
	// ID is the asset id the pool knows the token by. Defaults to the
	// checksummed token address.
	ID    model.AssetID
	Token common.Address
	// Custody maps the pool account id to the address holding its funds.
	Custody        model.AccountID
	CustodyAddress common.Address
	// Gas is passed to eth_sendTransaction when non-zero.
	Gas     uint64
	Receipt retry.Policy
}

// Asset is an ERC-20 token seen through a JSON-RPC backend.
type Asset struct {
	cfg     Config
	backend Backend
	logger  *zap.Logger
}

func NewAsset(cfg Config, backend Backend, logger *zap.Logger) *Asset {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ID == "" {
		cfg.ID = model.AssetID(cfg.Token.Hex())
	}
	return &Asset{
		cfg:     cfg,
		backend: backend,
		logger:  logger.With(zap.String("token", cfg.Token.Hex())),
	}
}

func (a *Asset) ID() model.AssetID {
	return a.cfg.ID
}

// Register only checks that account maps to an address; ERC-20 tokens have
// no registration.
func (a *Asset) Register(ctx context.Context, account model.AccountID) error {
	_, err := a.address(account)
	return err
}

// BalanceOf returns the latest token balance of account.
func (a *Asset) BalanceOf(ctx context.Context, account model.AccountID) (*uint256.Int, error) {
	owner, err := a.address(account)
	if err != nil {
		return nil, err
	}
	parsed, err := parseTokenABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	values, err := callMethod(ctx, a.backend, a.cfg.Token, parsed, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	bal, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("balanceOf unexpected type %T", values[0])
	}
	out, overflow := uint256.FromBig(bal)
	if overflow {
		return nil, fmt.Errorf("balanceOf %s: value exceeds 256 bits", account)
	}
	return out, nil
}

// Transfer sends transfer(to, amount) from the node-managed account of from
// and waits for the receipt. A reverted receipt is a failed transfer. If no
// receipt shows up within the receipt policy the error wraps
// model.ErrTransferNotReady.
func (a *Asset) Transfer(ctx context.Context, from, to model.AccountID, amount *uint256.Int, memo string) error {
	fromAddr, err := a.address(from)
	if err != nil {
		return err
	}
	toAddr, err := a.address(to)
	if err != nil {
		return err
	}
	data, err := PackTransfer(toAddr, amount)
	if err != nil {
		return err
	}

	args := chain.TxArgs{From: fromAddr, To: &a.cfg.Token, Data: data}
	if a.cfg.Gas > 0 {
		gas := hexutil.Uint64(a.cfg.Gas)
		args.Gas = &gas
	}
	hash, err := a.backend.SendTransaction(ctx, args)
	if err != nil {
		return sendError(err)
	}
	log := a.logger.With(
		zap.String("tx", hash.Hex()),
		zap.String("to", toAddr.Hex()),
		zap.Stringer("amount", amount),
		zap.String("memo", memo),
	)
	log.Info("transfer submitted")

	var receipt *types.Receipt
	err = retry.Do(ctx, a.cfg.Receipt, func(ctx context.Context) error {
		r, err := a.backend.TransactionReceipt(ctx, hash)
		if errors.Is(err, ethereum.NotFound) {
			return errPending
		}
		if err != nil {
			return err
		}
		if r.Status != types.ReceiptStatusSuccessful {
			return retry.Permanent(fmt.Errorf("tx %s: %w", hash.Hex(), ErrReverted))
		}
		receipt = r
		return nil
	})
	switch {
	case err == nil:
		log.Info("transfer mined", zap.Uint64("gas_used", receipt.GasUsed))
		return nil
	case errors.Is(err, ErrReverted):
		log.Warn("transfer reverted")
		return err
	default:
		log.Warn("transfer receipt unavailable", zap.Error(err))
		return fmt.Errorf("wait receipt %s: %w: %v", hash.Hex(), model.ErrTransferNotReady, err)
	}
}

// sendError classifies a failed eth_sendTransaction. A JSON-RPC error reply
// means the node refused the transaction. With any other error, such as a
// dropped connection, the node may still have accepted it, so the transfer
// is reported as not ready.
func sendError(err error) error {
	var rejected rpc.Error
	if errors.As(err, &rejected) {
		return fmt.Errorf("send transfer: %w", err)
	}
	return fmt.Errorf("send transfer: %w: %v", model.ErrTransferNotReady, err)
}

// PackTransfer encodes transfer(to, amount) calldata.
func PackTransfer(to common.Address, amount *uint256.Int) ([]byte, error) {
	parsed, err := parseTokenABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	data, err := parsed.Pack("transfer", to, amount.ToBig())
	if err != nil {
		return nil, fmt.Errorf("pack transfer: %w", err)
	}
	return data, nil
}

func (a *Asset) address(account model.AccountID) (common.Address, error) {
	if account == a.cfg.Custody && a.cfg.Custody != "" {
		return a.cfg.CustodyAddress, nil
	}
	if !common.IsHexAddress(string(account)) {
		return common.Address{}, fmt.Errorf("%w: %s", ErrInvalidAccount, account)
	}
	return common.HexToAddress(string(account)), nil
}
