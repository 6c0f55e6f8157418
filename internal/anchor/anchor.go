// Package anchor registers fraud alert signatures on an EVM chain through
// a FraudRegistry contract. Anchoring is an explicit operator action,
// decoupled from the intake pipeline; the database stays authoritative
// and the chain provides tamper-evident co-attestation.
package anchor

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

var (
	ErrInvalidPrivateKey = errors.New("anchor: invalid private key")
	ErrInvalidSigHash    = errors.New("anchor: signature hash must be 64 hex characters")
	ErrRPCConnection     = errors.New("anchor: RPC connection failed")
	ErrTxReverted        = errors.New("anchor: registry transaction reverted")
	ErrTimeout           = errors.New("anchor: confirmation timed out")
	ErrNotAnchored       = errors.New("anchor: signature not registered on chain")
)

// RegisterError wraps registration failures with the failed step and the
// chain transaction hash when one was broadcast.
type RegisterError struct {
	Op     string
	TxHash string
	Err    error
}

func (e *RegisterError) Error() string {
	if e.TxHash != "" {
		return fmt.Sprintf("anchor: %s failed (tx: %s): %v", e.Op, e.TxHash, e.Err)
	}
	return fmt.Sprintf("anchor: %s failed: %v", e.Op, e.Err)
}

func (e *RegisterError) Unwrap() error { return e.Err }

// EthClient abstracts the go-ethereum client for testing.
type EthClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	Close()
}

// Minimal FraudRegistry ABI: write one alert, read it back.
const fraudRegistryABI = `[
	{"inputs":[{"name":"sigHash","type":"bytes32"},{"name":"flagged","type":"string"},{"name":"uri","type":"string"},{"name":"severity","type":"uint8"}],"name":"registerAlert","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"sigHash","type":"bytes32"}],"name":"getAlert","outputs":[{"name":"sigHash","type":"bytes32"},{"name":"flagged","type":"string"},{"name":"timestamp","type":"uint256"},{"name":"uri","type":"string"},{"name":"reporter","type":"address"}],"stateMutability":"view","type":"function"}
]`

const (
	// DefaultGasLimit for registerAlert when estimation fails.
	DefaultGasLimit = uint64(200000)

	// DefaultConfirmationTimeout bounds the receipt wait.
	DefaultConfirmationTimeout = 60 * time.Second

	// ConfirmationPollInterval between receipt checks.
	ConfirmationPollInterval = 2 * time.Second
)

// Config for creating a Registrar.
type Config struct {
	RPCURL          string
	PrivateKey      string // hex, 0x prefix optional
	ChainID         int64
	ContractAddress string
}

// Option configures the registrar.
type Option func(*Registrar)

// WithClient sets a custom Ethereum client (tests).
func WithClient(client EthClient) Option {
	return func(r *Registrar) { r.client = client }
}

// Result describes a confirmed on-chain registration.
type Result struct {
	ChainTxHash string `json:"chainTxHash"`
	BlockNumber uint64 `json:"blockNumber"`
	GasUsed     uint64 `json:"gasUsed"`
	Reporter    string `json:"reporter"`
}

// OnChainAlert is an alert read back from the registry contract.
type OnChainAlert struct {
	SigHash   string `json:"sigHash"`
	Flagged   string `json:"flagged"`
	Timestamp int64  `json:"timestamp"`
	URI       string `json:"uri"`
	Reporter  string `json:"reporter"`
}

// Registrar signs and submits registry transactions with a single
// on-chain identity. The nonce mutex serializes submissions so two
// concurrent anchor requests cannot race for the same nonce.
type Registrar struct {
	client      EthClient
	privateKey  *ecdsa.PrivateKey
	address     common.Address
	chainID     *big.Int
	contract    common.Address
	registryABI abi.ABI

	nonceMu sync.Mutex
}

// New creates a Registrar from config. Dial failure is returned here,
// not deferred to the first registration.
func New(cfg Config, opts ...Option) (*Registrar, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}

	publicKey, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: failed to derive public key", ErrInvalidPrivateKey)
	}

	parsedABI, err := abi.JSON(strings.NewReader(fraudRegistryABI))
	if err != nil {
		return nil, fmt.Errorf("anchor: parse registry ABI: %w", err)
	}

	r := &Registrar{
		privateKey:  privateKey,
		address:     crypto.PubkeyToAddress(*publicKey),
		chainID:     big.NewInt(cfg.ChainID),
		contract:    common.HexToAddress(cfg.ContractAddress),
		registryABI: parsedABI,
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.client == nil {
		client, err := ethclient.Dial(cfg.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRPCConnection, err)
		}
		r.client = client
	}

	return r, nil
}

func validateConfig(cfg Config) error {
	if cfg.RPCURL == "" {
		return fmt.Errorf("%w: RPC URL required", ErrRPCConnection)
	}
	key := strings.TrimPrefix(cfg.PrivateKey, "0x")
	if len(key) != 64 {
		return fmt.Errorf("%w: must be 64 hex characters", ErrInvalidPrivateKey)
	}
	if cfg.ChainID == 0 {
		return errors.New("anchor: chain ID required")
	}
	if cfg.ContractAddress == "" {
		return errors.New("anchor: contract address required")
	}
	return nil
}

// Reporter returns the signing identity's address.
func (r *Registrar) Reporter() string {
	return r.address.Hex()
}

// Register submits registerAlert for a signature hash and waits for the
// mined receipt. flagged is the address the alert implicates; uri points
// off-chain readers at the full alert document; severity is the ordinal
// tier.
func (r *Registrar) Register(ctx context.Context, sigHash, flagged, uri string, severity uint8) (*Result, error) {
	hash, err := parseSigHash(sigHash)
	if err != nil {
		return nil, err
	}

	data, err := r.registryABI.Pack("registerAlert", hash, flagged, uri, severity)
	if err != nil {
		return nil, &RegisterError{Op: "pack", Err: err}
	}

	signedTx, err := r.submit(ctx, data)
	if err != nil {
		return nil, err
	}

	receipt, err := r.waitMined(ctx, signedTx.Hash(), DefaultConfirmationTimeout)
	if err != nil {
		return nil, err
	}

	return &Result{
		ChainTxHash: signedTx.Hash().Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
		Reporter:    r.address.Hex(),
	}, nil
}

// submit builds, signs, and broadcasts a registry transaction. Held
// under the nonce mutex end to end so the pending nonce cannot be
// claimed twice.
func (r *Registrar) submit(ctx context.Context, data []byte) (*types.Transaction, error) {
	r.nonceMu.Lock()
	defer r.nonceMu.Unlock()

	nonce, err := r.client.PendingNonceAt(ctx, r.address)
	if err != nil {
		return nil, &RegisterError{Op: "nonce", Err: err}
	}

	gasPrice, err := r.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, &RegisterError{Op: "gas_price", Err: err}
	}

	gasLimit, err := r.client.EstimateGas(ctx, ethereum.CallMsg{
		From: r.address,
		To:   &r.contract,
		Data: data,
	})
	if err != nil {
		gasLimit = DefaultGasLimit
	}

	tx := types.NewTransaction(nonce, r.contract, big.NewInt(0), gasLimit, gasPrice, data)

	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(r.chainID), r.privateKey)
	if err != nil {
		return nil, &RegisterError{Op: "sign", Err: err}
	}

	if err := r.client.SendTransaction(ctx, signedTx); err != nil {
		return nil, &RegisterError{Op: "send", TxHash: signedTx.Hash().Hex(), Err: err}
	}
	return signedTx, nil
}

func (r *Registrar) waitMined(ctx context.Context, hash common.Hash, timeout time.Duration) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(ConfirmationPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, &RegisterError{Op: "confirm", TxHash: hash.Hex(), Err: ErrTimeout}
			}
			return nil, ctx.Err()

		case <-ticker.C:
			receipt, err := r.client.TransactionReceipt(ctx, hash)
			if err != nil {
				// Not yet mined; keep polling.
				continue
			}
			if receipt.Status == 0 {
				return nil, &RegisterError{Op: "confirm", TxHash: hash.Hex(), Err: ErrTxReverted}
			}
			return receipt, nil
		}
	}
}

// GetAlert reads an alert back from the registry. ErrNotAnchored is
// returned when the contract holds no entry for the hash.
func (r *Registrar) GetAlert(ctx context.Context, sigHash string) (*OnChainAlert, error) {
	hash, err := parseSigHash(sigHash)
	if err != nil {
		return nil, err
	}

	data, err := r.registryABI.Pack("getAlert", hash)
	if err != nil {
		return nil, fmt.Errorf("anchor: pack getAlert: %w", err)
	}

	result, err := r.client.CallContract(ctx, ethereum.CallMsg{
		To:   &r.contract,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("anchor: call getAlert: %w", err)
	}

	out, err := r.registryABI.Unpack("getAlert", result)
	if err != nil {
		return nil, fmt.Errorf("anchor: unpack getAlert: %w", err)
	}
	if len(out) != 5 {
		return nil, fmt.Errorf("anchor: getAlert returned %d values, want 5", len(out))
	}

	storedHash, _ := out[0].([32]byte)
	flagged, _ := out[1].(string)
	timestamp, _ := out[2].(*big.Int)
	uri, _ := out[3].(string)
	reporter, _ := out[4].(common.Address)

	// An unregistered hash comes back zeroed.
	if storedHash == ([32]byte{}) {
		return nil, ErrNotAnchored
	}

	var ts int64
	if timestamp != nil {
		ts = timestamp.Int64()
	}

	return &OnChainAlert{
		SigHash:   hex.EncodeToString(storedHash[:]),
		Flagged:   flagged,
		Timestamp: ts,
		URI:       uri,
		Reporter:  reporter.Hex(),
	}, nil
}

// Close closes the client connection.
func (r *Registrar) Close() error {
	if r.client != nil {
		r.client.Close()
	}
	return nil
}

func parseSigHash(sigHash string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(sigHash, "0x"))
	if err != nil || len(raw) != 32 {
		return out, ErrInvalidSigHash
	}
	copy(out[:], raw)
	return out, nil
}
