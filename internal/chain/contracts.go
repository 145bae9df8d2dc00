package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
)

const erc20JSON = `[
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]}
]`

const routerJSON = `[
	{"type":"function","name":"getAmountsOut","stateMutability":"view","inputs":[{"name":"amountIn","type":"uint256"},{"name":"path","type":"address[]"}],"outputs":[{"name":"amounts","type":"uint256[]"}]},
	{"type":"function","name":"swapExactTokensForTokens","stateMutability":"nonpayable","inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"amounts","type":"uint256[]"}]}
]`

var (
	erc20ABI  = mustParseABI(erc20JSON)
	routerABI = mustParseABI(routerJSON)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("parse abi: %v", err))
	}
	return parsed
}

// Client is the subset of the JSON-RPC client the executor uses.
// *ethclient.Client satisfies it.
type Client interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	ChainID(ctx context.Context) (*big.Int, error)
	Close()
}

// DialFunc opens a client for an RPC endpoint.
type DialFunc func(ctx context.Context, rpcURL string) (Client, error)

func dialEthclient(ctx context.Context, rpcURL string) (Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// call packs a view method, runs it against contract and unpacks the outputs.
func call(ctx context.Context, client Client, contractABI abi.ABI, contract common.Address, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := contractABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s returned no values", method)
	}
	return values, nil
}

func tokenDecimals(ctx context.Context, client Client, token common.Address) (int32, error) {
	values, err := call(ctx, client, erc20ABI, token, "decimals")
	if err != nil {
		return 0, err
	}
	dec, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals: unexpected type %T", values[0])
	}
	return int32(dec), nil
}

func bigOutput(values []interface{}, method string) (*big.Int, error) {
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected type %T", method, values[0])
	}
	return v, nil
}

func tokenBalance(ctx context.Context, client Client, token, owner common.Address) (*big.Int, error) {
	values, err := call(ctx, client, erc20ABI, token, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return bigOutput(values, "balanceOf")
}

func tokenAllowance(ctx context.Context, client Client, token, owner, spender common.Address) (*big.Int, error) {
	values, err := call(ctx, client, erc20ABI, token, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return bigOutput(values, "allowance")
}

func amountsOut(ctx context.Context, client Client, router common.Address, amountIn *big.Int, path []common.Address) (*big.Int, error) {
	values, err := call(ctx, client, routerABI, router, "getAmountsOut", amountIn, path)
	if err != nil {
		return nil, err
	}
	amounts, ok := values[0].([]*big.Int)
	if !ok || len(amounts) == 0 {
		return nil, fmt.Errorf("getAmountsOut: unexpected result %T", values[0])
	}
	return amounts[len(amounts)-1], nil
}

// transact signs and sends a call to contract from key's account and
// returns the transaction hash.
func transact(ctx context.Context, client Client, key *ecdsa.PrivateKey, contract common.Address, data []byte) (string, error) {
	from := crypto.PubkeyToAddress(key.PublicKey)
	nonce, err := client.PendingNonceAt(ctx, from)
	if err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("gas price: %w", err)
	}
	gas, err := client.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &contract, Data: data})
	if err != nil {
		return "", fmt.Errorf("estimate gas: %w", err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return "", fmt.Errorf("chain id: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &contract,
		Value:    big.NewInt(0),
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), key)
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}
	if err := client.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send: %w", err)
	}
	return signed.Hash().Hex(), nil
}

// toUnits converts a human amount into token base units, rounded to the
// token's precision.
func toUnits(amount float64, decimals int32) *big.Int {
	return decimal.NewFromFloat(amount).Round(decimals).Shift(decimals).BigInt()
}

// fromUnits converts base units back into a human amount.
func fromUnits(amount *big.Int, decimals int32) float64 {
	return decimal.NewFromBigInt(amount, -decimals).InexactFloat64()
}
