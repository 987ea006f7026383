package structures

import (
	"strings"

	"github.com/holiman/uint256"
)

// Transaction is a normalized upstream transaction.
//
// Value and GasFee are decimal strings so that 256-bit amounts survive JSON
// without floating point rounding. TimestampEstimated marks records whose block
// timestamp could not be resolved and was replaced by wall-clock time.
type Transaction struct {
	Hash               string `json:"hash"`
	From               string `json:"from"`
	To                 string `json:"to"`
	Value              string `json:"value"`
	BlockNumber        uint64 `json:"blockNumber"`
	Timestamp          int64  `json:"timestamp"`
	TransactionIndex   uint64 `json:"transactionIndex"`
	GasUsed            uint64 `json:"gasUsed"`
	GasPrice           uint64 `json:"gasPrice"`
	Nonce              uint64 `json:"nonce"`
	CumulativeGasUsed  uint64 `json:"cumulativeGasUsed"`
	Status             uint64 `json:"status"`
	Input              string `json:"input"`
	Type               uint64 `json:"type"`
	GasFee             string `json:"gasFee"`
	IsContract         bool   `json:"isContract"`
	TimestampEstimated bool   `json:"timestampEstimated,omitempty"`
}

// DeriveFields computes gas fee (gasUsed * gasPrice) and the contract interaction flag.
func (tx *Transaction) DeriveFields() {

	if tx.Value == "" {
		tx.Value = "0"
	}

	if tx.Input == "" {
		tx.Input = "0x"
	}

	fee := new(uint256.Int).SetUint64(tx.GasUsed)
	fee.Mul(fee, new(uint256.Int).SetUint64(tx.GasPrice))
	tx.GasFee = fee.Dec()

	// Anything beyond the bare "0x" marker is call data.
	tx.IsContract = len(tx.Input) > 2

}

// ValueInt parses Value; malformed values compare as zero.
func (tx *Transaction) ValueInt() *uint256.Int {

	v, err := uint256.FromDecimal(tx.Value)
	if err != nil {
		return new(uint256.Int)
	}

	return v
}

// Touches reports whether address is the sender or the recipient, ignoring case.
func (tx *Transaction) Touches(address string) bool {
	return strings.EqualFold(tx.From, address) || strings.EqualFold(tx.To, address)
}
