package datasource

import (
	"github.com/modulrcloud/chain-tracker/structures"
)

// Upstream records decode through lenient quantities: a field that is missing,
// null or unparsable becomes zero instead of failing the whole batch.

type lenientQuantity uint64

func (q *lenientQuantity) UnmarshalJSON(data []byte) error {

	var parsed structures.Quantity

	if err := parsed.UnmarshalJSON(data); err != nil {
		*q = 0
		return nil
	}

	*q = lenientQuantity(parsed)
	return nil
}

type lenientBigQuantity struct {
	structures.BigQuantity
}

func (q *lenientBigQuantity) UnmarshalJSON(data []byte) error {

	if err := q.BigQuantity.UnmarshalJSON(data); err != nil {
		q.Clear()
	}

	return nil
}

type rawBlock struct {
	Number        lenientQuantity `json:"number"`
	Timestamp     lenientQuantity `json:"timestamp"`
	Hash          string          `json:"hash"`
	ParentHash    string          `json:"parent_hash"`
	Miner         string          `json:"miner"`
	GasUsed       lenientQuantity `json:"gas_used"`
	GasLimit      lenientQuantity `json:"gas_limit"`
	BaseFeePerGas lenientQuantity `json:"base_fee_per_gas"`
	Difficulty    lenientQuantity `json:"difficulty"`
	Size          lenientQuantity `json:"size"`
}

type rawTransaction struct {
	Hash              string             `json:"hash"`
	From              string             `json:"from"`
	To                string             `json:"to"`
	Value             lenientBigQuantity `json:"value"`
	BlockNumber       lenientQuantity    `json:"block_number"`
	TransactionIndex  lenientQuantity    `json:"transaction_index"`
	GasUsed           lenientQuantity    `json:"gas_used"`
	GasPrice          lenientQuantity    `json:"gas_price"`
	Nonce             lenientQuantity    `json:"nonce"`
	CumulativeGasUsed lenientQuantity    `json:"cumulative_gas_used"`
	Status            *lenientQuantity   `json:"status"`
	Input             string             `json:"input"`
	Kind              lenientQuantity    `json:"kind"`
}

func (raw *rawBlock) normalize() structures.Block {
	return structures.Block{
		Number:        uint64(raw.Number),
		Timestamp:     int64(raw.Timestamp),
		Hash:          raw.Hash,
		ParentHash:    raw.ParentHash,
		Miner:         raw.Miner,
		GasUsed:       uint64(raw.GasUsed),
		GasLimit:      uint64(raw.GasLimit),
		BaseFeePerGas: uint64(raw.BaseFeePerGas),
		Difficulty:    uint64(raw.Difficulty),
		Size:          uint64(raw.Size),
	}
}

func (raw *rawTransaction) normalize() structures.Transaction {

	// A receipt without status is treated as successful.
	status := uint64(1)
	if raw.Status != nil {
		status = uint64(*raw.Status)
	}

	input := raw.Input
	if input == "" {
		input = "0x"
	}

	return structures.Transaction{
		Hash:              raw.Hash,
		From:              raw.From,
		To:                raw.To,
		Value:             raw.Value.Dec(),
		BlockNumber:       uint64(raw.BlockNumber),
		TransactionIndex:  uint64(raw.TransactionIndex),
		GasUsed:           uint64(raw.GasUsed),
		GasPrice:          uint64(raw.GasPrice),
		Nonce:             uint64(raw.Nonce),
		CumulativeGasUsed: uint64(raw.CumulativeGasUsed),
		Status:            status,
		Input:             input,
		Type:              uint64(raw.Kind),
	}
}
