package structures

// Block is a normalized upstream block. GasUtilization and TransactionCount are
// derived when the block enters the cache.
type Block struct {
	Number           uint64  `json:"number"`
	Timestamp        int64   `json:"timestamp"`
	Hash             string  `json:"hash"`
	ParentHash       string  `json:"parent_hash"`
	Miner            string  `json:"miner"`
	GasUsed          uint64  `json:"gas_used"`
	GasLimit         uint64  `json:"gas_limit"`
	BaseFeePerGas    uint64  `json:"base_fee_per_gas"`
	Difficulty       uint64  `json:"difficulty"`
	Size             uint64  `json:"size"`
	GasUtilization   float64 `json:"gas_utilization"`
	TransactionCount int     `json:"transaction_count"`
}

// DeriveFields fills the computed columns. A zero gas limit yields 0% utilization.
func (b *Block) DeriveFields(transactionCount int) {

	b.TransactionCount = transactionCount

	if b.GasLimit == 0 {
		b.GasUtilization = 0
		return
	}

	b.GasUtilization = float64(b.GasUsed) / float64(b.GasLimit) * 100

}

// CountTransactionsByBlock maps block number to the number of transactions in the batch.
func CountTransactionsByBlock(txs []Transaction) map[uint64]int {

	counts := make(map[uint64]int, len(txs))

	for i := range txs {
		counts[txs[i].BlockNumber]++
	}

	return counts
}
