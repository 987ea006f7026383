package structures

// AdvancedSearchRequest is the body of POST /api/search/advanced.
// Missing block bounds default around the last seen height.
type AdvancedSearchRequest struct {
	FromBlock *Quantity    `json:"fromBlock"`
	ToBlock   *Quantity    `json:"toBlock"`
	Address   string       `json:"address"`
	MinValue  *BigQuantity `json:"minValue"`
}

type AdvancedSearchResult struct {
	FromBlock    uint64        `json:"fromBlock"`
	ToBlock      uint64        `json:"toBlock"`
	Address      string        `json:"address,omitempty"`
	MinValue     string        `json:"minValue,omitempty"`
	Transactions []Transaction `json:"transactions"`
	Truncated    bool          `json:"truncated"`
}

// TransactionPage is one page of /api/transactions.
type TransactionPage struct {
	Transactions []Transaction `json:"transactions"`
	NextBlock    uint64        `json:"nextBlock"`
	HasMore      bool          `json:"hasMore"`
}
