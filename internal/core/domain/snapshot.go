package domain

import "time"

// Snapshot is a state snapshot announced on-chain by a snapshot_submitted
// event. Epochs are unique.
type Snapshot struct {
	Epoch           int64     `json:"epoch"`
	Hash            string    `json:"hash"`
	ContractID      string    `json:"contract_id"`
	LedgerSequence  uint64    `json:"ledger_sequence"`
	TransactionHash string    `json:"transaction_hash"`
	CreatedAt       time.Time `json:"created_at"`
}
