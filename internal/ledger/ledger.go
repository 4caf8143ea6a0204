// Package ledger declares the collaborator interface the session
// façade and ingestion engine depend on: block subscription, UTXO
// queries, transaction submission and signing, and address/message
// helpers. internal/ledgerclient provides one concrete implementation;
// tests substitute a fake.
package ledger

import "context"

// Outpoint identifies the transaction output an input spends.
type Outpoint struct {
	TransactionID string
	Index         uint32
}

// Input is one spend within a Transaction.
type Input struct {
	PreviousOutpoint Outpoint
}

// VerboseData carries ledger-computed metadata about a transaction,
// most importantly the confirmed transaction id used for dedup.
type VerboseData struct {
	TransactionID string
}

// Transaction is the subset of an on-ledger transaction the core reads:
// its inputs (for outpoint id ordering) and its opaque payload field.
type Transaction struct {
	Inputs      []Input
	PayloadHex  string
	VerboseData *VerboseData
}

// BlockHeader carries the confirmation metadata attached to a
// MessageHeader.
type BlockHeader struct {
	Hash      string
	Timestamp int64
	DAAScore  uint64
}

// Block is a confirmed block delivered by the block-added subscription.
type Block struct {
	Header       BlockHeader
	Transactions []Transaction
}

// BlockHandler is invoked for each confirmed block.
type BlockHandler func(Block)

// UTXOEntry is one unspent output returned by a balance query.
type UTXOEntry struct {
	Amount uint64 // sompi
}

// UTXOSet is the response to a balance query.
type UTXOSet struct {
	Entries []UTXOEntry
}

// SignedTransaction wraps a transaction that has been signed and is
// ready for submission.
type SignedTransaction struct {
	Transaction Transaction
}

// SubmitResult carries the ledger-assigned transaction id after
// submission.
type SubmitResult struct {
	TransactionID string
}

// Client is the collaborator the core requires of its host ledger.
// Every method may perform network I/O and so takes a context.
type Client interface {
	Connect(ctx context.Context, networkID, url string) error
	Disconnect(ctx context.Context) error
	SubscribeBlockAdded(ctx context.Context, handler BlockHandler) error

	GetUTXOsByAddresses(ctx context.Context, addresses []string) (UTXOSet, error)
	SubmitTransaction(ctx context.Context, tx Transaction) (SubmitResult, error)

	AddressFromPubkey(compressedPub [33]byte, networkID string) (string, error)

	SignTransaction(ctx context.Context, tx Transaction, privKeys [][]byte, verify bool) (SignedTransaction, error)
	SignMessage(message string, privateKey []byte) ([]byte, error)
	VerifyMessage(message string, signature []byte, publicKey []byte) bool

	// CreateSelfTransferTransaction builds an unsigned self-transfer
	// whose payload field is sized for payloadLen bytes, spending the
	// current UTXO set and paying priorityFeeSompi.
	CreateSelfTransferTransaction(ctx context.Context, fromAddress string, payloadLen int, priorityFeeSompi uint64) (Transaction, error)
}
