// Package ingestion implements the block-processing engine that turns
// confirmed ledger blocks into dispatched, typed messages: the
// 13-step filter/parse/verify/dispatch pipeline. Dispatch is a
// registry lookup rather than a type switch, generalizing the
// teacher's per-message-type switch in internal/daemon/peer.go to an
// arbitrary, caller-registered set of message types.
package ingestion

import (
	"fmt"

	"go.uber.org/zap"

	"kaspeak/internal/dedup"
	"kaspeak/internal/eventbus"
	"kaspeak/internal/kbytes"
	"kaspeak/internal/klog"
	"kaspeak/internal/kmsg"
	"kaspeak/internal/ledger"
	"kaspeak/internal/metrics"
	"kaspeak/internal/payload"
)

// EventMessageReceived is the event bus topic emitted for every payload
// that clears all filters, regardless of whether a worker is
// registered for its type.
const EventMessageReceived = "message-received"

// MessageReceived is the payload of EventMessageReceived.
type MessageReceived struct {
	Header kmsg.Header
	Data   []byte
}

// AddressResolver derives a sender address from a compressed public key,
// the piece of the ledger collaborator the engine actually needs.
type AddressResolver func(compressedPub [33]byte) (string, error)

// Engine consumes confirmed blocks and dispatches messages. It holds no
// network state of its own; the session façade wires it to the ledger's
// block subscription.
type Engine struct {
	Registry                     *kmsg.Registry
	Bus                          *eventbus.Bus
	Dedup                        *dedup.Set
	Metrics                      *metrics.Ingestion
	AddressFromPubkey            AddressResolver
	Prefix                       string
	PrefixFilterEnabled          bool
	SignatureVerificationEnabled bool
}

// New builds an Engine with signature verification and prefix filtering
// on, per the session façade's default state.
func New(registry *kmsg.Registry, bus *eventbus.Bus, dd *dedup.Set, m *metrics.Ingestion, resolver AddressResolver, prefix string) *Engine {
	return &Engine{
		Registry:                     registry,
		Bus:                          bus,
		Dedup:                        dd,
		Metrics:                      m,
		AddressFromPubkey:            resolver,
		Prefix:                       prefix,
		PrefixFilterEnabled:          true,
		SignatureVerificationEnabled: true,
	}
}

// HandleBlock runs the full filter/parse/verify/dispatch pipeline over
// every transaction in block, in block order. One bad transaction never
// aborts processing of the rest.
func (e *Engine) HandleBlock(block ledger.Block) {
	for _, tx := range block.Transactions {
		e.handleTransaction(block, tx)
	}
}

func (e *Engine) handleTransaction(block ledger.Block, tx ledger.Transaction) {
	e.Metrics.IncSeen()

	// Steps 1-2: odd-length or too-short payload hex is skipped outright.
	if len(tx.PayloadHex)%2 != 0 {
		e.Metrics.IncSkippedShort()
		return
	}
	raw, err := kbytes.FromHex(tx.PayloadHex)
	if err != nil {
		e.Metrics.IncSkippedShort()
		return
	}
	if len(raw) < payload.HeaderSize {
		e.Metrics.IncSkippedShort()
		return
	}

	// Step 3: ledger marker filter.
	if !payload.HasMarker(raw) {
		e.Metrics.IncSkippedMarker()
		return
	}

	// Step 4: verboseData must be present.
	if tx.VerboseData == nil {
		klog.L().Error("ingestion: transaction missing verboseData", zap.String("payload", tx.PayloadHex))
		return
	}

	// Step 5: dedup on the confirmed transaction id.
	if !e.Dedup.TryAdd(tx.VerboseData.TransactionID) {
		e.Metrics.IncSkippedDuplicate()
		return
	}

	// Step 6: parse.
	p, err := payload.FromBytes(raw)
	if err != nil {
		e.Metrics.IncSkippedParse()
		klog.L().Debug("ingestion: payload parse failed", zap.String("txid", tx.VerboseData.TransactionID), zap.Error(err))
		return
	}

	// Step 7: extract prefix.
	prefix := p.TrimmedPrefix()

	// Step 8: prefix filter.
	if e.PrefixFilterEnabled && prefix != e.Prefix {
		e.Metrics.IncSkippedPrefix()
		return
	}

	// Step 9: consensus hash.
	consensusHash := OutpointIDs(tx)

	// Step 10: signature verification.
	if e.SignatureVerificationEnabled && !p.Verify(consensusHash) {
		e.Metrics.IncSkippedSignature()
		klog.L().Warn("ingestion: signature verification failed", zap.String("txid", tx.VerboseData.TransactionID))
		return
	}

	// Step 11: build header.
	address := ""
	if e.AddressFromPubkey != nil {
		if a, err := e.AddressFromPubkey(p.PublicKey); err == nil {
			address = a
		}
	}
	header := kmsg.Header{
		TxID:          tx.VerboseData.TransactionID,
		PeerAddress:   address,
		PeerPublicKey: p.PublicKey,
		Prefix:        prefix,
		Type:          p.Type,
		IdentifierHex: fmt.Sprintf("%x", p.ID[:]),
		BlockHash:     block.Header.Hash,
		BlockTime:     block.Header.Timestamp,
		DAAScore:      block.Header.DAAScore,
		ConsensusHash: consensusHash,
	}

	// Step 12: emit message-received.
	e.Metrics.IncMessagesReceived()
	if e.Bus != nil {
		_ = e.Bus.Emit(EventMessageReceived, MessageReceived{Header: header, Data: p.Data})
	}

	// Step 13: dispatch to a registered worker, if any, scheduled on its
	// own goroutine with the header and the payload's raw data. Decoding
	// into a typed value is the worker's own job: it holds the
	// conversation key, the engine never does.
	if prefix == e.Prefix && e.Registry.HasWorker(p.Type) {
		worker, _ := e.Registry.Worker(p.Type)
		e.Metrics.IncDispatched()
		go e.dispatch(worker, header, p.Data)
	}
}

func (e *Engine) dispatch(worker kmsg.Worker, header kmsg.Header, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			e.Metrics.IncWorkerPanics()
			klog.L().Error("ingestion: worker panicked", zap.Any("recover", r), zap.String("txid", header.TxID))
		}
	}()
	worker(header, data)
}

type indexedOutpoint struct {
	pos   int
	index uint32
	txID  string
}

func (a indexedOutpoint) less(b indexedOutpoint) bool {
	if a.index != b.index {
		return a.index < b.index
	}
	return a.pos < b.pos
}

// OutpointIDs builds the consensus hash used both as the signature
// preimage's trailer and as the dedup-independent "same spend set"
// fingerprint: the lowercase hex concatenation of every input's
// previousOutpoint.transactionId, ordered by ascending
// previousOutpoint.index (stable on ties by input position).
func OutpointIDs(tx ledger.Transaction) string {
	items := make([]indexedOutpoint, len(tx.Inputs))
	for i, in := range tx.Inputs {
		items[i] = indexedOutpoint{pos: i, index: in.PreviousOutpoint.Index, txID: in.PreviousOutpoint.TransactionID}
	}
	// Stable insertion sort by ascending index, ties broken by position;
	// inputs lists are small enough that O(n^2) is not a concern.
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && items[j].less(items[j-1]); j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
	out := ""
	for _, it := range items {
		out += it.txID
	}
	return out
}
