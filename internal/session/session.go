// Package session implements the single-façade entry point a host
// application drives: identity + registry + event bus + dedup set +
// ledger collaborator, wired together the way the teacher's
// internal/node.Node composes its session-scoped state.
package session

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"kaspeak/internal/curve"
	"kaspeak/internal/dedup"
	"kaspeak/internal/eventbus"
	"kaspeak/internal/ingestion"
	"kaspeak/internal/kbytes"
	"kaspeak/internal/klog"
	"kaspeak/internal/kmsg"
	"kaspeak/internal/ledger"
	"kaspeak/internal/metrics"
	"kaspeak/internal/payload"
	"kaspeak/internal/pipeline"
)

// sompiPerKAS converts whole currency units to the ledger's base unit.
const sompiPerKAS = 100_000_000

// maxPriorityFeeKAS is the operator-facing ceiling on priorityFee; fees
// above it are clamped with a warning rather than rejected outright.
const maxPriorityFeeKAS = 100

// ConversationKeys is the result of deriving a shared secret and chain
// key with a peer's public key.
type ConversationKeys struct {
	Secret   [32]byte
	ChainKey *big.Int
}

// Session is the façade: it owns the private identity, the registry,
// the event bus, the dedup set, and the ledger collaborator, and
// exposes the operations a host application drives directly.
type Session struct {
	mu sync.Mutex

	privateKey *big.Int
	publicKey  [33]byte
	address    string
	prefix     [4]byte

	registry *kmsg.Registry
	bus      *eventbus.Bus
	dedup    *dedup.Set
	engine   *ingestion.Engine
	ledger   ledger.Client

	balance             uint64 // whole currency units
	utxoCount           int
	prefixFilterEnabled bool
	sigVerifyEnabled    bool
	priorityFeeSompi    uint64
}

// EventNames are the closed set of topics the façade's bus accepts.
var EventNames = []string{ingestion.EventMessageReceived}

// NormalizePrivateKey reduces priv mod n and rejects zero, the shared
// rule §3/§8 require for any of {integer, fixed 32 bytes, hex string}
// private-key inputs. Go callers pick the entry point matching their
// representation: NormalizePrivateKey for a *big.Int already in hand,
// PrivateKeyFromBytes / PrivateKeyFromHex for the other two forms.
func NormalizePrivateKey(priv *big.Int) (*big.Int, error) {
	red := new(big.Int).Mod(priv, curve.N)
	if red.Sign() == 0 {
		return nil, fmt.Errorf("session: private key reduces to zero")
	}
	return red, nil
}

// PrivateKeyFromBytes normalizes a big-endian fixed-width scalar.
func PrivateKeyFromBytes(b []byte) (*big.Int, error) {
	return NormalizePrivateKey(new(big.Int).SetBytes(b))
}

// PrivateKeyFromHex normalizes a hex-encoded big-endian scalar.
func PrivateKeyFromHex(s string) (*big.Int, error) {
	b, err := kbytes.FromHex(s)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	return PrivateKeyFromBytes(b)
}

// Create builds a Session from a normalized private key and an
// application prefix, coerced by padding with 0x00 to exactly 4 bytes.
func Create(priv *big.Int, prefix string) (*Session, error) {
	norm, err := NormalizePrivateKey(priv)
	if err != nil {
		return nil, err
	}
	pub, err := curve.ScalarBaseMul(norm)
	if err != nil {
		return nil, fmt.Errorf("session: derive public key: %w", err)
	}

	s := &Session{
		privateKey:          norm,
		publicKey:           pub.ToCompressed(),
		prefix:              payload.CoercePrefix(prefix),
		registry:            kmsg.NewRegistry(),
		bus:                 eventbus.New(EventNames...),
		dedup:               dedup.New(dedup.DefaultCapacity),
		prefixFilterEnabled: true,
		sigVerifyEnabled:    true,
	}
	return s, nil
}

// PublicKey returns the 33-byte compressed public key.
func (s *Session) PublicKey() [33]byte {
	return s.publicKey
}

// PublicKeyHex returns the lowercase hex encoding of PublicKey.
func (s *Session) PublicKeyHex() string {
	return kbytes.ToHex(s.publicKey[:])
}

// Address returns the cached ledger address, empty until Connect has
// resolved one.
func (s *Session) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address
}

// Registry exposes the session's message registry for worker
// registration; the session façade enforces the type-code range.
func (s *Session) Registry() *kmsg.Registry {
	return s.registry
}

// Bus exposes the session's event bus for subscription.
func (s *Session) Bus() *eventbus.Bus {
	return s.bus
}

// RegisterMessage validates code's range before delegating to the
// registry, per §4.6's "session façade rejects registrations with
// type_code not in 0..=65535" rule — a range Go's uint16 already
// enforces at the type level, so this exists purely to keep the
// façade's entry-point symmetrical with the other validated operations.
func (s *Session) RegisterMessage(code uint16, ctor kmsg.Ctor, worker kmsg.Worker) {
	s.registry.Register(code, ctor, worker)
}

// SetPriorityFee clamps kas to [0, 100] (warning and clamping above
// 100) and stores it as sompi = round(kas * 10^8). Negative values fail.
func (s *Session) SetPriorityFee(kas float64) error {
	if kas < 0 {
		return fmt.Errorf("session: priority fee must be non-negative, got %v", kas)
	}
	if kas > maxPriorityFeeKAS {
		klog.L().Warn("session: priority fee clamped to maximum")
		kas = maxPriorityFeeKAS
	}
	s.mu.Lock()
	s.priorityFeeSompi = uint64(kas*sompiPerKAS + 0.5)
	s.mu.Unlock()
	return nil
}

// PriorityFeeSompi returns the currently configured fee in sompi.
func (s *Session) PriorityFeeSompi() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.priorityFeeSompi
}

// SetPrefixFilterEnabled toggles the ingestion engine's prefix filter.
func (s *Session) SetPrefixFilterEnabled(enabled bool) {
	s.mu.Lock()
	s.prefixFilterEnabled = enabled
	if s.engine != nil {
		s.engine.PrefixFilterEnabled = enabled
	}
	s.mu.Unlock()
}

// SetSignatureVerificationEnabled toggles the ingestion engine's
// signature check; structural invariants are still enforced regardless.
func (s *Session) SetSignatureVerificationEnabled(enabled bool) {
	s.mu.Lock()
	s.sigVerifyEnabled = enabled
	if s.engine != nil {
		s.engine.SignatureVerificationEnabled = enabled
	}
	s.mu.Unlock()
}

// Balance returns the last-refreshed balance in whole currency units.
func (s *Session) Balance() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance
}

// Connect wires the session to a ledger collaborator: it connects,
// derives the session's address, subscribes to confirmed blocks via
// the ingestion engine, and refreshes the balance.
func (s *Session) Connect(ctx context.Context, client ledger.Client, networkID, url string) error {
	if err := client.Connect(ctx, networkID, url); err != nil {
		return fmt.Errorf("session: connect: %w", err)
	}
	addr, err := client.AddressFromPubkey(s.publicKey, networkID)
	if err != nil {
		return fmt.Errorf("session: derive address: %w", err)
	}

	s.mu.Lock()
	s.ledger = client
	s.address = addr
	resolver := func(pub [33]byte) (string, error) {
		return client.AddressFromPubkey(pub, networkID)
	}
	s.engine = ingestion.New(s.registry, s.bus, s.dedup, metrics.New(), resolver, s.TrimmedPrefix())
	s.engine.PrefixFilterEnabled = s.prefixFilterEnabled
	s.engine.SignatureVerificationEnabled = s.sigVerifyEnabled
	eng := s.engine
	s.mu.Unlock()

	if err := client.SubscribeBlockAdded(ctx, func(b ledger.Block) { eng.HandleBlock(b) }); err != nil {
		return fmt.Errorf("session: subscribe: %w", err)
	}
	return s.RefreshBalance(ctx)
}

// RefreshBalance re-queries UTXOs for the session's address and updates
// Balance/utxoCount.
func (s *Session) RefreshBalance(ctx context.Context) error {
	s.mu.Lock()
	client, addr := s.ledger, s.address
	s.mu.Unlock()
	if client == nil {
		return fmt.Errorf("session: not connected")
	}
	set, err := client.GetUTXOsByAddresses(ctx, []string{addr})
	if err != nil {
		return fmt.Errorf("session: refresh balance: %w", err)
	}
	var total uint64
	for _, e := range set.Entries {
		total += e.Amount
	}
	s.mu.Lock()
	s.balance = total / sompiPerKAS
	s.utxoCount = len(set.Entries)
	s.mu.Unlock()
	return nil
}

// TrimmedPrefix returns the session's prefix with trailing 0x00 bytes
// stripped.
func (s *Session) TrimmedPrefix() string {
	return kbytes.TrimTrailingZero(s.prefix[:])
}

// CreatePayload validates type, builds, signs, and hex-encodes a Payload
// addressed under the given identifier.
func (s *Session) CreatePayload(outpointIds string, msgType uint16, id [33]byte, data []byte) (string, error) {
	p, err := payload.Build(s.prefix, msgType, id, s.publicKey, data)
	if err != nil {
		return "", fmt.Errorf("session: create_payload: %w", err)
	}
	if err := p.Sign(outpointIds, s.privateKey); err != nil {
		return "", fmt.Errorf("session: create_payload: %w", err)
	}
	return p.HexOut(), nil
}

// CreateTransaction asks the ledger collaborator to build a self-transfer
// whose payload field is sized for dataLength + HeaderSize bytes.
func (s *Session) CreateTransaction(ctx context.Context, dataLength int) (ledger.Transaction, error) {
	s.mu.Lock()
	client, addr, fee := s.ledger, s.address, s.priorityFeeSompi
	s.mu.Unlock()
	if client == nil {
		return ledger.Transaction{}, fmt.Errorf("session: not connected")
	}
	return client.CreateSelfTransferTransaction(ctx, addr, dataLength+payload.HeaderSize, fee)
}

// SendTransaction attaches payloadHex, signs with the session's private
// key, submits to the ledger, and refreshes the balance.
func (s *Session) SendTransaction(ctx context.Context, tx ledger.Transaction, payloadHex string) (ledger.SubmitResult, error) {
	s.mu.Lock()
	client, priv := s.ledger, s.privateKey
	s.mu.Unlock()
	if client == nil {
		return ledger.SubmitResult{}, fmt.Errorf("session: not connected")
	}
	tx.PayloadHex = payloadHex
	signed, err := client.SignTransaction(ctx, tx, [][]byte{priv.Bytes()}, true)
	if err != nil {
		return ledger.SubmitResult{}, fmt.Errorf("session: sign transaction: %w", err)
	}
	result, err := client.SubmitTransaction(ctx, signed.Transaction)
	if err != nil {
		return ledger.SubmitResult{}, fmt.Errorf("session: submit transaction: %w", err)
	}
	_ = s.RefreshBalance(ctx)
	return result, nil
}

// DeriveConversationKeys computes the shared secret and chain key with
// a peer's public key: secret = SHA256(SHA256(ECDH(myPriv, peerPub))),
// chainKey = int(SHA256(secret)).
func (s *Session) DeriveConversationKeys(peerPub [33]byte) (ConversationKeys, error) {
	point, err := curve.PointFromBytes(peerPub[:])
	if err != nil {
		return ConversationKeys{}, fmt.Errorf("session: derive_conversation_keys: %w", err)
	}
	secret, err := curve.SharedSecret(s.privateKey, point)
	if err != nil {
		return ConversationKeys{}, fmt.Errorf("session: derive_conversation_keys: %w", err)
	}
	chainKeyHash := kbytes.SHA256(secret[:])
	return ConversationKeys{
		Secret:   secret,
		ChainKey: new(big.Int).SetBytes(chainKeyHash),
	}, nil
}

// OutpointIDs delegates to the ingestion engine's outpoint-ordering
// algorithm.
func (s *Session) OutpointIDs(tx ledger.Transaction) string {
	return ingestion.OutpointIDs(tx)
}

// EncodeMessage runs a typed message through the pipeline using this
// session's conventions (no session-local state is required beyond the
// registry used for the symmetric decode side).
func (s *Session) EncodeMessage(msg kmsg.Message, key []byte) ([]byte, error) {
	return pipeline.Encode(msg, key)
}

// DecodeMessage decodes data against the session's registry.
func (s *Session) DecodeMessage(header kmsg.Header, data []byte, key []byte) (kmsg.Message, error) {
	return pipeline.Decode(s.registry, header, data, key)
}
