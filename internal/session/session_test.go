package session

import (
	"context"
	"math/big"
	"testing"

	"kaspeak/internal/curve"
	"kaspeak/internal/ledger"
)

type fakeLedger struct {
	address    string
	utxos      []ledger.UTXOEntry
	handler    ledger.BlockHandler
	submitted  []ledger.Transaction
	signCalled int
}

func (f *fakeLedger) Connect(ctx context.Context, networkID, url string) error { return nil }
func (f *fakeLedger) Disconnect(ctx context.Context) error                    { return nil }
func (f *fakeLedger) SubscribeBlockAdded(ctx context.Context, handler ledger.BlockHandler) error {
	f.handler = handler
	return nil
}
func (f *fakeLedger) GetUTXOsByAddresses(ctx context.Context, addresses []string) (ledger.UTXOSet, error) {
	return ledger.UTXOSet{Entries: f.utxos}, nil
}
func (f *fakeLedger) SubmitTransaction(ctx context.Context, tx ledger.Transaction) (ledger.SubmitResult, error) {
	f.submitted = append(f.submitted, tx)
	return ledger.SubmitResult{TransactionID: "submitted-1"}, nil
}
func (f *fakeLedger) AddressFromPubkey(compressedPub [33]byte, networkID string) (string, error) {
	return f.address, nil
}
func (f *fakeLedger) SignTransaction(ctx context.Context, tx ledger.Transaction, privKeys [][]byte, verify bool) (ledger.SignedTransaction, error) {
	f.signCalled++
	return ledger.SignedTransaction{Transaction: tx}, nil
}
func (f *fakeLedger) SignMessage(message string, privateKey []byte) ([]byte, error) { return nil, nil }
func (f *fakeLedger) VerifyMessage(message string, signature []byte, publicKey []byte) bool {
	return true
}
func (f *fakeLedger) CreateSelfTransferTransaction(ctx context.Context, fromAddress string, payloadLen int, priorityFeeSompi uint64) (ledger.Transaction, error) {
	return ledger.Transaction{}, nil
}

func TestCreateDerivesPublicKeyAndCoercesPrefix(t *testing.T) {
	s, err := Create(big.NewInt(6), "TEST")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	want, err := curve.ScalarBaseMul(big.NewInt(6))
	if err != nil {
		t.Fatalf("ScalarBaseMul failed: %v", err)
	}
	if s.PublicKey() != want.ToCompressed() {
		t.Fatalf("session public key does not match G*priv")
	}
	if s.TrimmedPrefix() != "TEST" {
		t.Fatalf("TrimmedPrefix() = %q, want TEST", s.TrimmedPrefix())
	}
}

func TestCreateRejectsZeroPrivateKey(t *testing.T) {
	if _, err := Create(curve.N, "TEST"); err == nil {
		t.Fatalf("expected error for a private key that reduces to zero")
	}
}

func TestSetPriorityFeeClampsAndRejectsNegative(t *testing.T) {
	s, err := Create(big.NewInt(1), "TEST")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := s.SetPriorityFee(-1); err == nil {
		t.Fatalf("expected error for negative priority fee")
	}
	if err := s.SetPriorityFee(1); err != nil {
		t.Fatalf("SetPriorityFee failed: %v", err)
	}
	if s.PriorityFeeSompi() != 100_000_000 {
		t.Fatalf("PriorityFeeSompi() = %d, want 100000000", s.PriorityFeeSompi())
	}
	if err := s.SetPriorityFee(1000); err != nil {
		t.Fatalf("SetPriorityFee failed: %v", err)
	}
	if s.PriorityFeeSompi() != maxPriorityFeeKAS*sompiPerKAS {
		t.Fatalf("priority fee was not clamped to the 100 KAS ceiling")
	}
}

func TestConnectDerivesAddressAndRefreshesBalance(t *testing.T) {
	s, err := Create(big.NewInt(6), "TEST")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	fake := &fakeLedger{
		address: "kaspeak:fakeaddr",
		utxos:   []ledger.UTXOEntry{{Amount: 150_000_000}, {Amount: 50_000_000}},
	}
	if err := s.Connect(context.Background(), fake, "mainnet", ""); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if s.Address() != "kaspeak:fakeaddr" {
		t.Fatalf("Address() = %q, want kaspeak:fakeaddr", s.Address())
	}
	if s.Balance() != 2 {
		t.Fatalf("Balance() = %d, want 2 (200000000 sompi / 1e8)", s.Balance())
	}
	if fake.handler == nil {
		t.Fatalf("Connect must subscribe a block handler")
	}
}

func TestDeriveConversationKeysSymmetric(t *testing.T) {
	a, err := Create(big.NewInt(6), "TEST")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	b, err := Create(big.NewInt(1337), "TEST")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	ka, err := a.DeriveConversationKeys(b.PublicKey())
	if err != nil {
		t.Fatalf("DeriveConversationKeys failed: %v", err)
	}
	kb, err := b.DeriveConversationKeys(a.PublicKey())
	if err != nil {
		t.Fatalf("DeriveConversationKeys failed: %v", err)
	}
	if ka.Secret != kb.Secret {
		t.Fatalf("shared secrets are not symmetric")
	}
	if ka.ChainKey.Cmp(kb.ChainKey) != 0 {
		t.Fatalf("chain keys are not symmetric")
	}
}

func TestCreatePayloadSignsUnderSessionKey(t *testing.T) {
	s, err := Create(big.NewInt(42), "ABCD")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	var id [33]byte
	id[0] = 0x02
	id[32] = 0x01
	hexOut, err := s.CreatePayload("aa", 5, id, []byte("payload"))
	if err != nil {
		t.Fatalf("CreatePayload failed: %v", err)
	}
	if len(hexOut) == 0 {
		t.Fatalf("CreatePayload returned empty hex")
	}
}

func TestSendTransactionSignsAndSubmits(t *testing.T) {
	s, err := Create(big.NewInt(6), "TEST")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	fake := &fakeLedger{address: "kaspeak:fakeaddr"}
	if err := s.Connect(context.Background(), fake, "mainnet", ""); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	result, err := s.SendTransaction(context.Background(), ledger.Transaction{}, "deadbeef")
	if err != nil {
		t.Fatalf("SendTransaction failed: %v", err)
	}
	if result.TransactionID != "submitted-1" {
		t.Fatalf("TransactionID = %q, want submitted-1", result.TransactionID)
	}
	if fake.signCalled != 1 {
		t.Fatalf("expected SignTransaction to be called once, got %d", fake.signCalled)
	}
}

func TestPrivateKeyFromHexRoundTrip(t *testing.T) {
	priv, err := PrivateKeyFromHex("06")
	if err != nil {
		t.Fatalf("PrivateKeyFromHex failed: %v", err)
	}
	if priv.Cmp(big.NewInt(6)) != 0 {
		t.Fatalf("PrivateKeyFromHex(06) = %s, want 6", priv)
	}
}
