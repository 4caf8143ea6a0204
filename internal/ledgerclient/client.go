// Package ledgerclient implements ledger.Client as a thin RPC client:
// one QUIC connection to a ledger node, with each call opening a
// bidirectional stream, writing a framed JSON request, and reading a
// framed JSON response. The block subscription instead opens a single
// long-lived stream and reads one frame per confirmed block.
package ledgerclient

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"

	quic "github.com/quic-go/quic-go"

	"kaspeak/internal/curve"
	"kaspeak/internal/kbytes"
	"kaspeak/internal/klog"
	"kaspeak/internal/ledger"
	"kaspeak/internal/signer"

	"go.uber.org/zap"
)

// Client is a QUIC-backed ledger.Client.
type Client struct {
	mu      sync.Mutex
	conn    *quic.Conn
	tlsConf *tls.Config
}

// New returns an unconnected Client. tlsConf may be nil, in which case
// a minimal insecure-skip-verify config is used — suitable only for
// local development against a self-signed node, mirroring the teacher's
// devTLS opt-in posture.
func New(tlsConf *tls.Config) *Client {
	if tlsConf == nil {
		tlsConf = &tls.Config{InsecureSkipVerify: true, NextProtos: []string{"kaspeak-rpc"}}
	}
	return &Client{tlsConf: tlsConf}
}

// Connect dials url over QUIC. networkID is sent as part of every
// subsequent request rather than at the transport level.
func (c *Client) Connect(ctx context.Context, networkID, url string) error {
	conn, err := quic.DialAddr(ctx, url, c.tlsConf, nil)
	if err != nil {
		return fmt.Errorf("ledgerclient: dial %s: %w", url, err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	klog.L().Info("ledgerclient: connected", zap.String("url", url), zap.String("network", networkID))
	return nil
}

// Disconnect closes the underlying QUIC connection.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.CloseWithError(0, "client disconnect")
}

type rpcEnvelope struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

func (c *Client) call(ctx context.Context, method string, params, result any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("ledgerclient: not connected")
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return fmt.Errorf("ledgerclient: open stream: %w", err)
	}
	defer stream.Close()

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("ledgerclient: encode params: %w", err)
	}
	req, err := json.Marshal(rpcEnvelope{Method: method, Params: paramsJSON})
	if err != nil {
		return fmt.Errorf("ledgerclient: encode request: %w", err)
	}
	if err := WriteFrame(stream, req); err != nil {
		return fmt.Errorf("ledgerclient: write request: %w", err)
	}

	respFrame, err := ReadFrame(stream)
	if err != nil {
		return fmt.Errorf("ledgerclient: read response: %w", err)
	}
	var resp rpcResponse
	if err := json.Unmarshal(respFrame, &resp); err != nil {
		return fmt.Errorf("ledgerclient: decode response: %w", err)
	}
	if resp.Error != "" {
		return fmt.Errorf("ledgerclient: %s: %s", method, resp.Error)
	}
	if result == nil {
		return nil
	}
	return json.Unmarshal(resp.Result, result)
}

// SubscribeBlockAdded opens one long-lived stream and decodes one
// ledger.Block per frame, invoking handler for each.
func (c *Client) SubscribeBlockAdded(ctx context.Context, handler ledger.BlockHandler) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("ledgerclient: not connected")
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return fmt.Errorf("ledgerclient: open subscribe stream: %w", err)
	}
	if err := WriteFrame(stream, []byte(`{"method":"subscribe_block_added"}`)); err != nil {
		return fmt.Errorf("ledgerclient: subscribe request: %w", err)
	}
	go func() {
		for {
			frame, err := ReadFrame(stream)
			if err != nil {
				klog.L().Warn("ledgerclient: block subscription closed", zap.Error(err))
				return
			}
			var block ledger.Block
			if err := json.Unmarshal(frame, &block); err != nil {
				klog.L().Error("ledgerclient: malformed block frame", zap.Error(err))
				continue
			}
			handler(block)
		}
	}()
	return nil
}

// GetUTXOsByAddresses fetches UTXO entries for addresses.
func (c *Client) GetUTXOsByAddresses(ctx context.Context, addresses []string) (ledger.UTXOSet, error) {
	var out ledger.UTXOSet
	err := c.call(ctx, "get_utxos_by_addresses", addresses, &out)
	return out, err
}

// SubmitTransaction submits tx and returns the ledger-assigned id.
func (c *Client) SubmitTransaction(ctx context.Context, tx ledger.Transaction) (ledger.SubmitResult, error) {
	var out ledger.SubmitResult
	err := c.call(ctx, "submit_transaction", tx, &out)
	return out, err
}

// AddressFromPubkey derives an address locally rather than round-
// tripping to the node: it is a pure function of the compressed public
// key and network id, so there is nothing an RPC call would add besides
// latency.
func (c *Client) AddressFromPubkey(compressedPub [33]byte, networkID string) (string, error) {
	if _, err := curve.PointFromBytes(compressedPub[:]); err != nil {
		return "", fmt.Errorf("ledgerclient: address_from_pubkey: %w", err)
	}
	return fmt.Sprintf("%s:%s", networkID, kbytes.ToHex(compressedPub[:])), nil
}

// SignTransaction delegates signing to the node, which holds the
// canonical serialization rules for its own transaction format.
func (c *Client) SignTransaction(ctx context.Context, tx ledger.Transaction, privKeys [][]byte, verify bool) (ledger.SignedTransaction, error) {
	req := struct {
		Transaction ledger.Transaction `json:"transaction"`
		PrivateKeys [][]byte           `json:"privateKeys"`
		Verify      bool               `json:"verify"`
	}{Transaction: tx, PrivateKeys: privKeys, Verify: verify}
	var out ledger.SignedTransaction
	err := c.call(ctx, "sign_transaction", req, &out)
	return out, err
}

// SignMessage signs message locally via Schnorr over its SHA256 hash,
// the same message-hash rule the rest of the core uses.
func (c *Client) SignMessage(message string, privateKey []byte) ([]byte, error) {
	priv := new(big.Int).SetBytes(privateKey)
	hash := signer.HashHexString(message)
	sig, err := signer.SchnorrSign(hash, priv)
	if err != nil {
		return nil, fmt.Errorf("ledgerclient: sign_message: %w", err)
	}
	return sig[:], nil
}

// VerifyMessage verifies a Schnorr signature over message's SHA256 hash.
func (c *Client) VerifyMessage(message string, signature []byte, publicKey []byte) bool {
	hash := signer.HashHexString(message)
	return signer.SchnorrVerifyBytes(signature, hash, publicKey)
}

// CreateSelfTransferTransaction asks the node to build an unsigned
// self-transfer sized for payloadLen bytes.
func (c *Client) CreateSelfTransferTransaction(ctx context.Context, fromAddress string, payloadLen int, priorityFeeSompi uint64) (ledger.Transaction, error) {
	req := struct {
		FromAddress      string `json:"fromAddress"`
		PayloadLen       int    `json:"payloadLen"`
		PriorityFeeSompi uint64 `json:"priorityFeeSompi"`
	}{FromAddress: fromAddress, PayloadLen: payloadLen, PriorityFeeSompi: priorityFeeSompi}
	var out ledger.Transaction
	err := c.call(ctx, "create_self_transfer_transaction", req, &out)
	return out, err
}
