// Command kaspeak is the reference CLI over the session façade: identity
// derivation, ledger balance, message send, and block-feed listening,
// dispatched the way the teacher's web4-node command dispatches its
// run/status/peers/members/delta/field subcommands.
package main

import (
	"context"
	"crypto/tls"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kaspeak/internal/eventbus"
	"kaspeak/internal/identifier"
	"kaspeak/internal/ingestion"
	"kaspeak/internal/kbytes"
	"kaspeak/internal/ledgerclient"
	"kaspeak/internal/pprofutil"
	"kaspeak/internal/session"
)

func main() {
	_ = pprofutil.StartFromEnv(os.Stderr)
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "--help" || args[0] == "-h" {
		printUsage(stdout)
		return 0
	}
	switch args[0] {
	case "identity":
		return runIdentity(args[1:], stdout, stderr)
	case "balance":
		return runBalance(args[1:], stdout, stderr)
	case "send":
		return runSend(args[1:], stdout, stderr)
	case "listen":
		return runListen(args[1:], stdout, stderr)
	case "fee":
		return runFee(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", args[0])
		printUsage(stderr)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: kaspeak <identity|balance|send|listen|fee> [args]")
	fmt.Fprintln(w, "  identity [--prefix KPK]")
	fmt.Fprintln(w, "  balance  [--prefix KPK] --network mainnet --url <ledger addr>")
	fmt.Fprintln(w, "  send     [--prefix KPK] --network mainnet --url <ledger addr> --to <identifier hex> --type <n> --data <hex>")
	fmt.Fprintln(w, "  listen   [--prefix KPK] --network mainnet --url <ledger addr>")
	fmt.Fprintln(w, "  fee      --kas <amount>")
	fmt.Fprintln(w, "private key is read from KASPEAK_PRIVATE_KEY (hex)")
}

func newSessionFromEnv(prefix string) (*session.Session, error) {
	hexKey := os.Getenv("KASPEAK_PRIVATE_KEY")
	if hexKey == "" {
		return nil, fmt.Errorf("KASPEAK_PRIVATE_KEY is not set")
	}
	priv, err := session.PrivateKeyFromHex(hexKey)
	if err != nil {
		return nil, fmt.Errorf("private key: %w", err)
	}
	return session.Create(priv, prefix)
}

func runIdentity(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("identity", flag.ContinueOnError)
	fs.SetOutput(stderr)
	prefix := fs.String("prefix", "KPK", "4-byte application prefix")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	s, err := newSessionFromEnv(*prefix)
	if err != nil {
		fmt.Fprintf(stderr, "identity: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "public_key: %s\n", s.PublicKeyHex())
	fmt.Fprintf(stdout, "prefix:     %s\n", s.TrimmedPrefix())
	return 0
}

func connectedSession(ctx context.Context, prefix, network, url string) (*session.Session, error) {
	s, err := newSessionFromEnv(prefix)
	if err != nil {
		return nil, err
	}
	client := ledgerclient.New(&tls.Config{InsecureSkipVerify: true})
	if err := s.Connect(ctx, client, network, url); err != nil {
		return nil, err
	}
	return s, nil
}

func runBalance(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("balance", flag.ContinueOnError)
	fs.SetOutput(stderr)
	prefix := fs.String("prefix", "KPK", "4-byte application prefix")
	network := fs.String("network", "mainnet", "ledger network id")
	url := fs.String("url", "", "ledger node address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *url == "" {
		fmt.Fprintln(stderr, "missing --url")
		return 1
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := connectedSession(ctx, *prefix, *network, *url)
	if err != nil {
		fmt.Fprintf(stderr, "balance: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "address: %s\n", s.Address())
	fmt.Fprintf(stdout, "balance: %d KAS\n", s.Balance())
	return 0
}

func runSend(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	fs.SetOutput(stderr)
	prefix := fs.String("prefix", "KPK", "4-byte application prefix")
	network := fs.String("network", "mainnet", "ledger network id")
	url := fs.String("url", "", "ledger node address")
	to := fs.String("to", "", "recipient identifier, 33-byte compressed point hex")
	msgType := fs.Int("type", 0, "message type code, 0..65535")
	dataHex := fs.String("data", "", "hex-encoded message data")
	feeKAS := fs.Float64("fee", 0, "priority fee in whole KAS")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *url == "" || *to == "" {
		fmt.Fprintln(stderr, "missing --url or --to")
		return 1
	}
	if *msgType < 0 || *msgType > 0xFFFF {
		fmt.Fprintln(stderr, "--type must be in 0..65535")
		return 1
	}
	idBytes, err := kbytes.FromHex(*to)
	if err != nil || len(idBytes) != 33 {
		fmt.Fprintln(stderr, "--to must be a 33-byte compressed point in hex")
		return 1
	}
	var id [33]byte
	copy(id[:], idBytes)
	if _, err := identifier.FromBytes(idBytes); err != nil {
		fmt.Fprintf(stderr, "send: bad identifier: %v\n", err)
		return 1
	}
	data, err := hex.DecodeString(*dataHex)
	if err != nil {
		fmt.Fprintln(stderr, "--data must be valid hex")
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	s, err := connectedSession(ctx, *prefix, *network, *url)
	if err != nil {
		fmt.Fprintf(stderr, "send: %v\n", err)
		return 1
	}
	if err := s.SetPriorityFee(*feeKAS); err != nil {
		fmt.Fprintf(stderr, "send: %v\n", err)
		return 1
	}

	tx, err := s.CreateTransaction(ctx, len(data))
	if err != nil {
		fmt.Fprintf(stderr, "send: create transaction: %v\n", err)
		return 1
	}
	outpointIds := s.OutpointIDs(tx)
	payloadHex, err := s.CreatePayload(outpointIds, uint16(*msgType), id, data)
	if err != nil {
		fmt.Fprintf(stderr, "send: create payload: %v\n", err)
		return 1
	}
	result, err := s.SendTransaction(ctx, tx, payloadHex)
	if err != nil {
		fmt.Fprintf(stderr, "send: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "transaction_id: %s\n", result.TransactionID)
	return 0
}

func runListen(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("listen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	prefix := fs.String("prefix", "KPK", "4-byte application prefix")
	network := fs.String("network", "mainnet", "ledger network id")
	url := fs.String("url", "", "ledger node address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *url == "" {
		fmt.Fprintln(stderr, "missing --url")
		return 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s, err := connectedSession(ctx, *prefix, *network, *url)
	if err != nil {
		fmt.Fprintf(stderr, "listen: %v\n", err)
		return 1
	}
	_ = s.Bus().On(ingestion.EventMessageReceived, func(payload eventbus.Event) {
		if msg, ok := payload.(ingestion.MessageReceived); ok {
			fmt.Fprintf(stdout, "message-received: type=%d id=%s tx=%s\n",
				msg.Header.Type, msg.Header.IdentifierHex, msg.Header.TxID)
		}
	})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	fmt.Fprintf(stdout, "listening on %s as %s (ctrl-c to stop)\n", *url, s.Address())
	<-sig
	return 0
}

func runFee(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("fee", flag.ContinueOnError)
	fs.SetOutput(stderr)
	kas := fs.Float64("kas", 0, "priority fee in whole KAS")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	s, err := session.Create(demoFeePreviewKey(), "KPK")
	if err != nil {
		fmt.Fprintf(stderr, "fee: %v\n", err)
		return 1
	}
	if err := s.SetPriorityFee(*kas); err != nil {
		fmt.Fprintf(stderr, "fee: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "priority_fee_sompi: %d\n", s.PriorityFeeSompi())
	return 0
}

// demoFeePreviewKey backs the offline `fee` preview command, which only
// needs a valid session and never touches the network or a real identity.
func demoFeePreviewKey() *big.Int {
	priv, err := session.PrivateKeyFromBytes([]byte("kaspeak-fee-preview-seed-material"))
	if err != nil {
		panic(err)
	}
	return priv
}
