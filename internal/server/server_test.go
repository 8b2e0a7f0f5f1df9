package server_test

import (
	"context"
	"errors"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	registrarv1 "github.com/gezibash/arc-registrar/api/registrar/v1"
	"github.com/gezibash/arc-registrar/internal/auction"
	"github.com/gezibash/arc-registrar/internal/envelope"
	"github.com/gezibash/arc-registrar/internal/node"
	"github.com/gezibash/arc-registrar/internal/observability"
	"github.com/gezibash/arc-registrar/internal/server"
	"github.com/gezibash/arc-registrar/internal/snapshot/fs"
	"github.com/gezibash/arc-registrar/pkg/client"
	"github.com/gezibash/arc-registrar/pkg/identity"
	"github.com/gezibash/arc-registrar/pkg/namehash"
)

const bufSize = 1024 * 1024

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	node     *node.Node
	lis      *bufconn.Listener
	nodeKey  *identity.Keypair
	operator *identity.Keypair
	alice    *identity.Keypair
	bob      *identity.Keypair
}

func ether(n int64) *big.Int { return new(big.Int).Mul(big.NewInt(n), big.NewInt(params.Ether)) }

func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func mustKey(t *testing.T) *identity.Keypair {
	t.Helper()
	kp, err := identity.Generate()
	if err != nil {
		t.Fatal(err)
	}
	return kp
}

func setup(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		nodeKey:  mustKey(t),
		operator: mustKey(t),
		alice:    mustKey(t),
		bob:      mustKey(t),
	}

	g := node.DefaultGenesis(f.operator.Address())
	g.Alloc[f.alice.Address()] = ether(100)
	g.Alloc[f.bob.Address()] = ether(100)
	g.Auction.LaunchLength = 0

	metrics := observability.NewMetrics()
	n, err := node.Open(context.Background(), node.Options{
		Backend: "memory",
		Clock:   node.ClockManual,
		Start:   start,
		Genesis: g,
		Metrics: metrics,
	})
	if err != nil {
		t.Fatalf("open node: %v", err)
	}
	f.node = n

	target, err := fs.New(t.TempDir(), 0o755, 0o644)
	if err != nil {
		t.Fatal(err)
	}

	f.lis = bufconn.Listen(bufSize)
	srv, err := server.New(server.Options{
		Listener:  f.lis,
		Node:      n,
		Signer:    f.nodeKey,
		Snapshots: target,
		Obs:       &observability.Observability{Metrics: metrics},
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	go func() {
		if err := srv.Serve(); err != nil {
			t.Logf("server exited: %v", err)
		}
	}()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Stop(ctx)
		_ = n.Close()
	})
	return f
}

func (f *fixture) dial(t *testing.T, opts ...client.Option) *client.Client {
	t.Helper()
	dialer := func(context.Context, string) (net.Conn, error) { return f.lis.Dial() }
	opts = append(opts, client.WithDialOptions(grpc.WithContextDialer(dialer)))
	c, err := client.Dial("passthrough://bufnet", opts...)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func (f *fixture) as(t *testing.T, kp *identity.Keypair) *client.Client {
	return f.dial(t, client.WithSigner(kp), client.WithNodeAddress(f.nodeKey.Address()))
}

func wantCode(t *testing.T, err error, code codes.Code) {
	t.Helper()
	if status.Code(err) != code {
		t.Fatalf("err = %v, want code %s", err, code)
	}
}

func TestAnonymousAccess(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	anon := f.dial(t)

	st, err := anon.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Deployer != f.operator.Address() || st.TLD != "eth" || st.Clock != node.ClockManual {
		t.Errorf("status = %+v", st)
	}
	if st.Contracts["auction"] != f.node.Manifest().Auction {
		t.Errorf("contracts = %v", st.Contracts)
	}
	if _, ok := anon.NodeAddress(); !ok {
		t.Error("signed response not observed")
	}

	_, err = anon.StartAuction(ctx, "example")
	wantCode(t, err, codes.Unauthenticated)

	hc := grpc_health_v1.NewHealthClient(anon.Conn())
	resp, err := hc.Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("health = %s", resp.Status)
	}
}

func TestOperatorOnly(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	_, err := f.as(t, f.alice).Advance(ctx, time.Hour)
	wantCode(t, err, codes.PermissionDenied)

	now, err := f.as(t, f.operator).Advance(ctx, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if !now.Equal(start.Add(time.Hour)) {
		t.Errorf("now = %s", now)
	}

	res, err := f.as(t, f.operator).Snapshot(ctx, "", "before auction")
	if err != nil {
		t.Fatal(err)
	}
	if res.Keys == 0 || res.Name == "" || res.Digest == (common.Hash{}) {
		t.Errorf("snapshot = %+v", res)
	}
}

func TestAuctionOverGRPC(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	alice, bob, op := f.as(t, f.alice), f.as(t, f.bob), f.as(t, f.operator)

	saltA, saltB := namehash.LabelHash("a"), namehash.LabelHash("b")
	sealed, rc, err := alice.Bid(ctx, client.BidRequest{Name: "example.eth", Value: ether(10), Deposit: ether(12), Salt: saltA, Start: true})
	if err != nil {
		t.Fatal(err)
	}
	if rc == nil || rc.From != f.alice.Address() || len(rc.Events) == 0 {
		t.Errorf("receipt = %+v", rc)
	}
	b, ok, err := alice.SealedBid(ctx, sealed)
	if err != nil || !ok || b.Bidder != f.alice.Address() || b.Deposit.Cmp(ether(12)) != 0 {
		t.Errorf("sealed bid = %+v %v %v", b, ok, err)
	}

	// bob seals locally so the node never sees his value
	label := namehash.LabelHash("example")
	bobSealed := auction.ShaBid(label, f.bob.Address(), ether(7), saltB)
	if _, _, err := bob.Bid(ctx, client.BidRequest{Sealed: bobSealed, Deposit: ether(7)}); err != nil {
		t.Fatal(err)
	}

	if _, err := op.Advance(ctx, 3*24*time.Hour+time.Minute); err != nil {
		t.Fatal(err)
	}
	if _, err := alice.Reveal(ctx, "example", ether(10), saltA); err != nil {
		t.Fatal(err)
	}
	if _, err := bob.Reveal(ctx, "example", ether(7), saltB); err != nil {
		t.Fatal(err)
	}
	if _, err := op.Advance(ctx, 2*24*time.Hour); err != nil {
		t.Fatal(err)
	}

	_, err = bob.Finalize(ctx, "example")
	wantCode(t, err, codes.PermissionDenied)
	if _, err := alice.Finalize(ctx, "example"); err != nil {
		t.Fatal(err)
	}

	e, err := bob.Entry(ctx, "example")
	if err != nil {
		t.Fatal(err)
	}
	if e.State != "owned" || e.Value.Cmp(ether(7)) != 0 || e.Label != "example" {
		t.Errorf("entry = %+v", e)
	}
	r, err := bob.Resolve(ctx, "example.eth")
	if err != nil {
		t.Fatal(err)
	}
	if r.Owner != f.alice.Address() {
		t.Errorf("owner = %s", r.Owner.Hex())
	}
}

func TestFIFSOverGRPC(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	alice, op := f.as(t, f.alice), f.as(t, f.operator)

	info, err := alice.FIFS(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if info.Cost.Cmp(tokens(10)) != 0 || info.Domain != "arc" {
		t.Errorf("fifs = %+v", info)
	}

	if _, err := op.TransferTokens(ctx, f.alice.Address(), tokens(25)); err != nil {
		t.Fatal(err)
	}
	if _, err := alice.ApproveAndRegister(ctx, client.Registration{Name: "alicenet"}, nil); err != nil {
		t.Fatal(err)
	}
	if ok, err := alice.Available(ctx, "alicenet"); err != nil || ok {
		t.Errorf("available = %v, %v", ok, err)
	}
	r, err := alice.Resolve(ctx, "alicenet.arc")
	if err != nil {
		t.Fatal(err)
	}
	if r.Owner != f.alice.Address() {
		t.Errorf("owner = %s", r.Owner.Hex())
	}
	tb, err := alice.TokenBalance(ctx, f.alice.Address())
	if err != nil {
		t.Fatal(err)
	}
	if tb.Balance.Cmp(tokens(15)) != 0 || tb.Symbol != "ARB" {
		t.Errorf("token balance = %+v", tb)
	}

	_, err = alice.SetCost(ctx, tokens(1))
	wantCode(t, err, codes.PermissionDenied)
}

func TestInvalidArguments(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	c := f.as(t, f.alice)

	tests := []struct {
		name   string
		method string
		fields map[string]any
	}{
		{"missing name", "Entry", nil},
		{"bad address", "Transfer", map[string]any{"name": "example", "to": "nope"}},
		{"bad amount", "Approve", map[string]any{"spender": f.bob.Address().Hex(), "amount": "lots"}},
		{"bad limit", "Events", map[string]any{"limit": -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Call(ctx, tt.method, tt.fields)
			wantCode(t, err, codes.InvalidArgument)
		})
	}
}

func TestWrongNodeAddress(t *testing.T) {
	f := setup(t)
	c := f.dial(t, client.WithNodeAddress(f.alice.Address()))
	if _, err := c.Status(context.Background()); err == nil {
		t.Fatal("response from unexpected signer accepted")
	}
}

func TestEventsAndWatch(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	f := setup(t)
	op := f.as(t, f.operator)

	evs, next, err := op.Events(ctx, 0, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) == 0 || next != evs[len(evs)-1].Seq {
		t.Fatalf("genesis events = %d, next %d", len(evs), next)
	}

	got := make(chan client.Event, 16)
	watchCtx, stop := context.WithCancel(ctx)
	defer stop()
	done := make(chan error, 1)
	go func() {
		done <- op.WatchEvents(watchCtx, next, func(e client.Event) error {
			got <- e
			return nil
		})
	}()

	if _, err := op.TransferTokens(ctx, f.bob.Address(), tokens(1)); err != nil {
		t.Fatal(err)
	}
	select {
	case e := <-got:
		if e.Seq <= next {
			t.Errorf("replayed seq %d after %d", e.Seq, next)
		}
	case <-ctx.Done():
		t.Fatal("no event streamed")
	}
	stop()
	if err := <-done; err != nil && status.Code(err) != codes.Canceled && !errors.Is(err, context.Canceled) {
		t.Errorf("watch = %v", err)
	}
}

func TestReplayedEnvelopeRejected(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	conn := f.dial(t).Conn()

	req, err := registrarv1.Message(map[string]any{"to": f.bob.Address().Hex(), "amount": tokens(1).String()})
	if err != nil {
		t.Fatal(err)
	}
	payload, err := proto.MarshalOptions{Deterministic: true}.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	full := registrarv1.FullMethod(registrarv1.TransferTokens)
	env, err := envelope.Seal(f.operator, full, payload, nil)
	if err != nil {
		t.Fatal(err)
	}
	signed := envelope.InjectOutgoing(ctx, env)

	if err := conn.Invoke(signed, full, req, new(structpb.Struct)); err != nil {
		t.Fatalf("first call: %v", err)
	}
	for range 2 {
		err := conn.Invoke(signed, full, req, new(structpb.Struct))
		wantCode(t, err, codes.AlreadyExists)
	}

	tb, err := f.as(t, f.bob).TokenBalance(ctx, f.bob.Address())
	if err != nil {
		t.Fatal(err)
	}
	if tb.Balance.Cmp(tokens(1)) != 0 {
		t.Errorf("bob balance = %s, want %s", tb.Balance, tokens(1))
	}
}
