package client

import (
	"context"
	"errors"
	"io"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	registrarv1 "github.com/gezibash/arc-registrar/api/registrar/v1"
	"google.golang.org/protobuf/types/known/structpb"
)

// Event is one committed ledger event.
type Event struct {
	Seq      uint64            `json:"seq"`
	Receipt  string            `json:"receipt"`
	Contract common.Address    `json:"contract"`
	Kind     string            `json:"kind"`
	Name     string            `json:"name"`
	Time     time.Time         `json:"time"`
	Attrs    map[string]string `json:"attrs,omitempty"`
}

// Receipt describes a committed operation.
type Receipt struct {
	ID       string         `json:"id"`
	Op       string         `json:"op"`
	From     common.Address `json:"from"`
	Time     time.Time      `json:"time"`
	Duration time.Duration  `json:"duration"`
	Events   []Event        `json:"events,omitempty"`
}

type Status struct {
	Clock     string                    `json:"clock"`
	Now       time.Time                 `json:"now"`
	Backend   string                    `json:"backend"`
	Keys      int64                     `json:"keys"`
	SizeBytes int64                     `json:"size_bytes"`
	Owned     map[string]int            `json:"owned"`
	Version   int                       `json:"version"`
	CreatedAt time.Time                 `json:"created_at"`
	Deployer  common.Address            `json:"deployer"`
	TLD       string                    `json:"tld"`
	Domain    string                    `json:"domain"`
	Contracts map[string]common.Address `json:"contracts"`
}

type AuctionSettings struct {
	Registry      common.Address `json:"registry"`
	RootNode      common.Hash    `json:"root_node"`
	LaunchDate    time.Time      `json:"launch_date"`
	LaunchLength  time.Duration  `json:"launch_length"`
	AuctionLength time.Duration  `json:"auction_length"`
	RevealPeriod  time.Duration  `json:"reveal_period"`
	MinHoldPeriod time.Duration  `json:"min_hold_period"`
	MinPrice      *big.Int       `json:"min_price"`
	Previous      common.Address `json:"previous"`
	Policy        string         `json:"policy,omitempty"`
}

type Entry struct {
	Label            string         `json:"label,omitempty"`
	Hash             common.Hash    `json:"hash"`
	State            string         `json:"state"`
	Deed             common.Address `json:"deed"`
	RegistrationDate time.Time      `json:"registration_date"`
	Value            *big.Int       `json:"value"`
	HighestBid       *big.Int       `json:"highest_bid"`
	Leader           common.Address `json:"leader"`
	AllowedAt        time.Time      `json:"allowed_at"`
}

type SealedBid struct {
	Bidder    common.Address `json:"bidder"`
	Deposit   *big.Int       `json:"deposit"`
	CreatedAt time.Time      `json:"created_at"`
	Phase     string         `json:"phase"`
}

// BidRequest places a sealed bid. Either Value and Salt, or a locally
// computed Sealed hash, must be set.
type BidRequest struct {
	Name    string
	Value   *big.Int
	Deposit *big.Int
	Salt    common.Hash
	Sealed  common.Hash
	Start   bool
}

type FIFSInfo struct {
	Domain string         `json:"domain"`
	Cost   *big.Int       `json:"cost"`
	Token  common.Address `json:"token"`
	Owner  common.Address `json:"owner"`
}

// Registration registers a name with the FIFS registrar. A zero Owner
// means the caller.
type Registration struct {
	Name     string
	Owner    common.Address
	Resolver common.Address
}

type Holder struct {
	Holder           common.Address `json:"holder"`
	Beneficiary      common.Address `json:"beneficiary"`
	Deed             common.Address `json:"deed"`
	RegistrationDate time.Time      `json:"registration_date"`
	Manager          common.Address `json:"manager"`
}

type TokenBalance struct {
	Name     string   `json:"name"`
	Symbol   string   `json:"symbol"`
	Decimals uint64   `json:"decimals"`
	Supply   *big.Int `json:"supply"`
	Balance  *big.Int `json:"balance"`
	Display  string   `json:"formatted"`
}

type Resolution struct {
	Name     string         `json:"name"`
	Node     common.Hash    `json:"node"`
	Owner    common.Address `json:"owner"`
	Resolver common.Address `json:"resolver"`
	Addr     common.Address `json:"addr"`
}

type SnapshotResult struct {
	Name   string      `json:"name"`
	Keys   int64       `json:"keys"`
	Bytes  int64       `json:"bytes"`
	Digest common.Hash `json:"digest"`
}

func (c *Client) read(ctx context.Context, method string, fields map[string]any) (*reader, error) {
	resp, err := c.Call(ctx, method, fields)
	if err != nil {
		return nil, err
	}
	return &reader{m: resp}, nil
}

func (c *Client) submit(ctx context.Context, method string, fields map[string]any) (*Receipt, error) {
	r, err := c.read(ctx, method, fields)
	if err != nil {
		return nil, err
	}
	rc := r.receipt("receipt")
	return rc, r.err
}

func amountField(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// --- node ---

func (c *Client) Status(ctx context.Context) (*Status, error) {
	r, err := c.read(ctx, registrarv1.Status, nil)
	if err != nil {
		return nil, err
	}
	m := r.nested("manifest")
	st := &Status{
		Clock:     r.str("clock"),
		Now:       r.time("now"),
		Backend:   r.str("backend"),
		Keys:      r.int("keys"),
		SizeBytes: r.int("size_bytes"),
		Owned:     make(map[string]int),
		Version:   int(registrarv1.Number(m.m, "version")),
		CreatedAt: m.time("created_at"),
		Deployer:  m.addr("deployer"),
		TLD:       m.str("tld"),
		Domain:    m.str("domain"),
		Contracts: make(map[string]common.Address),
	}
	for k, v := range registrarv1.Struct(r.m, "owned").GetFields() {
		st.Owned[k] = int(v.GetNumberValue())
	}
	for k, v := range registrarv1.Struct(m.m, "contracts").GetFields() {
		st.Contracts[k] = common.HexToAddress(v.GetStringValue())
	}
	return st, errors.Join(r.err, m.err)
}

// Advance moves the node's manual clock forward. Operator only.
func (c *Client) Advance(ctx context.Context, by time.Duration) (time.Time, error) {
	r, err := c.read(ctx, registrarv1.Advance, map[string]any{"by": by.String()})
	if err != nil {
		return time.Time{}, err
	}
	now := r.time("now")
	return now, r.err
}

// Snapshot asks the node to write a state snapshot. Operator only.
func (c *Client) Snapshot(ctx context.Context, name, note string) (*SnapshotResult, error) {
	r, err := c.read(ctx, registrarv1.Snapshot, map[string]any{"name": name, "note": note})
	if err != nil {
		return nil, err
	}
	res := &SnapshotResult{
		Name:   r.str("name"),
		Keys:   r.int("keys"),
		Bytes:  r.int("bytes"),
		Digest: r.hash("digest"),
	}
	return res, r.err
}

// Events returns up to limit events after seq, and the cursor to resume from.
func (c *Client) Events(ctx context.Context, after uint64, limit int) ([]Event, uint64, error) {
	r, err := c.read(ctx, registrarv1.Events, map[string]any{"after": formatUint(after), "limit": limit})
	if err != nil {
		return nil, 0, err
	}
	var evs []Event
	for _, e := range registrarv1.List(r.m, "events") {
		er := &reader{m: e}
		evs = append(evs, er.event())
		if er.err != nil {
			return nil, 0, er.err
		}
	}
	next := r.uint("next")
	return evs, next, r.err
}

// WatchEvents streams events after seq until ctx ends or the stream fails.
// fn returning an error stops the watch with that error.
func (c *Client) WatchEvents(ctx context.Context, after uint64, fn func(Event) error) error {
	stream, err := c.conn.NewStream(ctx, registrarv1.WatchDesc, registrarv1.FullMethod(registrarv1.WatchEvents))
	if err != nil {
		return err
	}
	req, err := registrarv1.Message(map[string]any{"after": formatUint(after)})
	if err != nil {
		return err
	}
	if err := stream.SendMsg(req); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		msg := new(structpb.Struct)
		if err := stream.RecvMsg(msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		r := &reader{m: msg}
		e := r.event()
		if r.err != nil {
			return r.err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
}

// --- auction ---

func (c *Client) AuctionSettings(ctx context.Context) (*AuctionSettings, error) {
	r, err := c.read(ctx, registrarv1.AuctionSettings, nil)
	if err != nil {
		return nil, err
	}
	p := &AuctionSettings{
		Registry:      r.addr("registry"),
		RootNode:      r.hash("root_node"),
		LaunchDate:    r.time("launch_date"),
		LaunchLength:  r.duration("launch_length"),
		AuctionLength: r.duration("auction_length"),
		RevealPeriod:  r.duration("reveal_period"),
		MinHoldPeriod: r.duration("min_hold_period"),
		MinPrice:      r.amount("min_price"),
		Previous:      r.addr("previous"),
		Policy:        r.str("policy"),
	}
	return p, r.err
}

func (c *Client) Entry(ctx context.Context, name string) (*Entry, error) {
	r, err := c.read(ctx, registrarv1.Entry, map[string]any{"name": name})
	if err != nil {
		return nil, err
	}
	e := &Entry{
		Label:            r.str("label"),
		Hash:             r.hash("hash"),
		State:            r.str("state"),
		Deed:             r.addr("deed"),
		RegistrationDate: r.time("registration_date"),
		Value:            r.amount("value"),
		HighestBid:       r.amount("highest_bid"),
		Leader:           r.addr("leader"),
		AllowedAt:        r.time("allowed_at"),
	}
	return e, r.err
}

// SealedBid looks up a sealed bid. ok is false when no bid is stored under
// sealed.
func (c *Client) SealedBid(ctx context.Context, sealed common.Hash) (*SealedBid, bool, error) {
	r, err := c.read(ctx, registrarv1.SealedBid, map[string]any{"sealed": sealed.Hex()})
	if err != nil {
		return nil, false, err
	}
	if !r.boolean("found") {
		return nil, false, nil
	}
	b := &SealedBid{
		Bidder:    r.addr("bidder"),
		Deposit:   r.amount("deposit"),
		CreatedAt: r.time("created_at"),
		Phase:     r.str("phase"),
	}
	return b, true, r.err
}

func (c *Client) StartAuction(ctx context.Context, name string) (*Receipt, error) {
	return c.submit(ctx, registrarv1.StartAuction, map[string]any{"name": name})
}

// Bid places a sealed bid and returns its commitment hash.
func (c *Client) Bid(ctx context.Context, req BidRequest) (common.Hash, *Receipt, error) {
	fields := map[string]any{
		"deposit": amountField(req.Deposit),
		"start":   req.Start,
	}
	if req.Name != "" {
		fields["name"] = req.Name
	}
	if req.Sealed != (common.Hash{}) {
		fields["sealed"] = req.Sealed.Hex()
	} else {
		fields["value"] = amountField(req.Value)
		fields["salt"] = req.Salt.Hex()
	}
	r, err := c.read(ctx, registrarv1.Bid, fields)
	if err != nil {
		return common.Hash{}, nil, err
	}
	sealed := r.hash("sealed")
	rc := r.receipt("receipt")
	return sealed, rc, r.err
}

func (c *Client) Reveal(ctx context.Context, name string, value *big.Int, salt common.Hash) (*Receipt, error) {
	return c.submit(ctx, registrarv1.Reveal, map[string]any{"name": name, "value": amountField(value), "salt": salt.Hex()})
}

func (c *Client) Finalize(ctx context.Context, name string) (*Receipt, error) {
	return c.submit(ctx, registrarv1.Finalize, map[string]any{"name": name})
}

func (c *Client) Transfer(ctx context.Context, name string, to common.Address) (*Receipt, error) {
	return c.submit(ctx, registrarv1.Transfer, map[string]any{"name": name, "to": to.Hex()})
}

func (c *Client) Migrate(ctx context.Context, name string) (*Receipt, error) {
	return c.submit(ctx, registrarv1.Migrate, map[string]any{"name": name})
}

func (c *Client) Release(ctx context.Context, name string) (*Receipt, error) {
	return c.submit(ctx, registrarv1.Release, map[string]any{"name": name})
}

func (c *Client) Invalidate(ctx context.Context, name string) (*Receipt, error) {
	return c.submit(ctx, registrarv1.Invalidate, map[string]any{"name": name})
}

// --- fifs ---

func (c *Client) FIFS(ctx context.Context) (*FIFSInfo, error) {
	r, err := c.read(ctx, registrarv1.FIFSInfo, nil)
	if err != nil {
		return nil, err
	}
	info := &FIFSInfo{
		Domain: r.str("domain"),
		Cost:   r.amount("cost"),
		Token:  r.addr("token"),
		Owner:  r.addr("owner"),
	}
	return info, r.err
}

func (c *Client) Available(ctx context.Context, name string) (bool, error) {
	r, err := c.read(ctx, registrarv1.Available, map[string]any{"name": name})
	if err != nil {
		return false, err
	}
	return r.boolean("available"), nil
}

func registrationFields(req Registration) map[string]any {
	fields := map[string]any{"name": req.Name}
	if req.Owner != (common.Address{}) {
		fields["owner"] = req.Owner.Hex()
	}
	if req.Resolver != (common.Address{}) {
		fields["resolver"] = req.Resolver.Hex()
	}
	return fields
}

func (c *Client) Register(ctx context.Context, req Registration) (*Receipt, error) {
	return c.submit(ctx, registrarv1.Register, registrationFields(req))
}

// ApproveAndRegister approves amount for the registrar and registers in
// one operation. A nil amount approves the current cost.
func (c *Client) ApproveAndRegister(ctx context.Context, req Registration, amount *big.Int) (*Receipt, error) {
	fields := registrationFields(req)
	if amount != nil {
		fields["amount"] = amount.String()
	}
	return c.submit(ctx, registrarv1.ApproveAndRegister, fields)
}

func (c *Client) SetCost(ctx context.Context, cost *big.Int) (*Receipt, error) {
	return c.submit(ctx, registrarv1.SetCost, map[string]any{"cost": amountField(cost)})
}

func (c *Client) SetBurningToken(ctx context.Context, tok common.Address) (*Receipt, error) {
	return c.submit(ctx, registrarv1.SetBurningToken, map[string]any{"token": tok.Hex()})
}

// --- holders ---

func holderFields(delegating bool, name string) map[string]any {
	return map[string]any{"name": name, "delegating": delegating}
}

func (c *Client) Holder(ctx context.Context, delegating bool, name string) (*Holder, error) {
	r, err := c.read(ctx, registrarv1.Holder, holderFields(delegating, name))
	if err != nil {
		return nil, err
	}
	h := &Holder{
		Holder:           r.addr("holder"),
		Beneficiary:      r.addr("beneficiary"),
		Deed:             r.addr("deed"),
		RegistrationDate: r.time("registration_date"),
		Manager:          r.addr("manager"),
	}
	return h, r.err
}

func (c *Client) Deposit(ctx context.Context, delegating bool, name string) (*Receipt, error) {
	return c.submit(ctx, registrarv1.Deposit, holderFields(delegating, name))
}

func (c *Client) HolderTransfer(ctx context.Context, delegating bool, name string, to common.Address) (*Receipt, error) {
	fields := holderFields(delegating, name)
	fields["to"] = to.Hex()
	return c.submit(ctx, registrarv1.HolderTransfer, fields)
}

func (c *Client) Claim(ctx context.Context, delegating bool, name string) (*Receipt, error) {
	return c.submit(ctx, registrarv1.Claim, holderFields(delegating, name))
}

func (c *Client) HolderRelease(ctx context.Context, delegating bool, name string) (*Receipt, error) {
	return c.submit(ctx, registrarv1.HolderRelease, holderFields(delegating, name))
}

func (c *Client) SetManager(ctx context.Context, name string, manager common.Address) (*Receipt, error) {
	return c.submit(ctx, registrarv1.SetManager, map[string]any{"name": name, "manager": manager.Hex()})
}

// --- token and balances ---

func (c *Client) TokenBalance(ctx context.Context, owner common.Address) (*TokenBalance, error) {
	r, err := c.read(ctx, registrarv1.TokenBalance, map[string]any{"owner": owner.Hex()})
	if err != nil {
		return nil, err
	}
	tb := &TokenBalance{
		Name:     r.str("name"),
		Symbol:   r.str("symbol"),
		Decimals: r.uint("decimals"),
		Supply:   r.amount("supply"),
		Balance:  r.amount("balance"),
		Display:  r.str("formatted"),
	}
	return tb, r.err
}

func (c *Client) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	r, err := c.read(ctx, registrarv1.Allowance, map[string]any{"owner": owner.Hex(), "spender": spender.Hex()})
	if err != nil {
		return nil, err
	}
	v := r.amount("allowance")
	return v, r.err
}

func (c *Client) Approve(ctx context.Context, spender common.Address, amount *big.Int) (*Receipt, error) {
	return c.submit(ctx, registrarv1.Approve, map[string]any{"spender": spender.Hex(), "amount": amountField(amount)})
}

func (c *Client) TransferTokens(ctx context.Context, to common.Address, amount *big.Int) (*Receipt, error) {
	return c.submit(ctx, registrarv1.TransferTokens, map[string]any{"to": to.Hex(), "amount": amountField(amount)})
}

func (c *Client) Mint(ctx context.Context, to common.Address, amount *big.Int) (*Receipt, error) {
	return c.submit(ctx, registrarv1.Mint, map[string]any{"to": to.Hex(), "amount": amountField(amount)})
}

// Balance returns the native balance of addr in wei.
func (c *Client) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	r, err := c.read(ctx, registrarv1.Balance, map[string]any{"address": addr.Hex()})
	if err != nil {
		return nil, err
	}
	v := r.amount("balance")
	return v, r.err
}

func (c *Client) Resolve(ctx context.Context, name string) (*Resolution, error) {
	r, err := c.read(ctx, registrarv1.Resolve, map[string]any{"name": name})
	if err != nil {
		return nil, err
	}
	res := &Resolution{
		Name:     r.str("name"),
		Node:     r.hash("node"),
		Owner:    r.addr("owner"),
		Resolver: r.addr("resolver"),
		Addr:     r.addr("addr"),
	}
	return res, r.err
}
