package server

import (
	"context"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	registrarv1 "github.com/gezibash/arc-registrar/api/registrar/v1"
	"github.com/gezibash/arc-registrar/internal/node"
	"github.com/gezibash/arc-registrar/internal/snapshot"
	"github.com/gezibash/arc-registrar/pkg/logging"
	"github.com/gezibash/arc-registrar/pkg/units"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

type registrarService struct {
	node      *node.Node
	svc       *node.Service
	snapshots snapshot.Target
	log       *logging.Logger
}

type handler func(ctx context.Context, a *args) (*structpb.Struct, error)

// signed wraps a handler that needs the caller address.
func signed(fn func(ctx context.Context, from common.Address, a *args) (*structpb.Struct, error)) handler {
	return func(ctx context.Context, a *args) (*structpb.Struct, error) {
		from, err := sender(ctx)
		if err != nil {
			return nil, err
		}
		return fn(ctx, from, a)
	}
}

func (s *registrarService) handlers() map[string]registrarv1.UnaryHandler {
	table := map[string]handler{
		registrarv1.Status:          s.status,
		registrarv1.AuctionSettings: s.auctionSettings,
		registrarv1.Entry:           s.entry,
		registrarv1.SealedBid:       s.sealedBid,
		registrarv1.FIFSInfo:        s.fifsInfo,
		registrarv1.Available:       s.available,
		registrarv1.Holder:          s.holder,
		registrarv1.TokenBalance:    s.tokenBalance,
		registrarv1.Allowance:       s.allowance,
		registrarv1.Balance:         s.balance,
		registrarv1.Resolve:         s.resolve,
		registrarv1.Events:          s.events,

		registrarv1.StartAuction:       signed(s.startAuction),
		registrarv1.Bid:                signed(s.bid),
		registrarv1.Reveal:             signed(s.reveal),
		registrarv1.Finalize:           signed(s.finalize),
		registrarv1.Transfer:           signed(s.transfer),
		registrarv1.Migrate:            signed(s.migrate),
		registrarv1.Release:            signed(s.release),
		registrarv1.Invalidate:         signed(s.invalidate),
		registrarv1.Register:           signed(s.register),
		registrarv1.ApproveAndRegister: signed(s.approveAndRegister),
		registrarv1.SetCost:            signed(s.setCost),
		registrarv1.SetBurningToken:    signed(s.setBurningToken),
		registrarv1.Deposit:            signed(s.deposit),
		registrarv1.HolderTransfer:     signed(s.holderTransfer),
		registrarv1.Claim:              signed(s.claim),
		registrarv1.HolderRelease:      signed(s.holderRelease),
		registrarv1.SetManager:         signed(s.setManager),
		registrarv1.Approve:            signed(s.approve),
		registrarv1.TransferTokens:     signed(s.transferTokens),
		registrarv1.Mint:               signed(s.mint),

		registrarv1.Advance:  s.advance,
		registrarv1.Snapshot: s.snapshot,
	}

	out := make(map[string]registrarv1.UnaryHandler, len(table))
	for name, h := range table {
		out[name] = func(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return h(ctx, &args{m: req})
		}
	}
	return out
}

// decoded runs fn only when every argument decoded.
func decoded(a *args, fn func() (*structpb.Struct, error)) (*structpb.Struct, error) {
	if a.err != nil {
		return nil, a.err
	}
	return fn()
}

// --- node ---

func (s *registrarService) status(ctx context.Context, _ *args) (*structpb.Struct, error) {
	st, err := s.node.Status(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	owned := make(map[string]any, len(st.Owned))
	for k, v := range st.Owned {
		owned[k] = v
	}
	contracts := make(map[string]any)
	for k, v := range st.Manifest.Contracts() {
		contracts[k] = v.Hex()
	}
	return reply(map[string]any{
		"clock":      st.Clock,
		"now":        timeString(st.Now),
		"backend":    st.Backend,
		"keys":       strconv.FormatInt(st.Keys, 10),
		"size_bytes": strconv.FormatInt(st.SizeBytes, 10),
		"owned":      owned,
		"manifest": map[string]any{
			"version":     st.Manifest.Version,
			"created_at":  timeString(st.Manifest.CreatedAt),
			"deployer":    st.Manifest.Deployer.Hex(),
			"tld":         st.Manifest.TLD,
			"tld_node":    st.Manifest.TLDNode.Hex(),
			"domain":      st.Manifest.Domain,
			"domain_node": st.Manifest.DomainNode.Hex(),
			"contracts":   contracts,
		},
	})
}

func (s *registrarService) advance(ctx context.Context, a *args) (*structpb.Struct, error) {
	d := a.duration("by")
	return decoded(a, func() (*structpb.Struct, error) {
		now, err := s.node.Advance(ctx, d)
		if err != nil {
			return nil, toStatus(err)
		}
		return reply(map[string]any{"now": timeString(now)})
	})
}

func (s *registrarService) snapshot(ctx context.Context, a *args) (*structpb.Struct, error) {
	if s.snapshots == nil {
		return nil, status.Error(codes.FailedPrecondition, "no snapshot target configured")
	}
	name, note := a.optStr("name"), a.optStr("note")
	name, sum, err := s.node.Snapshot(ctx, s.snapshots, name, note)
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(map[string]any{
		"name":   name,
		"keys":   strconv.FormatInt(sum.Keys, 10),
		"bytes":  strconv.FormatInt(sum.Bytes, 10),
		"digest": common.Hash(sum.Digest).Hex(),
	})
}

func (s *registrarService) events(ctx context.Context, a *args) (*structpb.Struct, error) {
	after := a.seq("after")
	limit := min(a.count("limit", defaultEventLimit), maxEventLimit)
	return decoded(a, func() (*structpb.Struct, error) {
		evs, err := s.svc.Events(ctx, after, limit)
		if err != nil {
			return nil, toStatus(err)
		}
		list := make([]any, len(evs))
		next := after
		for i, e := range evs {
			list[i] = eventFields(e)
			next = e.Seq
		}
		return reply(map[string]any{"events": list, "next": strconv.FormatUint(next, 10)})
	})
}

// --- auction ---

func (s *registrarService) auctionSettings(ctx context.Context, _ *args) (*structpb.Struct, error) {
	p, err := s.svc.AuctionSettings(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(map[string]any{
		"registry":        p.Registry.Hex(),
		"root_node":       p.RootNode.Hex(),
		"launch_date":     timeString(p.LaunchDate),
		"launch_length":   p.LaunchLength.String(),
		"auction_length":  p.AuctionLength.String(),
		"reveal_period":   p.RevealPeriod.String(),
		"min_hold_period": p.MinHoldPeriod.String(),
		"min_price":       amountString(p.MinPrice),
		"previous":        p.Previous.Hex(),
		"policy":          p.Policy,
	})
}

func (s *registrarService) entry(ctx context.Context, a *args) (*structpb.Struct, error) {
	name := a.str("name")
	return decoded(a, func() (*structpb.Struct, error) {
		v, err := s.svc.Entry(ctx, name)
		if err != nil {
			return nil, toStatus(err)
		}
		return reply(map[string]any{
			"label":             v.Label.Raw,
			"hash":              v.Label.Hash.Hex(),
			"state":             v.State.String(),
			"deed":              v.Deed.Hex(),
			"registration_date": timeString(v.RegistrationDate),
			"value":             amountString(v.Value),
			"highest_bid":       amountString(v.HighestBid),
			"leader":            v.Leader.Hex(),
			"allowed_at":        timeString(v.AllowedAt),
		})
	})
}

func (s *registrarService) sealedBid(ctx context.Context, a *args) (*structpb.Struct, error) {
	sealed := a.hash("sealed")
	return decoded(a, func() (*structpb.Struct, error) {
		b, ok, err := s.svc.SealedBid(ctx, sealed)
		if err != nil {
			return nil, toStatus(err)
		}
		if !ok {
			return reply(map[string]any{"found": false})
		}
		return reply(map[string]any{
			"found":      true,
			"bidder":     b.Bidder.Hex(),
			"deposit":    amountString(b.Deposit),
			"created_at": timeString(b.Created()),
			"phase":      b.Phase.String(),
		})
	})
}

func (s *registrarService) startAuction(ctx context.Context, from common.Address, a *args) (*structpb.Struct, error) {
	name := a.str("name")
	return decoded(a, func() (*structpb.Struct, error) {
		return receiptReply(s.svc.StartAuction(ctx, from, name))
	})
}

func (s *registrarService) bid(ctx context.Context, from common.Address, a *args) (*structpb.Struct, error) {
	req := node.BidRequest{
		Name:    a.optStr("name"),
		Deposit: a.amount("deposit"),
		Value:   a.optAmount("value"),
		Salt:    a.optHash("salt"),
		Sealed:  a.optHash("sealed"),
		Start:   a.boolean("start"),
	}
	return decoded(a, func() (*structpb.Struct, error) {
		sealed, rc, err := s.svc.Bid(ctx, from, req)
		if err != nil {
			return nil, toStatus(err)
		}
		return reply(map[string]any{"sealed": sealed.Hex(), "receipt": receiptFields(rc)})
	})
}

func (s *registrarService) reveal(ctx context.Context, from common.Address, a *args) (*structpb.Struct, error) {
	name, value, salt := a.str("name"), a.amount("value"), a.hash("salt")
	return decoded(a, func() (*structpb.Struct, error) {
		return receiptReply(s.svc.Reveal(ctx, from, name, value, salt))
	})
}

func (s *registrarService) finalize(ctx context.Context, from common.Address, a *args) (*structpb.Struct, error) {
	name := a.str("name")
	return decoded(a, func() (*structpb.Struct, error) {
		return receiptReply(s.svc.Finalize(ctx, from, name))
	})
}

func (s *registrarService) transfer(ctx context.Context, from common.Address, a *args) (*structpb.Struct, error) {
	name, to := a.str("name"), a.addr("to")
	return decoded(a, func() (*structpb.Struct, error) {
		return receiptReply(s.svc.TransferName(ctx, from, name, to))
	})
}

func (s *registrarService) migrate(ctx context.Context, from common.Address, a *args) (*structpb.Struct, error) {
	name := a.str("name")
	return decoded(a, func() (*structpb.Struct, error) {
		return receiptReply(s.svc.Migrate(ctx, from, name))
	})
}

func (s *registrarService) release(ctx context.Context, from common.Address, a *args) (*structpb.Struct, error) {
	name := a.str("name")
	return decoded(a, func() (*structpb.Struct, error) {
		return receiptReply(s.svc.ReleaseName(ctx, from, name))
	})
}

func (s *registrarService) invalidate(ctx context.Context, from common.Address, a *args) (*structpb.Struct, error) {
	name := a.str("name")
	return decoded(a, func() (*structpb.Struct, error) {
		return receiptReply(s.svc.Invalidate(ctx, from, name))
	})
}

// --- fifs ---

func (s *registrarService) fifsInfo(ctx context.Context, _ *args) (*structpb.Struct, error) {
	info, err := s.svc.FIFS(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(map[string]any{
		"domain": info.Domain,
		"cost":   amountString(info.Cost),
		"token":  info.Token.Hex(),
		"owner":  info.Owner.Hex(),
	})
}

func (s *registrarService) available(ctx context.Context, a *args) (*structpb.Struct, error) {
	name := a.str("name")
	return decoded(a, func() (*structpb.Struct, error) {
		ok, err := s.svc.Available(ctx, name)
		if err != nil {
			return nil, toStatus(err)
		}
		return reply(map[string]any{"available": ok})
	})
}

func (s *registrarService) registration(from common.Address, a *args) node.Registration {
	return node.Registration{
		Name:     a.str("name"),
		Owner:    a.optAddr("owner", from),
		Resolver: a.optAddr("resolver", common.Address{}),
	}
}

func (s *registrarService) register(ctx context.Context, from common.Address, a *args) (*structpb.Struct, error) {
	req := s.registration(from, a)
	return decoded(a, func() (*structpb.Struct, error) {
		return receiptReply(s.svc.Register(ctx, from, req))
	})
}

func (s *registrarService) approveAndRegister(ctx context.Context, from common.Address, a *args) (*structpb.Struct, error) {
	req := s.registration(from, a)
	amount := a.optAmount("amount")
	return decoded(a, func() (*structpb.Struct, error) {
		if amount == nil {
			info, err := s.svc.FIFS(ctx)
			if err != nil {
				return nil, toStatus(err)
			}
			amount = info.Cost
		}
		return receiptReply(s.svc.ApproveAndRegister(ctx, from, req, amount))
	})
}

func (s *registrarService) setCost(ctx context.Context, from common.Address, a *args) (*structpb.Struct, error) {
	cost := a.amount("cost")
	return decoded(a, func() (*structpb.Struct, error) {
		return receiptReply(s.svc.SetCost(ctx, from, cost))
	})
}

func (s *registrarService) setBurningToken(ctx context.Context, from common.Address, a *args) (*structpb.Struct, error) {
	tok := a.addr("token")
	return decoded(a, func() (*structpb.Struct, error) {
		return receiptReply(s.svc.SetBurningToken(ctx, from, tok))
	})
}

// --- holders ---

func (s *registrarService) holder(ctx context.Context, a *args) (*structpb.Struct, error) {
	name, delegating := a.str("name"), a.boolean("delegating")
	return decoded(a, func() (*structpb.Struct, error) {
		v, err := s.svc.Holder(ctx, delegating, name)
		if err != nil {
			return nil, toStatus(err)
		}
		return reply(map[string]any{
			"holder":            v.Holder.Hex(),
			"beneficiary":       v.Beneficiary.Hex(),
			"deed":              v.Deed.Hex(),
			"registration_date": timeString(v.RegistrationDate),
			"manager":           v.Manager.Hex(),
		})
	})
}

func (s *registrarService) deposit(ctx context.Context, from common.Address, a *args) (*structpb.Struct, error) {
	name, delegating := a.str("name"), a.boolean("delegating")
	return decoded(a, func() (*structpb.Struct, error) {
		return receiptReply(s.svc.Deposit(ctx, from, delegating, name))
	})
}

func (s *registrarService) holderTransfer(ctx context.Context, from common.Address, a *args) (*structpb.Struct, error) {
	name, delegating, to := a.str("name"), a.boolean("delegating"), a.addr("to")
	return decoded(a, func() (*structpb.Struct, error) {
		return receiptReply(s.svc.HolderTransfer(ctx, from, delegating, name, to))
	})
}

func (s *registrarService) claim(ctx context.Context, from common.Address, a *args) (*structpb.Struct, error) {
	name, delegating := a.str("name"), a.boolean("delegating")
	return decoded(a, func() (*structpb.Struct, error) {
		return receiptReply(s.svc.Claim(ctx, from, delegating, name))
	})
}

func (s *registrarService) holderRelease(ctx context.Context, from common.Address, a *args) (*structpb.Struct, error) {
	name, delegating := a.str("name"), a.boolean("delegating")
	return decoded(a, func() (*structpb.Struct, error) {
		return receiptReply(s.svc.HolderRelease(ctx, from, delegating, name))
	})
}

func (s *registrarService) setManager(ctx context.Context, from common.Address, a *args) (*structpb.Struct, error) {
	name, manager := a.str("name"), a.addr("manager")
	return decoded(a, func() (*structpb.Struct, error) {
		return receiptReply(s.svc.SetManager(ctx, from, name, manager))
	})
}

// --- token and balances ---

func (s *registrarService) tokenBalance(ctx context.Context, a *args) (*structpb.Struct, error) {
	owner := a.addr("owner")
	return decoded(a, func() (*structpb.Struct, error) {
		meta, bal, err := s.svc.TokenBalance(ctx, owner)
		if err != nil {
			return nil, toStatus(err)
		}
		return reply(map[string]any{
			"name":      meta.Name,
			"symbol":    meta.Symbol,
			"decimals":  strconv.FormatUint(meta.Decimals, 10),
			"supply":    amountString(meta.Supply),
			"balance":   amountString(bal),
			"formatted": units.Format(bal, meta.Decimals),
		})
	})
}

func (s *registrarService) allowance(ctx context.Context, a *args) (*structpb.Struct, error) {
	owner, spender := a.addr("owner"), a.addr("spender")
	return decoded(a, func() (*structpb.Struct, error) {
		v, err := s.svc.Allowance(ctx, owner, spender)
		if err != nil {
			return nil, toStatus(err)
		}
		return reply(map[string]any{"allowance": amountString(v)})
	})
}

func (s *registrarService) approve(ctx context.Context, from common.Address, a *args) (*structpb.Struct, error) {
	spender, amount := a.addr("spender"), a.amount("amount")
	return decoded(a, func() (*structpb.Struct, error) {
		return receiptReply(s.svc.Approve(ctx, from, spender, amount))
	})
}

func (s *registrarService) transferTokens(ctx context.Context, from common.Address, a *args) (*structpb.Struct, error) {
	to, amount := a.addr("to"), a.amount("amount")
	return decoded(a, func() (*structpb.Struct, error) {
		return receiptReply(s.svc.TransferTokens(ctx, from, to, amount))
	})
}

func (s *registrarService) mint(ctx context.Context, from common.Address, a *args) (*structpb.Struct, error) {
	to, amount := a.addr("to"), a.amount("amount")
	return decoded(a, func() (*structpb.Struct, error) {
		return receiptReply(s.svc.Mint(ctx, from, to, amount))
	})
}

func (s *registrarService) balance(ctx context.Context, a *args) (*structpb.Struct, error) {
	addr := a.addr("address")
	return decoded(a, func() (*structpb.Struct, error) {
		v, err := s.svc.Balance(ctx, addr)
		if err != nil {
			return nil, toStatus(err)
		}
		if v == nil {
			v = new(big.Int)
		}
		return reply(map[string]any{"balance": v.String(), "ether": units.Ether(v)})
	})
}

func (s *registrarService) resolve(ctx context.Context, a *args) (*structpb.Struct, error) {
	name := a.str("name")
	return decoded(a, func() (*structpb.Struct, error) {
		r, err := s.svc.Resolve(ctx, name)
		if err != nil {
			return nil, toStatus(err)
		}
		return reply(map[string]any{
			"name":     r.Name,
			"node":     r.Node.Hex(),
			"owner":    r.Owner.Hex(),
			"resolver": r.Resolver.Hex(),
			"addr":     r.Addr.Hex(),
		})
	})
}

// --- streams ---

// watch streams committed events after the "after" cursor until the
// client goes away.
func (s *registrarService) watch(ctx context.Context, req *structpb.Struct, send func(*structpb.Struct) error) error {
	a := &args{m: req}
	after := a.seq("after")
	if a.err != nil {
		return a.err
	}
	for {
		changed := s.node.Changed()
		evs, err := s.svc.Events(ctx, after, defaultEventLimit)
		if err != nil {
			return toStatus(err)
		}
		for _, e := range evs {
			m, err := reply(eventFields(e))
			if err != nil {
				return err
			}
			if err := send(m); err != nil {
				return err
			}
			after = e.Seq
		}
		if len(evs) == defaultEventLimit {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
		}
	}
}
