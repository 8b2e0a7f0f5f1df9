package fifs

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/gezibash/arc-registrar/internal/ledger"
	arcerrors "github.com/gezibash/arc-registrar/pkg/errors"
	"github.com/gezibash/arc-registrar/pkg/namehash"
)

// BurnableKind is the ledger code kind of the burnable registrar.
const BurnableKind = "fifs-burnable"

const callABI = `[
	{"type":"function","name":"register","inputs":[
		{"name":"label","type":"bytes32"},{"name":"owner","type":"address"}]},
	{"type":"function","name":"registerWithResolver","inputs":[
		{"name":"label","type":"bytes32"},{"name":"owner","type":"address"},{"name":"resolver","type":"address"}]}
]`

var calls = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(callABI))
	if err != nil {
		panic(err)
	}
	return parsed
}()

// EncodeRegister returns approve-and-call data for register(label, owner).
func EncodeRegister(label common.Hash, owner common.Address) ([]byte, error) {
	return calls.Pack("register", [32]byte(label), owner)
}

// EncodeRegisterWithResolver returns approve-and-call data for
// registerWithResolver(label, owner, resolver).
func EncodeRegisterWithResolver(label common.Hash, owner, resolver common.Address) ([]byte, error) {
	return calls.Pack("registerWithResolver", [32]byte(label), owner, resolver)
}

type registration struct {
	method   string
	label    common.Hash
	owner    common.Address
	resolver common.Address
}

func decodeRegistration(data []byte) (registration, error) {
	if len(data) < 4 {
		return registration{}, fmt.Errorf("call data too short: %d bytes", len(data))
	}
	m, err := calls.MethodById(data[:4])
	if err != nil {
		return registration{}, err
	}
	args, err := m.Inputs.Unpack(data[4:])
	if err != nil {
		return registration{}, fmt.Errorf("unpack %s: %w", m.Name, err)
	}
	out := registration{method: m.Name}
	label, ok := args[0].([32]byte)
	if !ok {
		return registration{}, fmt.Errorf("unpack %s: label is %T", m.Name, args[0])
	}
	out.label = common.Hash(label)
	if out.owner, ok = args[1].(common.Address); !ok {
		return registration{}, fmt.Errorf("unpack %s: owner is %T", m.Name, args[1])
	}
	if len(args) == 3 {
		if out.resolver, ok = args[2].(common.Address); !ok {
			return registration{}, fmt.Errorf("unpack %s: resolver is %T", m.Name, args[2])
		}
	}
	return out, nil
}

var keyBurn = []byte("burn")

type burnConfig struct {
	Owner common.Address
	Token common.Address
	Cost  *big.Int
}

type burnToken interface {
	TransferFrom(c *ledger.Call, from, to common.Address, amount *big.Int) error
}

// BurnableRegistrar is a handle to a deployed burnable registrar.
type BurnableRegistrar struct {
	Addr common.Address
}

// BurnableAt returns a handle for the burnable registrar deployed at addr.
func BurnableAt(addr common.Address) BurnableRegistrar { return BurnableRegistrar{Addr: addr} }

// Register binds both registrar kinds on l.
func Register(l *ledger.Ledger) {
	l.RegisterKind(ResolvingKind, func(addr common.Address) any { return At(addr) })
	l.RegisterKind(BurnableKind, func(addr common.Address) any { return BurnableAt(addr) })
}

// DeployBurnable creates a burnable registrar owned by the caller. A zero
// cost makes registration free.
func DeployBurnable(c *ledger.Call, registry common.Address, rootNode common.Hash, resolver, token common.Address, cost *big.Int) (BurnableRegistrar, error) {
	if registry == (common.Address{}) || resolver == (common.Address{}) {
		return BurnableRegistrar{}, arcerrors.Reverted(BurnableKind, "deploy", arcerrors.ErrInvalidInput, "registry and resolver required")
	}
	if cost == nil {
		cost = new(big.Int)
	}
	if cost.Sign() < 0 {
		return BurnableRegistrar{}, arcerrors.Reverted(BurnableKind, "deploy", arcerrors.ErrInvalidValue, "negative cost")
	}
	in, err := c.Deploy(BurnableKind, nil)
	if err != nil {
		return BurnableRegistrar{}, err
	}
	if err := in.Store(keyBase, base{Registry: registry, RootNode: rootNode, Resolver: resolver}); err != nil {
		return BurnableRegistrar{}, err
	}
	if err := in.Store(keyBurn, burnConfig{Owner: in.Sender(), Token: token, Cost: new(big.Int).Set(cost)}); err != nil {
		return BurnableRegistrar{}, err
	}
	return BurnableRegistrar{Addr: in.Self()}, nil
}

func (r BurnableRegistrar) open(c *ledger.Call) (*ledger.Call, base, burnConfig, error) {
	in, b, err := openBase(c, r.Addr)
	if err != nil {
		return nil, base{}, burnConfig{}, err
	}
	var bc burnConfig
	if _, err := in.Load(keyBurn, &bc); err != nil {
		return nil, base{}, burnConfig{}, err
	}
	if bc.Cost == nil {
		bc.Cost = new(big.Int)
	}
	return in, b, bc, nil
}

// burn pulls the registration cost from payer to the burn address.
func burn(in *ledger.Call, bc burnConfig, payer common.Address) error {
	if bc.Cost.Sign() == 0 {
		return nil
	}
	tok, err := ledger.ContractAt[burnToken](in, bc.Token)
	if err != nil {
		return in.Revert("burn", arcerrors.ErrInvalidState, "burning token %s: %v", bc.Token.Hex(), err)
	}
	if err := tok.TransferFrom(in, payer, namehash.BurnAddress, bc.Cost); err != nil {
		return err
	}
	in.Emit("FeeBurned", ledger.Address("payer", payer), ledger.Address("token", bc.Token), ledger.Amount("amount", bc.Cost))
	return nil
}

func (r BurnableRegistrar) registerFor(in *ledger.Call, b base, bc burnConfig, op string, payer common.Address, label common.Hash, owner, resolver common.Address) error {
	if err := checkRegistration(in, b, op, label, owner); err != nil {
		return err
	}
	if err := burn(in, bc, payer); err != nil {
		return err
	}
	return register(in, b, op, label, owner, resolver)
}

// Register burns the registration cost from the caller's allowance and
// gives label to owner with the default resolver.
func (r BurnableRegistrar) Register(c *ledger.Call, label common.Hash, owner common.Address) error {
	in, b, bc, err := r.open(c)
	if err != nil {
		return err
	}
	return r.registerFor(in, b, bc, "register", in.Sender(), label, owner, b.Resolver)
}

// RegisterWithResolver is Register with a caller-chosen resolver.
func (r BurnableRegistrar) RegisterWithResolver(c *ledger.Call, label common.Hash, owner, resolver common.Address) error {
	in, b, bc, err := r.open(c)
	if err != nil {
		return err
	}
	if resolver == (common.Address{}) {
		return in.Revert("registerWithResolver", arcerrors.ErrInvalidValue, "zero resolver")
	}
	return r.registerFor(in, b, bc, "registerWithResolver", in.Sender(), label, owner, resolver)
}

// ReceiveApproval executes the registration encoded in data on behalf of
// from. It must be called by the burning token during approve-and-call.
func (r BurnableRegistrar) ReceiveApproval(c *ledger.Call, from common.Address, amount *big.Int, token common.Address, data []byte) error {
	in, b, bc, err := r.open(c)
	if err != nil {
		return err
	}
	if in.Sender() != bc.Token || token != bc.Token {
		return in.Revert("receiveApproval", arcerrors.ErrUnauthorized, "approvals are accepted only from the burning token")
	}
	if amount == nil || amount.Cmp(bc.Cost) < 0 {
		return in.Revert("receiveApproval", arcerrors.ErrInsufficientFunds, "approved amount below registration cost %s", bc.Cost)
	}
	call, err := decodeRegistration(data)
	if err != nil {
		return in.Revert("receiveApproval", arcerrors.ErrInvalidInput, "%v", err)
	}
	resolver := b.Resolver
	if call.method == "registerWithResolver" {
		if call.resolver == (common.Address{}) {
			return in.Revert("receiveApproval", arcerrors.ErrInvalidValue, "zero resolver")
		}
		resolver = call.resolver
	}
	return r.registerFor(in, b, bc, call.method, from, call.label, call.owner, resolver)
}

func (r BurnableRegistrar) onlyOwner(c *ledger.Call, op string) (*ledger.Call, burnConfig, error) {
	in, _, bc, err := r.open(c)
	if err != nil {
		return nil, burnConfig{}, err
	}
	if in.Sender() != bc.Owner {
		return nil, burnConfig{}, in.Revert(op, arcerrors.ErrUnauthorized, "only the registrar owner may %s", op)
	}
	return in, bc, nil
}

// SetRegistrationCost changes the fee for future registrations. Owner only.
func (r BurnableRegistrar) SetRegistrationCost(c *ledger.Call, cost *big.Int) error {
	in, bc, err := r.onlyOwner(c, "setRegistrationCost")
	if err != nil {
		return err
	}
	if cost == nil || cost.Sign() < 0 {
		return in.Revert("setRegistrationCost", arcerrors.ErrInvalidValue, "negative cost")
	}
	bc.Cost = new(big.Int).Set(cost)
	if err := in.Store(keyBurn, bc); err != nil {
		return err
	}
	in.Emit("RegistrationCostChanged", ledger.Amount("cost", cost))
	return nil
}

// SetBurningToken changes the token burned by future registrations. Owner only.
func (r BurnableRegistrar) SetBurningToken(c *ledger.Call, token common.Address) error {
	in, bc, err := r.onlyOwner(c, "setBurningToken")
	if err != nil {
		return err
	}
	bc.Token = token
	if err := in.Store(keyBurn, bc); err != nil {
		return err
	}
	in.Emit("BurningTokenChanged", ledger.Address("token", token))
	return nil
}

// TransferOwnership hands registrar administration to newOwner. Owner only.
func (r BurnableRegistrar) TransferOwnership(c *ledger.Call, newOwner common.Address) error {
	in, bc, err := r.onlyOwner(c, "transferOwnership")
	if err != nil {
		return err
	}
	if newOwner == (common.Address{}) {
		return in.Revert("transferOwnership", arcerrors.ErrInvalidValue, "zero owner")
	}
	prev := bc.Owner
	bc.Owner = newOwner
	if err := in.Store(keyBurn, bc); err != nil {
		return err
	}
	in.Emit("OwnershipTransferred", ledger.Address("previous", prev), ledger.Address("owner", newOwner))
	return nil
}

// RegistrationCost returns the current fee.
func (r BurnableRegistrar) RegistrationCost(c *ledger.Call) (*big.Int, error) {
	_, _, bc, err := r.open(c)
	return bc.Cost, err
}

// BurningToken returns the token burned by registrations.
func (r BurnableRegistrar) BurningToken(c *ledger.Call) (common.Address, error) {
	_, _, bc, err := r.open(c)
	return bc.Token, err
}

// Owner returns the registrar administrator.
func (r BurnableRegistrar) Owner(c *ledger.Call) (common.Address, error) {
	_, _, bc, err := r.open(c)
	return bc.Owner, err
}

// Available reports whether label has no owner in the registry.
func (r BurnableRegistrar) Available(c *ledger.Call, label common.Hash) (bool, error) {
	in, b, _, err := r.open(c)
	if err != nil {
		return false, err
	}
	return available(in, b, label)
}
