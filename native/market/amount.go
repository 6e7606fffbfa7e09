package market

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
)

// Uint128 is an unsigned amount bounded by 2^128-1. It serialises to JSON as
// a decimal string and to RLP as a big integer.
type Uint128 uint256.Int

var maxUint128 = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))

// NewUint128 converts v into an amount.
func NewUint128(v uint64) Uint128 {
	return Uint128(*uint256.NewInt(v))
}

// ParseUint128 parses a base-10 amount.
func ParseUint128(s string) (Uint128, error) {
	var v uint256.Int
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Uint128{}, fmt.Errorf("empty amount")
	}
	if err := v.SetFromDecimal(trimmed); err != nil {
		return Uint128{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if v.Gt(maxUint128) {
		return Uint128{}, fmt.Errorf("amount %q exceeds 128 bits", s)
	}
	return Uint128(v), nil
}

func (a Uint128) u256() *uint256.Int {
	v := uint256.Int(a)
	return &v
}

// IsZero reports whether the amount is zero.
func (a Uint128) IsZero() bool { return a.u256().IsZero() }

// Cmp compares a and b and returns -1, 0 or +1.
func (a Uint128) Cmp(b Uint128) int { return a.u256().Cmp(b.u256()) }

// Uint64 returns the low 64 bits; callers use it for amounts known to fit.
func (a Uint128) Uint64() uint64 { return a.u256().Uint64() }

func (a Uint128) String() string { return a.u256().Dec() }

// Add returns a+b, failing when the sum leaves the 128-bit range.
func (a Uint128) Add(b Uint128) (Uint128, error) {
	sum, overflow := new(uint256.Int).AddOverflow(a.u256(), b.u256())
	if overflow || sum.Gt(maxUint128) {
		return Uint128{}, fmt.Errorf("amount overflow: %s + %s", a, b)
	}
	return Uint128(*sum), nil
}

// Sub returns a-b, failing on underflow.
func (a Uint128) Sub(b Uint128) (Uint128, error) {
	if a.Cmp(b) < 0 {
		return Uint128{}, fmt.Errorf("amount underflow: %s - %s", a, b)
	}
	return Uint128(*new(uint256.Int).Sub(a.u256(), b.u256())), nil
}

// MulBps returns floor(a * bps / 10_000). The intermediate product of a
// 128-bit amount and a basis-point factor always fits in 256 bits.
func (a Uint128) MulBps(bps uint32) Uint128 {
	product := new(uint256.Int).Mul(a.u256(), uint256.NewInt(uint64(bps)))
	return Uint128(*product.Div(product, uint256.NewInt(BpsDenominator)))
}

func (a Uint128) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Uint128) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		// Tolerate bare JSON numbers from hand-written payloads.
		raw = string(data)
	}
	parsed, err := ParseUint128(raw)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func (a Uint128) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, a.u256().ToBig())
}

func (a *Uint128) DecodeRLP(s *rlp.Stream) error {
	b, err := s.BigInt()
	if err != nil {
		return err
	}
	v, overflow := uint256.FromBig(b)
	if overflow || v.Gt(maxUint128) {
		return fmt.Errorf("stored amount exceeds 128 bits")
	}
	*a = Uint128(*v)
	return nil
}
