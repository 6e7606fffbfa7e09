package crypto

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix defines the human-readable part of a bech32 address.
type AddressPrefix string

const (
	// DefaultPrefix is used when the node configuration does not override it.
	DefaultPrefix AddressPrefix = "cyber"
)

const (
	accountAddressLen  = 20
	contractAddressLen = 32
)

// Address represents an account (20 byte) or contract (32 byte) address with
// a specific prefix.
type Address struct {
	prefix AddressPrefix
	bytes  []byte
}

// NewAddress wraps raw address bytes. It panics when b is neither an account
// nor a contract address length.
func NewAddress(prefix AddressPrefix, b []byte) Address {
	if len(b) != accountAddressLen && len(b) != contractAddressLen {
		panic(fmt.Sprintf("address must be %d or %d bytes long", accountAddressLen, contractAddressLen))
	}
	return Address{prefix: prefix, bytes: append([]byte(nil), b...)}
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.bytes, 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

func (a Address) Bytes() []byte {
	return a.bytes
}

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
}

func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	if len(conv) != accountAddressLen && len(conv) != contractAddressLen {
		return Address{}, fmt.Errorf("invalid address length %d", len(conv))
	}
	return Address{prefix: AddressPrefix(prefix), bytes: conv}, nil
}

// Codec validates and derives addresses for a single chain prefix. It is the
// host's address validator handed to contract engines.
type Codec struct {
	prefix AddressPrefix
}

// NewCodec returns a codec for prefix, falling back to DefaultPrefix.
func NewCodec(prefix string) Codec {
	trimmed := strings.ToLower(strings.TrimSpace(prefix))
	if trimmed == "" {
		trimmed = string(DefaultPrefix)
	}
	return Codec{prefix: AddressPrefix(trimmed)}
}

// Prefix reports the codec's human-readable part.
func (c Codec) Prefix() AddressPrefix { return c.prefix }

// Validate checks that addr is a well-formed address for this chain and
// returns its canonical (lower-case) form.
func (c Codec) Validate(addr string) (string, error) {
	trimmed := strings.TrimSpace(addr)
	if trimmed == "" {
		return "", fmt.Errorf("empty address")
	}
	decoded, err := DecodeAddress(trimmed)
	if err != nil {
		return "", fmt.Errorf("address %q: %w", addr, err)
	}
	if decoded.prefix != c.prefix {
		return "", fmt.Errorf("address %q: expected prefix %q, got %q", addr, c.prefix, decoded.prefix)
	}
	return decoded.String(), nil
}

// AccountAddress derives a deterministic account address from seed. It is
// used by tooling and tests to mint stable identities.
func (c Codec) AccountAddress(seed string) string {
	hash := crypto.Keccak256([]byte("account:" + seed))
	return NewAddress(c.prefix, hash[:accountAddressLen]).String()
}

// ContractAddress derives the address of a contract instantiated by creator
// from codeID. The same inputs always yield the same address.
func (c Codec) ContractAddress(creator string, codeID uint64) string {
	hash := crypto.Keccak256([]byte(creator), []byte(fmt.Sprintf(":code:%d", codeID)))
	return NewAddress(c.prefix, hash).String()
}
