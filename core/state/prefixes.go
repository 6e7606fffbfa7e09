package state

import "encoding/binary"

// Namespaces of the marketplace and royalty registry collections.
const (
	nsMarketConfig    = "cyberswap_config"
	nsListings        = "listings_im"
	nsListingID       = "listing__id"
	nsListingFinal    = "listing__finalized__date"
	nsListingWhite    = "listing__whitelist"
	nsBuckets         = "buckets"
	nsFeeDenom        = "fee_denom"
	nsRoyaltyAddr     = "royalty_addr"
	nsRoyaltyRegistry = "royalty_registry"
	nsRoyaltyConfig   = "royalty_config"
)

// appendLengthPrefixed appends a 2-byte big-endian length followed by part.
func appendLengthPrefixed(buf, part []byte) []byte {
	var l [2]byte
	binary.BigEndian.PutUint16(l[:], uint16(len(part)))
	buf = append(buf, l[:]...)
	return append(buf, part...)
}

// compositeKey builds namespace | len(p0) p0 | ... | pN. Every component but
// the last is length-prefixed so that a prefix scan over the leading
// components enumerates the trailing one in ascending byte order.
func compositeKey(namespace string, parts ...[]byte) []byte {
	size := 2 + len(namespace)
	for _, p := range parts {
		size += 2 + len(p)
	}
	buf := appendLengthPrefixed(make([]byte, 0, size), []byte(namespace))
	for i, p := range parts {
		if i == len(parts)-1 {
			buf = append(buf, p...)
			break
		}
		buf = appendLengthPrefixed(buf, p)
	}
	return buf
}

// compositePrefix returns the key prefix shared by every entry whose leading
// components equal parts.
func compositePrefix(namespace string, parts ...[]byte) []byte {
	buf := appendLengthPrefixed(nil, []byte(namespace))
	for _, p := range parts {
		buf = appendLengthPrefixed(buf, p)
	}
	return buf
}

func singletonKey(namespace string) []byte {
	return appendLengthPrefixed(nil, []byte(namespace))
}

func uint64Bytes(v uint64) []byte {
	var out [8]byte
	binary.BigEndian.PutUint64(out[:], v)
	return out[:]
}
