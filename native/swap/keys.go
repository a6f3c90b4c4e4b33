package swap

import "swapledger/crypto"

// DataKeyTag discriminates the variants of persisted contract keys.
type DataKeyTag uint8

const (
	// DataKeySwapCount keys the per-identity swap counter.
	DataKeySwapCount DataKeyTag = iota + 1
)

var swapCountPrefix = []byte("SwapCount/")

// DataKey is the tagged storage key of the swap contract. SwapCount is the only
// variant.
type DataKey struct {
	Tag      DataKeyTag
	Identity crypto.Address
}

// SwapCountKey returns SwapCount(identity).
func SwapCountKey(identity crypto.Address) DataKey {
	return DataKey{Tag: DataKeySwapCount, Identity: identity}
}

// Bytes encodes the key as tag prefix followed by the raw identity.
func (k DataKey) Bytes() []byte {
	var prefix []byte
	switch k.Tag {
	case DataKeySwapCount:
		prefix = swapCountPrefix
	default:
		return nil
	}
	raw := k.Identity.Raw()
	buf := make([]byte, len(prefix)+len(raw))
	copy(buf, prefix)
	copy(buf[len(prefix):], raw[:])
	return buf
}
