package state

// Namespace scopes every key under a fixed prefix so independent owners (the
// host and each contract) never collide in the shared keyspace.
type Namespace struct {
	kv     KV
	prefix []byte
}

// NewNamespace wraps kv so that every key is prefixed.
func NewNamespace(kv KV, prefix []byte) Namespace {
	return Namespace{kv: kv, prefix: append([]byte(nil), prefix...)}
}

func (n Namespace) key(key []byte) []byte {
	buf := make([]byte, len(n.prefix)+len(key))
	copy(buf, n.prefix)
	copy(buf[len(n.prefix):], key)
	return buf
}

func (n Namespace) KVGet(key []byte, out interface{}) (bool, error) {
	return n.kv.KVGet(n.key(key), out)
}

func (n Namespace) KVPut(key []byte, value interface{}) error {
	return n.kv.KVPut(n.key(key), value)
}

func (n Namespace) KVDelete(key []byte) error {
	return n.kv.KVDelete(n.key(key))
}
