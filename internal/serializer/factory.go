package serializer

import "fmt"

// Kind names a concrete serializer variant, used by config to select one
// without the caller constructing it directly.
type Kind string

const (
	KindJSON     Kind = "json"
	KindBinary   Kind = "msgpack"
	KindIdentity Kind = "identity"
)

// ByName constructs the serializer named by kind. An empty kind defaults
// to the JSON variant, which is the most portable choice for a cache
// tier that may be inspected outside this process.
func ByName(kind Kind) (Serializer, error) {
	switch kind {
	case KindJSON, "":
		return NewJSONBinary(), nil
	case KindBinary:
		return NewGenericBinary(), nil
	case KindIdentity:
		return NewIdentity(), nil
	default:
		return nil, fmt.Errorf("serializer: unsupported kind %q", kind)
	}
}
