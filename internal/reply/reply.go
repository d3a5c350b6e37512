// Package reply models a Redis reply as received over RESP: an integer, a
// simple status string, a (possibly nil) bulk string, an error string, or a
// recursive array of replies. Formatters (internal/formatters) consume this
// type; internal/upstream produces it from a redigo connection's Receive().
package reply

import "fmt"

// Kind discriminates the variant held by a Reply.
type Kind int

const (
	// KindInteger holds an int64 in Int.
	KindInteger Kind = iota
	// KindStatus holds a simple status string (e.g. "OK") in Str.
	KindStatus
	// KindBulk holds a bulk string in Bytes, or Nil=true if the bulk is nil.
	KindBulk
	// KindError holds an error message in Str.
	KindError
	// KindArray holds child replies in Array, or Nil=true if the array is nil.
	KindArray
)

// Reply is a single RESP reply, possibly nested (KindArray).
type Reply struct {
	Kind  Kind
	Int   int64
	Str   string
	Bytes []byte
	Nil   bool
	Array []Reply
}

// Int64 returns an integer reply.
func Int64(v int64) Reply { return Reply{Kind: KindInteger, Int: v} }

// Status returns a simple-status reply.
func Status(s string) Reply { return Reply{Kind: KindStatus, Str: s} }

// Bulk returns a non-nil bulk string reply.
func Bulk(b []byte) Reply { return Reply{Kind: KindBulk, Bytes: b} }

// NilBulk returns a nil bulk string reply.
func NilBulk() Reply { return Reply{Kind: KindBulk, Nil: true} }

// Err returns an error reply.
func Err(msg string) Reply { return Reply{Kind: KindError, Str: msg} }

// Array returns a non-nil array reply.
func Array(elems []Reply) Reply { return Reply{Kind: KindArray, Array: elems} }

// NilArray returns a nil array reply (RESP "*-1\r\n").
func NilArray() Reply { return Reply{Kind: KindArray, Nil: true} }

// IsError reports whether r is an error reply.
func (r Reply) IsError() bool { return r.Kind == KindError }

// String renders a short diagnostic form of r, not a wire encoding.
func (r Reply) String() string {
	switch r.Kind {
	case KindInteger:
		return fmt.Sprintf("int(%d)", r.Int)
	case KindStatus:
		return fmt.Sprintf("status(%s)", r.Str)
	case KindBulk:
		if r.Nil {
			return "bulk(nil)"
		}
		return fmt.Sprintf("bulk(%d bytes)", len(r.Bytes))
	case KindError:
		return fmt.Sprintf("error(%s)", r.Str)
	case KindArray:
		if r.Nil {
			return "array(nil)"
		}
		return fmt.Sprintf("array(%d elems)", len(r.Array))
	default:
		return "unknown"
	}
}

// FromInterface converts the interface{} shape returned by redigo's Receive
// (the wire codec, §10 of SPEC_FULL.md) into our Reply variant. redigo
// represents RESP types as: int64, []byte (bulk), redigo's "simple string"
// wrapper (string), error, []interface{} (array), and nil.
func FromInterface(v interface{}, err error) Reply {
	if err != nil {
		return Err(err.Error())
	}
	switch t := v.(type) {
	case int64:
		return Int64(t)
	case []byte:
		return Bulk(t)
	case string:
		return Status(t)
	case nil:
		return NilBulk()
	case []interface{}:
		elems := make([]Reply, 0, len(t))
		for _, e := range t {
			elems = append(elems, FromInterface(e, nil))
		}
		return Array(elems)
	case error:
		return Err(t.Error())
	default:
		return Err(fmt.Sprintf("unsupported reply type %T", t))
	}
}
