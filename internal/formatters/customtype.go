package formatters

import (
	"errors"

	"github.com/webdis-go/webdis-go/internal/reply"
)

// ErrBadShape is returned when a CustomType reply without a forced MIME
// override is not a [value, content-type] pair, or the value element is
// not a bulk string. Callers translate this to HTTP 400.
var ErrBadShape = errors.New("formatters: reply shape incompatible with custom-type formatting")

// CustomType renders either:
//   - a forced MIME reply: requires r to be a bulk string; the bulk bytes
//     are the body and forcedMIME is the content type (from "type=" on
//     the URL), or
//   - an undiscriminated reply: requires r to be a two-element array
//     [value, content-type], where value is a bulk string and
//     content-type is a bulk string used verbatim (default
//     "binary/octet-stream" when the second element isn't a string).
func CustomType(r reply.Reply, forcedMIME string) (body []byte, contentType string, err error) {
	if forcedMIME != "" {
		if r.Kind != reply.KindBulk || r.Nil {
			return nil, "", ErrBadShape
		}
		return r.Bytes, forcedMIME, nil
	}

	if r.Kind != reply.KindArray || r.Nil || len(r.Array) != 2 {
		return nil, "", ErrBadShape
	}
	value := r.Array[0]
	if value.Kind != reply.KindBulk || value.Nil {
		return nil, "", ErrBadShape
	}
	ct := "binary/octet-stream"
	if mt := r.Array[1]; mt.Kind == reply.KindBulk && !mt.Nil {
		ct = string(mt.Bytes)
	} else if mt.Kind == reply.KindStatus {
		ct = mt.Str
	}
	return value.Bytes, ct, nil
}
