// Package formatters turns a Redis reply (internal/reply) into an HTTP
// response body plus Content-Type, per component D of the gateway spec.
// Emission is done with a manual byte-buffer writer rather than
// encoding/json's Marshal: the reply shape is a small closed variant type
// (internal/reply.Reply), not a decoded Go struct with tags, so there is
// nothing for reflection-based marshaling to buy here. The teacher has no
// direct precedent for hand-rolled JSON emission specifically (its own
// json_iterator.go decodes via encoding/json, reflectively); the manual
// byte-buffer style instead follows the hand-rolled RESP-array emission in
// lukluk-rendang's buildRESPArray/rebuildRESPArray (SPEC_FULL.md §10,
// DESIGN.md), applied to JSON output instead of RESP.
package formatters

import (
	"bytes"
	"regexp"
	"unicode/utf8"

	"github.com/webdis-go/webdis-go/internal/reply"
)

var jsonpCallbackRe = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// JSON renders {"VERB": payload} where VERB is the upper-cased command
// name and payload maps the reply per the distilled spec's table. If
// jsonpCallback is non-empty and passes jsonpCallbackRe, the body is
// wrapped as "CB(payload);" and the returned content type switches to
// application/javascript; an invalid callback silently falls back to
// plain JSON.
func JSON(verb string, r reply.Reply, jsonpCallback string) (body []byte, contentType string) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	writeJSONString(&buf, verb)
	buf.WriteByte(':')
	writeJSONPayload(&buf, r)
	buf.WriteByte('}')

	if jsonpCallback != "" && jsonpCallbackRe.MatchString(jsonpCallback) {
		wrapped := make([]byte, 0, len(jsonpCallback)+buf.Len()+2)
		wrapped = append(wrapped, jsonpCallback...)
		wrapped = append(wrapped, '(')
		wrapped = append(wrapped, buf.Bytes()...)
		wrapped = append(wrapped, ')', ';')
		return wrapped, "application/javascript"
	}
	return buf.Bytes(), "application/json"
}

// writeJSONPayload maps a top-level reply to its JSON payload form:
//   - integer      -> number
//   - status/bulk  -> [true, "bytes"]   (errors: [false, "message"])
//   - nil bulk     -> null
//   - array        -> a plain JSON array of its elements (element, a
//     nested reply is never re-wrapped: the [true/false, ...] success
//     marker is a property of the top-level reply, not of an array
//     member, matching real webdis output for e.g. MGET or a pub/sub
//     push message)
func writeJSONPayload(buf *bytes.Buffer, r reply.Reply) {
	switch r.Kind {
	case reply.KindInteger:
		writeJSONInt(buf, r.Int)
	case reply.KindStatus:
		buf.WriteByte('[')
		buf.WriteString("true,")
		writeJSONString(buf, r.Str)
		buf.WriteByte(']')
	case reply.KindBulk:
		if r.Nil {
			buf.WriteString("null")
			return
		}
		buf.WriteByte('[')
		buf.WriteString("true,")
		writeJSONBytes(buf, r.Bytes)
		buf.WriteByte(']')
	case reply.KindError:
		buf.WriteByte('[')
		buf.WriteString("false,")
		writeJSONString(buf, r.Str)
		buf.WriteByte(']')
	case reply.KindArray:
		if r.Nil {
			buf.WriteString("null")
			return
		}
		buf.WriteByte('[')
		for i, e := range r.Array {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeJSONElement(buf, e)
		}
		buf.WriteByte(']')
	}
}

// writeJSONElement renders a reply as an array member: unlike
// writeJSONPayload, bulk/status values are bare JSON strings and errors are
// bare JSON strings too, since nothing inside an array carries its own
// success/failure marker — only the overall reply does.
func writeJSONElement(buf *bytes.Buffer, r reply.Reply) {
	switch r.Kind {
	case reply.KindInteger:
		writeJSONInt(buf, r.Int)
	case reply.KindStatus:
		writeJSONString(buf, r.Str)
	case reply.KindBulk:
		if r.Nil {
			buf.WriteString("null")
			return
		}
		writeJSONBytes(buf, r.Bytes)
	case reply.KindError:
		writeJSONString(buf, r.Str)
	case reply.KindArray:
		if r.Nil {
			buf.WriteString("null")
			return
		}
		buf.WriteByte('[')
		for i, e := range r.Array {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeJSONElement(buf, e)
		}
		buf.WriteByte(']')
	}
}

func writeJSONInt(buf *bytes.Buffer, v int64) {
	buf.WriteString(itoa(v))
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var tmp [20]byte
	i := len(tmp)
	for v > 0 {
		i--
		tmp[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		tmp[i] = '-'
	}
	return string(tmp[i:])
}

func writeJSONString(buf *bytes.Buffer, s string) {
	writeJSONBytes(buf, []byte(s))
}

// writeJSONBytes emits a JSON string literal for arbitrary bytes. Valid
// UTF-8 text is escaped normally; bytes that are not valid UTF-8 are
// rendered byte-by-byte through \u00XX escapes so the output stays valid
// JSON without resorting to base64 (SPEC_FULL.md §4.D).
func writeJSONBytes(buf *bytes.Buffer, b []byte) {
	buf.WriteByte('"')
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r == utf8.RuneError && size <= 1 {
			buf.WriteString(`\u00`)
			buf.WriteByte(hexDigit(b[0] >> 4))
			buf.WriteByte(hexDigit(b[0] & 0xf))
			b = b[1:]
			continue
		}
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				buf.WriteString(`\u00`)
				buf.WriteByte(hexDigit(byte(r) >> 4))
				buf.WriteByte(hexDigit(byte(r) & 0xf))
			} else {
				buf.WriteRune(r)
			}
		}
		b = b[size:]
	}
	buf.WriteByte('"')
}

func hexDigit(v byte) byte {
	if v < 10 {
		return '0' + v
	}
	return 'a' + (v - 10)
}
