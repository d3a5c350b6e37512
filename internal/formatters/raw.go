package formatters

import (
	"bytes"

	"github.com/webdis-go/webdis-go/internal/reply"
)

// Raw renders a faithful RESP-like framing of r: integers as ":N\r\n",
// bulk strings as "$len\r\nbytes\r\n" (or "$-1\r\n" for nil), status as
// "+bytes\r\n", errors as "-bytes\r\n", and arrays as "*N\r\n" followed by
// each element's framing (or "*-1\r\n" for a nil array).
func Raw(r reply.Reply) []byte {
	var buf bytes.Buffer
	writeRaw(&buf, r)
	return buf.Bytes()
}

func writeRaw(buf *bytes.Buffer, r reply.Reply) {
	switch r.Kind {
	case reply.KindInteger:
		buf.WriteByte(':')
		buf.WriteString(itoa(r.Int))
		buf.WriteString("\r\n")
	case reply.KindStatus:
		buf.WriteByte('+')
		buf.WriteString(r.Str)
		buf.WriteString("\r\n")
	case reply.KindError:
		buf.WriteByte('-')
		buf.WriteString(r.Str)
		buf.WriteString("\r\n")
	case reply.KindBulk:
		if r.Nil {
			buf.WriteString("$-1\r\n")
			return
		}
		buf.WriteByte('$')
		buf.WriteString(itoa(int64(len(r.Bytes))))
		buf.WriteString("\r\n")
		buf.Write(r.Bytes)
		buf.WriteString("\r\n")
	case reply.KindArray:
		if r.Nil {
			buf.WriteString("*-1\r\n")
			return
		}
		buf.WriteByte('*')
		buf.WriteString(itoa(int64(len(r.Array))))
		buf.WriteString("\r\n")
		for _, e := range r.Array {
			writeRaw(buf, e)
		}
	}
}
