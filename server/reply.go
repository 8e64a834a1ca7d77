package server

import (
	"github.com/tidwall/redcon"
)

// ReplyKind identifies how a Reply is framed on the wire.
type ReplyKind uint8

const (
	// KindStatus is a simple success status: +<text>\r\n
	KindStatus ReplyKind = iota + 1
	// KindError is an error status: -<text>\r\n
	KindError
	// KindBulk is a bulk value: $<len>\r\n<text>\r\n
	KindBulk
	// KindNull is the absent bulk value: $-1\r\n
	KindNull
	// KindInt is an integer: :<n>\r\n
	KindInt
)

// Reply is the response to one command.
type Reply struct {
	Kind ReplyKind
	Text string
	Int  int64
}

// Status returns a simple success reply.
func Status(text string) Reply { return Reply{Kind: KindStatus, Text: text} }

// Error returns an error reply. msg does not carry the ERR prefix.
func Error(msg string) Reply { return Reply{Kind: KindError, Text: "ERR " + msg} }

// Bulk returns a bulk value reply.
func Bulk(value string) Reply { return Reply{Kind: KindBulk, Text: value} }

// Null returns the "not found" reply.
func Null() Reply { return Reply{Kind: KindNull} }

// Int returns an integer reply.
func Int(n int64) Reply { return Reply{Kind: KindInt, Int: n} }

// AppendTo appends the wire encoding of r to b.
func (r Reply) AppendTo(b []byte) []byte {
	switch r.Kind {
	case KindStatus:
		return redcon.AppendString(b, r.Text)
	case KindError:
		return redcon.AppendError(b, r.Text)
	case KindBulk:
		return redcon.AppendBulkString(b, r.Text)
	case KindInt:
		return redcon.AppendInt(b, r.Int)
	default:
		return redcon.AppendNull(b)
	}
}

// Bytes returns the wire encoding of r.
func (r Reply) Bytes() []byte {
	return r.AppendTo(nil)
}

// String returns the wire encoding of r as a string.
func (r Reply) String() string {
	return string(r.Bytes())
}
