// Package resp implements the Redis serialization protocol: a command
// encoder, a resumable streaming parser and a reply writer.
package resp

import (
	"strconv"
	"strings"
)

// Type indicates which case of a Result is active.
type Type int

const (
	Nil Type = iota
	String
	Integer
	Array
	ProtocolError
	IOError
)

// Result holds one decoded protocol value. Exactly one case is active,
// selected by Type. The zero value is Nil.
type Result struct {
	Type    Type
	Str     string
	Integer int64
	Array   []Result
}

// IsError reports whether the result carries a protocol or transport error.
func (r Result) IsError() bool {
	return r.Type == ProtocolError || r.Type == IOError
}

// String renders the result for display. Errors are prefixed with "(error) ",
// a nil value prints as "(nil)" and array elements are concatenated.
func (r Result) String() string {
	switch r.Type {
	case ProtocolError, IOError:
		return "(error) " + r.Str
	case String:
		return r.Str
	case Integer:
		return strconv.FormatInt(r.Integer, 10)
	case Array:
		var b strings.Builder
		for _, res := range r.Array {
			b.WriteString(res.String())
		}
		return b.String()
	}

	return "(nil)"
}
