package resp

import (
	"fmt"
	"strconv"
	"time"
)

// EncodeCommand serializes a command name and its arguments into an array of
// bulk strings. Numeric arguments are rendered in their decimal form; the
// protocol has no separate wire representation for client-sent integers.
// An empty argument list or an empty command name encodes to nil so that no
// accidental empty round trip is made.
func EncodeCommand(args ...interface{}) []byte {
	if len(args) == 0 {
		return nil
	}

	if name, ok := args[0].(string); ok && name == "" {
		return nil
	}

	buf := make([]byte, 0, 16*len(args))
	buf = append(buf, '*')
	buf = strconv.AppendInt(buf, int64(len(args)), 10)
	buf = appendTail(buf)

	for _, arg := range args {
		switch v := arg.(type) {
		case string:
			buf = appendBytes(buf, []byte(v))
		case []byte:
			buf = appendBytes(buf, v)
		case int:
			buf = appendInt64(buf, int64(v))
		case int8:
			buf = appendInt64(buf, int64(v))
		case int16:
			buf = appendInt64(buf, int64(v))
		case int32:
			buf = appendInt64(buf, int64(v))
		case int64:
			buf = appendInt64(buf, v)
		case uint:
			buf = appendInt64(buf, int64(v))
		case uint8:
			buf = appendInt64(buf, int64(v))
		case uint16:
			buf = appendInt64(buf, int64(v))
		case uint32:
			buf = appendInt64(buf, int64(v))
		case uint64:
			buf = appendInt64(buf, int64(v))
		case time.Duration:
			// Durations are sent as whole milliseconds, the unit used
			// by PX and friends.
			buf = appendInt64(buf, int64(v/time.Millisecond))
		default:
			buf = appendBytes(buf, []byte(fmt.Sprint(v)))
		}
	}

	return buf
}

func appendTail(buf []byte) []byte {
	return append(buf, '\r', '\n')
}

func appendInt64(buf []byte, n int64) []byte {
	return appendBytes(buf, strconv.AppendInt(nil, n, 10))
}

func appendBytes(buf []byte, b []byte) []byte {
	buf = append(buf, '$')
	buf = strconv.AppendInt(buf, int64(len(b)), 10)
	buf = appendTail(buf)
	buf = append(buf, b...)

	return appendTail(buf)
}
