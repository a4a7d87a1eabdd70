package resp

import (
	"fmt"
	"io"
	"reflect"
	"strconv"
)

// Writer encodes server-side reply values. The client never needs it, but a
// server end of the protocol does, and so do the in-process servers the tests
// run against.
type Writer struct {
	w io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write encodes a single reply value. Strings become simple strings, errors
// become protocol errors, byte slices become bulk strings, nil becomes the
// nil bulk string and slices become arrays of bulk strings.
func (w *Writer) Write(v interface{}) error {
	buf, err := appendValue(make([]byte, 0, 32), v)
	if err != nil {
		return err
	}

	_, err = w.w.Write(buf)
	return err
}

func appendValue(buf []byte, v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return append(buf, '$', '-', '1', '\r', '\n'), nil
	case string:
		buf = append(buf, '+')
		buf = append(buf, val...)
		return appendTail(buf), nil
	case error:
		buf = append(buf, '-')
		buf = append(buf, val.Error()...)
		return appendTail(buf), nil
	case int:
		return appendIntegerReply(buf, int64(val)), nil
	case int64:
		return appendIntegerReply(buf, val), nil
	case []byte:
		return appendBytes(buf, val), nil
	case []string:
		buf = append(buf, '*')
		buf = strconv.AppendInt(buf, int64(len(val)), 10)
		buf = appendTail(buf)
		for _, s := range val {
			buf = appendBytes(buf, []byte(s))
		}
		return buf, nil
	case []interface{}:
		buf = append(buf, '*')
		buf = strconv.AppendInt(buf, int64(len(val)), 10)
		buf = appendTail(buf)
		var err error
		for _, e := range val {
			if buf, err = appendValue(buf, e); err != nil {
				return nil, err
			}
		}
		return buf, nil
	}

	return nil, fmt.Errorf("invalid reply type %s", reflect.TypeOf(v))
}

func appendIntegerReply(buf []byte, n int64) []byte {
	buf = append(buf, ':')
	buf = strconv.AppendInt(buf, n, 10)
	return appendTail(buf)
}
