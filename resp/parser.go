package resp

import (
	"bytes"
	"strconv"
)

type parserState int

const (
	stateNeedType parserState = iota
	stateNeedSize
	stateNeedData
	stateFinished
)

// readUntilEOL marks a value terminated by CRLF instead of a declared length,
// i.e. a simple string, an error or an integer.
const readUntilEOL = -1

type arrayFrame struct {
	value     Result
	remaining int64
}

// Parser is a resumable streaming parser for the protocol. It consumes bytes
// in whatever chunks they arrive and tolerates the framing boundary landing
// anywhere, including mid-line. One Parser decodes exactly one top-level
// value; call Reset before decoding the next value off the same stream.
type Parser struct {
	state parserState
	// result is the completed top-level value, valid once state is finished.
	result Result
	// current is the scalar value under construction.
	current Result
	// stack holds the open arrays, innermost last. Nesting is tracked
	// through the per-level remaining-element counters.
	stack []arrayFrame
	// line accumulates a partial line or bulk payload across chunks.
	line []byte
	// remaining is the outstanding byte count of a bulk payload including
	// its trailing CRLF, or readUntilEOL for line-terminated values.
	remaining int64
}

// Feed consumes bytes from data. It returns how many bytes were consumed and
// whether more data is required to complete the value. Bytes past the end of
// a completed value are left untouched for the next exchange.
func (p *Parser) Feed(data []byte) (int, bool) {
	var n int

	for p.state != stateFinished && n < len(data) {
		switch p.state {
		case stateNeedType:
			p.parseType(data[n])
			n++

		case stateNeedSize:
			consumed, line, ok := p.takeLine(data[n:])
			n += consumed
			if !ok {
				return n, true
			}
			p.parseSize(line)

		case stateNeedData:
			if p.remaining == readUntilEOL {
				consumed, line, ok := p.takeLine(data[n:])
				n += consumed
				if !ok {
					return n, true
				}
				p.parseData(line)
			} else {
				n += p.parseBulk(data[n:])
			}
		}
	}

	return n, p.state != stateFinished
}

// Result returns the decoded value. It must only be called after Feed has
// reported that no more data is required.
func (p *Parser) Result() Result {
	return p.result
}

// Reset returns the parser to its initial state so the next value on the
// stream can be decoded.
func (p *Parser) Reset() {
	*p = Parser{}
}

// takeLine accumulates bytes until CRLF, carrying partial lines between
// calls. It reports how many bytes it consumed and whether a full line is
// available.
func (p *Parser) takeLine(data []byte) (int, []byte, bool) {
	i := bytes.IndexByte(data, '\n')
	if i < 0 {
		p.line = append(p.line, data...)
		return len(data), nil, false
	}

	line := append(p.line, data[:i]...)
	p.line = nil
	if len(line) > 0 && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	}

	return i + 1, line, true
}

func (p *Parser) parseType(sigil byte) {
	p.current = Result{}

	switch sigil {
	case '+':
		p.current.Type = String
		p.remaining = readUntilEOL
		p.state = stateNeedData
	case '-':
		p.current.Type = ProtocolError
		p.remaining = readUntilEOL
		p.state = stateNeedData
	case ':':
		p.current.Type = Integer
		p.remaining = readUntilEOL
		p.state = stateNeedData
	case '$':
		p.current.Type = String
		p.state = stateNeedSize
	case '*':
		p.current.Type = Array
		p.state = stateNeedSize
	default:
		p.fail()
	}
}

func (p *Parser) parseSize(line []byte) {
	size, err := strconv.ParseInt(string(line), 10, 64)
	if err != nil {
		p.fail()
		return
	}

	// A declared length of -1 is the nil sentinel, for bulk strings and
	// arrays alike, at any nesting depth. Anything else below zero is
	// malformed.
	if size == -1 {
		p.current = Result{}
		p.complete()
		return
	}
	if size < 0 {
		p.fail()
		return
	}

	if p.current.Type == Array {
		if size == 0 {
			p.current.Array = []Result{}
			p.complete()
			return
		}

		p.stack = append(p.stack, arrayFrame{value: p.current, remaining: size})
		p.state = stateNeedType
		return
	}

	p.remaining = size + 2 // payload plus trailing CRLF
	p.state = stateNeedData
}

// parseData completes a CRLF-terminated scalar.
func (p *Parser) parseData(line []byte) {
	if p.current.Type == Integer {
		n, err := strconv.ParseInt(string(line), 10, 64)
		if err != nil {
			p.fail()
			return
		}
		p.current.Integer = n
	} else {
		p.current.Str = string(line)
	}

	p.complete()
}

// parseBulk accumulates a length-prefixed payload. A chunk shorter than the
// outstanding byte count is absorbed without completing the value.
func (p *Parser) parseBulk(data []byte) int {
	want := p.remaining - int64(len(p.line))
	n := int64(len(data))
	if n > want {
		n = want
	}

	p.line = append(p.line, data[:n]...)
	if int64(len(p.line)) == p.remaining {
		// Strip the trailing CRLF.
		p.current.Str = string(p.line[:p.remaining-2])
		p.line = nil
		p.complete()
	}

	return int(n)
}

// complete finishes the value under construction and folds it into the
// enclosing arrays. Completing the last element of an array completes the
// array itself, cascading outwards.
func (p *Parser) complete() {
	value := p.current

	for {
		if len(p.stack) == 0 {
			p.result = value
			p.state = stateFinished
			return
		}

		top := &p.stack[len(p.stack)-1]
		top.value.Array = append(top.value.Array, value)
		top.remaining--
		if top.remaining > 0 {
			p.state = stateNeedType
			return
		}

		value = top.value
		p.stack = p.stack[:len(p.stack)-1]
	}
}

// fail terminates parsing of the current value with a protocol error. The
// stream itself stays usable for the next value.
func (p *Parser) fail() {
	p.stack = nil
	p.line = nil
	p.result = Result{Type: ProtocolError, Str: "Parsing error."}
	p.state = stateFinished
}
