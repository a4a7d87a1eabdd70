package resply_test

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/christoph-heiss/resply/resp"
)

// testServer is a minimal in-process server speaking just enough of the
// protocol for the client and Redlock tests: string commands with NX/PX,
// the compare-and-delete EVAL used for unlocking, and pub/sub.
type testServer struct {
	ln net.Listener

	mu    sync.Mutex
	data  map[string]entry
	subs  map[string][]*subConn
	conns []net.Conn
}

type entry struct {
	value   string
	expires time.Time // zero means no expiry
}

// subConn serializes writes to one client connection, since published
// messages are pushed from other connections' handlers.
type subConn struct {
	mu sync.Mutex
	w  *resp.Writer
}

func (s *subConn) write(v interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w.Write(v) //nolint:errcheck // client gone, nothing to do
}

func startTestServer(t *testing.T) *testServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	srv := &testServer{
		ln:   ln,
		data: make(map[string]entry),
		subs: make(map[string][]*subConn),
	}

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}

			srv.mu.Lock()
			srv.conns = append(srv.conns, conn)
			srv.mu.Unlock()

			go srv.handleConn(conn)
		}
	}()

	t.Cleanup(srv.Close)

	return srv
}

func (s *testServer) Addr() string {
	return s.ln.Addr().String()
}

func (s *testServer) Close() {
	s.ln.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.conns {
		conn.Close()
	}
	s.conns = nil
}

func (s *testServer) handleConn(conn net.Conn) {
	defer conn.Close()

	sub := &subConn{w: resp.NewWriter(conn)}
	var parser resp.Parser
	var pending []byte
	chunk := make([]byte, 4096)

	for {
		if len(pending) == 0 {
			n, err := conn.Read(chunk)
			if err != nil {
				return
			}
			pending = append([]byte(nil), chunk[:n]...)
		}

		n, more := parser.Feed(pending)
		pending = pending[n:]
		if more {
			continue
		}

		cmd := parser.Result()
		parser.Reset()
		s.execute(sub, cmd)
	}
}

func (s *testServer) execute(sub *subConn, cmd resp.Result) {
	if cmd.Type != resp.Array || len(cmd.Array) == 0 {
		sub.write(errors.New("ERR malformed command"))
		return
	}

	args := make([]string, len(cmd.Array))
	for i, a := range cmd.Array {
		args[i] = a.Str
	}

	switch strings.ToUpper(args[0]) {
	case "PING":
		sub.write("PONG")

	case "SET":
		s.execSet(sub, args)

	case "GET":
		if value, ok := s.get(args[1]); ok {
			sub.write([]byte(value))
		} else {
			sub.write(nil)
		}

	case "DEL":
		count := 0
		s.mu.Lock()
		for _, key := range args[1:] {
			if _, ok := s.data[key]; ok {
				delete(s.data, key)
				count++
			}
		}
		s.mu.Unlock()
		sub.write(count)

	case "INCR":
		s.mu.Lock()
		n, _ := strconv.ParseInt(s.data[args[1]].value, 10, 64)
		n++
		s.data[args[1]] = entry{value: strconv.FormatInt(n, 10)}
		s.mu.Unlock()
		sub.write(n)

	case "MGET":
		values := make([]interface{}, 0, len(args)-1)
		for _, key := range args[1:] {
			if value, ok := s.get(key); ok {
				values = append(values, []byte(value))
			} else {
				values = append(values, nil)
			}
		}
		sub.write(values)

	case "EVAL":
		// The only script the tests run is the compare-and-delete
		// unlock script: EVAL <script> 1 <key> <token>.
		if len(args) < 5 {
			sub.write(errors.New("ERR wrong number of arguments"))
			return
		}
		key, token := args[3], args[4]
		deleted := 0
		s.mu.Lock()
		if e, ok := s.data[key]; ok && e.value == token {
			delete(s.data, key)
			deleted = 1
		}
		s.mu.Unlock()
		sub.write(deleted)

	case "SUBSCRIBE":
		channel := args[1]
		s.mu.Lock()
		s.subs[channel] = append(s.subs[channel], sub)
		count := len(s.subs)
		s.mu.Unlock()
		sub.write([]interface{}{[]byte("subscribe"), []byte(channel), count})

	case "PUBLISH":
		channel, message := args[1], args[2]
		s.mu.Lock()
		receivers := append([]*subConn(nil), s.subs[channel]...)
		s.mu.Unlock()
		for _, r := range receivers {
			r.write([]interface{}{[]byte("message"), []byte(channel), []byte(message)})
		}
		sub.write(len(receivers))

	default:
		sub.write(errors.New("ERR unknown command '" + args[0] + "'"))
	}
}

func (s *testServer) execSet(sub *subConn, args []string) {
	if len(args) < 3 {
		sub.write(errors.New("ERR wrong number of arguments"))
		return
	}

	key, value := args[1], args[2]
	nx := false
	var ttl time.Duration

	for i := 3; i < len(args); i++ {
		switch strings.ToUpper(args[i]) {
		case "NX":
			nx = true
		case "PX":
			i++
			ms, err := strconv.ParseInt(args[i], 10, 64)
			if err != nil {
				sub.write(errors.New("ERR value is not an integer"))
				return
			}
			ttl = time.Duration(ms) * time.Millisecond
		}
	}

	s.mu.Lock()

	if nx {
		if e, ok := s.data[key]; ok && (e.expires.IsZero() || time.Now().Before(e.expires)) {
			s.mu.Unlock()
			sub.write(nil)
			return
		}
	}

	e := entry{value: value}
	if ttl > 0 {
		e.expires = time.Now().Add(ttl)
	}
	s.data[key] = e

	s.mu.Unlock()
	sub.write("OK")
}

func (s *testServer) get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key]
	if !ok {
		return "", false
	}
	if !e.expires.IsZero() && time.Now().After(e.expires) {
		delete(s.data, key)
		return "", false
	}

	return e.value, true
}
