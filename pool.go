package resply

import (
	"net"

	log "github.com/sirupsen/logrus"
	"gopkg.in/fatih/pool.v2"

	"github.com/christoph-heiss/resply/resp"
)

// PooledClient serves independent request/response commands over a channel
// pool of TCP connections, for callers that issue commands from many
// goroutines at once. It does not support pipelining or pub/sub; both need a
// sticky connection, use Client for those.
type PooledClient struct {
	p pool.Pool
}

// NewPooledClient creates a pooled client for the given "host[:port]"
// address.
func NewPooledClient(address string) (*PooledClient, error) {
	host, port := splitAddress(address)

	factory := func() (net.Conn, error) {
		return net.DialTimeout("tcp", net.JoinHostPort(host, port), DefaultTimeout)
	}

	p, err := pool.NewChannelPool(5, 30, factory)
	if err != nil {
		return nil, err
	}

	return &PooledClient{p: p}, nil
}

// Command checks a connection out of the pool, runs one request/response
// exchange on it and returns it. Transport failures come back as an IOError
// result and take the connection out of rotation.
func (pc *PooledClient) Command(args ...interface{}) resp.Result {
	buf := resp.EncodeCommand(args...)
	if buf == nil {
		return resp.Result{}
	}

	conn, err := pc.p.Get()
	if err != nil {
		log.Errorf("pool checkout failed: %v", err)
		return ioErrorResult(err)
	}
	// Close on a pooled connection returns it to the pool.
	defer conn.Close()

	if _, err := conn.Write(buf); err != nil {
		log.Errorf("write failed: %v", err)
		markUnusable(conn)
		return ioErrorResult(err)
	}

	var parser resp.Parser
	chunk := make([]byte, readBufferSize)

	for {
		n, err := conn.Read(chunk)
		if err != nil {
			log.Errorf("read failed: %v", err)
			markUnusable(conn)
			return ioErrorResult(err)
		}

		for fed := 0; fed < n; {
			m, more := parser.Feed(chunk[fed:n])
			fed += m
			if !more {
				return parser.Result()
			}
		}
	}
}

// Close tears down the pool and all its connections.
func (pc *PooledClient) Close() {
	pc.p.Close()
}

func markUnusable(conn net.Conn) {
	if pc, ok := conn.(*pool.PoolConn); ok {
		pc.MarkUnusable()
	}
}
