package resply

import (
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/christoph-heiss/resply/resp"
)

var ErrNotConnected = errors.New("client is not connected")

const (
	// DefaultPort is used when an address string carries no port.
	DefaultPort = "6379"
	// DefaultTimeout bounds connection establishment.
	DefaultTimeout = 500 * time.Millisecond

	readBufferSize = 4096
)

// ChannelCallback receives messages published on a subscribed channel.
type ChannelCallback func(channel, message string)

// Client speaks the protocol over a single TCP connection. It is not safe
// for concurrent use: the parser and pending-response state assume one
// logical exchange in flight at a time. Closing the connection from another
// goroutine is the way to cancel a blocked read.
type Client struct {
	host    string
	port    string
	timeout time.Duration

	// mu guards conn only: Close may be called from another goroutine to
	// unblock a pending read, everything else is single-caller.
	mu   sync.Mutex
	conn net.Conn
	// pending holds bytes already read off the socket but not yet consumed
	// by the parser, e.g. the tail of a pipelined read.
	pending []byte

	channels   map[string]ChannelCallback
	subscribed bool
}

// NewClient creates a client for the given address in "host[:port]" form.
// The port defaults to 6379 and an empty address means localhost.
func NewClient(address string) *Client {
	return NewClientTimeout(address, DefaultTimeout)
}

// NewClientTimeout is NewClient with an explicit connect timeout.
func NewClientTimeout(address string, timeout time.Duration) *Client {
	host, port := splitAddress(address)

	return &Client{
		host:    host,
		port:    port,
		timeout: timeout,
	}
}

func splitAddress(address string) (string, string) {
	host, port := "localhost", DefaultPort

	if address != "" {
		if i := strings.LastIndex(address, ":"); i >= 0 {
			host, port = address[:i], address[i+1:]
		} else {
			host = address
		}
	}

	return host, port
}

func (c *Client) Host() string { return c.host }
func (c *Client) Port() string { return c.port }

// IsConnected reports whether the client currently holds a connection.
func (c *Client) IsConnected() bool {
	return c.socket() != nil
}

func (c *Client) socket() net.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// Connect establishes the TCP connection. Calling it on an already
// connected client is a no-op; a failure leaves the client unusable until
// Connect is retried.
func (c *Client) Connect() error {
	if c.socket() != nil {
		return nil
	}

	conn, err := net.DialTimeout("tcp", net.JoinHostPort(c.host, c.port), c.timeout)
	if err != nil {
		log.Errorf("connect to %s:%s failed: %v", c.host, c.port, err)
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.pending = nil

	return nil
}

// Close shuts the connection down. It is idempotent and unblocks a pending
// read on another goroutine, which then observes an IOError.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	return conn.Close()
}

// Command sends one command and returns its reply. Transport failures come
// back as an IOError result, never as a panic or a hidden state change.
//
// On a connection in subscribed mode the reply stream is owned by
// ListenForMessages, so Command only writes and returns a nil result; the
// only commands the server accepts in that mode are UNSUBSCRIBE,
// PUNSUBSCRIBE, PING and QUIT.
func (c *Client) Command(args ...interface{}) resp.Result {
	buf := resp.EncodeCommand(args...)
	if buf == nil {
		return resp.Result{}
	}

	conn := c.socket()
	if conn == nil {
		return ioErrorResult(ErrNotConnected)
	}

	if _, err := conn.Write(buf); err != nil {
		log.Errorf("write failed: %v", err)
		return ioErrorResult(err)
	}

	if c.subscribed {
		return resp.Result{}
	}

	return c.readResult()
}

// readResult decodes exactly one value off the connection, leaving any
// surplus bytes buffered for the next exchange.
func (c *Client) readResult() resp.Result {
	var parser resp.Parser

	for {
		if len(c.pending) == 0 {
			if err := c.fill(); err != nil {
				return ioErrorResult(err)
			}
		}

		n, more := parser.Feed(c.pending)
		c.pending = c.pending[n:]

		if !more {
			return parser.Result()
		}
	}
}

func (c *Client) fill() error {
	conn := c.socket()
	if conn == nil {
		return ErrNotConnected
	}

	buf := make([]byte, readBufferSize)
	n, err := conn.Read(buf)
	if n > 0 {
		// A read may deliver bytes together with an error, e.g. a reply
		// followed by EOF when the server closes after answering. Hand
		// the bytes to the parser first; the error resurfaces on the
		// next read.
		c.pending = buf[:n]
		return nil
	}
	if err != nil {
		log.Errorf("read failed: %v", err)
		return err
	}

	return nil
}

func ioErrorResult(err error) resp.Result {
	return resp.Result{Type: resp.IOError, Str: err.Error()}
}
