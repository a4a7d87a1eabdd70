package resply

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/christoph-heiss/resply/resp"
)

// Pipeline batches commands into a single write. Replies come back in send
// order because the protocol guarantees in-order replies on one connection;
// no correlation ids exist or are needed.
//
// A Pipeline borrows its Client exclusively between the first Command and
// Send.
type Pipeline struct {
	client   *Client
	commands [][]byte
}

// Pipeline creates an empty command batch on this client.
func (c *Client) Pipeline() *Pipeline {
	return &Pipeline{client: c}
}

// Command appends one command to the batch. Pub/sub commands cannot be
// pipelined, their replies interleave with push messages; any command whose
// text contains "subscribe" is dropped from the batch.
func (p *Pipeline) Command(args ...interface{}) *Pipeline {
	buf := resp.EncodeCommand(args...)
	if buf == nil {
		return p
	}

	if strings.Contains(strings.ToLower(string(buf)), "subscribe") {
		log.Warn("pub/sub commands cannot be pipelined, dropping")
		return p
	}

	p.commands = append(p.commands, buf)
	return p
}

// Send writes the whole batch in one go, then reads back exactly one reply
// per command, in order. A transport failure surfaces as an IOError result
// for each outstanding command.
func (p *Pipeline) Send() []resp.Result {
	if len(p.commands) == 0 {
		return nil
	}

	count := len(p.commands)
	var batch []byte
	for _, cmd := range p.commands {
		batch = append(batch, cmd...)
	}
	p.commands = nil

	c := p.client
	conn := c.socket()
	if conn == nil {
		return errorResults(count, ErrNotConnected)
	}

	if _, err := conn.Write(batch); err != nil {
		log.Errorf("pipeline write failed: %v", err)
		return errorResults(count, err)
	}

	results := make([]resp.Result, 0, count)
	for i := 0; i < count; i++ {
		results = append(results, c.readResult())
	}

	return results
}

func errorResults(count int, err error) []resp.Result {
	results := make([]resp.Result, count)
	for i := range results {
		results[i] = ioErrorResult(err)
	}

	return results
}
