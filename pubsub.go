package resply

import (
	"errors"

	"github.com/christoph-heiss/resply/resp"
)

// Subscribe registers a callback for a channel and issues the SUBSCRIBE
// command. The first subscription flips the connection into subscribed mode;
// run ListenForMessages to receive the messages.
func (c *Client) Subscribe(channel string, callback ChannelCallback) *Client {
	c.register("SUBSCRIBE", channel, callback)
	return c
}

// PSubscribe registers a callback for a channel pattern and issues the
// PSUBSCRIBE command.
//
// Known limitation: ListenForMessages dispatches by exact channel-name lookup
// against the registry, not by glob-matching the pattern, so messages for
// pattern subscriptions end up at the fallback callback.
func (c *Client) PSubscribe(pattern string, callback ChannelCallback) *Client {
	c.register("PSUBSCRIBE", pattern, callback)
	return c
}

// InSubscribedMode reports whether the connection is in subscriber state.
// A subscribed connection only accepts UNSUBSCRIBE, PUNSUBSCRIBE, PING and
// QUIT on the Command path.
func (c *Client) InSubscribedMode() bool {
	return c.subscribed
}

func (c *Client) register(command, name string, callback ChannelCallback) {
	if c.channels == nil {
		c.channels = make(map[string]ChannelCallback)
	}
	c.channels[name] = callback
	c.subscribed = true

	// The subscription confirmation is read by the listen loop, not here.
	c.Command(command, name)
}

// ListenForMessages reads push messages off the connection without ever
// returning on its own. Each value shaped ["message", channel, payload] is
// dispatched to the callback registered for that exact channel name, or to
// other when no entry matches; anything else is skipped. The loop ends only
// when the connection breaks, typically because another goroutine closed it,
// and the terminating condition is returned.
func (c *Client) ListenForMessages(other ChannelCallback) error {
	if other == nil {
		other = func(string, string) {}
	}

	for {
		result := c.readResult()
		if result.Type == resp.IOError {
			return errors.New(result.Str)
		}

		if result.Type != resp.Array || len(result.Array) != 3 {
			continue
		}
		if result.Array[0].Str != "message" {
			continue
		}

		channel, payload := result.Array[1].Str, result.Array[2].Str
		if callback, ok := c.channels[channel]; ok {
			callback(channel, payload)
		} else {
			other(channel, payload)
		}
	}
}
