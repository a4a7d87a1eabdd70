package resply

import (
	crand "crypto/rand"
	"math/big"
	"math/rand"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/christoph-heiss/resply/resp"
)

// unlockScript deletes the resource key only while it still carries this
// lock's token, as one atomic server-side step. Check and delete must not be
// separate round trips or a lock held by someone else could be released.
const unlockScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
else
    return 0
end`

// clockDriftDiv divides the nominal TTL to obtain the clock drift allowance
// deducted from the validity time.
const clockDriftDiv = 100

const (
	DefaultRetryCount    = 3
	DefaultRetryDelayMax = 200 * time.Millisecond
)

// Redlock is a distributed mutual-exclusion lock coordinated across N
// independent, unreplicated server instances. An acquisition is valid once a
// quorum of floor(N/2)+1 instances granted it and the nominal TTL minus
// elapsed time and drift allowance is still positive.
//
// See https://redis.io/topics/distlock
type Redlock struct {
	resource string
	// value is the compare token for this Redlock instance, generated once
	// and fixed for its lifetime.
	value   string
	clients []*Client

	// RetryCount is how many acquisition rounds Lock runs before giving up.
	RetryCount int
	// RetryDelayMax caps the randomized sleep between rounds.
	RetryDelayMax time.Duration
}

// NewRedlock creates a lock over the given server addresses, each in
// "host[:port]" form. Call Initialize to connect the backing clients.
func NewRedlock(resource string, hosts []string) *Redlock {
	clients := make([]*Client, len(hosts))
	for i, host := range hosts {
		clients[i] = NewClient(host)
	}

	return NewRedlockClients(resource, clients)
}

// NewRedlockClients creates a lock over already constructed clients.
func NewRedlockClients(resource string, clients []*Client) *Redlock {
	return &Redlock{
		resource:      resource,
		value:         generateLockValue(),
		clients:       clients,
		RetryCount:    DefaultRetryCount,
		RetryDelayMax: DefaultRetryDelayMax,
	}
}

// Initialize connects every backing client. Only needed when the Redlock was
// built from host strings or from clients that are not connected yet.
// Instances that cannot be reached simply do not count towards the quorum.
func (r *Redlock) Initialize() {
	for _, c := range r.clients {
		if err := c.Connect(); err != nil {
			log.Warnf("redlock: instance %s:%s unreachable: %v", c.Host(), c.Port(), err)
		}
	}
}

// Lock acquires the distributed lock with the given lifetime. It returns how
// long the acquired lock remains valid, or 0 when the lock could not be
// acquired; callers must treat 0 as "not locked".
func (r *Redlock) Lock(ttl time.Duration) time.Duration {
	quorum := len(r.clients)/2 + 1

	for attempt := 0; attempt < r.RetryCount; attempt++ {
		start := time.Now()

		acquired := 0
		for _, c := range r.clients {
			if r.lockInstance(c, ttl) {
				acquired++
			}
		}

		drift := ttl / clockDriftDiv
		validity := ttl - time.Since(start) - drift

		if acquired >= quorum && validity > 0 {
			return validity
		}

		// Either no quorum or the acquisition ate the whole TTL; let go
		// of every partial grant. The randomized delay avoids
		// thundering-herd retries among competing lockers, so it is
		// only paid when another attempt follows.
		r.Unlock()
		if attempt+1 < r.RetryCount {
			time.Sleep(r.randomDelay())
		}
	}

	return 0
}

// Unlock releases the lock on every instance. It is best-effort and
// idempotent: a token mismatch or an unreachable instance is a no-op.
func (r *Redlock) Unlock() {
	for _, c := range r.clients {
		r.unlockInstance(c)
	}
}

func (r *Redlock) lockInstance(c *Client, ttl time.Duration) bool {
	result := c.Command("SET", r.resource, r.value, "NX", "PX", ttl)
	return result.Type == resp.String && result.Str == "OK"
}

func (r *Redlock) unlockInstance(c *Client) {
	c.Command("EVAL", unlockScript, 1, r.resource, r.value)
}

// randomDelay picks a uniformly random duration in [1ms, RetryDelayMax].
func (r *Redlock) randomDelay() time.Duration {
	max := int64(r.RetryDelayMax / time.Millisecond)
	if max < 1 {
		max = 1
	}

	return time.Duration(1+rand.Int63n(max)) * time.Millisecond
}

// generateLockValue returns a fresh compare token: 16 bytes from crypto/rand
// rendered in base 36.
func generateLockValue() string {
	var b [16]byte
	if _, err := crand.Read(b[:]); err != nil {
		// A broken CSPRNG is unrecoverable.
		panic("crypto/rand failed: " + err.Error())
	}

	return new(big.Int).SetBytes(b[:]).Text(36)
}
