// Package resply is a client library for the Redis serialization protocol:
// a single-connection client with pipelining and pub/sub support, and a
// quorum-based distributed lock (Redlock) built on top of it.
package resply

// Version of the resply library.
const Version = "1.0.0"
