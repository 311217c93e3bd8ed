/*
Package streamlimit provides rate-limited byte-stream I/O for Go.

It wraps any io.Reader or io.Writer so that data moves through it at no
more than a configured average rate. Excess demand is never dropped; the
calling goroutine blocks until enough capacity has accumulated.

Throttling (pkg/throttle):
  - bucket: Token bucket accounting with fractional tokens
  - stream: Rate-limited Reader/Writer/ReadWriter wrappers
  - schedule: Cron-driven bandwidth plans
  - distributed: Shared byte budgets coordinated with Redis

Example usage:

	import (
		"github.com/vnykmshr/streamlimit/pkg/throttle/stream"
	)

	// Cap a download at 64 KiB per second.
	r, _ := stream.NewReader(resp.Body, 64*1024, time.Second)
	io.Copy(dst, r)
*/
package streamlimit
