/*
Package throttle provides byte-rate throttling primitives for streams.

This package groups four components:

  - bucket: Token bucket accounting with fractional tokens
  - stream: Rate-limited io.Reader / io.Writer wrappers
  - schedule: Cron-driven bandwidth plans
  - distributed: Shared byte budgets coordinated with Redis

The wrappers never drop data: when a call asks for more bytes than the
configured rate currently allows, the calling goroutine is put to sleep
until enough capacity has accumulated, then a capacity-bounded I/O
operation is performed on the wrapped stream.

	r, _ := stream.NewReader(conn, 512*1024, time.Second) // 512 KiB/s
	n, err := r.Read(buf)

Each wrapper owns its bucket and its inner stream exclusively and is
meant to be used from a single goroutine; see the stream package
documentation for the exact contract.
*/
package throttle
