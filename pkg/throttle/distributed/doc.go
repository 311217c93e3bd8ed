/*
Package distributed coordinates byte budgets across application
instances through Redis.

A Budget is a token bucket kept in Redis: every instance draws grants
from the same bucket, so the combined transfer rate of a fleet stays
within one configured limit. Accounting runs inside Lua scripts and is
atomic across instances. Rate and capacity live in Redis too, so
SetRate on any instance retargets the whole fleet.

	budget, err := distributed.New(distributed.Config{
		Redis:    client,
		Key:      "egress:tenant-42",
		Rate:     10 * 1024 * 1024, // 10 MiB/s fleet-wide
		Capacity: 1024 * 1024,
	})

	w, err := distributed.NewWriter(conn, budget, distributed.StreamConfig{})

Reader and Writer mirror the local wrappers in pkg/throttle/stream:
short transfers refund unused bytes to the shared bucket, inner errors
pass through unchanged, and each wrapper is owned by one goroutine.
When Redis is unreachable the budget's errors surface from Read and
Write; callers that prefer degrading to a local limit can fall back to
a stream.Reader or stream.Writer.
*/
package distributed
