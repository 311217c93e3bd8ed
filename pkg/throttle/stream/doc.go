/*
Package stream provides rate-limited wrappers for io.Reader and io.Writer.

A wrapper owns a token bucket and the inner stream. Each call sizes a
grant (at most the bucket capacity), refills the bucket from the clock,
sleeps out any shortfall, performs one capacity-bounded I/O operation,
and then charges only the bytes actually transferred. Tokens reserved
for bytes a short transfer did not deliver simply remain available.

Reads follow the io.Reader contract and may return fewer bytes than
requested (never more than the burst per call); compose with io.ReadFull
or io.Copy to move larger amounts. Writes satisfy the io.Writer contract
by looping over capacity-bounded slices until the whole buffer is
written.

Concurrency: a wrapper is owned by a single goroutine. No locking is
performed around the bucket or the inner stream, and concurrent calls
are unsupported. The one exception is SetRate, which may be called from
any goroutine (e.g. by pkg/throttle/schedule); the new rate is applied
by the owner at the start of its next call.

Errors from the inner stream, including io.EOF, are propagated to the
caller unchanged and are never retried.
*/
package stream
