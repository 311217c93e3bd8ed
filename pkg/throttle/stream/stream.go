package stream

import (
	"io"
	"math"
	"sync/atomic"
	"time"

	slerrors "github.com/vnykmshr/streamlimit/pkg/common/errors"
	"github.com/vnykmshr/streamlimit/pkg/common/validation"
	"github.com/vnykmshr/streamlimit/pkg/throttle/bucket"
)

// Config holds configuration options for throttled stream wrappers.
type Config struct {
	// Count is the number of bytes allowed per Interval. Must be positive.
	Count int64

	// Interval is the period over which Count bytes are allowed.
	// Must be positive.
	Interval time.Duration

	// Burst is the bucket capacity, i.e. how many bytes a single call
	// may transfer without waiting when the bucket is full.
	// If zero, defaults to Count.
	Burst int64

	// Timeout caps any single blocking wait. A call whose required wait
	// exceeds it fails with ErrTimeout before the corresponding I/O is
	// performed. Zero means no timeout.
	Timeout time.Duration

	// Clock provides time and sleep. If nil, bucket.SystemClock is used.
	Clock bucket.Clock
}

// limiter holds the reservation logic shared by the read and write paths:
// size the grant, refill, sleep out the shortfall, and charge what was
// actually transferred afterwards.
type limiter struct {
	bucket  *bucket.Bucket
	clock   bucket.Clock
	timeout time.Duration
	total   atomic.Int64

	// Rate changes may arrive from other goroutines (e.g. a bandwidth
	// scheduler); they are parked here and applied by the owning
	// goroutine at the start of its next call.
	pendingRate atomic.Uint64
	ratePending atomic.Bool
}

func newLimiter(cfg Config) (*limiter, error) {
	if err := validation.ValidatePositive("stream", "count", cfg.Count); err != nil {
		return nil, err
	}
	if err := validation.ValidatePositiveDuration("stream", "interval", cfg.Interval); err != nil {
		return nil, err
	}
	burst := cfg.Burst
	if burst == 0 {
		burst = cfg.Count
	}
	if burst < 0 {
		return nil, slerrors.NewValidationError("stream", "burst", burst, "cannot be negative").
			WithHint("leave zero to default to count")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = bucket.SystemClock{}
	}

	b, err := bucket.NewWithConfig(bucket.Config{
		Rate:          bucket.PerInterval(cfg.Count, cfg.Interval),
		Capacity:      burst,
		Clock:         clock,
		InitialTokens: -1, // start full so the first burst is free
	})
	if err != nil {
		return nil, err
	}

	return &limiter{
		bucket:  b,
		clock:   clock,
		timeout: cfg.Timeout,
	}, nil
}

// reserve blocks until the bucket can cover a grant of up to requested
// bytes and returns the grant size. The grant never exceeds the bucket
// capacity, so a single call terminates after at most one capacity-sized
// wait.
func (l *limiter) reserve(requested int, op string) (int, error) {
	l.applyPendingRate()

	grant := int64(requested)
	if c := l.bucket.Capacity(); grant > c {
		grant = c
	}

	l.bucket.Refill()
	if wait := l.bucket.DurationUntil(grant); wait > 0 {
		if l.timeout > 0 && wait > l.timeout {
			return 0, slerrors.NewOperationError("stream", op, slerrors.ErrTimeout).
				WithContext("required wait " + wait.String() + " exceeds timeout " + l.timeout.String())
		}
		l.clock.Sleep(wait)
		// Re-measure after sleeping: refill must reflect real elapsed
		// time, not the planned wait.
		l.bucket.Refill()
	}

	return int(grant), nil
}

// commit charges the bytes actually transferred. Granted-but-unused
// tokens from a short transfer simply remain available.
func (l *limiter) commit(n int) {
	l.bucket.Consume(int64(n))
	l.total.Add(int64(n))
}

func (l *limiter) setRate(r bucket.Limit) {
	l.pendingRate.Store(math.Float64bits(float64(r)))
	l.ratePending.Store(true)
}

func (l *limiter) applyPendingRate() {
	if l.ratePending.CompareAndSwap(true, false) {
		r := bucket.Limit(math.Float64frombits(l.pendingRate.Load()))
		if r > 0 {
			l.bucket.SetRate(r)
		}
	}
}

// Reader wraps an io.Reader so that reads through it never exceed the
// configured average rate. The Reader owns its bucket and the inner
// reader exclusively; it must be used from a single goroutine. SetRate
// is the only method safe to call concurrently.
type Reader struct {
	inner io.Reader
	lim   *limiter
}

// NewReader creates a Reader allowing count bytes per interval, with a
// burst allowance equal to count.
func NewReader(r io.Reader, count int64, interval time.Duration) (*Reader, error) {
	return NewReaderWithConfig(r, Config{Count: count, Interval: interval})
}

// NewReaderWithConfig creates a Reader from the given configuration.
func NewReaderWithConfig(r io.Reader, cfg Config) (*Reader, error) {
	if r == nil {
		return nil, slerrors.NewValidationError("stream", "reader", nil, "cannot be nil")
	}
	lim, err := newLimiter(cfg)
	if err != nil {
		return nil, err
	}
	return &Reader{inner: r, lim: lim}, nil
}

// Read reads up to len(p) bytes, sleeping first if the bucket cannot
// cover the grant. At most Burst bytes are read per call; larger
// requests return short and compose through io.ReadFull or io.Copy.
// Inner errors, including io.EOF, are returned unchanged, and only the
// bytes actually read are charged against the bucket.
func (tr *Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return tr.inner.Read(p)
	}
	grant, err := tr.lim.reserve(len(p), "Read")
	if err != nil {
		return 0, err
	}
	n, err := tr.inner.Read(p[:grant])
	tr.lim.commit(n)
	return n, err
}

// SetRate changes the refill rate. Safe to call from any goroutine; the
// change takes effect at the start of the next Read. Non-positive rates
// are ignored.
func (tr *Reader) SetRate(r bucket.Limit) {
	tr.lim.setRate(r)
}

// Rate returns the configured refill rate in bytes per second.
func (tr *Reader) Rate() bucket.Limit {
	return tr.lim.bucket.Rate()
}

// Tokens returns the bucket's current token count.
func (tr *Reader) Tokens() float64 {
	return tr.lim.bucket.Tokens()
}

// TotalRead returns the total bytes read through this Reader.
func (tr *Reader) TotalRead() int64 {
	return tr.lim.total.Load()
}

// Close closes the inner reader if it implements io.Closer.
func (tr *Reader) Close() error {
	if c, ok := tr.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Writer wraps an io.Writer so that writes through it never exceed the
// configured average rate. Like Reader, it is single-goroutine owned;
// SetRate is the only method safe to call concurrently.
type Writer struct {
	inner io.Writer
	lim   *limiter
}

// NewWriter creates a Writer allowing count bytes per interval, with a
// burst allowance equal to count.
func NewWriter(w io.Writer, count int64, interval time.Duration) (*Writer, error) {
	return NewWriterWithConfig(w, Config{Count: count, Interval: interval})
}

// NewWriterWithConfig creates a Writer from the given configuration.
func NewWriterWithConfig(w io.Writer, cfg Config) (*Writer, error) {
	if w == nil {
		return nil, slerrors.NewValidationError("stream", "writer", nil, "cannot be nil")
	}
	lim, err := newLimiter(cfg)
	if err != nil {
		return nil, err
	}
	return &Writer{inner: w, lim: lim}, nil
}

// Write writes all of p, sleeping as needed so the configured rate is
// never exceeded. Buffers larger than Burst are written in
// capacity-bounded slices, each preceded by its own wait; the io.Writer
// contract does not permit silent short writes, so unlike Read this
// loops until p is fully written or the inner writer fails. Only the
// bytes actually accepted by the inner writer are charged.
func (tw *Writer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return tw.inner.Write(p)
	}

	var written int
	for written < len(p) {
		grant, err := tw.lim.reserve(len(p)-written, "Write")
		if err != nil {
			return written, err
		}
		n, err := tw.inner.Write(p[written : written+grant])
		tw.lim.commit(n)
		written += n
		if err != nil {
			return written, err
		}
		if n == 0 {
			return written, io.ErrShortWrite
		}
	}
	return written, nil
}

// SetRate changes the refill rate. Safe to call from any goroutine; the
// change takes effect at the start of the next Write. Non-positive
// rates are ignored.
func (tw *Writer) SetRate(r bucket.Limit) {
	tw.lim.setRate(r)
}

// Rate returns the configured refill rate in bytes per second.
func (tw *Writer) Rate() bucket.Limit {
	return tw.lim.bucket.Rate()
}

// Tokens returns the bucket's current token count.
func (tw *Writer) Tokens() float64 {
	return tw.lim.bucket.Tokens()
}

// TotalWritten returns the total bytes written through this Writer.
func (tw *Writer) TotalWritten() int64 {
	return tw.lim.total.Load()
}

// Close closes the inner writer if it implements io.Closer.
func (tw *Writer) Close() error {
	if c, ok := tw.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// ReadWriter throttles the two directions of an io.ReadWriter
// independently. Either side's config may be nil, in which case that
// direction passes through unthrottled.
type ReadWriter struct {
	inner     io.ReadWriter
	reader    io.Reader
	writer    io.Writer
	readSide  *Reader
	writeSide *Writer
}

// NewReadWriter wraps rw with independent read-side and write-side
// limits. A nil config leaves that direction unthrottled.
func NewReadWriter(rw io.ReadWriter, readCfg, writeCfg *Config) (*ReadWriter, error) {
	if rw == nil {
		return nil, slerrors.NewValidationError("stream", "readwriter", nil, "cannot be nil")
	}

	t := &ReadWriter{inner: rw, reader: rw, writer: rw}

	if readCfg != nil {
		r, err := NewReaderWithConfig(rw, *readCfg)
		if err != nil {
			return nil, err
		}
		t.readSide = r
		t.reader = r
	}
	if writeCfg != nil {
		w, err := NewWriterWithConfig(rw, *writeCfg)
		if err != nil {
			return nil, err
		}
		t.writeSide = w
		t.writer = w
	}

	return t, nil
}

// Read reads through the read-side limiter, or directly from the inner
// stream when the read direction is unthrottled.
func (t *ReadWriter) Read(p []byte) (int, error) {
	return t.reader.Read(p)
}

// Write writes through the write-side limiter, or directly to the inner
// stream when the write direction is unthrottled.
func (t *ReadWriter) Write(p []byte) (int, error) {
	return t.writer.Write(p)
}

// Limits reports which directions are throttled.
func (t *ReadWriter) Limits() (read, write bool) {
	return t.readSide != nil, t.writeSide != nil
}

// Inner returns the wrapped stream.
func (t *ReadWriter) Inner() io.ReadWriter {
	return t.inner
}

// Close closes the inner stream if it implements io.Closer.
func (t *ReadWriter) Close() error {
	if c, ok := t.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
