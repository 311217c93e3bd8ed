package distributed

import (
	"context"
	"io"

	slerrors "github.com/vnykmshr/streamlimit/pkg/common/errors"
	"github.com/vnykmshr/streamlimit/pkg/common/validation"
	"github.com/vnykmshr/streamlimit/pkg/throttle/bucket"
)

// StreamConfig holds options for readers and writers drawing on a
// shared budget.
type StreamConfig struct {
	// Context bounds all budget operations issued by the wrapper.
	// Defaults to context.Background().
	Context context.Context

	// Clock provides sleep between budget retries. Defaults to
	// bucket.SystemClock.
	Clock bucket.Clock
}

func (sc StreamConfig) withDefaults() StreamConfig {
	if sc.Context == nil {
		sc.Context = context.Background()
	}
	if sc.Clock == nil {
		sc.Clock = bucket.SystemClock{}
	}
	return sc
}

// Reader wraps an io.Reader so that reads draw bytes from a budget
// shared across instances. Like stream.Reader it is single-goroutine
// owned and may return short reads.
type Reader struct {
	inner  io.Reader
	budget Budget
	ctx    context.Context
	clock  bucket.Clock
	total  int64
}

// NewReader creates a Reader drawing on the shared budget.
func NewReader(r io.Reader, budget Budget, cfg StreamConfig) (*Reader, error) {
	if err := validation.ValidateNotNil("distributed", "reader", r); err != nil {
		return nil, err
	}
	if err := validation.ValidateNotNil("distributed", "budget", budget); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	return &Reader{inner: r, budget: budget, ctx: cfg.Context, clock: cfg.Clock}, nil
}

// Read reserves bytes from the shared budget, sleeping out any deferral
// it reports, then performs one capacity-bounded read. Unused bytes
// from a short read are refunded to the budget.
func (dr *Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return dr.inner.Read(p)
	}

	granted, err := reserveBlocking(dr.ctx, dr.budget, dr.clock, int64(len(p)), "Read")
	if err != nil {
		return 0, err
	}

	n, err := dr.inner.Read(p[:granted])
	dr.total += int64(n)
	if unused := granted - int64(n); unused > 0 {
		// Best effort: a failed refund only makes the budget stricter.
		_ = dr.budget.Refund(dr.ctx, unused)
	}
	return n, err
}

// TotalRead returns the total bytes read through this Reader.
func (dr *Reader) TotalRead() int64 {
	return dr.total
}

// Close closes the inner reader if it implements io.Closer. The shared
// budget is left open for other users.
func (dr *Reader) Close() error {
	if c, ok := dr.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Writer wraps an io.Writer so that writes draw bytes from a budget
// shared across instances. Write loops until the whole buffer is
// written, like stream.Writer.
type Writer struct {
	inner  io.Writer
	budget Budget
	ctx    context.Context
	clock  bucket.Clock
	total  int64
}

// NewWriter creates a Writer drawing on the shared budget.
func NewWriter(w io.Writer, budget Budget, cfg StreamConfig) (*Writer, error) {
	if err := validation.ValidateNotNil("distributed", "writer", w); err != nil {
		return nil, err
	}
	if err := validation.ValidateNotNil("distributed", "budget", budget); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	return &Writer{inner: w, budget: budget, ctx: cfg.Context, clock: cfg.Clock}, nil
}

// Write writes all of p in budget-granted slices, refunding whatever a
// short inner write leaves unused.
func (dw *Writer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return dw.inner.Write(p)
	}

	var written int
	for written < len(p) {
		granted, err := reserveBlocking(dw.ctx, dw.budget, dw.clock, int64(len(p)-written), "Write")
		if err != nil {
			return written, err
		}

		n, err := dw.inner.Write(p[written : written+int(granted)])
		dw.total += int64(n)
		written += n
		if unused := granted - int64(n); unused > 0 {
			_ = dw.budget.Refund(dw.ctx, unused)
		}
		if err != nil {
			return written, err
		}
		if n == 0 {
			return written, io.ErrShortWrite
		}
	}
	return written, nil
}

// TotalWritten returns the total bytes written through this Writer.
func (dw *Writer) TotalWritten() int64 {
	return dw.total
}

// Close closes the inner writer if it implements io.Closer.
func (dw *Writer) Close() error {
	if c, ok := dw.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// reserveBlocking retries Reserve until the budget grants bytes,
// sleeping out each deferral, or until the context ends.
func reserveBlocking(ctx context.Context, budget Budget, clock bucket.Clock, n int64, op string) (int64, error) {
	for {
		granted, wait, err := budget.Reserve(ctx, n)
		if err != nil {
			return 0, err
		}
		if granted > 0 {
			return granted, nil
		}
		if err := ctx.Err(); err != nil {
			return 0, slerrors.NewOperationError("distributed", op, err)
		}
		clock.Sleep(wait)
	}
}
