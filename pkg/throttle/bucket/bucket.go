package bucket

import (
	"math"
	"time"

	"github.com/vnykmshr/streamlimit/pkg/common/validation"
)

// Limit represents a refill rate in tokens per second.
// A token corresponds to one byte when the bucket meters a stream.
type Limit float64

// Inf is the infinite rate; a bucket with this rate never makes callers wait.
var Inf = Limit(math.Inf(1))

// Every converts a minimum time interval between tokens to a Limit.
func Every(interval time.Duration) Limit {
	if interval <= 0 {
		return Inf
	}
	return Limit(time.Second) / Limit(interval)
}

// PerInterval converts a "count tokens per interval" configuration to a Limit.
func PerInterval(count int64, interval time.Duration) Limit {
	if interval <= 0 {
		return Inf
	}
	return Limit(float64(count) / interval.Seconds())
}

// Clock provides the current time and blocking sleep. It can be mocked
// for testing so throttling tests run without real delays.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// SystemClock implements Clock using the system time.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Sleep pauses the calling goroutine for at least d.
func (SystemClock) Sleep(d time.Duration) {
	time.Sleep(d)
}

// Config holds configuration options for creating a new Bucket.
type Config struct {
	// Rate is the number of tokens added per second. Must be positive;
	// Inf disables waiting entirely.
	Rate Limit

	// Capacity is the maximum number of tokens the bucket can hold,
	// i.e. the burst allowance.
	Capacity int64

	// Clock provides the current time. If nil, SystemClock is used.
	Clock Clock

	// InitialTokens is the number of tokens to start with.
	// If negative, starts with full capacity. Values above Capacity
	// are clamped to Capacity.
	InitialTokens int64
}

// Bucket is a token bucket: it tracks spendable capacity that refills
// over time at a fixed rate. Refill is computed lazily from elapsed
// clock time; there is no background ticker.
//
// Tokens are held as a float64 so that many small operations do not
// accumulate truncation bias. Waits reported by DurationUntil are
// rounded up to the next nanosecond, so a caller that sleeps the
// returned duration never wakes before the tokens it asked for have
// accrued.
//
// A Bucket is not safe for concurrent use. It is designed to be owned
// exclusively by a single wrapper (see pkg/throttle/stream).
type Bucket struct {
	rate     Limit
	capacity int64
	tokens   float64
	last     time.Time
	clock    Clock
}

// New creates a Bucket that refills at rate and holds at most capacity
// tokens, starting full.
func New(rate Limit, capacity int64) (*Bucket, error) {
	return NewWithConfig(Config{
		Rate:          rate,
		Capacity:      capacity,
		Clock:         SystemClock{},
		InitialTokens: -1,
	})
}

// NewWithConfig creates a Bucket from the given configuration.
func NewWithConfig(config Config) (*Bucket, error) {
	if err := validation.ValidatePositiveFloat("bucket", "rate", float64(config.Rate)); err != nil {
		return nil, err
	}
	if err := validation.ValidatePositive("bucket", "capacity", config.Capacity); err != nil {
		return nil, err
	}
	if config.Clock == nil {
		config.Clock = SystemClock{}
	}

	tokens := float64(config.InitialTokens)
	if config.InitialTokens < 0 {
		tokens = float64(config.Capacity)
	}
	if tokens > float64(config.Capacity) {
		tokens = float64(config.Capacity)
	}

	return &Bucket{
		rate:     config.Rate,
		capacity: config.Capacity,
		tokens:   tokens,
		last:     config.Clock.Now(),
		clock:    config.Clock,
	}, nil
}

// Refill advances the bucket's accounting to the current clock time,
// adding elapsed*rate tokens up to capacity. A clock that reports a
// time before the last refill contributes zero elapsed time.
func (b *Bucket) Refill() {
	now := b.clock.Now()

	if b.rate == Inf {
		b.tokens = float64(b.capacity)
		b.last = now
		return
	}

	elapsed := now.Sub(b.last)
	if elapsed < 0 {
		elapsed = 0
	}

	b.tokens = math.Min(b.tokens+elapsed.Seconds()*float64(b.rate), float64(b.capacity))
	b.last = now
}

// DurationUntil returns how long the caller must wait before n tokens
// are available. Requests larger than the capacity are capped at
// capacity, since the bucket can never hold more at once. It does not
// mutate the bucket; callers normally Refill first.
func (b *Bucket) DurationUntil(n int64) time.Duration {
	if n <= 0 || b.rate == Inf {
		return 0
	}
	if n > b.capacity {
		n = b.capacity
	}

	need := float64(n) - b.tokens
	if need <= 0 {
		return 0
	}

	return time.Duration(math.Ceil(need / float64(b.rate) * float64(time.Second)))
}

// Consume deducts n tokens. The count is clamped at zero; following the
// Refill/DurationUntil/sleep protocol it never actually underflows.
func (b *Bucket) Consume(n int64) {
	b.tokens -= float64(n)
	if b.tokens < 0 {
		b.tokens = 0
	}
}

// Tokens returns the number of tokens currently accounted for. It does
// not refill first; call Refill for an up-to-date value.
func (b *Bucket) Tokens() float64 {
	return b.tokens
}

// Capacity returns the bucket's capacity (burst allowance).
func (b *Bucket) Capacity() int64 {
	return b.capacity
}

// Rate returns the current refill rate.
func (b *Bucket) Rate() Limit {
	return b.rate
}

// SetRate changes the refill rate. Accrued tokens are settled at the
// old rate first. The caller is responsible for passing a positive rate.
func (b *Bucket) SetRate(rate Limit) {
	b.Refill()
	b.rate = rate
}

// SetCapacity changes the capacity, clamping the current token count to
// the new value.
func (b *Bucket) SetCapacity(capacity int64) {
	if capacity <= 0 {
		panic("capacity must be positive")
	}
	b.Refill()
	b.capacity = capacity
	if b.tokens > float64(capacity) {
		b.tokens = float64(capacity)
	}
}
