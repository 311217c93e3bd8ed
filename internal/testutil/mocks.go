package testutil

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"time"
)

// MockClock implements the throttle Clock interface with controllable time.
// Sleep advances the mock time immediately instead of pausing the goroutine,
// so throttling tests run deterministically without real delays.
type MockClock struct {
	mu         sync.Mutex
	now        time.Time
	slept      time.Duration
	sleepCount int
}

// NewMockClock creates a new MockClock starting at the given time.
// If zero time is provided, uses current time.
func NewMockClock(start time.Time) *MockClock {
	if start.IsZero() {
		start = time.Now()
	}
	return &MockClock{now: start}
}

// Now returns the current mock time.
func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Sleep advances the mock clock by d and records the sleep.
func (m *MockClock) Sleep(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d > 0 {
		m.now = m.now.Add(d)
		m.slept += d
	}
	m.sleepCount++
}

// Advance moves the mock clock forward by the given duration.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Rewind moves the mock clock backward, simulating a non-monotonic clock.
func (m *MockClock) Rewind(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(-d)
}

// Slept returns the total duration passed to Sleep so far.
func (m *MockClock) Slept() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slept
}

// SleepCount returns the number of Sleep calls, including zero-length ones.
func (m *MockClock) SleepCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sleepCount
}

// MockWriter is a test writer that can simulate short writes and errors.
type MockWriter struct {
	buf         *bytes.Buffer
	mu          sync.Mutex
	maxPerWrite int
	errorOnNth  int
	writeCount  int
	shouldError bool
	err         error
}

// NewMockWriter creates a new MockWriter.
func NewMockWriter() *MockWriter {
	return &MockWriter{
		buf: &bytes.Buffer{},
	}
}

// Write implements io.Writer with configurable behavior.
func (mw *MockWriter) Write(p []byte) (int, error) {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	mw.writeCount++

	if mw.shouldError {
		return 0, mw.err
	}

	if mw.errorOnNth > 0 && mw.writeCount == mw.errorOnNth {
		return 0, errors.New("simulated error")
	}

	if mw.maxPerWrite > 0 && len(p) > mw.maxPerWrite {
		p = p[:mw.maxPerWrite]
	}

	return mw.buf.Write(p)
}

// String returns the current buffer contents.
func (mw *MockWriter) String() string {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return mw.buf.String()
}

// Len returns the current buffer length.
func (mw *MockWriter) Len() int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return mw.buf.Len()
}

// WriteCount returns the number of Write calls.
func (mw *MockWriter) WriteCount() int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return mw.writeCount
}

// SetMaxPerWrite caps each write at n bytes, forcing short writes.
func (mw *MockWriter) SetMaxPerWrite(n int) {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.maxPerWrite = n
}

// SetErrorOnNth configures the writer to error on the nth write.
func (mw *MockWriter) SetErrorOnNth(n int) {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.errorOnNth = n
}

// SetAlwaysError configures the writer to always return the given error.
func (mw *MockWriter) SetAlwaysError(err error) {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.shouldError = true
	mw.err = err
}

// ShortReader wraps a byte slice and returns at most MaxPerRead bytes per
// call, simulating a stream that delivers less than was asked for.
type ShortReader struct {
	data       []byte
	MaxPerRead int
}

// NewShortReader creates a ShortReader over data.
func NewShortReader(data []byte, maxPerRead int) *ShortReader {
	return &ShortReader{data: data, MaxPerRead: maxPerRead}
}

// Read implements io.Reader.
func (sr *ShortReader) Read(p []byte) (int, error) {
	if len(sr.data) == 0 {
		return 0, io.EOF
	}
	n := len(p)
	if sr.MaxPerRead > 0 && n > sr.MaxPerRead {
		n = sr.MaxPerRead
	}
	if n > len(sr.data) {
		n = len(sr.data)
	}
	copy(p, sr.data[:n])
	sr.data = sr.data[n:]
	return n, nil
}

// ErrReader always fails with the configured error.
type ErrReader struct {
	Err error
}

// Read implements io.Reader.
func (er *ErrReader) Read([]byte) (int, error) {
	return 0, er.Err
}
