package bucket_test

import (
	"fmt"
	"time"

	"github.com/vnykmshr/streamlimit/pkg/throttle/bucket"
)

// Example demonstrates the basic refill/wait/consume cycle.
func Example() {
	// 10 tokens per second, burst of 5, starting full.
	b, err := bucket.New(10, 5)
	if err != nil {
		panic(fmt.Sprintf("Failed to create bucket: %v", err))
	}

	b.Refill()
	if b.DurationUntil(5) == 0 {
		b.Consume(5)
		fmt.Println("Burst spent without waiting")
	}

	fmt.Printf("Tokens remaining: %.0f\n", b.Tokens())

	// Output:
	// Burst spent without waiting
	// Tokens remaining: 0
}

// Example_rates demonstrates the rate conversion helpers.
func Example_rates() {
	fmt.Printf("Every 100ms: %.0f tokens/sec\n", bucket.Every(100*time.Millisecond))
	fmt.Printf("1024 per 500ms: %.0f tokens/sec\n", bucket.PerInterval(1024, 500*time.Millisecond))

	// Output:
	// Every 100ms: 10 tokens/sec
	// 1024 per 500ms: 2048 tokens/sec
}

// Example_configuration demonstrates advanced configuration.
func Example_configuration() {
	b, err := bucket.NewWithConfig(bucket.Config{
		Rate:          bucket.Every(100 * time.Millisecond), // 1 token every 100ms
		Capacity:      5,
		InitialTokens: 2, // Start with 2 tokens instead of full capacity
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to create bucket: %v", err))
	}

	fmt.Printf("Initial tokens: %.0f\n", b.Tokens())
	fmt.Printf("Rate: %.1f/sec\n", b.Rate())
	fmt.Printf("Capacity: %d\n", b.Capacity())

	// Output:
	// Initial tokens: 2
	// Rate: 10.0/sec
	// Capacity: 5
}
