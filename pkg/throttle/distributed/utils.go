package distributed

import (
	"crypto/rand"
	"fmt"
	"os"
	"time"
)

// generateInstanceID creates a unique identifier for this application
// instance, stable for its lifetime.
func generateInstanceID() string {
	hostname, _ := os.Hostname()
	pid := os.Getpid()

	randomBytes := make([]byte, 4)
	rand.Read(randomBytes)

	return fmt.Sprintf("%s-%d-%x-%d", hostname, pid, randomBytes, time.Now().Unix())
}

// redisKeys derives the Redis keys used by one budget from its prefix.
func redisKeys(prefix string) map[string]string {
	return map[string]string{
		"tokens":    prefix + ":tokens",
		"last":      prefix + ":last_refill",
		"config":    prefix + ":config",
		"stats":     prefix + ":stats",
		"instances": prefix + ":instances",
	}
}

// timeToFloat converts a time to float64 seconds for Redis storage.
func timeToFloat(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// floatToTime converts float64 seconds back to a time.Time.
func floatToTime(f float64) time.Time {
	return time.Unix(0, int64(f*1e9))
}
