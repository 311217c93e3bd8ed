package distributed

import (
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vnykmshr/streamlimit/internal/testutil"
	slerrors "github.com/vnykmshr/streamlimit/pkg/common/errors"
)

func TestValidateConfig(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	valid := Config{
		Redis:    client,
		Key:      "test:budget",
		Rate:     1024,
		Capacity: 256,
	}
	testutil.AssertNoError(t, validateConfig(valid))

	tests := []struct {
		name   string
		mutate func(Config) Config
	}{
		{"nil redis", func(c Config) Config { c.Redis = nil; return c }},
		{"empty key", func(c Config) Config { c.Key = ""; return c }},
		{"zero rate", func(c Config) Config { c.Rate = 0; return c }},
		{"negative rate", func(c Config) Config { c.Rate = -1; return c }},
		{"zero capacity", func(c Config) Config { c.Capacity = 0; return c }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateConfig(tt.mutate(valid))
			testutil.AssertError(t, err)
			if !slerrors.IsValidationError(err) {
				t.Errorf("expected a ValidationError, got %v", err)
			}
		})
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error for empty config")
	}
}

func TestApplyConfigDefaults(t *testing.T) {
	cfg := applyConfigDefaults(Config{Key: "k", Rate: 1, Capacity: 1})

	if cfg.InstanceID == "" {
		t.Error("expected a generated instance ID")
	}
	testutil.AssertEqual(t, cfg.RedisTimeout, 500*time.Millisecond)
	testutil.AssertEqual(t, cfg.KeyTTL, time.Hour)

	// Explicit values survive.
	cfg = applyConfigDefaults(Config{InstanceID: "me", RedisTimeout: time.Second, KeyTTL: time.Minute})
	testutil.AssertEqual(t, cfg.InstanceID, "me")
	testutil.AssertEqual(t, cfg.RedisTimeout, time.Second)
	testutil.AssertEqual(t, cfg.KeyTTL, time.Minute)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.InstanceID == "" {
		t.Error("expected a generated instance ID")
	}
	testutil.AssertEqual(t, cfg.RedisTimeout, 500*time.Millisecond)
	testutil.AssertEqual(t, cfg.KeyTTL, time.Hour)
}

func TestRedisKeys(t *testing.T) {
	keys := redisKeys("egress:tenant-42")

	want := map[string]string{
		"tokens":    "egress:tenant-42:tokens",
		"last":      "egress:tenant-42:last_refill",
		"config":    "egress:tenant-42:config",
		"stats":     "egress:tenant-42:stats",
		"instances": "egress:tenant-42:instances",
	}
	for name, key := range want {
		testutil.AssertEqual(t, keys[name], key)
	}
}

func TestTimeFloatRoundTrip(t *testing.T) {
	now := time.Now()
	got := floatToTime(timeToFloat(now))

	diff := now.Sub(got)
	if diff < 0 {
		diff = -diff
	}
	// float64 seconds carry sub-microsecond precision at current epochs.
	if diff > time.Microsecond {
		t.Errorf("round trip drifted by %v", diff)
	}
}

func TestGenerateInstanceID(t *testing.T) {
	a := generateInstanceID()
	b := generateInstanceID()

	if a == b {
		t.Error("instance IDs should be unique")
	}
	if len(strings.Split(a, "-")) < 4 {
		t.Errorf("unexpected instance ID shape: %s", a)
	}
}
