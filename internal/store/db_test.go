package store

import (
	"testing"
	"time"
)

func TestDBConfigDefaults(t *testing.T) {
	got := DBConfig{URL: "postgres://x"}.withDefaults()
	if got.MaxOpenConns != 16 || got.MaxIdleConns != 4 {
		t.Fatalf("pool sizes = %d/%d, want 16/4", got.MaxOpenConns, got.MaxIdleConns)
	}
	if got.ConnMaxLifetime != 30*time.Minute || got.ConnMaxIdleTime != 5*time.Minute {
		t.Fatalf("conn ages = %v/%v", got.ConnMaxLifetime, got.ConnMaxIdleTime)
	}
}

func TestDBConfigKeepsExplicitValues(t *testing.T) {
	in := DBConfig{
		URL:             "postgres://x",
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
		ConnMaxIdleTime: time.Second,
	}
	if got := in.withDefaults(); got != in {
		t.Fatalf("withDefaults() = %+v, want unchanged %+v", got, in)
	}
}
