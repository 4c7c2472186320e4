package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

func GetDSN() string {
	DATABASE_HOST := os.Getenv("DATABASE_HOST")
	DATABASE_PORT := os.Getenv("DATABASE_PORT")
	DATABASE_SSLMODE := os.Getenv("DATABASE_SSLMODE")
	DATABASE_TIMEZONE := os.Getenv("DATABASE_TIMEZONE")
	DATABASE_USER := os.Getenv("DATABASE_USER")
	DATABASE_PASSWORD := os.Getenv("DATABASE_PASSWORD")
	DATABASE_NAME := os.Getenv("DATABASE_NAME")
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s", DATABASE_HOST, DATABASE_USER, DATABASE_PASSWORD, DATABASE_NAME, DATABASE_PORT, DATABASE_SSLMODE, DATABASE_TIMEZONE)
	return dsn
}

const TIME_PARSE_FORMAT = "2006-01-02 15:04:05 -07:00"

// DrainInterval is how often the background drain job replays pending
// offline operations. SYNC_DRAIN_INTERVAL_SECONDS overrides it.
func DrainInterval() time.Duration {
	if v, err := strconv.Atoi(os.Getenv("SYNC_DRAIN_INTERVAL_SECONDS")); err == nil && v > 0 {
		return time.Duration(v) * time.Second
	}
	return time.Minute
}

// ExpireSweepInterval is how often expired notes get their persisted status
// transition. SYNC_EXPIRE_SWEEP_MINUTES overrides it.
func ExpireSweepInterval() time.Duration {
	if v, err := strconv.Atoi(os.Getenv("SYNC_EXPIRE_SWEEP_MINUTES")); err == nil && v > 0 {
		return time.Duration(v) * time.Minute
	}
	return time.Hour
}
