package testutil

import (
	"fmt"
	"sync"
	"time"

	"github.com/trezcool/mentora/core"
)

// Epoch is the starting time of every Clock.
var Epoch = time.Date(2021, time.March, 1, 9, 0, 0, 0, time.UTC)

// Clock is a manually advanced clock, safe for concurrent use.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock() *Clock {
	return &Clock{now: Epoch}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t.UTC()
	c.mu.Unlock()
}

// SequentialIDs returns an ID generator yielding "<prefix>1", "<prefix>2", ...
func SequentialIDs(prefix string) func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s%d", prefix, n)
	}
}

// Logger records messages instead of printing them.
type Logger struct {
	mu       sync.Mutex
	Messages []string
}

var _ core.Logger = (*Logger)(nil)

func (l *Logger) log(level, msg string) {
	l.mu.Lock()
	l.Messages = append(l.Messages, level+": "+msg)
	l.mu.Unlock()
}

func (l *Logger) Debug(msg string, _ ...interface{}) { l.log("debug", msg) }
func (l *Logger) Info(msg string, _ ...interface{})  { l.log("info", msg) }
func (l *Logger) Warn(msg string, _ ...interface{})  { l.log("warning", msg) }
func (l *Logger) Error(msg string, _ ...interface{}) { l.log("error", msg) }
func (l *Logger) Fatal(msg string, _ ...interface{}) { l.log("critical", msg) }

// Config returns the configuration tests run with.
func Config() *core.Config {
	return &core.Config{
		Env:       "TEST",
		TestMode:  true,
		AppName:   "Mentora",
		SecretKey: "secret",
		Attendance: core.AttendanceConfig{
			DefaultTTL: 5 * time.Minute,
			MaxTTL:     3 * time.Hour,
			QRSize:     256,
		},
		Database: core.DatabaseConfig{InMemory: true},
	}
}
