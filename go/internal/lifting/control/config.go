package control

import (
	"time"

	"github.com/RJSeERMJ/feperjv3-sub001/go/clients/records_client"
	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/lifting/attempt"
	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/lifting/timer"
)

// DefaultRestoreDelay lets a correction write settle before the view returns.
const DefaultRestoreDelay = 300 * time.Millisecond

// Config tunes the behaviour of a control surface.
type Config struct {
	TimerDuration      time.Duration                  `yaml:"timer_duration"`
	IncrementKg        float64                        `yaml:"increment_kg"`
	RestoreDelay       time.Duration                  `yaml:"restore_delay"`
	CompetitionType    records_client.CompetitionType `yaml:"competition_type"`
	RecordCheckTimeout time.Duration                  `yaml:"record_check_timeout"`
}

func DefaultConfig() Config {
	return Config{
		TimerDuration:      timer.DefaultDuration,
		IncrementKg:        attempt.DefaultIncrementKg,
		RestoreDelay:       DefaultRestoreDelay,
		CompetitionType:    records_client.CompetitionFullPower,
		RecordCheckTimeout: 5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TimerDuration <= 0 {
		c.TimerDuration = d.TimerDuration
	}
	if c.IncrementKg <= 0 {
		c.IncrementKg = d.IncrementKg
	}
	if c.RestoreDelay <= 0 {
		c.RestoreDelay = d.RestoreDelay
	}
	if c.CompetitionType == "" {
		c.CompetitionType = d.CompetitionType
	}
	if c.RecordCheckTimeout <= 0 {
		c.RecordCheckTimeout = d.RecordCheckTimeout
	}
	return c
}
