package jobqueue

import (
	"time"

	"github.com/riverqueue/river"
)

// QueueConfig holds the tunable parameters of the reminder queue.
type QueueConfig struct {
	// MaxWorkers is the number of concurrent workers firing reminders.
	// Reminders are cheap (one registry read plus at most one chat post),
	// so a small pool is plenty.
	MaxWorkers int

	// MaxRetries caps retry attempts for a failed reminder. A reminder that
	// keeps failing past its window is not worth sending anymore.
	MaxRetries int

	// JobTimeout bounds a single firing, chat API call included.
	JobTimeout time.Duration
}

// DefaultQueueConfig returns the default configuration.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		MaxWorkers: 4,
		MaxRetries: 5,
		JobTimeout: time.Minute,
	}
}

// RiverQueueConfig converts our config to River's queue configuration format
func (c *QueueConfig) RiverQueueConfig() map[string]river.QueueConfig {
	return map[string]river.QueueConfig{
		river.QueueDefault: {
			MaxWorkers: c.MaxWorkers,
		},
	}
}
