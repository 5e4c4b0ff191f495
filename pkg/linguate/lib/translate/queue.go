// Copyright 2025 The Linguate Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package translate

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrQueueFull is returned when the request queue is at capacity.
	ErrQueueFull = errors.New("request queue is full")

	// ErrRequestTimeout is returned when a request waits in the queue
	// longer than the configured timeout.
	ErrRequestTimeout = errors.New("request timeout exceeded")
)

// RequestQueue bounds the number of translations running at once and queues
// the overflow with backpressure.
type RequestQueue struct {
	maxConcurrent int64 // 0 = unlimited
	maxQueueSize  int64 // 0 = unlimited
	timeout       time.Duration

	sem chan struct{}

	currentActive  atomic.Int64
	currentQueued  atomic.Int64
	totalProcessed atomic.Int64
	totalRejected  atomic.Int64
	totalTimedOut  atomic.Int64

	logger *zap.Logger
}

// RequestQueueConfig holds configuration for the request queue.
type RequestQueueConfig struct {
	MaxConcurrentRequests int           // 0 = unlimited
	MaxQueueSize          int           // 0 = unlimited (only when MaxConcurrentRequests > 0)
	RequestTimeout        time.Duration // 0 = no timeout
}

// NewRequestQueue creates a request queue with the given configuration.
func NewRequestQueue(config RequestQueueConfig, logger *zap.Logger) *RequestQueue {
	if logger == nil {
		logger = zap.NewNop()
	}

	q := &RequestQueue{
		maxConcurrent: int64(config.MaxConcurrentRequests),
		maxQueueSize:  int64(config.MaxQueueSize),
		timeout:       config.RequestTimeout,
		logger:        logger,
	}

	if config.MaxConcurrentRequests > 0 {
		q.sem = make(chan struct{}, config.MaxConcurrentRequests)
		logger.Info("Request queue initialized",
			zap.Int("max_concurrent", config.MaxConcurrentRequests),
			zap.Int("max_queue_size", config.MaxQueueSize),
			zap.Duration("timeout", config.RequestTimeout))
	} else {
		logger.Info("Request queue disabled (unlimited concurrency)")
	}

	return q
}

// Acquire attempts to acquire a slot for processing a request. It returns a
// release function that must be called when the request is done, or an error
// if the queue is full or the context ended.
func (q *RequestQueue) Acquire(ctx context.Context) (release func(), err error) {
	if q.sem == nil {
		q.currentActive.Add(1)
		return func() {
			q.currentActive.Add(-1)
			q.totalProcessed.Add(1)
		}, nil
	}

	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer func() {
			if err != nil {
				cancel()
			}
		}()
	}

	select {
	case q.sem <- struct{}{}:
		q.currentActive.Add(1)
		return q.makeRelease(), nil
	default:
	}

	// Reserve a queue slot with a CAS loop so concurrent arrivals cannot
	// all pass the capacity check before any of them increments.
	if q.maxQueueSize > 0 {
		for {
			queued := q.currentQueued.Load()
			if queued >= q.maxQueueSize {
				q.totalRejected.Add(1)
				q.logger.Warn("Request rejected: queue full",
					zap.Int64("queued", queued),
					zap.Int64("max_queue", q.maxQueueSize))
				return nil, ErrQueueFull
			}
			if q.currentQueued.CompareAndSwap(queued, queued+1) {
				break
			}
		}
	} else {
		q.currentQueued.Add(1)
	}
	queueStart := time.Now()

	q.logger.Debug("Request queued",
		zap.Int64("queue_depth", q.currentQueued.Load()))

	select {
	case q.sem <- struct{}{}:
		q.currentQueued.Add(-1)
		q.currentActive.Add(1)
		q.logger.Debug("Request dequeued",
			zap.Duration("wait_time", time.Since(queueStart)))
		return q.makeRelease(), nil

	case <-ctx.Done():
		q.currentQueued.Add(-1)
		if ctx.Err() == context.DeadlineExceeded {
			q.totalTimedOut.Add(1)
			q.logger.Warn("Request timed out in queue",
				zap.Duration("wait_time", time.Since(queueStart)),
				zap.Duration("timeout", q.timeout))
			return nil, ErrRequestTimeout
		}
		return nil, ctx.Err()
	}
}

func (q *RequestQueue) makeRelease() func() {
	return func() {
		q.currentActive.Add(-1)
		q.totalProcessed.Add(1)
		<-q.sem
	}
}

// Stats returns current queue statistics.
func (q *RequestQueue) Stats() QueueStats {
	return QueueStats{
		CurrentActive:  q.currentActive.Load(),
		CurrentQueued:  q.currentQueued.Load(),
		TotalProcessed: q.totalProcessed.Load(),
		TotalRejected:  q.totalRejected.Load(),
		TotalTimedOut:  q.totalTimedOut.Load(),
		MaxConcurrent:  q.maxConcurrent,
		MaxQueueSize:   q.maxQueueSize,
	}
}

// QueueStats holds queue statistics.
type QueueStats struct {
	CurrentActive  int64 `json:"current_active"`
	CurrentQueued  int64 `json:"current_queued"`
	TotalProcessed int64 `json:"total_processed"`
	TotalRejected  int64 `json:"total_rejected"`
	TotalTimedOut  int64 `json:"total_timed_out"`
	MaxConcurrent  int64 `json:"max_concurrent"`
	MaxQueueSize   int64 `json:"max_queue_size"`
}

// IsEnabled reports whether concurrency limiting is active.
func (q *RequestQueue) IsEnabled() bool {
	return q.sem != nil
}
