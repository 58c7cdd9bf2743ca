package queue

import (
	"context"
	"hash/fnv"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/streamhub/accounts-api/internal/api/metrics"
	"github.com/streamhub/accounts-api/internal/core/ports"
)

const (
	defaultWorkers = 4
	channelBuffer  = 128
)

// Dispatcher routes media cleanup jobs to a fixed set of workers using
// consistent hashing on the user ID, so deletes for one user stay ordered
// relative to each other.
type Dispatcher struct {
	workers []chan ports.MediaCleanupJob
	store   ports.MediaStore
	log     zerolog.Logger
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, store ports.MediaStore, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers: make([]chan ports.MediaCleanupJob, numWorkers),
		store:   store,
		log:     log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan ports.MediaCleanupJob, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		go d.runWorker(ctx, i, ch)
	}
}

// Enqueue sends a job to the worker responsible for its user ID. It
// blocks when that worker's buffer is full rather than dropping the job.
func (d *Dispatcher) Enqueue(job ports.MediaCleanupJob) {
	i := d.shardIndex(job.UserID)
	d.workers[i] <- job
	metrics.CleanupQueueDepth.WithLabelValues(strconv.Itoa(i)).Set(float64(len(d.workers[i])))
}

// shardIndex maps a user ID deterministically to a worker index.
func (d *Dispatcher) shardIndex(userID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return int(h.Sum32()) % len(d.workers)
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan ports.MediaCleanupJob) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-ch:
			if !ok {
				return
			}
			metrics.CleanupQueueDepth.WithLabelValues(strconv.Itoa(id)).Set(float64(len(ch)))
			if err := d.store.Remove(ctx, job.URL); err != nil {
				d.log.Error().Err(err).
					Str("user_id", job.UserID).
					Str("url", job.URL).
					Int("worker_id", id).
					Msg("media cleanup failed")
				continue
			}
			d.log.Debug().Str("user_id", job.UserID).Str("url", job.URL).Msg("superseded media object removed")
		}
	}
}
