package webhooks

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog/log"
	"hookrelay/internal/platform/metrics"
	"hookrelay/internal/platform/models"
)

const DefaultWorkers = 3

// PoolDispatcher runs a fixed number of workers over an in-process FIFO.
// When every worker is busy, new deliveries wait in the FIFO.
type PoolDispatcher struct {
	deliverer *Deliverer
	workers   int
	queue     *fifo

	startOnce sync.Once
	stopOnce  sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewPoolDispatcher(deliverer *Deliverer, workers, queueSize int) *PoolDispatcher {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &PoolDispatcher{
		deliverer: deliverer,
		workers:   workers,
		queue:     newFIFO(queueSize),
	}
}

func (p *PoolDispatcher) Deliver(hook models.Hook, payload []byte) {
	job := NewDeliveryAttempt(hook, payload)
	if err := p.queue.push(job); err != nil {
		p.deliverer.Drop(job, err)
		return
	}
	metrics.WebhookQueueDepth.WithLabelValues("pool").Set(float64(p.queue.len()))
}

// Start launches the workers. Deliveries queued before Start are picked up.
func (p *PoolDispatcher) Start(ctx context.Context) error {
	p.startOnce.Do(func() {
		p.ctx, p.cancel = context.WithCancel(ctx)

		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go func(id int) {
				defer p.wg.Done()
				p.worker(id)
			}(i)
		}

		// parent cancellation stops accepting work and wakes idle workers
		go func() {
			<-p.ctx.Done()
			p.queue.close()
		}()

		log.Info().Int("workers", p.workers).Msg("webhook pool started")
	})
	return nil
}

// Stop stops accepting deliveries and waits for queued ones to finish. When
// ctx expires first, in-flight jobs are canceled and whatever is still queued
// is reported as dropped.
func (p *PoolDispatcher) Stop(ctx context.Context) error {
	var err error
	p.stopOnce.Do(func() {
		p.queue.close()
		if p.cancel == nil {
			p.dropRemaining()
			return
		}

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			err = ctx.Err()
			p.dropRemaining()
			p.cancel()
			<-done
		}
		p.cancel()
		p.dropRemaining()
	})
	return err
}

func (p *PoolDispatcher) worker(id int) {
	for {
		job, ok := p.queue.pop()
		if !ok {
			return
		}
		metrics.WebhookQueueDepth.WithLabelValues("pool").Set(float64(p.queue.len()))
		if err := p.ctx.Err(); err != nil {
			// never started, so not abandoned
			p.deliverer.Drop(job, errQueueClosed)
			continue
		}
		p.run(id, job)
	}
}

func (p *PoolDispatcher) run(id int, job *DeliveryAttempt) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Int("worker", id).
				Str("delivery_id", job.ID).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("webhook worker panic")
		}
	}()
	p.deliverer.Run(p.ctx, job)
}

func (p *PoolDispatcher) dropRemaining() {
	for _, job := range p.queue.drain() {
		p.deliverer.Drop(job, errQueueClosed)
	}
	metrics.WebhookQueueDepth.WithLabelValues("pool").Set(0)
}
