package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"runtime/debug"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"hookrelay/internal/platform/metrics"
	"hookrelay/internal/platform/models"
)

const (
	DefaultKeyPrefix  = "hookrelay"
	DefaultPopTimeout = time.Second
	pushTimeout       = 2 * time.Second
)

type QueueOptions struct {
	KeyPrefix string
	// Consumers is the number of BRPOP loops. Zero makes the dispatcher a
	// pure producer, with delivery left to cmd/worker.
	Consumers  int
	QueueSize  int
	PopTimeout time.Duration
}

// QueueDispatcher moves deliveries through the Redis list <prefix>:deliveries.
// Deliver only touches the in-process buffer; a pusher goroutine does the
// LPUSH so callers never wait on Redis.
type QueueDispatcher struct {
	rdb       *redis.Client
	deliverer *Deliverer
	key       string
	consumers int
	pop       time.Duration
	buffer    *fifo

	startOnce sync.Once
	stopOnce  sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	popCancel context.CancelFunc
	pusherWG  sync.WaitGroup
	consumeWG sync.WaitGroup
}

func NewQueueDispatcher(rdb *redis.Client, deliverer *Deliverer, opts QueueOptions) *QueueDispatcher {
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	pop := opts.PopTimeout
	if pop <= 0 {
		pop = DefaultPopTimeout
	}
	consumers := opts.Consumers
	if consumers < 0 {
		consumers = 0
	}

	return &QueueDispatcher{
		rdb:       rdb,
		deliverer: deliverer,
		key:       QueueKey(prefix),
		consumers: consumers,
		pop:       pop,
		buffer:    newFIFO(opts.QueueSize),
	}
}

// QueueKey is the Redis list deliveries travel through.
func QueueKey(prefix string) string {
	return prefix + ":deliveries"
}

func (q *QueueDispatcher) Deliver(hook models.Hook, payload []byte) {
	job := NewDeliveryAttempt(hook, payload)
	if err := q.buffer.push(job); err != nil {
		q.deliverer.Drop(job, err)
		return
	}
	metrics.WebhookQueueDepth.WithLabelValues("redis").Set(float64(q.buffer.len()))
}

func (q *QueueDispatcher) Start(ctx context.Context) error {
	var err error
	q.startOnce.Do(func() {
		if err = q.rdb.Ping(ctx).Err(); err != nil {
			return
		}
		q.ctx, q.cancel = context.WithCancel(ctx)
		var popCtx context.Context
		popCtx, q.popCancel = context.WithCancel(q.ctx)

		q.pusherWG.Add(1)
		go func() {
			defer q.pusherWG.Done()
			q.pushLoop()
		}()

		for i := 0; i < q.consumers; i++ {
			q.consumeWG.Add(1)
			go func(id int) {
				defer q.consumeWG.Done()
				q.consumeLoop(popCtx, q.ctx, id)
			}(i)
		}

		log.Info().Str("key", q.key).Int("consumers", q.consumers).Msg("webhook queue started")
	})
	return err
}

// Stop flushes the buffer to Redis, stops popping, and waits for consumers
// to finish the jobs they hold. When ctx expires first, in-flight jobs are
// canceled. Jobs still in Redis stay there for the next consumer.
func (q *QueueDispatcher) Stop(ctx context.Context) error {
	var err error
	q.stopOnce.Do(func() {
		q.buffer.close()
		if q.cancel == nil {
			for _, job := range q.buffer.drain() {
				q.deliverer.Drop(job, errQueueClosed)
			}
			return
		}

		if err = waitContext(ctx, &q.pusherWG); err != nil {
			q.cancel()
			q.pusherWG.Wait()
		}
		q.popCancel()
		if werr := waitContext(ctx, &q.consumeWG); werr != nil {
			if err == nil {
				err = werr
			}
			q.cancel()
			q.consumeWG.Wait()
		}
		q.cancel()
	})
	return err
}

// Consume runs n BRPOP loops until ctx is done, then gives the jobs already
// popped up to grace to finish before canceling them. cmd/worker uses it to
// run the consumer side on its own.
func (q *QueueDispatcher) Consume(ctx context.Context, n int, grace time.Duration) {
	if n <= 0 {
		n = DefaultWorkers
	}
	work, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			q.consumeLoop(ctx, work, id)
		}(i)
	}

	<-ctx.Done()
	drainCtx, drainCancel := context.WithTimeout(context.Background(), grace)
	defer drainCancel()
	if waitContext(drainCtx, &wg) != nil {
		log.Warn().Dur("grace", grace).Msg("canceling in-flight webhook deliveries")
		cancel()
		wg.Wait()
	}
}

func (q *QueueDispatcher) pushLoop() {
	for {
		job, ok := q.buffer.pop()
		if !ok {
			return
		}
		metrics.WebhookQueueDepth.WithLabelValues("redis").Set(float64(q.buffer.len()))

		if q.ctx.Err() != nil {
			q.deliverer.Drop(job, errQueueClosed)
			continue
		}
		if err := q.push(job); err != nil {
			log.Error().Err(err).Str("delivery_id", job.ID).Msg("failed to enqueue webhook delivery")
			q.deliverer.Drop(job, err)
		}
	}
}

func (q *QueueDispatcher) push(job *DeliveryAttempt) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(q.ctx), pushTimeout)
	defer cancel()
	return q.rdb.LPush(ctx, q.key, data).Err()
}

// consumeLoop pops until pop is done. A popped job runs under work, so it
// survives the end of popping.
func (q *QueueDispatcher) consumeLoop(pop, work context.Context, id int) {
	for {
		if pop.Err() != nil {
			return
		}

		res, err := q.rdb.BRPop(pop, q.pop, q.key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if pop.Err() != nil {
				return
			}
			log.Error().Err(err).Int("consumer", id).Msg("failed to pop webhook delivery")
			if sleepContext(pop, q.pop) != nil {
				return
			}
			continue
		}

		// BRPOP replies [key, value]
		if len(res) != 2 {
			continue
		}

		var job DeliveryAttempt
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			log.Error().Err(err).Int("consumer", id).Msg("discarding malformed webhook delivery")
			continue
		}
		q.run(work, id, &job)
	}
}

func (q *QueueDispatcher) run(ctx context.Context, id int, job *DeliveryAttempt) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Int("consumer", id).
				Str("delivery_id", job.ID).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("webhook consumer panic")
		}
	}()
	q.deliverer.Run(ctx, job)
}

func waitContext(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
