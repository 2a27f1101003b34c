package webhooks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"hookrelay/internal/platform/metrics"
	"hookrelay/internal/platform/models"
	"hookrelay/internal/platform/repositories"
)

type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeRevoked   Outcome = "revoked"
	OutcomeFailed    Outcome = "failed"
	OutcomeAbandoned Outcome = "abandoned"
	OutcomeDropped   Outcome = "dropped"
)

const DefaultTimeout = 10 * time.Second

// DeliveryAttempt is one delivery job. It lives in memory (pool backend) or
// as JSON in the Redis list (queue backend) and is discarded once finished.
type DeliveryAttempt struct {
	ID          string    `json:"id"`
	HookID      int64     `json:"hook_id"`
	Owner       string    `json:"owner,omitempty"`
	Event       string    `json:"event"`
	Target      string    `json:"target"`
	Payload     []byte    `json:"payload"`
	Attempt     int       `json:"attempt"`
	NextRetryAt time.Time `json:"next_retry_at"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

func NewDeliveryAttempt(hook models.Hook, payload []byte) *DeliveryAttempt {
	now := time.Now()
	return &DeliveryAttempt{
		ID:          uuid.NewString(),
		HookID:      hook.ID,
		Owner:       hook.Owner,
		Event:       hook.Event,
		Target:      hook.Target,
		Payload:     payload,
		NextRetryAt: now,
		EnqueuedAt:  now,
	}
}

type DeliveryResult struct {
	DeliveryID string
	HookID     int64
	Event      string
	Target     string
	Outcome    Outcome
	Attempts   int
	StatusCode int
	Err        error
	Duration   time.Duration
}

// Observer is told about every finished delivery job.
type Observer interface {
	DeliveryFinished(result DeliveryResult)
}

type ObserverFunc func(result DeliveryResult)

func (f ObserverFunc) DeliveryFinished(result DeliveryResult) { f(result) }

type DelivererConfig struct {
	Client        *http.Client
	Timeout       time.Duration
	Policy        RetryPolicy
	SigningSecret string
	Sleep         SleepFunc
}

// Deliverer runs one job to completion: POST, retry transient failures,
// revoke on 410. It is shared by every worker of every backend.
type Deliverer struct {
	client        *http.Client
	store         HookStore
	policy        RetryPolicy
	signingSecret string
	sleep         SleepFunc
	observers     []Observer
}

func NewDeliverer(store HookStore, cfg DelivererConfig, observers ...Observer) *Deliverer {
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{
			Timeout: timeout,
			// a redirect is the endpoint's answer, not something to chase
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}

	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	return &Deliverer{
		client:        client,
		store:         store,
		policy:        cfg.Policy,
		signingSecret: cfg.SigningSecret,
		sleep:         sleep,
		observers:     observers,
	}
}

// Observe registers o for results of jobs finishing from now on. Not safe to
// call concurrently with Run.
func (d *Deliverer) Observe(o Observer) {
	d.observers = append(d.observers, o)
}

// Run delivers job, retrying sequentially on this goroutine.
func (d *Deliverer) Run(ctx context.Context, job *DeliveryAttempt) DeliveryResult {
	start := time.Now()
	result := DeliveryResult{
		DeliveryID: job.ID,
		HookID:     job.HookID,
		Event:      job.Event,
		Target:     job.Target,
	}

	maxAttempts := d.policy.attempts()
	for n := 0; n < maxAttempts; n++ {
		if n > 0 {
			wait := d.policy.Backoff(n)
			job.NextRetryAt = time.Now().Add(wait)
			if err := d.sleep(ctx, wait); err != nil {
				result.Outcome = OutcomeAbandoned
				result.Err = err
				break
			}
		} else if err := ctx.Err(); err != nil {
			result.Outcome = OutcomeAbandoned
			result.Err = err
			break
		}

		job.Attempt = n + 1
		result.Attempts = job.Attempt
		metrics.WebhookAttempts.WithLabelValues(job.Event).Inc()

		status, err := d.post(ctx, job)
		result.StatusCode = status
		result.Err = err

		if err == nil && status >= 200 && status < 300 {
			result.Outcome = OutcomeSuccess
			break
		}
		if err == nil && status == http.StatusGone {
			result.Outcome = OutcomeRevoked
			result.Err = d.revoke(ctx, job)
			break
		}
		if err == nil && !retryableStatus(status) {
			result.Outcome = OutcomeFailed
			result.Err = fmt.Errorf("HTTP %d", status)
			break
		}
		if err == nil {
			result.Err = fmt.Errorf("HTTP %d", status)
		}

		log.Debug().
			Str("delivery_id", job.ID).
			Int64("hook_id", job.HookID).
			Int("attempt", job.Attempt).
			Err(result.Err).
			Msg("webhook delivery attempt failed")

		result.Outcome = OutcomeAbandoned
	}

	result.Duration = time.Since(start)
	d.report(result)
	return result
}

// retryableStatus reports whether a non-2xx answer is worth another attempt.
// Only 5xx is; anything outside the defined classes is terminal.
func retryableStatus(status int) bool {
	return status >= 500 && status < 600
}

// Drop reports a job that never got a worker.
func (d *Deliverer) Drop(job *DeliveryAttempt, reason error) {
	d.report(DeliveryResult{
		DeliveryID: job.ID,
		HookID:     job.HookID,
		Event:      job.Event,
		Target:     job.Target,
		Outcome:    OutcomeDropped,
		Err:        reason,
	})
}

func (d *Deliverer) post(ctx context.Context, job *DeliveryAttempt) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, job.Target, bytes.NewReader(job.Payload))
	if err != nil {
		return 0, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, job.Event)
	req.Header.Set(HeaderDelivery, job.ID)
	if d.signingSecret != "" {
		req.Header.Set(HeaderSignature, Sign(HookSecret(d.signingSecret, job.HookID), job.Payload))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	return resp.StatusCode, nil
}

func (d *Deliverer) revoke(ctx context.Context, job *DeliveryAttempt) error {
	// detached: a 410 must still remove the hook while the worker is shutting down
	err := d.store.Delete(context.WithoutCancel(ctx), job.HookID)
	if errors.Is(err, repositories.ErrHookNotFound) {
		return nil
	}
	return err
}

func (d *Deliverer) report(result DeliveryResult) {
	event := logEvent(result).
		Str("delivery_id", result.DeliveryID).
		Int64("hook_id", result.HookID).
		Str("event", result.Event).
		Str("target", result.Target).
		Str("outcome", string(result.Outcome)).
		Int("attempts", result.Attempts).
		Dur("duration", result.Duration)
	if result.StatusCode != 0 {
		event = event.Int("status", result.StatusCode)
	}
	if result.Err != nil {
		event = event.Err(result.Err)
	}
	event.Msg("webhook delivery finished")

	metrics.WebhookDeliveries.WithLabelValues(result.Event, string(result.Outcome)).Inc()
	metrics.WebhookLatency.WithLabelValues(result.Event, string(result.Outcome)).
		Observe(float64(result.Duration.Milliseconds()))

	for _, o := range d.observers {
		o.DeliveryFinished(result)
	}
}

func logEvent(result DeliveryResult) *zerolog.Event {
	switch result.Outcome {
	case OutcomeSuccess:
		return log.Debug()
	case OutcomeRevoked:
		return log.Info()
	case OutcomeFailed, OutcomeDropped:
		return log.Warn()
	default:
		return log.Error()
	}
}

func (r DeliveryResult) String() string {
	s := string(r.Outcome) + " after " + strconv.Itoa(r.Attempts) + " attempt(s)"
	if r.StatusCode != 0 {
		s += " (HTTP " + strconv.Itoa(r.StatusCode) + ")"
	}
	return s
}
