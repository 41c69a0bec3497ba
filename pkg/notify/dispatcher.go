package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/psantana5/smartworking/pkg/logging"
	"github.com/psantana5/smartworking/pkg/retry"
)

const (
	defaultWorkers      = 2
	defaultSendTimeout  = 30 * time.Second
	enqueueTimeout      = 2 * time.Second
	dequeueErrorBackoff = time.Second
)

// Recorder receives delivery outcomes; *metrics.Collector implements it
type Recorder interface {
	NotificationSent(kind, result string)
	NotificationDropped(kind string)
}

type nopRecorder struct{}

func (nopRecorder) NotificationSent(string, string) {}
func (nopRecorder) NotificationDropped(string)      {}

// DispatcherConfig tunes the delivery workers
type DispatcherConfig struct {
	Workers     int
	SendTimeout time.Duration
	Retry       retry.Config
}

// Dispatcher implements Notifier on top of a Queue drained by a fixed set of
// workers. Events are enqueued without blocking the request path; every send
// runs with its own timeout and retry policy.
type Dispatcher struct {
	queue    Queue
	renderer *Renderer
	sender   Sender
	cfg      DispatcherConfig
	logger   *logging.Logger
	recorder Recorder

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	start    sync.Once
	stopOnce sync.Once
}

// NewDispatcher wires a dispatcher; recorder may be nil
func NewDispatcher(queue Queue, renderer *Renderer, sender Sender, cfg DispatcherConfig, logger *logging.Logger, recorder Recorder) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		queue:    queue,
		renderer: renderer,
		sender:   sender,
		cfg:      cfg,
		logger:   logger.WithComponent("notify"),
		recorder: recorder,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the workers
func (d *Dispatcher) Start() {
	d.start.Do(func() {
		for i := 0; i < d.cfg.Workers; i++ {
			d.wg.Add(1)
			go d.worker(i)
		}
		d.logger.Info("Notification dispatcher started", logging.Fields{"workers": d.cfg.Workers})
	})
}

// Stop closes the queue and lets workers drain it until ctx expires, then
// abandons whatever is left.
func (d *Dispatcher) Stop(ctx context.Context) error {
	var err error
	d.stopOnce.Do(func() {
		_ = d.queue.Close()

		done := make(chan struct{})
		go func() {
			d.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			err = ctx.Err()
			d.logger.Warn("Notification drain interrupted", logging.Fields{"error": err.Error()})
		}
		d.cancel()
		<-done
		d.logger.Info("Notification dispatcher stopped")
	})
	return err
}

func (d *Dispatcher) RequestCreated(ctx context.Context, ev RequestCreatedEvent) {
	d.enqueue(ctx, Message{
		Kind:        KindRequestCreated,
		To:          ev.ManagerEmail,
		Name:        ev.EmployeeName,
		Date:        ev.Date.String(),
		Description: ev.Description,
		RequestID:   ev.RequestID,
		Secret:      ev.Token,
	})
}

func (d *Dispatcher) StatusChanged(ctx context.Context, ev StatusChangedEvent) {
	d.enqueue(ctx, Message{
		Kind:   KindStatusChanged,
		To:     ev.EmployeeEmail,
		Name:   ev.EmployeeName,
		Date:   ev.Date.String(),
		Status: string(ev.Status),
	})
}

func (d *Dispatcher) TemporaryPassword(ctx context.Context, ev TemporaryPasswordEvent) {
	d.enqueue(ctx, Message{
		Kind:   KindTemporaryPassword,
		To:     ev.Email,
		Name:   ev.FirstName,
		Secret: ev.Password,
	})
}

func (d *Dispatcher) enqueue(ctx context.Context, msg Message) {
	msg.EnqueuedAt = time.Now().UTC()

	// The caller's request may finish before the queue answers
	enqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), enqueueTimeout)
	defer cancel()

	if err := d.queue.Enqueue(enqCtx, msg); err != nil {
		d.recorder.NotificationDropped(string(msg.Kind))
		d.logger.Warn("Notification dropped", logging.Fields{
			"kind":       msg.Kind,
			"to":         msg.To,
			"request_id": msg.RequestID,
			"error":      err.Error(),
		})
	}
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()

	for {
		msg, err := d.queue.Dequeue(d.ctx)
		if err != nil {
			if errors.Is(err, ErrQueueClosed) || d.ctx.Err() != nil {
				return
			}
			d.logger.Error("Failed to read notification queue", logging.Fields{"worker": id, "error": err.Error()})
			select {
			case <-d.ctx.Done():
				return
			case <-time.After(dequeueErrorBackoff):
			}
			continue
		}
		d.deliver(msg)
	}
}

func (d *Dispatcher) deliver(msg Message) {
	fields := logging.Fields{"kind": msg.Kind, "to": msg.To}
	if msg.RequestID != "" {
		fields["request_id"] = msg.RequestID
	}

	email, err := d.renderer.Render(msg)
	if err != nil {
		d.recorder.NotificationSent(string(msg.Kind), "failed")
		fields["error"] = err.Error()
		d.logger.Error("Failed to render notification", fields)
		return
	}

	err = retry.Do(d.ctx, d.cfg.Retry, func(ctx context.Context) error {
		sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
		defer cancel()
		return d.sender.Send(sendCtx, email)
	})
	if err != nil {
		d.recorder.NotificationSent(string(msg.Kind), "failed")
		fields["error"] = err.Error()
		d.logger.Error("Failed to deliver notification", fields)
		return
	}

	d.recorder.NotificationSent(string(msg.Kind), "sent")
	d.logger.Debug("Notification delivered", fields)
}
