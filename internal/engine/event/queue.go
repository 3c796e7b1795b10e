package event

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kode4food/caravan"
	"github.com/kode4food/caravan/topic"

	"github.com/tessera-flow/tessera/engine/pkg/api"
	"github.com/tessera-flow/tessera/engine/pkg/log"
)

type (
	// Event is one change to the partition indexes, keyed by the instance
	// it describes
	Event struct {
		Data     any
		Instance api.InstanceID
		Type     api.EventType
	}

	// Handler applies a batch of events in one partition execution. A
	// failed execution applies none of them
	Handler func([]Event) error

	// Queue moves partition events off the instance drivers. Events are
	// applied in the order they were enqueued, in batches of bounded size
	Queue struct {
		prod      topic.Producer[Event]
		cons      topic.Consumer[Event]
		apply     Handler
		stop      chan struct{}
		done      chan struct{}
		batchSize int
		startOnce sync.Once
		stopOnce  sync.Once
	}
)

var (
	ErrUnknownEvent    = errors.New("unknown partition event")
	ErrHandlerPanicked = errors.New("partition handler panicked")
)

const (
	batchAttempts = 3
	retryBackoff  = 50 * time.Millisecond
)

// New wraps a partition event payload in its envelope
func New(data any) (Event, error) {
	switch d := data.(type) {
	case api.InstanceActivatedEvent:
		return Event{
			Type: api.EventTypeInstanceActivated, Instance: d.InstanceID,
			Data: d,
		}, nil
	case api.InstanceDigestUpdatedEvent:
		return Event{
			Type: api.EventTypeInstanceDigestUpdated, Instance: d.InstanceID,
			Data: d,
		}, nil
	case api.InstanceDeactivatedEvent:
		return Event{
			Type: api.EventTypeInstanceDeactivated, Instance: d.InstanceID,
			Data: d,
		}, nil
	case api.ApprovalIndexedEvent:
		return Event{
			Type: api.EventTypeApprovalIndexed, Instance: d.InstanceID,
			Data: d,
		}, nil
	default:
		return Event{}, fmt.Errorf("%w: %T", ErrUnknownEvent, data)
	}
}

// Coalesce drops digest updates that a later event for the same instance
// overwrites. The remaining events keep their order
func Coalesce(batch []Event) []Event {
	last := map[api.InstanceID]int{}
	for i, ev := range batch {
		if setsDigestStatus(ev.Type) {
			last[ev.Instance] = i
		}
	}
	res := make([]Event, 0, len(batch))
	for i, ev := range batch {
		if ev.Type == api.EventTypeInstanceDigestUpdated &&
			last[ev.Instance] > i {
			continue
		}
		res = append(res, ev)
	}
	return res
}

func setsDigestStatus(typ api.EventType) bool {
	return typ == api.EventTypeInstanceDigestUpdated ||
		typ == api.EventTypeInstanceDeactivated
}

// NewQueue creates a queue that hands batches of up to batchSize events to
// apply
func NewQueue(apply Handler, batchSize int) *Queue {
	t := caravan.NewTopic[Event]()
	return &Queue{
		prod:      t.NewProducer(),
		cons:      t.NewConsumer(),
		apply:     apply,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		batchSize: max(batchSize, 1),
	}
}

// Start begins applying queued events
func (q *Queue) Start() {
	q.startOnce.Do(func() {
		go q.run()
	})
}

// Enqueue adds an event to the queue
func (q *Queue) Enqueue(ev Event) {
	q.prod.Send() <- ev
}

// Flush applies every event already enqueued, then stops the queue
func (q *Queue) Flush() {
	q.Start()
	q.stopOnce.Do(func() { close(q.stop) })
	<-q.done
}

func (q *Queue) run() {
	defer func() {
		q.prod.Close()
		q.cons.Close()
		close(q.done)
	}()
	for {
		select {
		case ev, ok := <-q.cons.Receive():
			if !ok {
				return
			}
			q.process(q.collect(ev))
		case <-q.stop:
			q.drain()
			return
		}
	}
}

func (q *Queue) drain() {
	for {
		select {
		case ev, ok := <-q.cons.Receive():
			if !ok {
				return
			}
			q.process(q.collect(ev))
		default:
			return
		}
	}
}

func (q *Queue) collect(first Event) []Event {
	batch := []Event{first}
	for len(batch) < q.batchSize {
		select {
		case ev, ok := <-q.cons.Receive():
			if !ok {
				return batch
			}
			batch = append(batch, ev)
		default:
			return batch
		}
	}
	return batch
}

func (q *Queue) process(batch []Event) {
	batch = Coalesce(batch)
	err := q.applyWithRetry(batch)
	if err == nil {
		return
	}
	if len(batch) == 1 {
		dropped(batch[0], err)
		return
	}

	// one bad event must not cost the instances sharing its batch
	slog.Warn("Applying partition events individually",
		slog.Int("batch_size", len(batch)),
		log.Error(err))
	for _, ev := range batch {
		if err := q.safeApply([]Event{ev}); err != nil {
			dropped(ev, err)
		}
	}
}

func (q *Queue) applyWithRetry(batch []Event) error {
	var err error
	for attempt := 1; attempt <= batchAttempts; attempt++ {
		if err = q.safeApply(batch); err == nil {
			return nil
		}
		slog.Error("Partition batch failed",
			slog.Int("batch_size", len(batch)),
			log.Attempt(attempt),
			log.Error(err))
		if attempt < batchAttempts {
			time.Sleep(retryBackoff << (attempt - 1))
		}
	}
	return err
}

func (q *Queue) safeApply(batch []Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanicked, r)
		}
	}()
	return q.apply(batch)
}

func dropped(ev Event, err error) {
	slog.Error("Partition event dropped",
		log.InstanceID(ev.Instance),
		slog.String("type", string(ev.Type)),
		log.Error(err))
}
