// Package archive copies the final state of terminal workflow instances to
// a blob bucket (S3, GCS, Azure Blob Storage or a local directory)
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sync"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	"github.com/tessera-flow/tessera/engine/internal/engine"
	"github.com/tessera-flow/tessera/engine/pkg/api"
	"github.com/tessera-flow/tessera/engine/pkg/log"

	_ "gocloud.dev/blob/azureblob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"
)

type (
	// Archiver writes terminal instances to a bucket as JSON documents
	// named <prefix>/<instance-id>.json. It receives transitions as an
	// engine listener and performs the writes on its own goroutine
	Archiver struct {
		bucket *blob.Bucket
		source Source
		prefix string
		queue  chan api.InstanceID
		done   chan struct{}
		wg     sync.WaitGroup
		once   sync.Once
	}

	// Source loads the state that is archived
	Source interface {
		GetInstance(
			ctx context.Context, id api.InstanceID,
		) (*api.WorkflowState, error)
	}
)

const queueSize = 1024

var ErrNotArchived = errors.New("instance not archived")

var _ engine.Listener = (*Archiver)(nil)

// Open opens the bucket at bucketURL and creates an Archiver over it
func Open(
	ctx context.Context, bucketURL, prefix string, src Source,
) (*Archiver, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, err
	}
	return New(bucket, prefix, src), nil
}

// New creates an Archiver over an open bucket. The Archiver owns the
// bucket and closes it on Close
func New(bucket *blob.Bucket, prefix string, src Source) *Archiver {
	a := &Archiver{
		bucket: bucket,
		source: src,
		prefix: prefix,
		queue:  make(chan api.InstanceID, queueSize),
		done:   make(chan struct{}),
	}
	a.wg.Add(1)
	go a.run()
	return a
}

// OnTransition queues an instance for archiving when it becomes terminal.
// When the queue is full the instance is skipped and logged
func (a *Archiver) OnTransition(t *api.Transition) {
	if !t.IsWorkflow() || !api.WorkflowStatus(t.To).IsTerminal() {
		return
	}
	select {
	case a.queue <- t.InstanceID:
	case <-a.done:
	default:
		slog.Warn("Archive queue full, instance skipped",
			log.InstanceID(t.InstanceID))
	}
}

// Put writes the state to the bucket
func (a *Archiver) Put(ctx context.Context, st *api.WorkflowState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return a.bucket.WriteAll(ctx, a.keyFor(st.ID), data, &blob.WriterOptions{
		ContentType: "application/json",
	})
}

// Get reads an archived state from the bucket
func (a *Archiver) Get(
	ctx context.Context, id api.InstanceID,
) (*api.WorkflowState, error) {
	data, err := a.bucket.ReadAll(ctx, a.keyFor(id))
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotArchived, id)
		}
		return nil, err
	}
	var st api.WorkflowState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Close drains queued instances, then closes the bucket
func (a *Archiver) Close() error {
	a.once.Do(func() {
		close(a.done)
	})
	a.wg.Wait()
	return a.bucket.Close()
}

func (a *Archiver) run() {
	defer a.wg.Done()
	for {
		select {
		case id := <-a.queue:
			a.archive(id)
		case <-a.done:
			for {
				select {
				case id := <-a.queue:
					a.archive(id)
				default:
					return
				}
			}
		}
	}
}

func (a *Archiver) archive(id api.InstanceID) {
	ctx := context.Background()
	st, err := a.source.GetInstance(ctx, id)
	if err != nil {
		slog.Error("Failed to load instance for archive",
			log.InstanceID(id),
			log.Error(err))
		return
	}
	if err := a.Put(ctx, st); err != nil {
		slog.Error("Failed to archive instance",
			log.InstanceID(id),
			log.Error(err))
		return
	}
	slog.Debug("Instance archived",
		log.InstanceID(id),
		log.Status(st.Status))
}

func (a *Archiver) keyFor(id api.InstanceID) string {
	return path.Join(a.prefix, string(id)+".json")
}
