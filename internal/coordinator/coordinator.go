package coordinator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"docchat/internal/models"
	"docchat/internal/store"
	"docchat/internal/workflows"

	"github.com/sirupsen/logrus"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
)

// Ingestor runs the document pipeline for one file.
type Ingestor interface {
	Run(ctx context.Context, path, collection string) (models.IngestResult, error)
}

// Answerer resolves a question against a collection.
type Answerer interface {
	Answer(ctx context.Context, question, collection, sessionID string) (models.AnswerResult, error)
}

// Coordinator serializes writes per collection while letting reads on
// the same collection proceed concurrently. Ingestion and deletion take
// the collection's write lock; answering takes its read lock, so a
// question never observes a half-written collection.
type Coordinator struct {
	ingestor Ingestor
	answerer Answerer
	store    store.Store

	temporal  client.Client
	taskQueue string

	mu    sync.Mutex
	locks map[string]*sync.RWMutex
	log   *logrus.Entry
}

type Option func(*Coordinator)

// WithTemporal routes ingestion through the durable workflow instead of
// running the pipeline in-process.
func WithTemporal(c client.Client, taskQueue string) Option {
	return func(co *Coordinator) {
		co.temporal = c
		co.taskQueue = taskQueue
	}
}

func New(ingestor Ingestor, answerer Answerer, st store.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		ingestor: ingestor,
		answerer: answerer,
		store:    st,
		locks:    map[string]*sync.RWMutex{},
		log:      logrus.WithField("component", "coordinator"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) lockFor(collection string) *sync.RWMutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[collection]
	if !ok {
		l = &sync.RWMutex{}
		c.locks[collection] = l
	}
	return l
}

// IngestTask is a handle to an in-flight ingestion.
type IngestTask struct {
	done chan struct{}
	res  models.IngestResult
	err  error
}

func (t *IngestTask) Wait(ctx context.Context) (models.IngestResult, error) {
	select {
	case <-ctx.Done():
		return models.IngestResult{}, ctx.Err()
	case <-t.done:
		return t.res, t.err
	}
}

// AnswerTask is a handle to an in-flight answer.
type AnswerTask struct {
	done chan struct{}
	res  models.AnswerResult
	err  error
}

func (t *AnswerTask) Wait(ctx context.Context) (models.AnswerResult, error) {
	select {
	case <-ctx.Done():
		return models.AnswerResult{}, ctx.Err()
	case <-t.done:
		return t.res, t.err
	}
}

// SubmitIngest queues an ingestion behind the collection's write lock.
func (c *Coordinator) SubmitIngest(ctx context.Context, path, collection string) *IngestTask {
	task := &IngestTask{done: make(chan struct{})}
	go func() {
		defer close(task.done)
		lock := c.lockFor(collection)
		lock.Lock()
		defer lock.Unlock()
		if c.temporal != nil {
			task.res, task.err = c.runIngestWorkflow(ctx, path, collection)
			return
		}
		task.res, task.err = c.ingestor.Run(ctx, path, collection)
	}()
	return task
}

func (c *Coordinator) runIngestWorkflow(ctx context.Context, path, collection string) (models.IngestResult, error) {
	run, err := c.temporal.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:                    "ingest-" + collection,
		TaskQueue:             c.taskQueue,
		WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
	}, workflows.DocumentIngestWorkflow, workflows.DocumentIngestInput{
		Path:       path,
		Collection: collection,
		Source:     filepath.Base(path),
	})
	if err != nil {
		return models.IngestResult{}, fmt.Errorf("start ingest workflow: %w", err)
	}
	var out workflows.DocumentIngestResult
	if err := run.Get(ctx, &out); err != nil {
		return models.IngestResult{}, fmt.Errorf("ingest workflow failed: %w", err)
	}
	res := models.IngestResult{
		Collection: out.Collection,
		Source:     out.Source,
		Chunks:     out.Chunks,
		Status:     out.Status,
	}
	if out.Status == "failed" {
		return res, errors.New(out.FailReason)
	}
	return res, nil
}

// SubmitAnswer queues a question behind the collection's read lock, so
// concurrent questions proceed together but wait out in-flight writes.
func (c *Coordinator) SubmitAnswer(ctx context.Context, question, collection, sessionID string) *AnswerTask {
	task := &AnswerTask{done: make(chan struct{})}
	go func() {
		defer close(task.done)
		lock := c.lockFor(collection)
		lock.RLock()
		defer lock.RUnlock()
		task.res, task.err = c.answerer.Answer(ctx, question, collection, sessionID)
	}()
	return task
}

// Answer is the synchronous form of SubmitAnswer, used by the bot
// channels.
func (c *Coordinator) Answer(ctx context.Context, question, collection, sessionID string) (models.AnswerResult, error) {
	return c.SubmitAnswer(ctx, question, collection, sessionID).Wait(ctx)
}

// DeleteCollection removes a collection under its write lock and
// reports whether it existed.
func (c *Coordinator) DeleteCollection(ctx context.Context, collection string) (bool, error) {
	lock := c.lockFor(collection)
	lock.Lock()
	defer lock.Unlock()
	existed, err := c.store.Delete(ctx, collection)
	if err != nil {
		return false, err
	}
	c.log.WithFields(logrus.Fields{"collection": collection, "existed": existed}).Info("collection deleted")
	return existed, nil
}
