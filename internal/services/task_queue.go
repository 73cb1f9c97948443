package services

import (
	"container/heap"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/v0idhrt/radar/internal/models"
)

var (
	// ErrQueueRunning is returned by Start when workers are already up.
	ErrQueueRunning = errors.New("task queue already running")
	// ErrNoHandler marks a task whose type has no registered handler.
	ErrNoHandler = errors.New("no handler registered for task type")
)

// dedupCacheMinAge is the floor on how long dedup signatures are remembered;
// entries with a longer dedup window live until that window elapses. Expired
// entries are pruned lazily on enqueue, never swept by a timer.
const dedupCacheMinAge = time.Hour

// dequeueIdleTimeout bounds how long an idle worker sleeps before rechecking
// the queue.
const dequeueIdleTimeout = time.Second

// TaskHandler processes one task payload. A returned error marks the task
// FAILED; there is no automatic retry or re-enqueue.
type TaskHandler func(ctx context.Context, payload map[string]any) error

// QueueStats is a read-only snapshot of the queue for monitoring.
type QueueStats struct {
	QueueDepth int  `json:"queue_depth"`
	InFlight   int  `json:"in_flight"`
	Workers    int  `json:"workers"`
	Running    bool `json:"running"`
}

// dedupEntry remembers when a signature was last accepted and when it may be
// pruned. Drop decisions compare against acceptedAt; pruning uses expiresAt so
// windows longer than dedupCacheMinAge survive the lazy sweep.
type dedupEntry struct {
	acceptedAt time.Time
	expiresAt  time.Time
}

// queuedTask wraps a task with its heap bookkeeping. seq breaks creation-time
// ties by insertion order.
type queuedTask struct {
	task  *models.Task
	seq   uint64
	index int
}

// taskHeap orders tasks by priority, then creation time, then insertion order.
type taskHeap []*queuedTask

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.task.Priority != b.task.Priority {
		return a.task.Priority < b.task.Priority
	}
	if !a.task.CreatedAt.Equal(b.task.CreatedAt) {
		return a.task.CreatedAt.Before(b.task.CreatedAt)
	}
	return a.seq < b.seq
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	item := x.(*queuedTask)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// TaskQueue is an in-memory priority queue with signature-based enqueue
// deduplication and a fixed pool of concurrent workers. Delivery is
// at-most-once and best-effort: tasks do not survive a process restart.
type TaskQueue struct {
	logger *logrus.Logger

	mu       sync.Mutex
	tasks    taskHeap
	seq      uint64
	handlers map[string]TaskHandler
	dedup    map[string]dedupEntry
	inFlight map[string]*models.Task
	running  bool
	workers  int

	wake   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTaskQueue creates a stopped queue. Call RegisterHandler and Start.
func NewTaskQueue(logger *logrus.Logger) *TaskQueue {
	return &TaskQueue{
		logger:   logger,
		handlers: make(map[string]TaskHandler),
		dedup:    make(map[string]dedupEntry),
		inFlight: make(map[string]*models.Task),
		wake:     make(chan struct{}, 1),
	}
}

// RegisterHandler binds a handler to a task type, replacing any previous one.
func (q *TaskQueue) RegisterHandler(taskType string, handler TaskHandler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[taskType] = handler
	q.logger.WithField("task_type", taskType).Info("Task handler registered")
}

// Enqueue adds a task and returns its id. When deduplicate is set and an
// accepted enqueue with the same (type, payload) signature happened within
// dedupWindow, the task is dropped and ok is false. The signature timestamp
// is refreshed only on acceptance, so drop decisions always look back to the
// last accepted enqueue.
func (q *TaskQueue) Enqueue(taskType string, payload map[string]any, priority models.TaskPriority, deduplicate bool, dedupWindow time.Duration) (string, bool) {
	now := time.Now().UTC()

	q.mu.Lock()
	q.pruneDedupLocked(now)

	var signature string
	if deduplicate && dedupWindow > 0 {
		signature = taskSignature(taskType, payload)
		if entry, seen := q.dedup[signature]; seen && now.Sub(entry.acceptedAt) < dedupWindow {
			q.mu.Unlock()
			q.logger.WithFields(logrus.Fields{
				"task_type":    taskType,
				"dedup_window": dedupWindow,
			}).Debug("Task dropped as duplicate")
			return "", false
		}
		retention := dedupWindow
		if retention < dedupCacheMinAge {
			retention = dedupCacheMinAge
		}
		q.dedup[signature] = dedupEntry{acceptedAt: now, expiresAt: now.Add(retention)}
	}

	task := &models.Task{
		ID:        fmt.Sprintf("%s_%d_%s", taskType, now.UnixNano(), uuid.NewString()[:8]),
		Type:      taskType,
		Payload:   payload,
		Priority:  priority,
		CreatedAt: now,
		Status:    models.TaskPending,
	}

	q.seq++
	heap.Push(&q.tasks, &queuedTask{task: task, seq: q.seq})
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}

	q.logger.WithFields(logrus.Fields{
		"task_id":   task.ID,
		"task_type": taskType,
		"priority":  priority.String(),
	}).Info("Task enqueued")

	return task.ID, true
}

// Start launches the worker pool. Workers consume the shared ordered queue
// until Stop is called or ctx is cancelled.
func (q *TaskQueue) Start(ctx context.Context, workers int) error {
	if workers <= 0 {
		workers = 3
	}

	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return ErrQueueRunning
	}
	q.running = true
	q.workers = workers
	workerCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.mu.Unlock()

	q.logger.WithField("workers", workers).Info("Starting task queue workers")

	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker(workerCtx, i)
	}
	return nil
}

// Stop cancels blocked waits, waits for in-flight handlers to return and
// releases the worker slots. Tasks left in the queue are discarded.
func (q *TaskQueue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	cancel := q.cancel
	q.mu.Unlock()

	q.logger.Info("Stopping task queue")
	cancel()
	q.wg.Wait()

	q.mu.Lock()
	q.workers = 0
	q.mu.Unlock()

	q.logger.Info("Task queue stopped")
}

// Stats returns a point-in-time snapshot of queue depth and worker state.
func (q *TaskQueue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{
		QueueDepth: q.tasks.Len(),
		InFlight:   len(q.inFlight),
		Workers:    q.workers,
		Running:    q.running,
	}
}

// worker consumes tasks until the context is cancelled.
func (q *TaskQueue) worker(ctx context.Context, id int) {
	defer q.wg.Done()

	log := q.logger.WithField("worker", id)
	log.Debug("Worker started")

	for {
		task := q.dequeue(ctx)
		if task == nil {
			log.Debug("Worker stopped")
			return
		}
		q.process(ctx, task, log)
	}
}

// dequeue pops the highest-priority task, blocking until one is available or
// ctx is cancelled. The task transitions to PROCESSING and enters the
// in-flight registry before it is returned.
func (q *TaskQueue) dequeue(ctx context.Context) *models.Task {
	for {
		q.mu.Lock()
		if q.tasks.Len() > 0 {
			item := heap.Pop(&q.tasks).(*queuedTask)
			task := item.task
			task.Status = models.TaskProcessing
			q.inFlight[task.ID] = task
			q.mu.Unlock()
			return task
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil
		case <-q.wake:
		case <-time.After(dequeueIdleTimeout):
		}
	}
}

// process invokes the task's handler and records the terminal state. Handler
// errors and panics are contained at this boundary; the task is never
// retried.
func (q *TaskQueue) process(ctx context.Context, task *models.Task, log *logrus.Entry) {
	defer func() {
		q.mu.Lock()
		delete(q.inFlight, task.ID)
		q.mu.Unlock()
	}()

	q.mu.Lock()
	handler, ok := q.handlers[task.Type]
	q.mu.Unlock()

	if !ok {
		task.Status = models.TaskFailed
		log.WithFields(logrus.Fields{
			"task_id":   task.ID,
			"task_type": task.Type,
		}).WithError(ErrNoHandler).Error("Task failed")
		return
	}

	log.WithField("task_id", task.ID).Info("Processing task")

	err := q.invoke(ctx, handler, task.Payload)
	if err != nil {
		task.Status = models.TaskFailed
		log.WithFields(logrus.Fields{
			"task_id": task.ID,
			"error":   err.Error(),
		}).Error("Task failed")
		return
	}

	task.Status = models.TaskCompleted
	log.WithField("task_id", task.ID).Info("Task completed")
}

// invoke runs the handler, converting panics into errors so a misbehaving
// handler cannot take down a worker.
func (q *TaskQueue) invoke(ctx context.Context, handler TaskHandler, payload map[string]any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, payload)
}

// pruneDedupLocked drops signature entries whose retention has elapsed.
// Callers must hold q.mu.
func (q *TaskQueue) pruneDedupLocked(now time.Time) {
	for sig, entry := range q.dedup {
		if now.After(entry.expiresAt) {
			delete(q.dedup, sig)
		}
	}
}

// taskSignature builds a stable hash of the task type and canonicalized
// payload. encoding/json sorts map keys, which gives a deterministic
// encoding for equal payloads.
func taskSignature(taskType string, payload map[string]any) string {
	encoded, err := json.Marshal(payload)
	if err != nil {
		encoded = []byte(fmt.Sprintf("%v", payload))
	}
	sum := sha256.Sum256([]byte(taskType + ":" + string(encoded)))
	return fmt.Sprintf("%x", sum[:16])
}
