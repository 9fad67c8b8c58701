package worker

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/memoria/memoria/internal/logger"
)

// TaskType определяет тип задачи
type TaskType string

const (
	TaskRepairThumbnail TaskType = "repair_thumbnail"
	TaskRescanHashes    TaskType = "rescan_hashes"
)

// Task фоновая задача над записью галереи
type Task struct {
	ID        string
	Type      TaskType
	RecordID  string
	CreatedAt time.Time
}

// TaskResult результат выполнения задачи
type TaskResult struct {
	TaskID   string
	Success  bool
	Error    error
	Duration time.Duration
}

// Handler обрабатывает задачи определенного типа
type Handler func(ctx context.Context, task *Task) (*TaskResult, error)

// Pool управляет пулом воркеров
type Pool struct {
	numWorkers  int
	taskQueue   chan *Task
	resultQueue chan *TaskResult
	handlers    map[TaskType]Handler
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	mu          sync.RWMutex

	stats Stats
}

// Stats статистика пула
type Stats struct {
	TotalTasks     int64
	CompletedTasks int64
	FailedTasks    int64
	QueuedTasks    int64
	ActiveWorkers  int64
}

// NewPool создает новый пул воркеров
func NewPool(numWorkers int, queueSize int) *Pool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if queueSize <= 0 {
		queueSize = 1000
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		numWorkers:  numWorkers,
		taskQueue:   make(chan *Task, queueSize),
		resultQueue: make(chan *TaskResult, queueSize),
		handlers:    make(map[TaskType]Handler),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// RegisterHandler регистрирует обработчик для типа задачи
func (p *Pool) RegisterHandler(taskType TaskType, handler Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[taskType] = handler
}

// Start запускает воркеры
func (p *Pool) Start() {
	logger.InfoLog.Printf("Starting worker pool with %d workers", p.numWorkers)

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	go p.processResults()
}

// Stop останавливает пул
func (p *Pool) Stop() {
	p.cancel()
	close(p.taskQueue)
	p.wg.Wait()
	close(p.resultQueue)
	logger.InfoLog.Println("Worker pool stopped")
}

// Submit добавляет задачу в очередь
func (p *Pool) Submit(task *Task) bool {
	select {
	case <-p.ctx.Done():
		return false
	case p.taskQueue <- task:
		atomic.AddInt64(&p.stats.TotalTasks, 1)
		atomic.AddInt64(&p.stats.QueuedTasks, 1)
		return true
	default:
		// Очередь переполнена
		logger.ErrorLog.Printf("Task queue full, dropping task %s", task.ID)
		return false
	}
}

// Stats возвращает статистику пула
func (p *Pool) Stats() Stats {
	return Stats{
		TotalTasks:     atomic.LoadInt64(&p.stats.TotalTasks),
		CompletedTasks: atomic.LoadInt64(&p.stats.CompletedTasks),
		FailedTasks:    atomic.LoadInt64(&p.stats.FailedTasks),
		QueuedTasks:    atomic.LoadInt64(&p.stats.QueuedTasks),
		ActiveWorkers:  atomic.LoadInt64(&p.stats.ActiveWorkers),
	}
}

// QueueLength возвращает текущую длину очереди
func (p *Pool) QueueLength() int {
	return len(p.taskQueue)
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.taskQueue:
			if !ok {
				return
			}
			p.processTask(id, task)
		}
	}
}

func (p *Pool) processTask(workerID int, task *Task) {
	atomic.AddInt64(&p.stats.ActiveWorkers, 1)
	atomic.AddInt64(&p.stats.QueuedTasks, -1)
	defer atomic.AddInt64(&p.stats.ActiveWorkers, -1)

	start := time.Now()

	p.mu.RLock()
	handler, ok := p.handlers[task.Type]
	p.mu.RUnlock()

	var result *TaskResult

	if !ok {
		result = &TaskResult{
			TaskID:   task.ID,
			Success:  false,
			Duration: time.Since(start),
		}
		logger.ErrorLog.Printf("Worker %d: no handler for task type %s", workerID, task.Type)
	} else {
		ctx, cancel := context.WithTimeout(p.ctx, 5*time.Minute)
		res, err := handler(ctx, task)
		cancel()

		if res != nil {
			result = res
		} else {
			result = &TaskResult{
				TaskID:   task.ID,
				Success:  err == nil,
				Error:    err,
				Duration: time.Since(start),
			}
		}
	}

	if result.Success {
		atomic.AddInt64(&p.stats.CompletedTasks, 1)
	} else {
		atomic.AddInt64(&p.stats.FailedTasks, 1)
	}

	select {
	case p.resultQueue <- result:
	default:
	}
}

func (p *Pool) processResults() {
	for result := range p.resultQueue {
		if !result.Success && result.Error != nil {
			logger.ErrorLog.Printf("Task %s failed: %v (took %v)", result.TaskID, result.Error, result.Duration)
		}
	}
}
