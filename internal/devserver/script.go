package devserver

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dandantas/kestrel/internal/model"
)

// Script describes how a stub job plays out
type Script struct {
	Steps        []string      `json:"steps,omitempty"`
	StepDuration time.Duration `json:"-"`
	FailAtStep   int           `json:"fail_at_step,omitempty"` // 1-based; 0 = never
	FailMessage  string        `json:"fail_message,omitempty"`
}

// SetDefaults fills in a small three-step query script
func (s *Script) SetDefaults() {
	if len(s.Steps) == 0 {
		s.Steps = []string{"parse query", "execute", "collect results"}
	}
	if s.StepDuration == 0 {
		s.StepDuration = time.Second
	}
	if s.FailMessage == "" {
		s.FailMessage = "query execution failed"
	}
}

// job is one scripted backend job
type job struct {
	mu          sync.Mutex
	id          string
	script      Script
	status      string
	currentStep int
	startedAt   time.Time
	errMessage  string
	result      *model.ResultPayload
	watchers    map[int]chan model.Message
	nextWatcher int
}

func newJob(id string, script Script) *job {
	script.SetDefaults()
	return &job{
		id:        id,
		script:    script,
		status:    model.JobQueued,
		startedAt: time.Now(),
		watchers:  make(map[int]chan model.Message),
	}
}

// run advances the job one step per StepDuration until it completes or
// fails per the script
func (j *job) run() {
	total := len(j.script.Steps)
	for i := 1; i <= total; i++ {
		time.Sleep(j.script.StepDuration)

		j.mu.Lock()
		if j.script.FailAtStep > 0 && i >= j.script.FailAtStep {
			j.status = model.JobFailed
			j.errMessage = j.script.FailMessage
			j.mu.Unlock()
			j.broadcast(model.NewError(j.id, j.script.FailMessage, ""))
			j.closeWatchers()
			return
		}
		j.status = model.JobProcessing
		j.currentStep = i
		msg := model.NewProgress(j.id, model.ProgressPayload{
			Percentage:  float64(i) / float64(total) * 100,
			CurrentStep: i,
			TotalSteps:  total,
			StepName:    j.script.Steps[i-1],
		})
		j.mu.Unlock()
		j.broadcast(msg)
	}

	rows, _ := json.Marshal([][]any{{1, "ok"}})
	result := &model.ResultPayload{
		JobID:       j.id,
		Columns:     []string{"id", "value"},
		Rows:        rows,
		RowCount:    1,
		ElapsedMs:   time.Since(j.startedAt).Milliseconds(),
		CompletedAt: time.Now(),
	}

	j.mu.Lock()
	j.status = model.JobCompleted
	j.result = result
	j.mu.Unlock()
	j.broadcast(model.NewCompletion(j.id, result))
	j.closeWatchers()
}

// statusResponse snapshots the job in status-endpoint shape
func (j *job) statusResponse() model.StatusResponse {
	j.mu.Lock()
	defer j.mu.Unlock()
	total := len(j.script.Steps)
	resp := model.StatusResponse{
		JobID:        j.id,
		Status:       j.status,
		CurrentStep:  j.currentStep,
		TotalSteps:   total,
		ErrorMessage: j.errMessage,
	}
	if total > 0 {
		resp.ProgressPercentage = float64(j.currentStep) / float64(total) * 100
	}
	if j.currentStep > 0 && j.currentStep <= total {
		resp.Message = j.script.Steps[j.currentStep-1]
	}
	return resp
}

// watch registers a message stream; the returned cancel unregisters it
func (j *job) watch() (<-chan model.Message, func()) {
	ch := make(chan model.Message, 16)
	j.mu.Lock()
	id := j.nextWatcher
	j.nextWatcher++
	j.watchers[id] = ch
	j.mu.Unlock()

	return ch, func() {
		j.mu.Lock()
		if _, ok := j.watchers[id]; ok {
			delete(j.watchers, id)
			close(ch)
		}
		j.mu.Unlock()
	}
}

func (j *job) broadcast(msg model.Message) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, ch := range j.watchers {
		select {
		case ch <- msg:
		default: // slow watcher, drop rather than block the script
		}
	}
}

func (j *job) closeWatchers() {
	j.mu.Lock()
	defer j.mu.Unlock()
	for id, ch := range j.watchers {
		delete(j.watchers, id)
		close(ch)
	}
}

// jobStore is an in-memory registry of scripted jobs
type jobStore struct {
	mu   sync.RWMutex
	jobs map[string]*job
}

func newJobStore() *jobStore {
	return &jobStore{jobs: make(map[string]*job)}
}

func (s *jobStore) add(j *job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.id] = j
}

func (s *jobStore) get(id string) (*job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s not found", id)
	}
	return j, nil
}
