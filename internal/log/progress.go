package log

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ProgressIndicator reports completion of a fixed number of work items.
// Safe for concurrent Increment calls from worker goroutines.
type ProgressIndicator struct {
	mu        sync.Mutex
	name      string
	total     int
	current   int
	every     int // Log every N completions
	startTime time.Time
	now       func() time.Time
	done      bool
}

// ProgressConfig configures progress indicator behavior
type ProgressConfig struct {
	Enabled    bool
	Milestones int // Number of intermediate log lines, 10 by default
	Level      zerolog.Level
}

// DefaultProgressConfig logs ten milestones at info
func DefaultProgressConfig() ProgressConfig {
	return ProgressConfig{Enabled: true, Milestones: 10, Level: zerolog.InfoLevel}
}

// QuietProgressConfig logs only start and finish, at debug
func QuietProgressConfig() ProgressConfig {
	return ProgressConfig{Enabled: true, Milestones: 0, Level: zerolog.DebugLevel}
}

// NewProgressIndicator creates a new progress indicator
func NewProgressIndicator(name string, total int, config ProgressConfig) *ProgressIndicator {
	every := 0
	if config.Milestones > 0 && total > 0 {
		every = total / config.Milestones
		if every < 1 {
			every = 1
		}
	}
	pi := &ProgressIndicator{
		name:      name,
		total:     total,
		every:     every,
		startTime: time.Now(),
		now:       time.Now,
		done:      !config.Enabled,
	}
	if config.Enabled {
		log.WithLevel(config.Level).Str("task", name).Int("total", total).Msg("Started")
	}
	return pi
}

// Increment advances progress by one item
func (pi *ProgressIndicator) Increment() {
	pi.mu.Lock()
	defer pi.mu.Unlock()

	pi.current++
	if pi.done || pi.every == 0 || pi.current%pi.every != 0 || pi.current >= pi.total {
		return
	}

	elapsed := pi.now().Sub(pi.startTime)
	evt := log.Info().
		Str("task", pi.name).
		Int("done", pi.current).
		Int("total", pi.total).
		Float64("pct", float64(pi.current)/float64(pi.total)*100)
	if elapsed > 0 {
		rate := float64(pi.current) / elapsed.Seconds()
		eta := time.Duration(float64(pi.total-pi.current)/rate) * time.Second
		evt = evt.Dur("eta", eta.Round(time.Second))
	}
	evt.Msg("Progress")
}

// Current returns the number of completed items
func (pi *ProgressIndicator) Current() int {
	pi.mu.Lock()
	defer pi.mu.Unlock()
	return pi.current
}

// Finish logs completion; later calls are no-ops
func (pi *ProgressIndicator) Finish() {
	pi.mu.Lock()
	defer pi.mu.Unlock()

	if pi.done {
		return
	}
	pi.done = true
	log.Info().
		Str("task", pi.name).
		Int("done", pi.current).
		Int("total", pi.total).
		Dur("duration", pi.now().Sub(pi.startTime).Round(time.Millisecond)).
		Msg("Completed")
}

// Fail logs failure; later calls are no-ops
func (pi *ProgressIndicator) Fail(err error) {
	pi.mu.Lock()
	defer pi.mu.Unlock()

	if pi.done {
		return
	}
	pi.done = true
	log.Error().
		Err(err).
		Str("task", pi.name).
		Int("done", pi.current).
		Int("total", pi.total).
		Msg("Failed")
}

// StepLogger provides step-by-step progress logging for multi-stage runs
type StepLogger struct {
	name        string
	steps       []string
	currentStep int
	stepStart   time.Time
	startTime   time.Time
	stepTimes   []time.Duration
}

// NewStepLogger creates a new step logger
func NewStepLogger(name string, steps []string) *StepLogger {
	return &StepLogger{
		name:        name,
		steps:       steps,
		currentStep: -1,
		startTime:   time.Now(),
		stepTimes:   make([]time.Duration, len(steps)),
	}
}

// StartStep closes the running step and begins stepName
func (sl *StepLogger) StartStep(stepName string) {
	stepIndex := -1
	for i, step := range sl.steps {
		if step == stepName {
			stepIndex = i
			break
		}
	}

	if stepIndex == -1 {
		log.Warn().Str("run", sl.name).Str("step", stepName).Msg("Unknown step")
		return
	}

	sl.CompleteStep()
	sl.currentStep = stepIndex
	sl.stepStart = time.Now()

	log.Debug().
		Str("run", sl.name).
		Str("step", stepName).
		Int("step_number", stepIndex+1).
		Int("total_steps", len(sl.steps)).
		Msg("Starting step")
}

// CompleteStep records the duration of the running step
func (sl *StepLogger) CompleteStep() {
	if sl.currentStep < 0 || sl.stepStart.IsZero() {
		return
	}
	d := time.Since(sl.stepStart)
	sl.stepTimes[sl.currentStep] = d
	sl.stepStart = time.Time{}

	log.Debug().
		Str("run", sl.name).
		Str("step", sl.steps[sl.currentStep]).
		Dur("duration", d).
		Msg("Step completed")
}

// StepTimes returns the recorded per-step durations in declaration order
func (sl *StepLogger) StepTimes() map[string]time.Duration {
	out := make(map[string]time.Duration, len(sl.steps))
	for i, step := range sl.steps {
		out[step] = sl.stepTimes[i]
	}
	return out
}

// Finish completes the step logger and logs the timing summary
func (sl *StepLogger) Finish() {
	sl.CompleteStep()
	total := time.Since(sl.startTime)

	evt := log.Info().Str("run", sl.name).Dur("total_duration", total)
	for i, step := range sl.steps {
		evt = evt.Dur(step, sl.stepTimes[i])
	}
	evt.Msg("Run completed")
}

// Fail marks the step logger as failed
func (sl *StepLogger) Fail(err error) {
	log.Error().
		Err(err).
		Str("run", sl.name).
		Str("failed_step", sl.currentStepName()).
		Int("completed_steps", sl.currentStep).
		Int("total_steps", len(sl.steps)).
		Msg("Run failed")
}

func (sl *StepLogger) currentStepName() string {
	if sl.currentStep >= 0 && sl.currentStep < len(sl.steps) {
		return sl.steps[sl.currentStep]
	}
	return "unknown"
}
