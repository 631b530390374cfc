package usecase

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/smartbin/internal/archive"
	"github.com/example/smartbin/internal/camera"
	"github.com/example/smartbin/internal/classifier"
	"github.com/example/smartbin/internal/hardware"
	"github.com/example/smartbin/internal/logging"
)

// State is the pipeline's position within a cycle.
type State int32

const (
	StateIdle State = iota
	StateCapturing
	StateClassifyingRemote
	StateClassifyingLocal
	StateRouting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateClassifyingRemote:
		return "classifying_remote"
	case StateClassifyingLocal:
		return "classifying_local"
	case StateRouting:
		return "routing"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Camera captures still photos.
type Camera interface {
	SetISO(iso int)
	Capture(ctx context.Context, path string) (camera.Photo, error)
}

// Archiver decides whether a classified photo is kept for retraining.
type Archiver interface {
	Archive(ctx context.Context, photo camera.Photo, label classifier.Label) (*archive.Record, error)
}

// CycleRecorder stores the outcome of a completed cycle.
type CycleRecorder interface {
	RecordCycle(ctx context.Context, report *CycleReport) error
}

// PipelineOptions tunes timing and capture parameters.
type PipelineOptions struct {
	CaptureDir   string
	ISO          int
	LEDPulse     time.Duration
	SettleDelay  time.Duration
	PollInterval time.Duration
	UploadScale  float64

	// CaptureTimeout and RecordTimeout bound the camera and bookkeeping calls
	// of a cycle. Zero means no limit.
	CaptureTimeout time.Duration
	RecordTimeout  time.Duration
}

// CycleReport summarises one pass through the pipeline.
type CycleReport struct {
	CycleID    string
	Triggered  bool
	Photo      camera.Photo
	Label      classifier.Label
	Source     classifier.Source
	RemoteErr  error
	LocalErr   error
	Archive    *archive.Record
	ArchiveErr error
	StartedAt  time.Time
	Duration   time.Duration
}

// Decision is the label chosen for a photo plus the remote failure, if any,
// that caused the fallback.
type Decision struct {
	Result    classifier.Result
	RemoteErr error
}

// Decide asks the remote classifier and, only when that fails, the local one.
// onFallback runs once before the local attempt.
func Decide(ctx context.Context, remote, local classifier.Classifier, remotePhoto, localPhoto camera.Photo, onFallback func(err error)) Decision {
	res := classifier.Attempt(ctx, remote, classifier.SourceRemote, remotePhoto)
	if res.OK() {
		return Decision{Result: res}
	}

	if onFallback != nil {
		onFallback(res.Err)
	}
	return Decision{
		Result:    classifier.Attempt(ctx, local, classifier.SourceLocal, localPhoto),
		RemoteErr: res.Err,
	}
}

// Pipeline runs the sense, capture, classify, route loop.
type Pipeline struct {
	board    hardware.Board
	camera   Camera
	remote   classifier.Classifier
	local    classifier.Classifier
	archiver Archiver
	recorder CycleRecorder
	opts     PipelineOptions
	logger   *zap.Logger

	state atomic.Int32
	sleep func(d time.Duration)
	wait  func(ctx context.Context, d time.Duration) bool
	now   func() time.Time
	newID func() string
}

// NewPipeline wires the hardware, camera, classifiers and archive policy.
// recorder may be nil.
func NewPipeline(board hardware.Board, cam Camera, remote, local classifier.Classifier, archiver Archiver, recorder CycleRecorder, opts PipelineOptions, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		board:    board,
		camera:   cam,
		remote:   remote,
		local:    local,
		archiver: archiver,
		recorder: recorder,
		opts:     opts,
		logger:   logger.Named("pipeline"),
		sleep:    time.Sleep,
		wait:     Wait,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// State returns the current pipeline state.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

func (p *Pipeline) setState(s State) {
	if prev := State(p.state.Swap(int32(s))); prev != s {
		p.logger.Debug("state transition", zap.Stringer("from", prev), zap.Stringer("to", s))
	}
}

// Run polls the sensor until ctx is cancelled. Cancellation is only observed
// between cycles.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("waiting for objects",
		zap.Duration("poll_interval", p.opts.PollInterval),
		zap.Duration("settle_delay", p.opts.SettleDelay))

	for {
		if ctx.Err() != nil {
			p.logger.Info("stopping control loop")
			return nil
		}

		report, err := p.RunCycle(ctx)
		if err != nil {
			p.logger.Error("cycle failed", zap.Error(err))
		}

		delay := p.opts.PollInterval
		if report != nil && report.Triggered {
			delay = p.opts.SettleDelay
		}
		if !p.wait(ctx, delay) {
			p.logger.Info("stopping control loop")
			return nil
		}
	}
}

// RunCycle performs a single cycle. When the sensor sees nothing the report
// has Triggered false and nothing else happens. Errors abort only this cycle.
func (p *Pipeline) RunCycle(ctx context.Context) (*CycleReport, error) {
	p.setState(StateIdle)
	near, err := p.board.ObjectNear()
	if err != nil {
		return nil, logging.NewOperationError("pipeline.read_sensor", "", err)
	}
	if !near {
		return &CycleReport{}, nil
	}

	// A started cycle runs to completion on its own timeouts.
	cycleCtx := context.WithoutCancel(ctx)
	report := &CycleReport{
		CycleID:   p.newID(),
		Triggered: true,
		StartedAt: p.now(),
	}
	opLogger := logging.WithOperation(p.logger, "pipeline.cycle", report.CycleID)
	defer p.setState(StateIdle)

	p.setState(StateCapturing)
	p.setLED(opLogger, hardware.StatusLED, true)

	p.camera.SetISO(p.opts.ISO)
	path := filepath.Join(p.opts.CaptureDir, camera.PhotoName(report.StartedAt))
	captureCtx, cancelCapture := withTimeout(cycleCtx, p.opts.CaptureTimeout)
	photo, err := p.camera.Capture(captureCtx, path)
	cancelCapture()
	if err != nil {
		p.setLED(opLogger, hardware.StatusLED, false)
		return report, logging.NewOperationError("pipeline.capture", report.CycleID, err)
	}
	report.Photo = photo
	opLogger.Info("photo captured", zap.String("photo", photo.Path))

	upload := p.uploadCopy(opLogger, photo)
	if upload.Path != photo.Path {
		defer func() {
			if err := camera.RemoveResized(upload); err != nil {
				opLogger.Warn("failed to remove upload copy", zap.Error(err))
			}
		}()
	}

	p.setState(StateClassifyingRemote)
	decision := Decide(cycleCtx, p.remote, p.local, upload, photo, func(err error) {
		opLogger.Warn("remote classification failed, using local model", zap.Error(err))
		p.setState(StateClassifyingLocal)
	})
	p.setLED(opLogger, hardware.StatusLED, false)

	report.RemoteErr = decision.RemoteErr
	report.Source = decision.Result.Source
	report.Label = decision.Result.Label
	if !decision.Result.OK() {
		report.LocalErr = decision.Result.Err
		report.Label = classifier.Unknown
		opLogger.Error("local classification failed", zap.Error(decision.Result.Err))
	}
	opLogger.Info("photo classified",
		zap.Stringer("label", report.Label),
		zap.String("source", string(report.Source)))

	p.setState(StateRouting)
	p.route(opLogger, report.Label)

	record, err := p.archiver.Archive(cycleCtx, photo, report.Label)
	if err != nil {
		report.ArchiveErr = logging.NewOperationError("pipeline.archive", report.CycleID, err)
		opLogger.Error("failed to archive photo", zap.Error(report.ArchiveErr))
	}
	report.Archive = record
	report.Duration = p.now().Sub(report.StartedAt)

	if p.recorder != nil {
		recordCtx, cancelRecord := withTimeout(cycleCtx, p.opts.RecordTimeout)
		if err := p.recorder.RecordCycle(recordCtx, report); err != nil {
			opLogger.Warn("failed to record cycle", zap.Error(err))
		}
		cancelRecord()
	}

	return report, nil
}

// uploadCopy returns the photo to send to the remote classifier, downscaled
// when configured. Resize failures fall back to the original.
func (p *Pipeline) uploadCopy(logger *zap.Logger, photo camera.Photo) camera.Photo {
	if p.opts.UploadScale <= 0 || p.opts.UploadScale >= 1 {
		return photo
	}
	resized, err := photo.Resize(p.opts.UploadScale, 90)
	if err != nil {
		logger.Warn("failed to downscale photo, sending original", zap.Error(err))
		return photo
	}
	return resized
}

func (p *Pipeline) route(logger *zap.Logger, label classifier.Label) {
	var led hardware.LED
	switch label {
	case classifier.Recyclable:
		led = hardware.RecyclableLED
	case classifier.NonRecyclable:
		led = hardware.NonRecyclableLED
	default:
		logger.Info("label unknown, no signal")
		return
	}

	p.setLED(logger, led, true)
	p.sleep(p.opts.LEDPulse)
	p.setLED(logger, led, false)
}

func (p *Pipeline) setLED(logger *zap.Logger, led hardware.LED, on bool) {
	if err := p.board.SetLED(led, on); err != nil {
		logger.Warn("failed to drive LED", zap.Stringer("led", led), zap.Bool("on", on), zap.Error(err))
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

// Wait sleeps for d and reports false if ctx ended first.
func Wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
