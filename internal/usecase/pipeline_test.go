package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/example/smartbin/internal/archive"
	"github.com/example/smartbin/internal/camera"
	"github.com/example/smartbin/internal/classifier"
	"github.com/example/smartbin/internal/hardware"
)

type ledEvent struct {
	led hardware.LED
	on  bool
}

type stubBoard struct {
	readings []bool
	readErr  error
	events   []ledEvent
}

func (b *stubBoard) ObjectNear() (bool, error) {
	if b.readErr != nil {
		return false, b.readErr
	}
	if len(b.readings) == 0 {
		return false, nil
	}
	near := b.readings[0]
	b.readings = b.readings[1:]
	return near, nil
}

func (b *stubBoard) SetLED(led hardware.LED, on bool) error {
	b.events = append(b.events, ledEvent{led: led, on: on})
	return nil
}

func (b *stubBoard) Close() error { return nil }

type stubCamera struct {
	iso      int
	captures []string
	err      error
	observe  func()
}

func (c *stubCamera) SetISO(iso int) { c.iso = iso }

func (c *stubCamera) Capture(ctx context.Context, path string) (camera.Photo, error) {
	c.captures = append(c.captures, path)
	if c.observe != nil {
		c.observe()
	}
	if c.err != nil {
		return camera.Photo{}, c.err
	}
	if err := os.WriteFile(path, []byte("jpeg"), 0o644); err != nil {
		return camera.Photo{}, err
	}
	return camera.Photo{Path: path, Resolution: camera.Resolution{Width: 1024, Height: 768}, ISO: c.iso}, nil
}

type stubClassifier struct {
	label   classifier.Label
	err     error
	calls   int
	photos  []string
	observe func()
}

func (s *stubClassifier) Classify(ctx context.Context, photo camera.Photo) (classifier.Label, error) {
	s.calls++
	s.photos = append(s.photos, photo.Path)
	if s.observe != nil {
		s.observe()
	}
	return s.label, s.err
}

type stubProbe struct {
	online bool
	calls  int
}

func (p *stubProbe) IsOnline(ctx context.Context) bool {
	p.calls++
	return p.online
}

type stubRecorder struct {
	reports []*CycleReport
	err     error
}

func (r *stubRecorder) RecordCycle(ctx context.Context, report *CycleReport) error {
	r.reports = append(r.reports, report)
	return r.err
}

type pipelineFixture struct {
	pipeline *Pipeline
	board    *stubBoard
	camera   *stubCamera
	remote   *stubClassifier
	local    *stubClassifier
	probe    *stubProbe
	recorder *stubRecorder
	captures string
	archive  string
	sleeps   []time.Duration
}

var fixedNow = time.Unix(1700000000, 0)

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	base := t.TempDir()
	f := &pipelineFixture{
		board:    &stubBoard{readings: []bool{true}},
		camera:   &stubCamera{},
		remote:   &stubClassifier{},
		local:    &stubClassifier{},
		probe:    &stubProbe{online: true},
		recorder: &stubRecorder{},
		captures: base,
		archive:  filepath.Join(base, "data-collection"),
	}
	policy := archive.NewPolicy(f.archive, f.probe, zap.NewNop())
	f.pipeline = NewPipeline(f.board, f.camera, f.remote, f.local, policy, f.recorder, PipelineOptions{
		CaptureDir:   f.captures,
		ISO:          300,
		LEDPulse:     time.Second,
		SettleDelay:  300 * time.Millisecond,
		PollInterval: 100 * time.Millisecond,
		UploadScale:  1,
	}, zap.NewNop())
	f.pipeline.sleep = func(d time.Duration) { f.sleeps = append(f.sleeps, d) }
	f.pipeline.now = func() time.Time { return fixedNow }
	f.pipeline.newID = func() string { return "cycle-1" }
	return f
}

func (f *pipelineFixture) photoPath() string {
	return filepath.Join(f.captures, camera.PhotoName(fixedNow))
}

func assertEvents(t *testing.T, got []ledEvent, want ...ledEvent) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected LED events %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("LED event %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestRunCycleRemoteRecyclableOnline(t *testing.T) {
	f := newPipelineFixture(t)
	f.remote.label = classifier.Recyclable

	report, err := f.pipeline.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Label != classifier.Recyclable || report.Source != classifier.SourceRemote {
		t.Fatalf("unexpected outcome: %s from %s", report.Label, report.Source)
	}
	if f.local.calls != 0 {
		t.Fatalf("expected local model to be skipped, got %d calls", f.local.calls)
	}
	assertEvents(t, f.board.events,
		ledEvent{hardware.StatusLED, true},
		ledEvent{hardware.StatusLED, false},
		ledEvent{hardware.RecyclableLED, true},
		ledEvent{hardware.RecyclableLED, false},
	)
	if len(f.sleeps) != 1 || f.sleeps[0] != time.Second {
		t.Fatalf("expected a single one second pulse, got %v", f.sleeps)
	}
	if report.Archive != nil {
		t.Fatalf("expected no archive while online, got %+v", report.Archive)
	}
	if _, err := os.Stat(f.photoPath()); err != nil {
		t.Fatalf("expected photo to stay in place: %v", err)
	}
	if f.camera.iso != 300 {
		t.Fatalf("expected ISO 300, got %d", f.camera.iso)
	}
}

func TestRunCycleFallsBackAndArchivesOffline(t *testing.T) {
	f := newPipelineFixture(t)
	f.remote.err = fmt.Errorf("%w: deadline exceeded", classifier.ErrClassify)
	f.local.label = classifier.NonRecyclable
	f.probe.online = false

	report, err := f.pipeline.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.local.calls != 1 {
		t.Fatalf("expected exactly one local attempt, got %d", f.local.calls)
	}
	if report.Label != classifier.NonRecyclable || report.Source != classifier.SourceLocal {
		t.Fatalf("unexpected outcome: %s from %s", report.Label, report.Source)
	}
	if !errors.Is(report.RemoteErr, classifier.ErrClassify) {
		t.Fatalf("expected remote error to be kept, got %v", report.RemoteErr)
	}

	want := filepath.Join(f.archive, archive.NonRecyclableDir, camera.PhotoName(fixedNow))
	if report.Archive == nil || report.Archive.Destination != want {
		t.Fatalf("expected archive to %s, got %+v", want, report.Archive)
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("expected archived photo: %v", err)
	}
	if _, err := os.Stat(f.photoPath()); !os.IsNotExist(err) {
		t.Fatalf("expected source photo to be gone, got %v", err)
	}
	assertEvents(t, f.board.events,
		ledEvent{hardware.StatusLED, true},
		ledEvent{hardware.StatusLED, false},
		ledEvent{hardware.NonRecyclableLED, true},
		ledEvent{hardware.NonRecyclableLED, false},
	)
}

func TestRunCycleNoObject(t *testing.T) {
	f := newPipelineFixture(t)
	f.board.readings = []bool{false}

	report, err := f.pipeline.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Triggered {
		t.Fatal("expected untriggered report")
	}
	if len(f.camera.captures) != 0 || f.remote.calls != 0 || f.local.calls != 0 {
		t.Fatal("expected no capture or classification")
	}
	if len(f.board.events) != 0 {
		t.Fatalf("expected no LED changes, got %v", f.board.events)
	}
	if len(f.recorder.reports) != 0 {
		t.Fatal("expected nothing recorded")
	}
}

func TestRunCycleUnknownLabelSkipsSignalAndArchive(t *testing.T) {
	f := newPipelineFixture(t)
	f.remote.label = classifier.Unknown
	f.probe.online = false

	report, err := f.pipeline.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Label != classifier.Unknown {
		t.Fatalf("expected unknown, got %s", report.Label)
	}
	if f.local.calls != 0 {
		t.Fatal("an unrecognised remote answer must not trigger the fallback")
	}
	if f.probe.calls != 0 {
		t.Fatalf("expected no connectivity check, got %d", f.probe.calls)
	}
	if report.Archive != nil {
		t.Fatal("expected no archive for unknown label")
	}
	assertEvents(t, f.board.events,
		ledEvent{hardware.StatusLED, true},
		ledEvent{hardware.StatusLED, false},
	)
	if len(f.sleeps) != 0 {
		t.Fatalf("expected no pulse, got %v", f.sleeps)
	}
}

func TestRunCycleBothClassifiersFail(t *testing.T) {
	f := newPipelineFixture(t)
	f.remote.err = classifier.ErrClassify
	f.local.err = classifier.ErrInvalidImage

	report, err := f.pipeline.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("expected failure to stay inside the cycle, got %v", err)
	}
	if report.Label != classifier.Unknown {
		t.Fatalf("expected unknown, got %s", report.Label)
	}
	if !errors.Is(report.LocalErr, classifier.ErrInvalidImage) {
		t.Fatalf("expected local error, got %v", report.LocalErr)
	}
	if f.remote.calls != 1 || f.local.calls != 1 {
		t.Fatalf("expected one attempt each, got remote=%d local=%d", f.remote.calls, f.local.calls)
	}
	assertEvents(t, f.board.events,
		ledEvent{hardware.StatusLED, true},
		ledEvent{hardware.StatusLED, false},
	)
	if len(f.recorder.reports) != 1 {
		t.Fatal("expected failed cycle to be recorded")
	}
}

func TestRunCycleCaptureFailure(t *testing.T) {
	f := newPipelineFixture(t)
	f.camera.err = camera.ErrCapture

	_, err := f.pipeline.RunCycle(context.Background())
	if !errors.Is(err, camera.ErrCapture) {
		t.Fatalf("expected capture error, got %v", err)
	}
	if f.remote.calls != 0 || f.local.calls != 0 {
		t.Fatal("expected no classification after failed capture")
	}
	assertEvents(t, f.board.events,
		ledEvent{hardware.StatusLED, true},
		ledEvent{hardware.StatusLED, false},
	)
	if f.pipeline.State() != StateIdle {
		t.Fatalf("expected idle after failure, got %s", f.pipeline.State())
	}
}

func TestRunCycleStateTransitions(t *testing.T) {
	f := newPipelineFixture(t)
	f.remote.err = classifier.ErrClassify
	f.local.label = classifier.Recyclable

	var seen []State
	observe := func() { seen = append(seen, f.pipeline.State()) }
	f.camera.observe = observe
	f.remote.observe = observe
	f.local.observe = observe

	if _, err := f.pipeline.RunCycle(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []State{StateCapturing, StateClassifyingRemote, StateClassifyingLocal}
	if len(seen) != len(want) {
		t.Fatalf("expected states %v, got %v", want, seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("state %d: expected %s, got %s", i, want[i], seen[i])
		}
	}
	if f.pipeline.State() != StateIdle {
		t.Fatalf("expected idle after cycle, got %s", f.pipeline.State())
	}
}

func TestRunCycleRecorderFailureIsNotFatal(t *testing.T) {
	f := newPipelineFixture(t)
	f.remote.label = classifier.Recyclable
	f.recorder.err = errors.New("database down")

	report, err := f.pipeline.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.CycleID != "cycle-1" {
		t.Fatalf("unexpected cycle id %q", report.CycleID)
	}
}

func TestRunCycleIgnoresCancelledContext(t *testing.T) {
	f := newPipelineFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var remoteCtxErr error
	remote := &ctxCheckingClassifier{label: classifier.NonRecyclable, seen: &remoteCtxErr}
	f.pipeline.remote = remote

	report, err := f.pipeline.RunCycle(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if remoteCtxErr != nil {
		t.Fatalf("expected cycle context to survive cancellation, got %v", remoteCtxErr)
	}
	if report.Label != classifier.NonRecyclable {
		t.Fatalf("expected cycle to complete, got %s", report.Label)
	}
}

type ctxCheckingClassifier struct {
	label classifier.Label
	seen  *error
}

func (c *ctxCheckingClassifier) Classify(ctx context.Context, photo camera.Photo) (classifier.Label, error) {
	*c.seen = ctx.Err()
	return c.label, nil
}

func TestRunStopsBetweenCycles(t *testing.T) {
	f := newPipelineFixture(t)
	f.board.readings = []bool{false, true, false}
	f.remote.label = classifier.Recyclable

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var delays []time.Duration
	f.pipeline.wait = func(ctx context.Context, d time.Duration) bool {
		delays = append(delays, d)
		if len(delays) == 3 {
			cancel()
		}
		return ctx.Err() == nil
	}

	if err := f.pipeline.Run(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []time.Duration{100 * time.Millisecond, 300 * time.Millisecond, 100 * time.Millisecond}
	if len(delays) != len(want) {
		t.Fatalf("expected delays %v, got %v", want, delays)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("delay %d: expected %s, got %s", i, want[i], delays[i])
		}
	}
	if f.remote.calls != 1 {
		t.Fatalf("expected one classification, got %d", f.remote.calls)
	}
}

func TestRunSurvivesSensorErrors(t *testing.T) {
	f := newPipelineFixture(t)
	f.board.readErr = hardware.ErrHardware

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	calls := 0
	f.pipeline.wait = func(ctx context.Context, d time.Duration) bool {
		calls++
		if calls == 2 {
			cancel()
		}
		return ctx.Err() == nil
	}

	if err := f.pipeline.Run(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected loop to keep polling after errors, got %d waits", calls)
	}
}

func TestDecideUsesRemoteWhenAvailable(t *testing.T) {
	remote := &stubClassifier{label: classifier.NonRecyclable}
	local := &stubClassifier{label: classifier.Recyclable}
	fellBack := false

	decision := Decide(context.Background(), remote, local, camera.Photo{Path: "small.jpg"}, camera.Photo{Path: "full.jpg"}, func(error) { fellBack = true })
	if fellBack || local.calls != 0 {
		t.Fatal("expected no fallback")
	}
	if decision.Result.Label != classifier.NonRecyclable || decision.RemoteErr != nil {
		t.Fatalf("unexpected decision %+v", decision)
	}
	if remote.photos[0] != "small.jpg" {
		t.Fatalf("expected remote to receive upload copy, got %s", remote.photos[0])
	}
}

func TestDecideSendsOriginalToLocal(t *testing.T) {
	remote := &stubClassifier{err: classifier.ErrClassify}
	local := &stubClassifier{label: classifier.Recyclable}

	decision := Decide(context.Background(), remote, local, camera.Photo{Path: "small.jpg"}, camera.Photo{Path: "full.jpg"}, nil)
	if decision.Result.Source != classifier.SourceLocal || decision.Result.Label != classifier.Recyclable {
		t.Fatalf("unexpected decision %+v", decision)
	}
	if local.photos[0] != "full.jpg" {
		t.Fatalf("expected local to receive original, got %s", local.photos[0])
	}
}

type blockingCamera struct {
	started     chan struct{}
	hadDeadline bool
}

func (c *blockingCamera) SetISO(int) {}

func (c *blockingCamera) Capture(ctx context.Context, path string) (camera.Photo, error) {
	_, c.hadDeadline = ctx.Deadline()
	close(c.started)
	<-ctx.Done()
	return camera.Photo{}, fmt.Errorf("%w: %v", camera.ErrCapture, ctx.Err())
}

func TestRunReturnsAfterCancelWhenCaptureHangs(t *testing.T) {
	f := newPipelineFixture(t)
	cam := &blockingCamera{started: make(chan struct{})}
	f.pipeline.camera = cam
	f.pipeline.opts.CaptureTimeout = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- f.pipeline.Run(ctx) }()

	select {
	case <-cam.started:
	case <-time.After(2 * time.Second):
		t.Fatal("capture did not start")
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("control loop did not stop after cancellation")
	}
	if !cam.hadDeadline {
		t.Fatal("expected capture to run with a deadline")
	}
}

type blockingRecorder struct {
	hadDeadline bool
}

func (r *blockingRecorder) RecordCycle(ctx context.Context, report *CycleReport) error {
	_, r.hadDeadline = ctx.Deadline()
	<-ctx.Done()
	return ctx.Err()
}

func TestRunCycleBoundsRecording(t *testing.T) {
	f := newPipelineFixture(t)
	f.remote.label = classifier.Recyclable
	recorder := &blockingRecorder{}
	f.pipeline.recorder = recorder
	f.pipeline.opts.RecordTimeout = 50 * time.Millisecond

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := f.pipeline.RunCycle(context.Background()); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("cycle blocked on a stalled recorder")
	}
	if !recorder.hadDeadline {
		t.Fatal("expected recording to run with a deadline")
	}
}

func TestRunCycleLogsStateTransitions(t *testing.T) {
	f := newPipelineFixture(t)
	f.remote.err = classifier.ErrClassify
	f.local.label = classifier.Recyclable
	core, logs := observer.New(zap.DebugLevel)
	f.pipeline.logger = zap.New(core)

	if _, err := f.pipeline.RunCycle(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got []string
	for _, entry := range logs.FilterMessage("state transition").All() {
		got = append(got, entry.ContextMap()["to"].(string))
	}
	want := []string{"capturing", "classifying_remote", "classifying_local", "routing", "idle"}
	if len(got) != len(want) {
		t.Fatalf("expected transitions %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("transition %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	if !Wait(ctx, time.Millisecond) {
		t.Fatal("expected wait to complete")
	}
	cancel()
	start := time.Now()
	if Wait(ctx, time.Hour) {
		t.Fatal("expected wait to stop on cancellation")
	}
	if time.Since(start) > time.Second {
		t.Fatal("wait ignored cancellation")
	}
}
