package display

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"

	"github.com/coreman2200/muxmatrix/internal/line/linetest"
	"github.com/coreman2200/muxmatrix/internal/model"
	"github.com/coreman2200/muxmatrix/internal/render"
	"github.com/coreman2200/muxmatrix/internal/sequence"
)

// watchMirror records every frame the render goroutine shows.
type watchMirror struct {
	mu    sync.Mutex
	last  []model.LedColor
	count int
}

func (w *watchMirror) Due(time.Time) bool { return true }

func (w *watchMirror) Show(_, _ int, c []model.LedColor) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.last = append(w.last[:0], c...)
	w.count++
	return nil
}

func (w *watchMirror) frame() []model.LedColor {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]model.LedColor(nil), w.last...)
}

func (w *watchMirror) shown() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

func start(t *testing.T, w, h int) (*Running, *watchMirror, *linetest.Recorder) {
	t.Helper()
	rec := linetest.New()
	m := &watchMirror{}
	r, err := New("test", w, h).Start(1000, DefaultPins(),
		WithLines(rec), WithSettle(0), WithMirror(m))
	require.NoError(t, err)
	return r, m, rec
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	assert.Eventually(t, cond, 2*time.Second, time.Millisecond, msg)
}

func TestSyncReachesGrid(t *testing.T) {
	r, m, _ := start(t, 2, 2)
	defer r.Stop()

	require.NoError(t, r.Sync(model.Fill(2, 2, model.Solid(model.Red))))
	require.NoError(t, r.Sync(model.Single{X: 1, Y: 1, State: model.Solid(model.Blue)}))

	want := []model.LedColor{model.Red, model.Red, model.Red, model.Blue}
	eventually(t, func() bool { return assert.ObjectsAreEqual(want, m.frame()) }, "grid shows synced colors")
}

func TestInvalidSyncNeverSent(t *testing.T) {
	r, m, _ := start(t, 2, 2)
	defer r.Stop()

	assert.ErrorIs(t, r.Sync(model.Single{X: 2, Y: 0, State: model.Solid(model.Red)}), model.ErrInvalidDim)
	assert.ErrorIs(t, r.Sync(model.Fill(3, 2, model.Solid(model.Red))), model.ErrInvalidDim)
	assert.ErrorIs(t, r.Sync(model.Single{State: model.Blinking(model.Red, time.Second, time.Millisecond)}), model.ErrBlinkInvariant)

	// A valid marker after the rejected commands proves ordering.
	require.NoError(t, r.Sync(model.Single{X: 0, Y: 0, State: model.Solid(model.Green)}))
	want := []model.LedColor{model.Green, model.Off, model.Off, model.Off}
	eventually(t, func() bool { return assert.ObjectsAreEqual(want, m.frame()) }, "only the valid command applied")
}

func TestRotateNonSquareRejected(t *testing.T) {
	r, _, _ := start(t, 3, 2)
	defer r.Stop()
	assert.ErrorIs(t, r.Sync(model.Rotate{Direction: model.Clockwise}), model.ErrNonSquareRotation)
	assert.NoError(t, r.Sync(model.Rotate{Direction: model.OneEighty}))
}

func TestHandlesAreConsumed(t *testing.T) {
	s := New("consume", 2, 2)
	r, err := s.Start(1000, DefaultPins(), WithLines(linetest.New()), WithSettle(0))
	require.NoError(t, err)

	_, err = s.Start(1000, DefaultPins(), WithLines(linetest.New()))
	assert.ErrorIs(t, err, ErrHandleConsumed)

	p, err := r.Pause()
	require.NoError(t, err)
	assert.ErrorIs(t, r.Sync(model.Single{}), ErrHandleConsumed)
	_, err = r.Stop()
	assert.ErrorIs(t, err, ErrHandleConsumed)

	r2, err := p.Resume()
	require.NoError(t, err)
	_, err = p.Resume()
	assert.ErrorIs(t, err, ErrHandleConsumed)

	stopped, err := r2.Stop()
	require.NoError(t, err)
	assert.Equal(t, "stopped", stopped.State())
	assert.ErrorIs(t, r2.AddAnimation(nil), ErrHandleConsumed)
	assert.ErrorIs(t, r2.ClearAnimations(), ErrHandleConsumed)
}

func TestPauseSuspendsRendering(t *testing.T) {
	r, m, _ := start(t, 1, 1)
	eventually(t, func() bool { return m.shown() > 0 }, "rendering")

	p, err := r.Pause()
	require.NoError(t, err)
	assert.Equal(t, "paused", p.State())

	// Let the pause land, then make sure no pass runs.
	time.Sleep(20 * time.Millisecond)
	n := m.shown()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, m.shown(), "no passes while paused")

	r, err = p.Resume()
	require.NoError(t, err)
	eventually(t, func() bool { return m.shown() > n }, "rendering resumed")

	_, err = r.Stop()
	require.NoError(t, err)
}

func TestStopLeavesHardwareDark(t *testing.T) {
	r, _, rec := start(t, 2, 2)
	require.NoError(t, r.Sync(model.Fill(2, 2, model.Solid(model.White))))

	begin := time.Now()
	s, err := r.Stop()
	require.NoError(t, err)
	assert.Less(t, time.Since(begin), time.Second)

	assert.Equal(t, "test", s.ID())
	assert.Equal(t, gpio.High, rec.Level(DefaultPins().SrOE), "row outputs disabled")
	assert.True(t, rec.Closed(), "lines released")

	select {
	case <-r.Done():
	default:
		t.Fatal("render goroutine still running after Stop")
	}
}

func TestRestartAfterStop(t *testing.T) {
	r, _, _ := start(t, 2, 2)
	s, err := r.Stop()
	require.NoError(t, err)

	r, err = s.Start(1000, DefaultPins(), WithLines(linetest.New()), WithSettle(0))
	require.NoError(t, err)
	assert.Equal(t, "running", r.State())
	_, err = r.Stop()
	require.NoError(t, err)
}

func TestStartFailureKeepsStopped(t *testing.T) {
	rec := linetest.New()
	rec.RefuseAcquire = map[int]bool{DefaultPins().DecA1: true}
	s := New("fail", 2, 2)

	_, err := s.Start(60, DefaultPins(), WithLines(rec))
	assert.ErrorIs(t, err, render.ErrLineInit)

	r, err := s.Start(60, DefaultPins(), WithLines(linetest.New()), WithSettle(0), WithQueue(0))
	require.NoError(t, err, "stopped handle survives a failed start")
	_, err = r.Stop()
	require.NoError(t, err)

	_, err = New("tall", 2, 9).Start(60, DefaultPins(), WithLines(linetest.New()))
	assert.ErrorIs(t, err, render.ErrInvalidConfig)
}

func TestAddAnimation(t *testing.T) {
	r, m, _ := start(t, 2, 1)
	defer r.Stop()

	bad, err := sequence.New(false, []sequence.Frame{
		sequence.NewFrame(time.Millisecond, []model.Cell{{X: 5, Y: 0, State: model.Solid(model.Red)}}, false),
	}, 0, false)
	require.NoError(t, err)
	assert.ErrorIs(t, r.AddAnimation(bad), model.ErrInvalidDim)

	a, err := sequence.New(false, []sequence.Frame{
		sequence.NewFrame(5*time.Millisecond, []model.Cell{{X: 0, Y: 0, State: model.Solid(model.Red)}}, true),
		sequence.NewFrame(5*time.Millisecond, []model.Cell{{X: 1, Y: 0, State: model.Solid(model.Yellow)}}, true),
	}, 0, true)
	require.NoError(t, err)
	require.NoError(t, r.AddAnimation(a))

	want := []model.LedColor{model.Off, model.Yellow}
	eventually(t, func() bool { return assert.ObjectsAreEqual(want, m.frame()) }, "keep-last frame persists")
	assert.Equal(t, 0, a.ActiveFrame(), "caller's animation is not shared with the render goroutine")
}

func newManager(t *testing.T) (*manager, chan instruction, chan struct{}, *watchMirror) {
	m := &watchMirror{}
	eng, err := render.New(render.Config{
		Width: 1, Height: 1, Refresh: 2000,
		Row: DefaultPins().row(), Column: DefaultPins().column(),
		Lines: linetest.New(), Mirror: m,
	})
	require.NoError(t, err)
	rx := make(chan instruction, 8)
	resume := make(chan struct{}, 1)
	return &manager{engine: eng, rx: rx, resume: resume, log: zerolog.Nop()}, rx, resume, m
}

func TestClosedChannelStopsLoop(t *testing.T) {
	mgr, rx, _, _ := newManager(t)
	done := make(chan struct{})
	go mgr.run(done)

	close(rx)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("render loop kept running on a closed channel")
	}
}

func TestClosedChannelWhileParked(t *testing.T) {
	mgr, rx, _, _ := newManager(t)
	done := make(chan struct{})
	rx <- pauseInstruction{}
	go mgr.run(done)

	time.Sleep(10 * time.Millisecond)
	close(rx)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("parked loop did not notice the closed channel")
	}
}

func TestDrainAppliesInOrder(t *testing.T) {
	mgr, rx, resume, _ := newManager(t)

	a, err := sequence.New(true, []sequence.Frame{sequence.NewFrame(time.Second, nil, false)}, 0, false)
	require.NoError(t, err)

	rx <- addAnimationInstruction{a: a}
	rx <- addAnimationInstruction{a: a.Clone()}
	rx <- clearAnimationsInstruction{}
	rx <- addAnimationInstruction{a: a.Clone()}
	assert.Equal(t, stepRender, mgr.drain())
	assert.Equal(t, 1, mgr.anims.Len())

	rx <- syncInstruction{cmd: model.Single{State: model.Solid(model.Cyan)}}
	rx <- stopInstruction{}
	rx <- syncInstruction{cmd: model.Single{State: model.Solid(model.Red)}}
	assert.Equal(t, stepExit, mgr.drain())
	assert.Equal(t, model.Cyan, mgr.engine.Grid().At(0, 0).Color, "nothing applied after stop")

	resume <- struct{}{}
	rx <- pauseInstruction{}
	assert.Equal(t, stepRestart, mgr.drain(), "pause restarts the iteration on wake")
	assert.Equal(t, stepRender, mgr.drain())
	assert.Equal(t, model.Red, mgr.engine.Grid().At(0, 0).Color)
}

func TestCallerEditsAfterSyncStayLocal(t *testing.T) {
	r, m, _ := start(t, 2, 1)
	defer r.Stop()

	s := model.Blinking(model.Red, time.Hour, time.Hour)
	require.NoError(t, r.Sync(model.Single{X: 0, Y: 0, State: s}))

	a, err := sequence.New(true, []sequence.Frame{
		sequence.NewFrame(time.Hour, []model.Cell{{X: 1, Y: 0, State: model.Blinking(model.Blue, time.Hour, time.Hour)}}, false),
	}, 0, false)
	require.NoError(t, err)
	require.NoError(t, r.AddAnimation(a))

	want := []model.LedColor{model.Red, model.Blue}
	eventually(t, func() bool { return assert.ObjectsAreEqual(want, m.frame()) }, "both cells lit")

	// With the blink shared, on-time 0 would turn both cells off.
	s.Blink.On = 0
	a.Frames()[0].Cells[0].State.Blink.On = 0
	a.Frames()[0].Cells[0].State.Blink.Period = time.Microsecond

	n := m.shown()
	eventually(t, func() bool { return m.shown() > n+2 }, "rendering continues")
	assert.Equal(t, want, m.frame())
}
