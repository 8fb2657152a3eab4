package display

import (
	"errors"
	"runtime"
	"time"

	"github.com/rs/zerolog"

	"github.com/coreman2200/muxmatrix/internal/render"
	"github.com/coreman2200/muxmatrix/internal/sequence"
)

type step int

const (
	stepRender step = iota
	stepRestart
	stepExit
)

// manager is the render goroutine. It alone touches the engine, the grid
// and the animation set.
type manager struct {
	engine *render.Engine
	anims  sequence.Engine
	rx     <-chan instruction
	resume <-chan struct{}
	log    zerolog.Logger

	// instructions that arrived while parked
	backlog []instruction
	lastErr error
}

func (m *manager) run(done chan<- struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(done)
	defer m.teardown()

	m.log.Debug().Msg("render loop started")
	for {
		start := time.Now()
		switch m.drain() {
		case stepExit:
			return
		case stepRestart:
			continue
		}

		m.anims.Tick(start, m.engine.Grid())
		m.report(m.engine.RunOnce(start))
	}
}

// drain applies what is queued right now without waiting for more. At least
// one receive is attempted so a closed channel is noticed on an idle loop.
func (m *manager) drain() step {
	for len(m.backlog) > 0 {
		ins := m.backlog[0]
		m.backlog = m.backlog[1:]
		if s := m.apply(ins); s != stepRender {
			return s
		}
	}

	n := len(m.rx)
	if n == 0 {
		n = 1
	}
	for i := 0; i < n; i++ {
		select {
		case ins, ok := <-m.rx:
			if !ok {
				m.log.Error().Msg("display handle dropped without stop, stopping render loop")
				return stepExit
			}
			if s := m.apply(ins); s != stepRender {
				return s
			}
		default:
			return stepRender
		}
	}
	return stepRender
}

func (m *manager) apply(ins instruction) step {
	switch v := ins.(type) {
	case pauseInstruction:
		return m.park()
	case stopInstruction:
		m.log.Debug().Msg("stop received")
		return stepExit
	case syncInstruction:
		if err := m.engine.Sync(v.cmd); err != nil {
			m.log.Warn().Err(err).Msg("sync rejected")
		}
	case addAnimationInstruction:
		m.anims.Add(v.a)
		m.log.Debug().Int("active", m.anims.Len()).Msg("animation added")
	case clearAnimationsInstruction:
		m.anims.Clear()
		m.log.Debug().Msg("animations cleared")
	}
	return stepRender
}

// park is the single suspension point of the loop.
func (m *manager) park() step {
	m.log.Debug().Msg("paused")
	for {
		select {
		case <-m.resume:
			m.log.Debug().Msg("resumed")
			return stepRestart
		case ins, ok := <-m.rx:
			if !ok {
				m.log.Error().Msg("display handle dropped while paused, stopping render loop")
				return stepExit
			}
			m.backlog = append(m.backlog, ins)
		}
	}
}

// report logs render errors when they change rather than every pass.
func (m *manager) report(err error) {
	if err == nil || errors.Is(err, m.lastErr) {
		m.lastErr = err
		return
	}
	m.lastErr = err
	m.log.Error().Err(err).Msg("render pass failed")
}

func (m *manager) teardown() {
	m.engine.ClearRow()
	if err := m.engine.Close(); err != nil {
		m.log.Warn().Err(err).Msg("hardware teardown incomplete")
	}
	m.log.Debug().Msg("render loop stopped")
}
