package display

import (
	"github.com/coreman2200/muxmatrix/internal/model"
	"github.com/coreman2200/muxmatrix/internal/sequence"
)

// instruction is a message from a handle to the render goroutine.
type instruction interface {
	isInstruction()
}

type (
	pauseInstruction           struct{}
	stopInstruction            struct{}
	syncInstruction            struct{ cmd model.Sync }
	addAnimationInstruction    struct{ a *sequence.Animation }
	clearAnimationsInstruction struct{}
)

func (pauseInstruction) isInstruction()           {}
func (stopInstruction) isInstruction()            {}
func (syncInstruction) isInstruction()            {}
func (addAnimationInstruction) isInstruction()    {}
func (clearAnimationsInstruction) isInstruction() {}
