package decoder

import (
	"fmt"

	"github.com/harrylevesque/kdcode/internal/symbol"
)

// Stage is a state of the decode pipeline.
type Stage int

const (
	StageLoaded Stage = iota
	StagePreprocessed
	StageAnchorsFound
	StageOriented
	StageSampled
	StageDecoded
)

func (s Stage) String() string {
	switch s {
	case StageLoaded:
		return "loaded"
	case StagePreprocessed:
		return "preprocessed"
	case StageAnchorsFound:
		return "anchors-found"
	case StageOriented:
		return "oriented"
	case StageSampled:
		return "sampled"
	case StageDecoded:
		return "decoded"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Error is a decode failure. Stage is the state the pipeline was leaving when
// it failed; Geometry is set once an anchor was located.
type Error struct {
	Stage    Stage
	Err      error
	Geometry *symbol.Geometry
}

func (e *Error) Error() string {
	return fmt.Sprintf("decode (%s): %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
