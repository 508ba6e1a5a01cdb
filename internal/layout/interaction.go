package layout

import (
	"fmt"

	"github.com/pitabwire/reportbuilder/model"
)

// Mode is the state of a pointer interaction.
type Mode string

// Interaction modes.
const (
	ModeIdle     Mode = "idle"
	ModeDragging Mode = "dragging"
	ModeResizing Mode = "resizing"
)

// Point is a pointer position on the canvas.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Interaction tracks one drag or resize from press to release. The zero
// value is idle.
type Interaction struct {
	mode     Mode
	targetID string
	anchor   Point
	start    model.Rect
	current  model.Rect
}

// Mode returns the current mode.
func (i *Interaction) Mode() Mode {
	if i.mode == "" {
		return ModeIdle
	}
	return i.mode
}

// TargetID returns the id of the visualization being moved or resized.
func (i *Interaction) TargetID() string {
	return i.targetID
}

// Current returns the provisional rectangle of the in-flight interaction.
func (i *Interaction) Current() model.Rect {
	return i.current
}

// Descriptor describes the interaction for snapshots.
func (i *Interaction) Descriptor() model.InteractionDescriptor {
	return model.InteractionDescriptor{Mode: string(i.Mode()), TargetID: i.targetID}
}

// Press starts a drag or resize of target at the pointer position.
func (i *Interaction) Press(mode Mode, targetID string, start model.Rect, at Point) error {
	if i.Mode() != ModeIdle {
		return &model.ErrorEnvelope{
			Code:    model.ErrInteractionActive,
			Message: fmt.Sprintf("an interaction on %q is already in progress", i.targetID),
		}
	}
	if mode != ModeDragging && mode != ModeResizing {
		return model.NewBadRequestError(fmt.Sprintf("interaction mode %q is not supported", mode))
	}
	i.mode = mode
	i.targetID = targetID
	i.anchor = at
	i.start = start
	i.current = start
	return nil
}

// Motion updates the provisional rectangle for a pointer move. Coordinates
// are clamped but not snapped. It reports false when idle.
func (i *Interaction) Motion(at Point) (model.Rect, bool) {
	if i.Mode() == ModeIdle {
		return model.Rect{}, false
	}
	i.current = i.apply(at, Grid{})
	return i.current, true
}

// Release commits the interaction at the pointer position, snapping to the
// grid, and returns to idle. It reports false when idle.
func (i *Interaction) Release(at Point, g Grid) (string, model.Rect, bool) {
	if i.Mode() == ModeIdle {
		return "", model.Rect{}, false
	}
	rect := i.apply(at, g)
	target := i.targetID
	i.reset()
	return target, rect, true
}

// Cancel abandons the interaction and returns the rectangle the target had
// when it was pressed. It always leaves the interaction idle.
func (i *Interaction) Cancel() (string, model.Rect, bool) {
	if i.Mode() == ModeIdle {
		i.reset()
		return "", model.Rect{}, false
	}
	target, start := i.targetID, i.start
	i.reset()
	return target, start, true
}

func (i *Interaction) apply(at Point, g Grid) model.Rect {
	dx, dy := at.X-i.anchor.X, at.Y-i.anchor.Y
	if i.mode == ModeResizing {
		return Resize(i.start, i.start.Width+dx, i.start.Height+dy, g)
	}
	return Move(i.start, i.start.X+dx, i.start.Y+dy, g)
}

func (i *Interaction) reset() {
	*i = Interaction{}
}
