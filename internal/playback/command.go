package playback

// CommandType identifies a remote playback command. The backend delivers
// these via polling; local keyboard input maps onto the same set so both
// paths share one code path through the state machine.
type CommandType string

const (
	CommandPlay      CommandType = "play"
	CommandPause     CommandType = "pause"
	CommandRestart   CommandType = "restart"
	CommandNextSlide CommandType = "next_slide"
	CommandPrevSlide CommandType = "prev_slide"
	CommandGotoSlide CommandType = "goto_slide"
	CommandStop      CommandType = "stop"
)

// Command is one remote control instruction. SlideIndex is only meaningful
// for goto_slide.
type Command struct {
	Type       CommandType `json:"type"`
	SlideIndex int         `json:"slideIndex,omitempty"`
}

// Known reports whether the command type is one the engine understands.
// Unknown commands are dropped as no-ops.
func (c Command) Known() bool {
	switch c.Type {
	case CommandPlay, CommandPause, CommandRestart,
		CommandNextSlide, CommandPrevSlide, CommandGotoSlide, CommandStop:
		return true
	}
	return false
}
