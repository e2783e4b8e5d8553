package attendance

import "strings"

// Command is a recognized chat command.
type Command int

const (
	CommandUnknown Command = iota
	CommandClockIn
	CommandClockOut
	CommandHistory
	CommandHelp
)

var lexicon = map[string]Command{
	"出勤":   CommandClockIn,
	"退勤":   CommandClockOut,
	"勤怠確認": CommandHistory,
	"履歴":   CommandHistory,
	"ヘルプ":  CommandHelp,
	"使い方":  CommandHelp,
}

// ParseCommand matches trimmed text exactly against the command lexicon.
func ParseCommand(text string) Command {
	return lexicon[strings.TrimSpace(text)]
}

func (c Command) String() string {
	switch c {
	case CommandClockIn:
		return "clock_in"
	case CommandClockOut:
		return "clock_out"
	case CommandHistory:
		return "history"
	case CommandHelp:
		return "help"
	default:
		return "unknown"
	}
}

// Outcome is what handling a command resulted in.
type Outcome int

const (
	OutcomeFallback Outcome = iota
	OutcomeClockedIn
	OutcomeAlreadyClockedIn
	OutcomeClockedOut
	OutcomeNotClockedIn
	OutcomeHistory
	OutcomeHelp
	OutcomeStorageFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeClockedIn:
		return "clocked_in"
	case OutcomeAlreadyClockedIn:
		return "already_clocked_in"
	case OutcomeClockedOut:
		return "clocked_out"
	case OutcomeNotClockedIn:
		return "not_clocked_in"
	case OutcomeHistory:
		return "history"
	case OutcomeHelp:
		return "help"
	case OutcomeStorageFailed:
		return "storage_failed"
	default:
		return "fallback"
	}
}

// Rejected reports whether the command was refused for the current state.
func (o Outcome) Rejected() bool {
	return o == OutcomeAlreadyClockedIn || o == OutcomeNotClockedIn
}
