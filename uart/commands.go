package uart

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Command identifies one executable remote command.
type Command byte

// Commands the controller can receive.
const (
	CmdPoweroff Command = 0x30 // ASCII '0'
	CmdReboot   Command = 0x31 // ASCII '1'
	CmdStatus   Command = 0x32 // ASCII '2'
)

// Shutdown requests propagate out of command execution so the main loop can
// stop cleanly. Executing the OS action itself is the caller's business.
var (
	ErrPoweroffRequested = errors.New("system poweroff requested")
	ErrRebootRequested   = errors.New("system reboot requested")
)

// Handler executes one command.
type Handler func() error

type registration struct {
	desc    string
	handler Handler
}

// CommandSet maps command bytes to handlers.
type CommandSet struct {
	m   map[Command]registration
	log *zap.Logger
}

// NewCommandSet returns an empty command set.
func NewCommandSet(log *zap.Logger) *CommandSet {
	return &CommandSet{
		m:   map[Command]registration{},
		log: log,
	}
}

// Register binds a handler to a command byte.
func (s *CommandSet) Register(cmd Command, desc string, handler Handler) {
	s.m[cmd] = registration{desc: desc, handler: handler}
}

// Known reports whether the byte is a registered command.
func (s *CommandSet) Known(b byte) bool {
	_, ok := s.m[Command(b)]
	return ok
}

// Execute runs the handler for the command byte. Unknown commands are logged
// and ignored; shutdown requests propagate to the caller.
func (s *CommandSet) Execute(b byte) error {
	reg, ok := s.m[Command(b)]
	if !ok {
		s.log.Warn("invalid command", zap.Uint8("command", b))
		return nil
	}

	s.log.Info("executing command", zap.Uint8("command", b), zap.String("description", reg.desc))
	if err := reg.handler(); err != nil {
		if errors.Is(err, ErrPoweroffRequested) || errors.Is(err, ErrRebootRequested) {
			return err
		}
		s.log.Error("command failed", zap.Uint8("command", b), zap.Error(err))
	}
	return nil
}

// LogAvailable logs every registered command.
func (s *CommandSet) LogAvailable() {
	for cmd, reg := range s.m {
		s.log.Info("available command",
			zap.Uint8("command", byte(cmd)),
			zap.String("description", reg.desc))
	}
}
