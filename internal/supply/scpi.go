package supply

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

// DefaultBaudRate matches common bench power supply serial defaults.
const DefaultBaudRate = 9600

// DefaultResponseTimeout is the bounded wait for a supply reply (spec §5:
// "response-timeout, default 10 deciseconds").
const DefaultResponseTimeout = 1 * time.Second

// CommandSet is the per-device configurable SCPI command table (spec §6):
// printf-style value formats for each operation, plus a maximum command
// length field. SCPISupply does not read MaxCommandLen: every command is
// sent on its own line.
type CommandSet struct {
	Identify      string // typically "*IDN?"
	VoltageSet    string // e.g. "VSET1:%.3f"
	CurrentSet    string // e.g. "ISET1:%.3f"
	VoltageQuery  string // e.g. "VOUT1?"
	CurrentQuery  string // e.g. "IOUT1?"
	OutputQuery   string // e.g. "OUT1?"
	OnOff         string // e.g. "OUT1:%d"
	MaxCommandLen int     // not read; commands are never chained
}

// DefaultCommandSet matches a typical Korad/RD-family bench supply.
func DefaultCommandSet() CommandSet {
	return CommandSet{
		Identify:     "*IDN?",
		VoltageSet:   "VSET1:%.3f",
		CurrentSet:   "ISET1:%.3f",
		VoltageQuery: "VOUT1?",
		CurrentQuery: "IOUT1?",
		OutputQuery:  "OUT1?",
		OnOff:        "OUT1:%d",
	}
}

// SCPISupply drives a programmable DC power supply via textual SCPI
// commands over a serial link. Grounded on the teacher's SerialConn (open
// with explicit serial.Mode, bounded read timeout, mutex-guarded
// Send/Receive) and ECU's send-then-read-with-deadline polling idiom.
type SCPISupply struct {
	mu sync.Mutex

	port     serial.Port
	portName string
	baudRate int

	commands CommandSet
	identify *regexp.Regexp
	limits   Limits
	minI     float64
	reader   *bufio.Reader

	responseTimeout time.Duration
}

// NewSCPISupply creates a (not yet opened) SCPI supply transport.
func NewSCPISupply(portName string, baudRate int, commands CommandSet, identify *regexp.Regexp, limits Limits, minMeasurableCurrent float64) *SCPISupply {
	if baudRate <= 0 {
		baudRate = DefaultBaudRate
	}
	return &SCPISupply{
		portName:         portName,
		baudRate:         baudRate,
		commands:         commands,
		identify:         identify,
		limits:           limits,
		minI:             minMeasurableCurrent,
		responseTimeout:  DefaultResponseTimeout,
	}
}

// Open opens the serial port and verifies device identity against the
// configured regex (spec §6: "mismatches reject the port").
func (s *SCPISupply) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mode := &serial.Mode{BaudRate: s.baudRate, DataBits: 8, StopBits: serial.OneStopBit, Parity: serial.NoParity}
	port, err := serial.Open(s.portName, mode)
	if err != nil {
		return fmt.Errorf("supply: failed to open serial port %s: %w", s.portName, err)
	}
	if err := port.SetReadTimeout(500 * time.Millisecond); err != nil {
		port.Close()
		return fmt.Errorf("supply: failed to set read timeout: %w", err)
	}

	s.port = port
	s.reader = bufio.NewReader(port)
	slog.Info("supply serial port opened", "port", s.portName, "baud", s.baudRate)

	if s.commands.Identify != "" && s.identify != nil {
		reply, err := s.queryLocked(s.commands.Identify)
		if err != nil {
			port.Close()
			s.port = nil
			return fmt.Errorf("supply: identify query failed: %w", err)
		}
		if !s.identify.MatchString(reply) {
			port.Close()
			s.port = nil
			return fmt.Errorf("supply: identity mismatch: got %q, want match for %s", reply, s.identify.String())
		}
		slog.Info("supply identity confirmed", "reply", reply)
	}

	return nil
}

// Close closes the serial port.
func (s *SCPISupply) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}

func (s *SCPISupply) sendLocked(cmd string) error {
	if s.port == nil {
		return fmt.Errorf("supply: serial port not open")
	}
	_, err := s.port.Write([]byte(cmd + "\n"))
	return err
}

// queryLocked sends cmd and reads a single line reply, bounded by
// responseTimeout. Must be called with s.mu held.
func (s *SCPISupply) queryLocked(cmd string) (string, error) {
	if err := s.sendLocked(cmd); err != nil {
		return "", err
	}

	type result struct {
		line string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		line, err := s.reader.ReadString('\n')
		done <- result{line: line, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return "", fmt.Errorf("supply: read failed for %q: %w", cmd, r.err)
		}
		return strings.TrimSpace(r.line), nil
	case <-time.After(s.responseTimeout):
		return "", fmt.Errorf("supply: timeout waiting for reply to %q", cmd)
	}
}

func (s *SCPISupply) query(ctx context.Context, cmd string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type result struct {
		line string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		line, err := s.queryLocked(cmd)
		done <- result{line: line, err: err}
	}()

	select {
	case r := <-done:
		return r.line, r.err
	case <-ctx.Done():
		return "", fmt.Errorf("supply: %w", ctx.Err())
	}
}

func (s *SCPISupply) send(ctx context.Context, cmd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- s.sendLocked(cmd) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("supply: %w", ctx.Err())
	}
}

// SetVoltage implements PowerSupply.
func (s *SCPISupply) SetVoltage(ctx context.Context, volts, ampsLimit float64) error {
	if ampsLimit > 0 && s.commands.CurrentSet != "" {
		if err := s.send(ctx, fmt.Sprintf(s.commands.CurrentSet, ampsLimit)); err != nil {
			return err
		}
	}
	return s.send(ctx, fmt.Sprintf(s.commands.VoltageSet, volts))
}

// SetCurrent implements PowerSupply.
func (s *SCPISupply) SetCurrent(ctx context.Context, amps, voltsLimit float64) error {
	if voltsLimit > 0 && s.commands.VoltageSet != "" {
		if err := s.send(ctx, fmt.Sprintf(s.commands.VoltageSet, voltsLimit)); err != nil {
			return err
		}
	}
	return s.send(ctx, fmt.Sprintf(s.commands.CurrentSet, amps))
}

// SetPower implements PowerSupply by deriving a current limit at the
// supply's voltage ceiling (most bench supplies have no direct power-set
// command; constant-power operation is approximated as constant voltage at
// Vmax with a current limit of P/Vmax, matching how the end-to-end harness
// models V=sqrt(P*R)).
func (s *SCPISupply) SetPower(ctx context.Context, watts float64) error {
	v := s.limits.VoltageMax
	if v <= 0 {
		v = 1
	}
	amps := watts / v
	return s.SetVoltage(ctx, v, amps)
}

// Poll implements PowerSupply.
func (s *SCPISupply) Poll(ctx context.Context) (float64, float64, error) {
	vReply, err := s.query(ctx, s.commands.VoltageQuery)
	if err != nil {
		return 0, 0, err
	}
	iReply, err := s.query(ctx, s.commands.CurrentQuery)
	if err != nil {
		return 0, 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(vReply), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("supply: bad voltage reply %q: %w", vReply, err)
	}
	i, err := strconv.ParseFloat(strings.TrimSpace(iReply), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("supply: bad current reply %q: %w", iReply, err)
	}
	return v, i, nil
}

// On implements PowerSupply.
func (s *SCPISupply) On(ctx context.Context, enabled bool) error {
	v := 0
	if enabled {
		v = 1
	}
	return s.send(ctx, fmt.Sprintf(s.commands.OnOff, v))
}

// Limits implements PowerSupply.
func (s *SCPISupply) Limits() Limits { return s.limits }

// MinimumMeasurableCurrent implements PowerSupply.
func (s *SCPISupply) MinimumMeasurableCurrent() float64 { return s.minI }

// ListPorts returns available serial ports on the system.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("supply: failed to list serial ports: %w", err)
	}
	return ports, nil
}
