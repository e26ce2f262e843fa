// Package process adapts a supervised child server process to the platform
// contract. The child's console is its stdin and its log is its stdout.
package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/vburojevic/opctl/internal/platform"
)

// Defaults for Config fields left empty.
const (
	DefaultPropertiesFile = "server.properties"
	DefaultStopCommand    = "stop"
	DefaultReloadCommand  = "reload"
	DefaultStopTimeout    = 30 * time.Second
	DefaultJoinPattern    = logPrefix + `(\w{1,16}) joined the game$`
	DefaultLeavePattern   = logPrefix + `(\w{1,16}) left the game$`
)

// logPrefix matches the bracketed time and thread fields the server puts in
// front of its own messages. Chat lines continue with "<name>" after it and
// never match the player patterns.
const logPrefix = `^(?:\[[^\]]*\]\s*)+:\s`

var uuidPattern = regexp.MustCompile(logPrefix + `UUID of player (\w{1,16}) is ([0-9a-fA-F-]{32,36})$`)

// ErrMultiline rejects console input containing line breaks.
var ErrMultiline = errors.New("command spans several lines")

// Config describes the child process and where its state lives.
type Config struct {
	Dir            string
	Command        string
	Args           []string
	PropertiesFile string
	SavesDir       string
	Commands       []string
	StopCommand    string
	ReloadCommand  string
	StopTimeout    time.Duration
	JoinPattern    string
	LeavePattern   string
}

// Scheduler runs tasks on the host context.
type Scheduler interface {
	Submit(fn func()) bool
}

// Server supervises one child process.
type Server struct {
	cfg    Config
	host   Scheduler
	logger *zap.Logger
	output *zap.Logger
	clock  clock.Clock

	join  *regexp.Regexp
	leave *regexp.Regexp

	stopRequested atomic.Bool

	mu        sync.Mutex
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	exited    chan struct{}
	exitErr   error
	killTimer *clock.Timer
	players   []platform.Player
	uuids     map[string]string
}

// New validates cfg and creates an adapter. logger receives adapter events;
// output receives each line the child prints.
func New(cfg Config, host Scheduler, logger, output *zap.Logger, clk clock.Clock) (*Server, error) {
	if host == nil {
		return nil, errors.New("host scheduler is required")
	}
	if cfg.PropertiesFile == "" {
		cfg.PropertiesFile = DefaultPropertiesFile
	}
	if cfg.StopCommand == "" {
		cfg.StopCommand = DefaultStopCommand
	}
	if cfg.ReloadCommand == "" {
		cfg.ReloadCommand = DefaultReloadCommand
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	if cfg.JoinPattern == "" {
		cfg.JoinPattern = DefaultJoinPattern
	}
	if cfg.LeavePattern == "" {
		cfg.LeavePattern = DefaultLeavePattern
	}

	join, err := compilePlayerPattern("join", cfg.JoinPattern)
	if err != nil {
		return nil, err
	}
	leave, err := compilePlayerPattern("leave", cfg.LeavePattern)
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	if output == nil {
		output = zap.NewNop()
	}
	if clk == nil {
		clk = clock.New()
	}

	return &Server{
		cfg:    cfg,
		host:   host,
		logger: logger,
		output: output,
		clock:  clk,
		join:   join,
		leave:  leave,
		uuids:  make(map[string]string),
	}, nil
}

func compilePlayerPattern(name, expr string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid %s pattern: %w", name, err)
	}
	if re.NumSubexp() < 1 {
		return nil, fmt.Errorf("%s pattern must capture the player name", name)
	}
	return re, nil
}

// Run starts the child and blocks until it exits or ctx is done, in which case
// the child is stopped first. Without a configured command Run only waits for
// ctx. A child exit that nobody asked for is reported as an error.
func (s *Server) Run(ctx context.Context) error {
	if s.cfg.Command == "" {
		s.logger.Info("no server command configured, running unmanaged")
		<-ctx.Done()
		return nil
	}

	exited, err := s.start()
	if err != nil {
		return err
	}

	select {
	case <-exited:
	case <-ctx.Done():
		s.stopNow()
		<-exited
	}

	s.mu.Lock()
	exitErr := s.exitErr
	s.mu.Unlock()

	if s.stopRequested.Load() || ctx.Err() != nil {
		return nil
	}
	if exitErr != nil {
		return fmt.Errorf("server process exited: %w", exitErr)
	}
	return errors.New("server process exited unexpectedly")
}

func (s *Server) start() (<-chan struct{}, error) {
	cmd := exec.Command(s.cfg.Command, s.cfg.Args...)
	cmd.Dir = s.cfg.Dir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", s.cfg.Command, err)
	}

	exited := make(chan struct{})
	s.mu.Lock()
	s.cmd = cmd
	s.stdin = stdin
	s.exited = exited
	s.exitErr = nil
	s.mu.Unlock()
	s.stopRequested.Store(false)

	s.logger.Info("server process started", zap.String("command", s.cfg.Command), zap.Int("pid", cmd.Process.Pid))

	var readers sync.WaitGroup
	readers.Add(2)
	go s.scan(stdout, &readers)
	go s.scan(stderr, &readers)

	go func() {
		readers.Wait()
		err := cmd.Wait()

		s.mu.Lock()
		s.cmd = nil
		s.stdin = nil
		s.exitErr = err
		s.players = nil
		if s.killTimer != nil {
			s.killTimer.Stop()
			s.killTimer = nil
		}
		s.mu.Unlock()

		s.logger.Info("server process exited", zap.Error(err))
		close(exited)
	}()

	return exited, nil
}

func (s *Server) scan(r io.Reader, done *sync.WaitGroup) {
	defer done.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		s.output.Info(line)
		s.track(line)
	}
	if err := scanner.Err(); err != nil {
		s.logger.Debug("server output closed", zap.Error(err))
	}
}

// Stop asks the child to shut down on the host context and kills it if it is
// still running after the stop timeout.
func (s *Server) Stop() {
	if !s.running() {
		s.logger.Warn("stop ignored", zap.Error(platform.ErrNotRunning))
		return
	}
	s.stopRequested.Store(true)
	s.RunOnHostContext(func() {
		s.ExecuteCommand(s.cfg.StopCommand)
	})
	s.armKill()
}

// stopNow bypasses the host context, which may already be gone during shutdown.
func (s *Server) stopNow() {
	s.stopRequested.Store(true)
	s.ExecuteCommand(s.cfg.StopCommand)
	s.armKill()
}

func (s *Server) armKill() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd == nil || s.killTimer != nil {
		return
	}
	exited := s.exited
	s.killTimer = s.clock.AfterFunc(s.cfg.StopTimeout, func() {
		select {
		case <-exited:
			return
		default:
		}
		s.logger.Warn("server did not stop in time, killing", zap.Duration("timeout", s.cfg.StopTimeout))
		s.kill()
	})
}

func (s *Server) kill() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
}

// Reload sends the reload command on the host context.
func (s *Server) Reload() {
	s.RunOnHostContext(func() {
		s.ExecuteCommand(s.cfg.ReloadCommand)
	})
}

// ExecuteCommand writes command to the child's console. Call it from the host
// context only. A command spanning several lines is rejected: the console
// would run each line as its own command.
func (s *Server) ExecuteCommand(command string) {
	command = strings.TrimRight(command, "\r\n")
	if command == "" {
		return
	}
	if strings.ContainsAny(command, "\r\n") {
		s.logger.Warn("command rejected", zap.String("command", command), zap.Error(ErrMultiline))
		return
	}

	s.mu.Lock()
	stdin := s.stdin
	s.mu.Unlock()

	if stdin == nil {
		s.logger.Warn("command dropped", zap.String("command", command), zap.Error(platform.ErrNotRunning))
		return
	}
	if _, err := io.WriteString(stdin, command+"\n"); err != nil {
		s.logger.Warn("failed to write command", zap.String("command", command), zap.Error(err))
	}
}

// RunOnHostContext hands fn to the host loop without waiting for it.
func (s *Server) RunOnHostContext(fn func()) {
	if !s.host.Submit(fn) {
		s.logger.Warn("host context unavailable, task dropped")
	}
}

// RecognizedCommands returns the configured command names without duplicates.
func (s *Server) RecognizedCommands() []string {
	return lo.Uniq(s.cfg.Commands)
}

func (s *Server) running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cmd != nil
}

var _ platform.Platform = (*Server)(nil)
