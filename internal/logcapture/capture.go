// Package logcapture taps the process-wide zap logger, keeps a bounded history
// of recent lines, and hands every new line to subscribers in arrival order.
package logcapture

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vburojevic/opctl/internal/metrics"
)

// DefaultHistorySize is used when a non-positive size is requested.
const DefaultHistorySize = 500

// Option configures a Capture.
type Option func(*Capture)

// WithLevel sets the minimum level captured. Defaults to info.
func WithLevel(level zapcore.LevelEnabler) Option {
	return func(c *Capture) { c.level = level }
}

// WithEncoderConfig replaces the console encoder configuration used to render lines.
func WithEncoderConfig(cfg zapcore.EncoderConfig) Option {
	return func(c *Capture) { c.encoder = zapcore.NewConsoleEncoder(cfg) }
}

// WithRawLogger captures entries from the named logger as their bare message,
// at every level. Used for output that already carries its own timestamps,
// such as the supervised server's console.
func WithRawLogger(name string) Option {
	return func(c *Capture) { c.raw[name] = struct{}{} }
}

// WithIgnoredLogger never captures entries from the named logger or its
// children. Loggers whose entries are produced by delivering captured lines
// must be ignored, or each delivery would feed another one.
func WithIgnoredLogger(name string) Option {
	return func(c *Capture) { c.ignored[name] = struct{}{} }
}

// Capture is the log tap. Create one per process; Start and Stop are idempotent.
type Capture struct {
	history *History
	encoder zapcore.Encoder
	level   zapcore.LevelEnabler
	raw     map[string]struct{}
	ignored map[string]struct{}
	active  atomic.Bool

	mu      sync.Mutex
	restore func()
	quit    chan struct{}
	done    chan struct{}

	qmu   sync.Mutex
	queue []string
	wake  chan struct{}

	smu         sync.RWMutex
	subscribers map[int]func(string)
	nextID      int
}

// New creates a stopped Capture keeping the last size lines.
func New(size int, opts ...Option) *Capture {
	c := &Capture{
		history:     NewHistory(size),
		encoder:     zapcore.NewConsoleEncoder(defaultEncoderConfig()),
		level:       zapcore.InfoLevel,
		raw:         make(map[string]struct{}),
		ignored:     make(map[string]struct{}),
		wake:        make(chan struct{}, 1),
		subscribers: make(map[int]func(string)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func defaultEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:          "time",
		LevelKey:         "level",
		NameKey:          "logger",
		MessageKey:       "msg",
		LineEnding:       "",
		EncodeTime:       zapcore.TimeEncoderOfLayout("15:04:05"),
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		EncodeName:       zapcore.FullNameEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " ",
	}
}

// Start installs the capture core into the global zap logger and starts
// delivering lines to subscribers. Calling Start while started does nothing,
// so no line is ever captured twice.
func (c *Capture) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.restore != nil {
		return
	}

	c.quit = make(chan struct{})
	c.done = make(chan struct{})
	go c.dispatch(c.quit, c.done)

	tap := &core{capture: c, enc: c.encoder}
	hooked := zap.L().WithOptions(zap.WrapCore(func(base zapcore.Core) zapcore.Core {
		return zapcore.NewTee(base, tap)
	}))
	c.active.Store(true)
	c.restore = zap.ReplaceGlobals(hooked)
}

// Stop removes the tap from the global logger and flushes pending lines.
// Loggers derived while started stop feeding the capture as well.
func (c *Capture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.restore == nil {
		return
	}
	c.active.Store(false)
	c.restore()
	c.restore = nil
	close(c.quit)
	<-c.done
}

// Subscribe registers fn to receive every captured line after this call.
// fn runs on the capture's delivery goroutine and must not block.
func (c *Capture) Subscribe(fn func(line string)) (cancel func()) {
	c.smu.Lock()
	id := c.nextID
	c.nextID++
	c.subscribers[id] = fn
	c.smu.Unlock()

	return func() {
		c.smu.Lock()
		delete(c.subscribers, id)
		c.smu.Unlock()
	}
}

// RecentLogs returns a snapshot of the history, oldest first.
func (c *Capture) RecentLogs() []string {
	return c.history.Snapshot()
}

// append records a line in history and queues it for delivery under one lock,
// so delivery order always matches history order.
func (c *Capture) append(line string) {
	if !c.active.Load() {
		return
	}

	c.qmu.Lock()
	c.history.Append(line)
	c.queue = append(c.queue, line)
	c.qmu.Unlock()
	metrics.LogLinesCaptured.Inc()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Capture) dispatch(quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-c.wake:
			c.flush()
		case <-quit:
			c.flush()
			return
		}
	}
}

func (c *Capture) flush() {
	c.qmu.Lock()
	batch := c.queue
	c.queue = nil
	c.qmu.Unlock()

	if len(batch) == 0 {
		return
	}

	c.smu.RLock()
	subs := lo.Values(c.subscribers)
	c.smu.RUnlock()

	for _, line := range batch {
		for _, fn := range subs {
			fn(line)
		}
	}
}

// core is the zapcore.Core installed into the global logger.
type core struct {
	capture *Capture
	enc     zapcore.Encoder
}

// Enabled cannot see the logger name, so any level is enabled while raw
// loggers exist and Check applies the level to the rest.
func (k *core) Enabled(level zapcore.Level) bool {
	if !k.capture.active.Load() {
		return false
	}
	return len(k.capture.raw) > 0 || k.capture.level.Enabled(level)
}

func (k *core) With(fields []zapcore.Field) zapcore.Core {
	clone := k.enc.Clone()
	for _, f := range fields {
		f.AddTo(clone)
	}
	return &core{capture: k.capture, enc: clone}
}

func (k *core) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	c := k.capture
	if !c.active.Load() || matchLogger(c.ignored, ent.LoggerName) {
		return ce
	}
	if _, raw := c.raw[ent.LoggerName]; raw || c.level.Enabled(ent.Level) {
		return ce.AddCore(ent, k)
	}
	return ce
}

// matchLogger reports whether name or one of its parents is in set.
func matchLogger(set map[string]struct{}, name string) bool {
	for name != "" {
		if _, ok := set[name]; ok {
			return true
		}
		i := strings.LastIndexByte(name, '.')
		if i < 0 {
			return false
		}
		name = name[:i]
	}
	return false
}

func (k *core) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	if _, ok := k.capture.raw[ent.LoggerName]; ok {
		k.capture.append(ent.Message)
		return nil
	}

	buf, err := k.enc.EncodeEntry(ent, fields)
	if err != nil {
		return err
	}
	line := strings.TrimRight(buf.String(), "\n")
	buf.Free()
	k.capture.append(line)
	return nil
}

func (k *core) Sync() error { return nil }
