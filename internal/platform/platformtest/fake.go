// Package platformtest provides an in-memory platform.Platform for tests.
package platformtest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/vburojevic/opctl/internal/platform"
)

// Fake records calls and serves canned data. The zero value is not usable;
// use New.
type Fake struct {
	mu sync.Mutex

	Properties    string
	ReadErr       error
	WriteErr      error
	Commands      []string
	Players       []platform.Player
	Saves         map[string]*Save
	ActiveSave    string
	Executed      []string
	Actions       []string
	Stops         int
	Reloads       int
	Scheduled     int
	hostTasks     chan func()
	ExecutePanics bool
}

// Save is a fake world.
type Save struct {
	fake        *Fake
	name        string
	ActivateErr error
}

func (s *Save) Name() string { return s.name }

func (s *Save) Activate() error {
	if s.ActivateErr != nil {
		return s.ActivateErr
	}
	s.fake.mu.Lock()
	defer s.fake.mu.Unlock()
	s.fake.ActiveSave = s.name
	return nil
}

// New returns a fake that runs host tasks on a dedicated goroutine until Close.
func New() *Fake {
	f := &Fake{
		Saves:     make(map[string]*Save),
		hostTasks: make(chan func(), 64),
	}
	go func() {
		for fn := range f.hostTasks {
			fn()
		}
	}()
	return f
}

// Close stops the host goroutine.
func (f *Fake) Close() { close(f.hostTasks) }

// AddSave registers a save named name.
func (f *Fake) AddSave(name string) *Save {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &Save{fake: f, name: name}
	f.Saves[name] = s
	return s
}

func (f *Fake) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Stops++
}

func (f *Fake) Reload() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reloads++
}

func (f *Fake) ReadConfigurationText() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadErr != nil {
		return "", f.ReadErr
	}
	return f.Properties, nil
}

func (f *Fake) WriteConfigurationText(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteErr != nil {
		return f.WriteErr
	}
	f.Properties = text
	return nil
}

func (f *Fake) ExecuteCommand(command string) {
	if f.ExecutePanics {
		panic(errors.New("adapter exploded"))
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Executed = append(f.Executed, command)
}

func (f *Fake) RecognizedCommands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Commands...)
}

func (f *Fake) OnlinePlayers() []platform.Player {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]platform.Player(nil), f.Players...)
}

func (f *Fake) FindSave(name string) (platform.Save, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.Saves[name]
	if !ok {
		return nil, false
	}
	return s, true
}

func (f *Fake) RunOnHostContext(fn func()) {
	f.mu.Lock()
	f.Scheduled++
	f.mu.Unlock()
	f.hostTasks <- func() {
		defer func() { _ = recover() }()
		fn()
	}
}

func (f *Fake) act(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Actions = append(f.Actions, fmt.Sprintf(format, args...))
}

func (f *Fake) SetOp(name string, op bool) {
	if op {
		f.act("op %s", name)
		return
	}
	f.act("deop %s", name)
}

func (f *Fake) Kick(name, reason string) { f.act("kick %s %q", name, reason) }

func (f *Fake) Ban(name, reason string) { f.act("ban %s %q", name, reason) }

func (f *Fake) Pardon(name string) { f.act("pardon %s", name) }

func (f *Fake) SetGameMode(name string, mode platform.GameMode) {
	f.act("gamemode %s %s", name, mode)
}

func (f *Fake) SetWhitelisted(name string, listed bool) {
	if listed {
		f.act("whitelist add %s", name)
		return
	}
	f.act("whitelist remove %s", name)
}

// PlayerActions returns the player management calls made so far.
func (f *Fake) PlayerActions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Actions...)
}

// ExecutedCommands returns a copy of the commands run so far.
func (f *Fake) ExecutedCommands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Executed...)
}

// Snapshot returns counters under lock.
func (f *Fake) Snapshot() (stops, reloads, scheduled int, activeSave, properties string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Stops, f.Reloads, f.Scheduled, f.ActiveSave, f.Properties
}

var _ platform.Platform = (*Fake)(nil)
