// Package platform defines the capability surface the control plane needs from
// the server it manages. Each host runtime provides one adapter.
package platform

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// ErrNotRunning is returned by adapters when the managed server is not running.
var ErrNotRunning = errors.New("server is not running")

// Player is a connected player.
type Player struct {
	Name string `json:"name"`
	UUID string `json:"uuid,omitempty"`
}

// Save is a persisted world the server can be switched to.
type Save interface {
	Name() string
	// Activate makes this save the one loaded on the next start.
	Activate() error
}

// Platform is implemented by every host adapter.
type Platform interface {
	Stop()
	Reload()

	ReadConfigurationText() (string, error)
	WriteConfigurationText(text string) error

	// ExecuteCommand runs a console command. It mutates server state and must
	// only be called from the host context.
	ExecuteCommand(command string)

	RecognizedCommands() []string
	OnlinePlayers() []Player

	FindSave(name string) (Save, bool)

	PlayerManager

	// RunOnHostContext schedules fn on the host's designated execution
	// context and returns without waiting for it to run.
	RunOnHostContext(fn func())
}

// PlayerNames returns the names of players in order.
func PlayerNames(players []Player) []string {
	names := make([]string, len(players))
	for i, p := range players {
		names[i] = p.Name
	}
	return names
}

// PlayerManager changes player state. Every method schedules its work on the
// host context and returns without waiting for it to run.
type PlayerManager interface {
	SetOp(name string, op bool)
	Kick(name, reason string)
	Ban(name, reason string)
	Pardon(name string)
	SetGameMode(name string, mode GameMode)
	SetWhitelisted(name string, listed bool)
}

// GameMode is a player game mode.
type GameMode string

const (
	Survival  GameMode = "survival"
	Creative  GameMode = "creative"
	Adventure GameMode = "adventure"
	Spectator GameMode = "spectator"
)

var gameModes = []GameMode{Survival, Creative, Adventure, Spectator}

// ParseGameMode accepts a mode name in any case or its numeric id (0-3).
func ParseGameMode(s string) (GameMode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil && n >= 0 && n < len(gameModes) {
		return gameModes[n], nil
	}
	for _, m := range gameModes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown game mode %q", s)
}

var playerNamePattern = regexp.MustCompile(`^\w{1,16}$`)

// ValidPlayerName reports whether name is a well-formed player name. Only such
// names are safe to splice into a console command.
func ValidPlayerName(name string) bool {
	return playerNamePattern.MatchString(name)
}

// FindPlayer looks a player up by name or uuid, ignoring case.
func FindPlayer(players []Player, key string) (Player, bool) {
	return lo.Find(players, func(p Player) bool {
		return strings.EqualFold(p.Name, key) || (p.UUID != "" && strings.EqualFold(p.UUID, key))
	})
}
