package process

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/vburojevic/opctl/internal/platform"
)

// track updates the online list from one line of server output.
func (s *Server) track(line string) {
	if m := uuidPattern.FindStringSubmatch(line); m != nil {
		if id, err := uuid.Parse(m[2]); err == nil {
			s.mu.Lock()
			s.uuids[m[1]] = id.String()
			s.mu.Unlock()
		}
		return
	}

	if m := s.join.FindStringSubmatch(line); m != nil {
		s.playerJoined(m[1])
		return
	}
	if m := s.leave.FindStringSubmatch(line); m != nil {
		s.playerLeft(m[1])
	}
}

func (s *Server) playerJoined(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lo.ContainsBy(s.players, func(p platform.Player) bool { return p.Name == name }) {
		return
	}
	s.players = append(s.players, platform.Player{Name: name, UUID: s.uuids[name]})
}

func (s *Server) playerLeft(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.players = lo.Reject(s.players, func(p platform.Player, _ int) bool { return p.Name == name })
	delete(s.uuids, name)
}

// OnlinePlayers returns connected players in join order.
func (s *Server) OnlinePlayers() []platform.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]platform.Player(nil), s.players...)
}

// console schedules a player command on the host context. Names that could
// break out of the command are refused.
func (s *Server) console(name, format string, args ...any) {
	if !platform.ValidPlayerName(name) {
		s.logger.Warn("player command refused", zap.String("player", name))
		return
	}
	command := fmt.Sprintf(format, args...)
	s.RunOnHostContext(func() {
		s.ExecuteCommand(command)
	})
}

// withReason appends a free-text reason folded onto one line.
func withReason(command, reason string) string {
	if reason = strings.Join(strings.Fields(reason), " "); reason != "" {
		return command + " " + reason
	}
	return command
}

func (s *Server) SetOp(name string, op bool) {
	if op {
		s.console(name, "op %s", name)
		return
	}
	s.console(name, "deop %s", name)
}

func (s *Server) Kick(name, reason string) {
	s.console(name, "%s", withReason("kick "+name, reason))
}

func (s *Server) Ban(name, reason string) {
	s.console(name, "%s", withReason("ban "+name, reason))
}

func (s *Server) Pardon(name string) {
	s.console(name, "pardon %s", name)
}

func (s *Server) SetGameMode(name string, mode platform.GameMode) {
	s.console(name, "gamemode %s %s", mode, name)
}

// SetWhitelisted edits the whitelist; the server reloads it itself.
func (s *Server) SetWhitelisted(name string, listed bool) {
	if listed {
		s.console(name, "whitelist add %s", name)
		return
	}
	s.console(name, "whitelist remove %s", name)
}
