package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vburojevic/opctl/internal/attach"
	"github.com/vburojevic/opctl/internal/domain"
	"github.com/vburojevic/opctl/internal/filter"
	"github.com/vburojevic/opctl/internal/output"
	"github.com/vburojevic/opctl/internal/protocol"
	"github.com/vburojevic/opctl/internal/tui"
)

// AttachCmd connects to the terminal channel of a running control plane
type AttachCmd struct {
	Address        string        `arg:"" optional:"" help:"host:port or URL of the control plane (default: derived from listen)"`
	AccessKey      string        `name:"access-key" env:"OPCTL_ACCESS_KEY" help:"Shared secret (default: access_key from config)"`
	Interactive    bool          `short:"i" help:"Force the interactive terminal"`
	Plain          bool          `help:"Force line mode even on a terminal"`
	Pattern        string        `short:"p" help:"Regex pattern lines must match"`
	Exclude        []string      `short:"x" help:"Regex pattern of lines to drop (can be repeated)"`
	Dedupe         bool          `help:"Collapse repeated identical lines"`
	DedupeWindow   time.Duration `help:"Collapse identical lines seen within this window instead of only consecutive ones"`
	NoHistory      bool          `help:"Do not print the history sent on connect"`
	Output         string        `short:"o" help:"Also write output to this file (numbered per reconnect)"`
	Complete       string        `placeholder:"commands|players" help:"Print autocomplete candidates and exit"`
	Reconnect      bool          `help:"Reconnect when the channel closes"`
	ReconnectDelay time.Duration `default:"2s" help:"Delay between reconnect attempts"`
	Timeout        time.Duration `default:"10s" help:"Connect and authentication timeout"`
}

// Run executes the attach command
func (c *AttachCmd) Run(globals *Globals) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return c.run(ctx, globals)
}

func (c *AttachCmd) run(ctx context.Context, globals *Globals) error {
	if err := validateAttachFlags(globals, c); err != nil {
		return err
	}
	opts, err := c.options(globals)
	if err != nil {
		return outputErrorCommon(globals, "INVALID_FLAGS", err.Error(), "pass --access-key or set access_key")
	}

	switch {
	case c.Complete != "":
		return c.runComplete(ctx, globals, opts)
	case c.interactive(globals):
		return c.runInteractive(ctx, globals, opts)
	default:
		return c.runLines(ctx, globals, opts)
	}
}

func (c *AttachCmd) options(globals *Globals) (attach.Options, error) {
	key, address := c.AccessKey, c.Address
	if globals.Config != nil {
		if key == "" {
			key = globals.Config.AccessKey
		}
		if address == "" {
			address = localAddress(globals.Config.Listen)
		}
	}
	if key == "" {
		return attach.Options{}, errors.New("access key is required")
	}
	if _, err := attach.TerminalURL(address); err != nil {
		return attach.Options{}, err
	}
	return attach.Options{Address: address, AccessKey: key, HandshakeTimeout: c.Timeout}, nil
}

// localAddress turns a listen address into one a local client can dial.
func localAddress(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return listen
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}

func (c *AttachCmd) interactive(globals *Globals) bool {
	if c.Interactive {
		return true
	}
	if c.Plain || globals.Format == "ndjson" || c.Pattern != "" || len(c.Exclude) > 0 || c.Dedupe || c.Output != "" {
		return false
	}
	return isTerminal(globals.Stdout) && isTerminal(globals.Stdin)
}

func dialError(globals *Globals, err error) error {
	if errors.Is(err, attach.ErrUnauthorized) {
		return outputErrorCommon(globals, "UNAUTHORIZED", err.Error(), "check --access-key")
	}
	return outputErrorCommon(globals, "CONNECT_FAILED", err.Error(), "is opctl serve running?")
}

// endReason classifies why a channel closed.
func endReason(err error) (string, error) {
	switch {
	case err == nil:
		return "closed", nil
	case errors.Is(err, attach.ErrServerStopping):
		return "server_stopping", nil
	case errors.Is(err, attach.ErrUnauthorized):
		return "unauthorized", nil
	default:
		return "error", err
	}
}

func (c *AttachCmd) runComplete(ctx context.Context, globals *Globals, opts attach.Options) error {
	client, err := attach.Dial(ctx, opts)
	if err != nil {
		return dialError(globals, err)
	}
	defer client.Close()

	selector := attach.SelectCommands
	if c.Complete == "players" {
		selector = attach.SelectPlayers
	}
	if err := client.Autocomplete(selector); err != nil {
		return outputErrorCommon(globals, "SEND_FAILED", err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()
	for {
		select {
		case msg, ok := <-client.Events():
			if !ok {
				_, err := endReason(client.Err())
				if err == nil {
					err = errors.New("channel closed before autocomplete reply")
				}
				return outputErrorCommon(globals, "CHANNEL_CLOSED", err.Error())
			}
			if resp, ok := msg.(protocol.AutocompleteResponse); ok {
				if globals.Format == "ndjson" {
					return output.NewNDJSONWriter(globals.Stdout).WriteAutocomplete(resp.Candidates)
				}
				for _, candidate := range resp.Candidates {
					fmt.Fprintln(globals.Stdout, candidate)
				}
				return nil
			}
		case <-ctx.Done():
			return outputErrorCommon(globals, "TIMEOUT", "no autocomplete reply")
		}
	}
}

func (c *AttachCmd) runInteractive(ctx context.Context, globals *Globals, opts attach.Options) error {
	client, err := attach.Dial(ctx, opts)
	if err != nil {
		return dialError(globals, err)
	}
	defer client.Close()

	url, _ := attach.TerminalURL(opts.Address)
	history := client.History()
	if c.NoHistory {
		history = nil
	}

	p := tea.NewProgram(tui.New(client, client.Events(), url, history), tea.WithAltScreen())

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			p.Quit()
		case <-done:
		}
	}()

	final, err := p.Run()
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	if m, ok := final.(tui.Model); ok && m.Closed() {
		reason, err := endReason(client.Err())
		if err != nil {
			return outputErrorCommon(globals, "CHANNEL_CLOSED", err.Error())
		}
		fmt.Fprintf(globals.Stderr, "Detached (%s)\n", reason)
	}
	return nil
}

// lineSession filters and renders one channel in line mode.
type lineSession struct {
	writer   output.Writer
	pipeline *filter.Pipeline
	dedupe   *filter.DedupeFilter
	summary  domain.SessionSummary
	commands atomic.Int64
	pending  int
}

func (s *lineSession) line(text string, history bool) error {
	s.summary.TotalLines++
	if !s.pipeline.Match(text) {
		s.summary.Filtered++
		return nil
	}
	if s.dedupe != nil && !s.dedupe.Check(text).ShouldEmit {
		s.summary.Deduplicated++
		s.pending++
		return nil
	}

	l := output.NewLogLine(text, history)
	l.Repeated, s.pending = s.pending, 0
	s.summary.Emitted++
	return s.writer.WriteLog(l)
}

func (c *AttachCmd) newWriter(globals *Globals, w io.Writer) output.Writer {
	if globals.Format == "ndjson" {
		return output.NewNDJSONWriter(w)
	}
	return output.NewTextWriter(w, w == globals.Stdout && isTerminal(globals.Stdout))
}

func (c *AttachCmd) runLines(ctx context.Context, globals *Globals, opts attach.Options) error {
	pipeline, err := filter.Compile(c.Pattern, c.Exclude)
	if err != nil {
		return outputErrorCommon(globals, "INVALID_PATTERN", err.Error())
	}
	var dedupe *filter.DedupeFilter
	if c.Dedupe {
		dedupe = filter.NewDedupeFilter(c.DedupeWindow, nil)
	}

	var rot *rotation
	if c.Output != "" {
		rot = newRotation(sessionPath(c.Output))
		defer rot.Close()
	}

	url, _ := attach.TerminalURL(opts.Address)
	commands := readCommands(globals.Stdin)
	session := 0

	for {
		client, err := attach.Dial(ctx, opts)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if session == 0 || !c.Reconnect || errors.Is(err, attach.ErrUnauthorized) {
				return dialError(globals, err)
			}
			globals.Debug("reconnect to %s failed: %v", url, err)
			if !sleepContext(ctx, c.ReconnectDelay) {
				return nil
			}
			continue
		}
		session++

		dst := globals.Stdout
		if rot != nil {
			file, path, err := rot.Open(session)
			if err != nil {
				client.Close()
				return outputErrorCommon(globals, "OUTPUT_FAILED", err.Error())
			}
			globals.Debug("writing session %d to %s", session, path)
			dst = io.MultiWriter(globals.Stdout, file)
		}
		if dedupe != nil {
			dedupe.Reset()
		}

		ls := &lineSession{writer: c.newWriter(globals, dst), pipeline: pipeline, dedupe: dedupe}
		end := c.stream(ctx, client, url, ls, commands)
		_ = ls.writer.WriteSessionEnd(end)
		if rot != nil {
			_ = rot.Flush()
		}

		if end.Reason == "unauthorized" || ctx.Err() != nil || !c.Reconnect {
			if end.Reason == "error" {
				return errors.New(end.Error)
			}
			return nil
		}
		if !sleepContext(ctx, c.ReconnectDelay) {
			return nil
		}
	}
}

// stream renders one authenticated channel until it closes.
func (c *AttachCmd) stream(ctx context.Context, client *attach.Client, url string, ls *lineSession, commands <-chan string) *domain.SessionEnd {
	defer client.Close()
	start := time.Now()

	_ = ls.writer.WriteSessionStart(domain.NewSessionStart(url, len(client.History()), start))
	if !c.NoHistory {
		for _, line := range client.History() {
			_ = ls.line(line, true)
		}
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			client.Close()
		case <-done:
		}
	}()
	go forwardCommands(client, commands, done, &ls.commands)

	for msg := range client.Events() {
		switch ev := msg.(type) {
		case protocol.Log:
			_ = ls.line(ev.Line, false)
		case protocol.AutocompleteResponse:
			_ = ls.writer.WriteAutocomplete(ev.Candidates)
		case protocol.Error:
			ls.summary.Errors++
			_ = ls.writer.WriteServerError(ev.Message)
		}
	}

	ls.summary.Commands = int(ls.commands.Load())
	ls.summary.DurationSeconds = int(time.Since(start).Seconds())
	reason, err := endReason(client.Err())
	return domain.NewSessionEnd(reason, err, ls.summary)
}

// readCommands delivers non-empty stdin lines until EOF.
func readCommands(r io.Reader) <-chan string {
	if r == nil {
		return nil
	}
	out := make(chan string)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				out <- line
			}
		}
	}()
	return out
}

func forwardCommands(client *attach.Client, commands <-chan string, done <-chan struct{}, sent *atomic.Int64) {
	for {
		select {
		case command, ok := <-commands:
			if !ok {
				return
			}
			if err := client.Command(command); err != nil {
				return
			}
			sent.Add(1)
		case <-done:
			return
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
