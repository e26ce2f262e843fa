// Package protocol defines the messages exchanged on a terminal channel.
//
// Every frame is a JSON object {"type": <kind>, "data": <payload>}. Each kind
// has exactly one Go type; payloads that do not match their kind are rejected
// by the decoder, never by the handlers.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Kind discriminates a message.
type Kind string

const (
	KindAuth         Kind = "auth"
	KindInit         Kind = "init"
	KindLog          Kind = "log"
	KindCommand      Kind = "command"
	KindAutocomplete Kind = "autocomplete"
	KindError        Kind = "error"
)

// Close reasons the server sends with a close frame.
const (
	ReasonUnauthorized = "Unauthorized."
	ReasonShutdown     = "Server is stopping."
)

// SelectorCommands asks for the recognized command names. Any other selector
// asks for the names of online players.
const SelectorCommands = 1

var (
	// ErrMalformed is returned when a frame is not a JSON envelope.
	ErrMalformed = errors.New("malformed message")
	// ErrUnknownKind is returned for a kind that is not valid in the decoded direction.
	ErrUnknownKind = errors.New("unknown message kind")
)

// PayloadError reports a known kind whose payload has the wrong shape.
type PayloadError struct {
	Kind Kind
	Err  error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("unexpected payload for %q: %v", e.Kind, e.Err)
}

func (e *PayloadError) Unwrap() error { return e.Err }

// Message is implemented by every protocol message.
type Message interface {
	Kind() Kind
}

// Auth carries the double-digested shared secret. Client to server.
type Auth struct {
	Credential string
}

// Init carries the history snapshot sent after authentication, oldest first.
type Init struct {
	Lines []string
}

// Log carries one captured log line.
type Log struct {
	Line string
}

// Command carries a console command to execute. Client to server.
type Command struct {
	Command string
}

// AutocompleteRequest selects which candidate list the client wants.
type AutocompleteRequest struct {
	Selector float64
}

// AutocompleteResponse carries the candidates for a request.
type AutocompleteResponse struct {
	Candidates []string
}

// Error carries a human readable protocol error.
type Error struct {
	Message string
}

func (Auth) Kind() Kind                 { return KindAuth }
func (Init) Kind() Kind                 { return KindInit }
func (Log) Kind() Kind                  { return KindLog }
func (Command) Kind() Kind              { return KindCommand }
func (AutocompleteRequest) Kind() Kind  { return KindAutocomplete }
func (AutocompleteResponse) Kind() Kind { return KindAutocomplete }
func (Error) Kind() Kind                { return KindError }

// WantsCommands reports whether the request asks for command names.
func (r AutocompleteRequest) WantsCommands() bool {
	return r.Selector == SelectorCommands
}

type envelope struct {
	Type Kind            `json:"type"`
	Data json.RawMessage `json:"data"`
}

// DecodeRequest decodes a client to server frame.
func DecodeRequest(frame []byte) (Message, error) {
	env, err := decodeEnvelope(frame)
	if err != nil {
		return nil, err
	}

	switch env.Type {
	case KindAuth:
		s, err := stringPayload(env)
		if err != nil {
			return nil, err
		}
		return Auth{Credential: s}, nil
	case KindCommand:
		s, err := stringPayload(env)
		if err != nil {
			return nil, err
		}
		return Command{Command: s}, nil
	case KindAutocomplete:
		var n float64
		if err := strictPayload(env, &n); err != nil {
			return nil, err
		}
		return AutocompleteRequest{Selector: n}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Type)
	}
}

// DecodeEvent decodes a server to client frame.
func DecodeEvent(frame []byte) (Message, error) {
	env, err := decodeEnvelope(frame)
	if err != nil {
		return nil, err
	}

	switch env.Type {
	case KindInit:
		var lines []string
		if err := strictPayload(env, &lines); err != nil {
			return nil, err
		}
		return Init{Lines: lines}, nil
	case KindLog:
		s, err := stringPayload(env)
		if err != nil {
			return nil, err
		}
		return Log{Line: s}, nil
	case KindAutocomplete:
		var candidates []string
		if err := strictPayload(env, &candidates); err != nil {
			return nil, err
		}
		return AutocompleteResponse{Candidates: candidates}, nil
	case KindError:
		s, err := stringPayload(env)
		if err != nil {
			return nil, err
		}
		return Error{Message: s}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Type)
	}
}

// Encode marshals a message into its wire envelope.
func Encode(m Message) ([]byte, error) {
	var data any
	switch v := m.(type) {
	case Auth:
		data = v.Credential
	case Init:
		data = nonNil(v.Lines)
	case Log:
		data = v.Line
	case Command:
		data = v.Command
	case AutocompleteRequest:
		data = v.Selector
	case AutocompleteResponse:
		data = nonNil(v.Candidates)
	case Error:
		data = v.Message
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownKind, m)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", m.Kind(), err)
	}
	return json.Marshal(envelope{Type: m.Kind(), Data: raw})
}

func decodeEnvelope(frame []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return envelope{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return env, nil
}

// stringPayload rejects null and non-string payloads.
func stringPayload(env envelope) (string, error) {
	var s string
	if err := strictPayload(env, &s); err != nil {
		return "", err
	}
	return s, nil
}

// strictPayload unmarshals data into v, treating absent or null payloads as a
// mismatch since encoding/json would silently accept them.
func strictPayload(env envelope, v any) error {
	trimmed := bytes.TrimSpace(env.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return &PayloadError{Kind: env.Type, Err: errors.New("missing data")}
	}
	if err := json.Unmarshal(trimmed, v); err != nil {
		return &PayloadError{Kind: env.Type, Err: err}
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
