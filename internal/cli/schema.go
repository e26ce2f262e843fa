package cli

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/vburojevic/opctl/internal/output"
	"github.com/vburojevic/opctl/internal/protocol"
)

// SchemaCmd outputs JSON Schema for terminal messages and attach output
type SchemaCmd struct {
	Type []string `short:"t" help:"Types to include (auth,init,log,command,autocomplete,error,session_start,session_end,attach_log,server_error,client_error). Default: all"`
}

func schemas() map[string]interface{} {
	return map[string]interface{}{
		string(protocol.KindAuth):         authSchema(),
		string(protocol.KindInit):         initSchema(),
		string(protocol.KindLog):          logSchema(),
		string(protocol.KindCommand):      commandSchema(),
		string(protocol.KindAutocomplete): autocompleteSchema(),
		string(protocol.KindError):        errorSchema(),
		"session_start":                   sessionStartSchema(),
		"session_end":                     sessionEndSchema(),
		"attach_log":                      attachLogSchema(),
		"server_error":                    serverErrorSchema(),
		"client_error":                    clientErrorSchema(),
	}
}

// Run executes the schema command
func (c *SchemaCmd) Run(globals *Globals) error {
	all := schemas()

	typesToOutput := c.Type
	if len(typesToOutput) == 0 {
		for name := range all {
			typesToOutput = append(typesToOutput, name)
		}
		sort.Strings(typesToOutput)
	}

	defs := map[string]interface{}{}
	for _, t := range typesToOutput {
		t = strings.ToLower(strings.TrimSpace(t))
		if schema, ok := all[t]; ok {
			defs[t] = schema
		}
	}

	out := map[string]interface{}{
		"$schema":     "http://json-schema.org/draft-07/schema#",
		"title":       "opctl Schemas",
		"description": "Terminal channel frames ({type, data}) and opctl attach NDJSON output",
		"definitions": defs,
	}

	encoder := json.NewEncoder(globals.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

// frameSchema describes a terminal frame of kind carrying data.
func frameSchema(kind protocol.Kind, title, description, direction string, data map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"title":       title,
		"description": description,
		"x-direction": direction,
		"properties": map[string]interface{}{
			"type": map[string]interface{}{
				"type":  "string",
				"const": string(kind),
			},
			"data": data,
		},
		"required":             []string{"type", "data"},
		"additionalProperties": false,
	}
}

func stringArray(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "array",
		"items":       map[string]interface{}{"type": "string"},
		"description": description,
	}
}

func authSchema() map[string]interface{} {
	return frameSchema(protocol.KindAuth, "Authenticate",
		"First frame of every channel. Any other frame before it closes the channel with 1008 Unauthorized.",
		"client_to_server",
		map[string]interface{}{
			"type":        "string",
			"pattern":     "^[0-9a-f]{32}$",
			"description": "md5(md5(access_key)) as lowercase hex",
		})
}

func initSchema() map[string]interface{} {
	return frameSchema(protocol.KindInit, "History Snapshot",
		"Sent once after a successful auth",
		"server_to_client",
		stringArray("Most recent log lines, oldest first"))
}

func logSchema() map[string]interface{} {
	return frameSchema(protocol.KindLog, "Log Line",
		"One captured log line, in capture order",
		"server_to_client",
		map[string]interface{}{"type": "string"})
}

func commandSchema() map[string]interface{} {
	return frameSchema(protocol.KindCommand, "Console Command",
		"Executed on the server console. No reply is sent.",
		"client_to_server",
		map[string]interface{}{"type": "string"})
}

func autocompleteSchema() map[string]interface{} {
	return map[string]interface{}{
		"title":       "Autocomplete",
		"description": "Request with a numeric selector (1 = commands, anything else = online players); the reply carries candidates",
		"oneOf": []interface{}{
			frameSchema(protocol.KindAutocomplete, "Autocomplete Request", "", "client_to_server",
				map[string]interface{}{"type": "number"}),
			frameSchema(protocol.KindAutocomplete, "Autocomplete Reply", "", "server_to_client",
				stringArray("Candidate names")),
		},
	}
}

func errorSchema() map[string]interface{} {
	return frameSchema(protocol.KindError, "Protocol Error",
		"Recoverable error; the channel stays open",
		"server_to_client",
		map[string]interface{}{"type": "string"})
}

func versioned(kind, title, description string, props map[string]interface{}, required ...string) map[string]interface{} {
	props["type"] = map[string]interface{}{"type": "string", "const": kind}
	props["schemaVersion"] = map[string]interface{}{"type": "integer", "const": output.SchemaVersion}
	return map[string]interface{}{
		"type":        "object",
		"title":       title,
		"description": description,
		"properties":  props,
		"required":    append([]string{"type", "schemaVersion"}, required...),
	}
}

func sessionStartSchema() map[string]interface{} {
	return versioned("session_start", "Session Start", "Emitted once the channel is authenticated",
		map[string]interface{}{
			"server":    map[string]interface{}{"type": "string", "description": "Terminal URL"},
			"history":   map[string]interface{}{"type": "integer", "description": "Lines received on connect"},
			"timestamp": map[string]interface{}{"type": "string", "format": "date-time"},
		}, "server", "history", "timestamp")
}

func sessionEndSchema() map[string]interface{} {
	return versioned("session_end", "Session End", "Emitted when the channel closes",
		map[string]interface{}{
			"reason": map[string]interface{}{
				"type": "string",
				"enum": []string{"closed", "server_stopping", "unauthorized", "error"},
			},
			"error": map[string]interface{}{"type": "string"},
			"summary": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"total_lines":      map[string]interface{}{"type": "integer"},
					"emitted":          map[string]interface{}{"type": "integer"},
					"filtered":         map[string]interface{}{"type": "integer"},
					"deduplicated":     map[string]interface{}{"type": "integer"},
					"commands":         map[string]interface{}{"type": "integer"},
					"errors":           map[string]interface{}{"type": "integer"},
					"duration_seconds": map[string]interface{}{"type": "integer"},
				},
			},
		}, "reason", "summary")
}

func attachLogSchema() map[string]interface{} {
	return versioned("log", "Attached Log Line", "A line that passed the attach filters",
		map[string]interface{}{
			"line":     map[string]interface{}{"type": "string"},
			"history":  map[string]interface{}{"type": "boolean", "description": "Part of the snapshot sent on connect"},
			"repeated": map[string]interface{}{"type": "integer", "description": "Duplicates suppressed since the previous line"},
		}, "line")
}

func serverErrorSchema() map[string]interface{} {
	return versioned("server_error", "Server Error", "An error frame received from the server",
		map[string]interface{}{
			"message": map[string]interface{}{"type": "string"},
		}, "message")
}

func clientErrorSchema() map[string]interface{} {
	return versioned("error", "Client Error", "A failure of the opctl command itself",
		map[string]interface{}{
			"code":    map[string]interface{}{"type": "string"},
			"message": map[string]interface{}{"type": "string"},
			"hint":    map[string]interface{}{"type": "string"},
		}, "code", "message")
}
