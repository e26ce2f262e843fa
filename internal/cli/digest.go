package cli

import (
	"fmt"

	"github.com/vburojevic/opctl/internal/auth"
	"github.com/vburojevic/opctl/internal/output"
)

// DigestCmd prints the credentials derived from an access key
type DigestCmd struct {
	AccessKey string `arg:"" help:"Access key to digest"`
}

// DigestOutput is the NDJSON form of the digest command
type DigestOutput struct {
	Type          string `json:"type"` // "digest"
	SchemaVersion int    `json:"schemaVersion"`
	Login         string `json:"login"`    // Body value for POST /api/auth
	Terminal      string `json:"terminal"` // AUTH payload
}

// Run executes the digest command
func (c *DigestCmd) Run(globals *Globals) error {
	if c.AccessKey == "" {
		return outputErrorCommon(globals, "INVALID_ARGS", "access key must not be empty")
	}
	login := auth.Digest(c.AccessKey)
	terminal := auth.DoubleDigest(c.AccessKey)

	if globals.Format == "ndjson" {
		return output.NewNDJSONWriter(globals.Stdout).WriteObject(DigestOutput{
			Type:          "digest",
			SchemaVersion: output.SchemaVersion,
			Login:         login,
			Terminal:      terminal,
		})
	}
	fmt.Fprintln(globals.Stdout, terminal)
	return nil
}
