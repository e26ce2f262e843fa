package cli

import (
	"fmt"
	"runtime"

	"github.com/vburojevic/opctl/internal/output"
)

// VersionCmd shows version information
type VersionCmd struct{}

// VersionOutput is the NDJSON form of the version command
type VersionOutput struct {
	Type          string `json:"type"` // "version"
	SchemaVersion int    `json:"schemaVersion"`
	Version       string `json:"version"`
	Commit        string `json:"commit"`
	Go            string `json:"go"`
}

// Run executes the version command
func (c *VersionCmd) Run(globals *Globals) error {
	if globals.Format == "ndjson" {
		return output.NewNDJSONWriter(globals.Stdout).WriteObject(VersionOutput{
			Type:          "version",
			SchemaVersion: output.SchemaVersion,
			Version:       Version,
			Commit:        Commit,
			Go:            runtime.Version(),
		})
	}
	fmt.Fprintf(globals.Stdout, "opctl %s (%s, %s)\n", Version, Commit, runtime.Version())
	return nil
}
