package cli

// validateAttachFlags centralizes flag combinations attach cannot honor.
func validateAttachFlags(globals *Globals, c *AttachCmd) error {
	if c.Interactive && globals != nil && globals.Format == "ndjson" {
		return outputErrorCommon(globals, "INVALID_FLAGS", "--interactive cannot be combined with ndjson output", "drop --format ndjson or --interactive")
	}
	if c.Interactive && (c.Pattern != "" || len(c.Exclude) > 0 || c.Dedupe || c.Output != "") {
		return outputErrorCommon(globals, "INVALID_FLAGS", "--pattern, --exclude, --dedupe and --output only apply to line mode", "drop --interactive")
	}
	if c.Complete != "" && c.Complete != "commands" && c.Complete != "players" {
		return outputErrorCommon(globals, "INVALID_FLAGS", "--complete must be commands or players")
	}
	if c.Complete != "" && c.Interactive {
		return outputErrorCommon(globals, "INVALID_FLAGS", "--complete cannot be combined with --interactive")
	}
	if c.DedupeWindow < 0 {
		return outputErrorCommon(globals, "INVALID_FLAGS", "--dedupe-window must not be negative")
	}
	if c.DedupeWindow > 0 && !c.Dedupe {
		return outputErrorCommon(globals, "INVALID_FLAGS", "--dedupe-window requires --dedupe", "add --dedupe")
	}
	return nil
}
