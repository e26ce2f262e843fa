package cli

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newLogger builds the root logger on globals.Stderr: console encoding on a
// terminal, JSON otherwise.
func newLogger(globals *Globals) (*zap.Logger, error) {
	level, err := logLevel(globals)
	if err != nil {
		return nil, err
	}

	var enc zapcore.Encoder
	if isTerminal(globals.Stderr) {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(cfg)
	} else {
		enc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	}

	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(globals.Stderr)), level)
	return zap.New(core, zap.ErrorOutput(zapcore.AddSync(globals.Stderr))), nil
}

func logLevel(globals *Globals) (zapcore.Level, error) {
	if globals.Verbose {
		return zapcore.DebugLevel, nil
	}
	if globals.Level == "" {
		return zapcore.InfoLevel, nil
	}
	level, err := zapcore.ParseLevel(globals.Level)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q", globals.Level)
	}
	return level, nil
}

// isTerminal reports whether a reader or writer is a terminal.
func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}
