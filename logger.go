package afetch

import (
	"os"

	"github.com/rs/zerolog"
)

// zerologAdapter bridges the Logger contract onto a zerolog.Logger.
type zerologAdapter struct {
	log zerolog.Logger
}

// NewZerologLogger wraps a zerolog.Logger as a Logger. Key/value pairs
// become structured fields on each event.
func NewZerologLogger(log zerolog.Logger) Logger {
	return &zerologAdapter{log: log}
}

// NewConsoleLogger returns a Logger writing human-readable output to
// stderr at the given level.
func NewConsoleLogger(level zerolog.Level) Logger {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
	return &zerologAdapter{log: log}
}

func (z *zerologAdapter) Debug(msg string, keysAndValues ...any) {
	z.emit(z.log.Debug(), msg, keysAndValues)
}

func (z *zerologAdapter) Info(msg string, keysAndValues ...any) {
	z.emit(z.log.Info(), msg, keysAndValues)
}

func (z *zerologAdapter) Warn(msg string, keysAndValues ...any) {
	z.emit(z.log.Warn(), msg, keysAndValues)
}

func (z *zerologAdapter) Error(msg string, keysAndValues ...any) {
	z.emit(z.log.Error(), msg, keysAndValues)
}

func (z *zerologAdapter) emit(ev *zerolog.Event, msg string, kv []any) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		ev = ev.Interface(key, kv[i+1])
	}
	ev.Msg(msg)
}

// logDebug and friends are nil-safe logging helpers attaching the
// per-call metadata to every event.
func (f *Fetcher) logDebug(eff *effectiveRequest, msg string, kv ...any) {
	if f.logger == nil {
		return
	}
	f.logger.Debug(msg, withMetadata(eff, kv)...)
}

func (f *Fetcher) logInfo(eff *effectiveRequest, msg string, kv ...any) {
	if f.logger == nil {
		return
	}
	f.logger.Info(msg, withMetadata(eff, kv)...)
}

func (f *Fetcher) logWarn(eff *effectiveRequest, msg string, kv ...any) {
	if f.logger == nil {
		return
	}
	f.logger.Warn(msg, withMetadata(eff, kv)...)
}

func (f *Fetcher) logError(eff *effectiveRequest, msg string, kv ...any) {
	if f.logger == nil {
		return
	}
	f.logger.Error(msg, withMetadata(eff, kv)...)
}

func withMetadata(eff *effectiveRequest, kv []any) []any {
	if eff == nil || len(eff.Metadata) == 0 {
		return kv
	}
	out := make([]any, 0, len(kv)+2*len(eff.Metadata))
	out = append(out, kv...)
	for k, v := range eff.Metadata {
		out = append(out, k, v)
	}
	return out
}
