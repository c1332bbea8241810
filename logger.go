package socks5d

import (
	"fmt"

	syslog "github.com/RackSec/srslog"
	"github.com/sirupsen/logrus"
)

// Log is the package-level logger used throughout socks5d. Callers can
// replace it (e.g. to redirect output, attach hooks, or raise the level)
// before starting a Server.
var Log = logrus.New()

// SetLevel parses a textual level (debug, info, warn, error) and applies
// it to Log. Unknown levels fall back to info, matching the original
// implementation's permissive level parsing.
func SetLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	Log.SetLevel(lvl)
}

// EnableSyslog forwards all log output to a remote or local syslog
// daemon in addition to Log's existing output. addr may be empty to use
// the local syslog socket; network is one of "udp", "tcp", "unix".
func EnableSyslog(network, addr, tag string) error {
	w, err := syslog.Dial(network, addr, syslog.LOG_INFO|syslog.LOG_DAEMON, tag)
	if err != nil {
		return fmt.Errorf("failed to dial syslog: %w", err)
	}
	Log.AddHook(&syslogHook{w: w})
	return nil
}

// syslogHook is a minimal logrus.Hook that mirrors every log entry to a
// syslog writer, in the style of the teacher's Syslog resolver which
// forwards query/answer lines to an *srslog.Writer.
type syslogHook struct {
	w *syslog.Writer
}

func (h *syslogHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *syslogHook) Fire(entry *logrus.Entry) error {
	line, err := entry.String()
	if err != nil {
		return err
	}
	switch entry.Level {
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		_, err = h.w.Err(line)
	case logrus.WarnLevel:
		_, err = h.w.Warning(line)
	case logrus.DebugLevel, logrus.TraceLevel:
		_, err = h.w.Debug(line)
	default:
		_, err = h.w.Info(line)
	}
	return err
}
