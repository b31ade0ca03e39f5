// +build freebsd linux darwin

package log

import "log/syslog"

type syslogLogger struct {
	lInfo  *LoggerInfo
	writer *syslog.Writer
}

func (sl *syslogLogger) Log(level int, msg string) {
	_, _ = sl.writer.Write([]byte(msg))
}

func (sl *syslogLogger) Close() {
	_ = sl.writer.Close()
}

func (sl *syslogLogger) GetLoggerInfo() *LoggerInfo {
	return sl.lInfo
}

// NewSyslogLogger creates a logger forwarding to syslog with the given
// priority and tag, emitting the debug categories selected by mask.
func NewSyslogLogger(mask int, priority syslog.Priority, tag string) (Logger, error) {
	w, err := syslog.New(priority, tag)
	if err != nil {
		return nil, err
	}
	return &syslogLogger{lInfo: &LoggerInfo{Mask: mask}, writer: w}, nil
}
