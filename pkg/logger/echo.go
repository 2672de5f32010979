package logger

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/sirupsen/logrus"
)

// NewEchoLogger returns an echo logger that writes to the standard logrus logger.
func NewEchoLogger() echo.Logger {
	return &echoLogger{log: logrus.StandardLogger()}
}

type echoLogger struct {
	log *logrus.Logger
}

var echoLevels = map[logrus.Level]log.Lvl{
	logrus.TraceLevel: log.DEBUG,
	logrus.DebugLevel: log.DEBUG,
	logrus.InfoLevel:  log.INFO,
	logrus.WarnLevel:  log.WARN,
}

func jsonLine(j log.JSON) string {
	b, err := json.Marshal(j)
	if err != nil {
		return fmt.Sprintf("%v", map[string]interface{}(j))
	}
	return string(b)
}

// SetLevel is a no-op; the level follows logrus.
func (l *echoLogger) SetLevel(log.Lvl) {}

func (l *echoLogger) Level() log.Lvl {
	if lvl, ok := echoLevels[l.log.GetLevel()]; ok {
		return lvl
	}
	return log.ERROR
}

func (l *echoLogger) SetOutput(w io.Writer) { l.log.SetOutput(w) }
func (l *echoLogger) Output() io.Writer     { return l.log.Out }
func (l *echoLogger) SetPrefix(string)      {}
func (l *echoLogger) Prefix() string        { return "" }
func (l *echoLogger) SetHeader(string)      {}

func (l *echoLogger) Print(i ...interface{})                    { l.log.Print(i...) }
func (l *echoLogger) Printf(format string, args ...interface{}) { l.log.Printf(format, args...) }
func (l *echoLogger) Printj(j log.JSON)                         { l.log.Print(jsonLine(j)) }
func (l *echoLogger) Debug(i ...interface{})                    { l.log.Debug(i...) }
func (l *echoLogger) Debugf(format string, args ...interface{}) { l.log.Debugf(format, args...) }
func (l *echoLogger) Debugj(j log.JSON)                         { l.log.Debug(jsonLine(j)) }
func (l *echoLogger) Info(i ...interface{})                     { l.log.Info(i...) }
func (l *echoLogger) Infof(format string, args ...interface{})  { l.log.Infof(format, args...) }
func (l *echoLogger) Infoj(j log.JSON)                          { l.log.Info(jsonLine(j)) }
func (l *echoLogger) Warn(i ...interface{})                     { l.log.Warn(i...) }
func (l *echoLogger) Warnf(format string, args ...interface{})  { l.log.Warnf(format, args...) }
func (l *echoLogger) Warnj(j log.JSON)                          { l.log.Warn(jsonLine(j)) }
func (l *echoLogger) Error(i ...interface{})                    { l.log.Error(i...) }
func (l *echoLogger) Errorf(format string, args ...interface{}) { l.log.Errorf(format, args...) }
func (l *echoLogger) Errorj(j log.JSON)                         { l.log.Error(jsonLine(j)) }
func (l *echoLogger) Fatal(i ...interface{})                    { l.log.Fatal(i...) }
func (l *echoLogger) Fatalf(format string, args ...interface{}) { l.log.Fatalf(format, args...) }
func (l *echoLogger) Fatalj(j log.JSON)                         { l.log.Fatal(jsonLine(j)) }
func (l *echoLogger) Panic(i ...interface{})                    { l.log.Panic(i...) }
func (l *echoLogger) Panicf(format string, args ...interface{}) { l.log.Panicf(format, args...) }
func (l *echoLogger) Panicj(j log.JSON)                         { l.log.Panic(jsonLine(j)) }
