package helpers

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"strings"
)

type Logger interface {
	Println(v ...any)
	Printf(format string, v ...any)
	Print(v ...any)
}

type _defaultLogger struct {
}

func (l *_defaultLogger) Println(v ...any) {
	log.Println(v...)
}
func (l *_defaultLogger) Printf(format string, v ...any) {
	log.Printf(format, v...)
}
func (l *_defaultLogger) Print(v ...any) {
	log.Print(v...)
}

var DefaultLogger = _defaultLogger{}

type _silentLogger struct {
}

func (l *_silentLogger) Println(v ...any)               {}
func (l *_silentLogger) Printf(format string, v ...any) {}
func (l *_silentLogger) Print(v ...any)                 {}

var SilentLogger = _silentLogger{}

type funcLogger struct {
	write func(string)
}

// FuncLogger forwards every formatted message to write.
func FuncLogger(write func(string)) Logger {
	return &funcLogger{write: write}
}

func (l *funcLogger) Println(v ...any) {
	l.write(fmt.Sprintln(v...))
}
func (l *funcLogger) Printf(format string, v ...any) {
	l.write(fmt.Sprintf(format, v...))
}
func (l *funcLogger) Print(v ...any) {
	l.write(fmt.Sprint(v...))
}

// SlogLogger routes Logger calls into the default slog handler at a fixed
// level, so LOG_LEVEL decides what is printed.
type SlogLogger struct {
	Level slog.Level
	Attrs []any
}

var _ Logger = (*SlogLogger)(nil)

func (l *SlogLogger) log(message string) {
	slog.Default().Log(context.Background(), l.Level, strings.TrimSpace(message), l.Attrs...)
}

func (l *SlogLogger) Println(v ...any) {
	l.log(fmt.Sprintln(v...))
}
func (l *SlogLogger) Printf(format string, v ...any) {
	l.log(fmt.Sprintf(format, v...))
}
func (l *SlogLogger) Print(v ...any) {
	l.log(fmt.Sprint(v...))
}

type prefixLogger struct {
	prefix string
	logger Logger
}

// PrefixLogger tags every message with prefix, eg. the path of an engine binary.
func PrefixLogger(prefix string, logger Logger) Logger {
	return &prefixLogger{prefix: prefix, logger: logger}
}

func (l *prefixLogger) Println(v ...any) {
	l.logger.Println(append([]any{l.prefix}, v...)...)
}
func (l *prefixLogger) Printf(format string, v ...any) {
	l.logger.Printf(l.prefix+" "+format, v...)
}
func (l *prefixLogger) Print(v ...any) {
	l.logger.Print(l.prefix + " " + fmt.Sprint(v...))
}
