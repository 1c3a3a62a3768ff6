/*
Copyright © 2025 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package logging provides the colorized CLI logger used by the linker
// and build-message packages in place of bare fmt/log calls.
package logging

import (
	"fmt"
	"os"
	"sync"

	"github.com/pterm/pterm"
)

// init configures pterm printers to use foreground colors only (no backgrounds).
func init() {
	pterm.Info = *pterm.Info.WithPrefix(pterm.Prefix{
		Text:  "INFO",
		Style: pterm.NewStyle(pterm.FgBlue),
	}).WithMessageStyle(&pterm.ThemeDefault.DefaultText)

	pterm.Success = *pterm.Success.WithPrefix(pterm.Prefix{
		Text:  "SUCCESS",
		Style: pterm.NewStyle(pterm.FgGreen),
	}).WithMessageStyle(&pterm.ThemeDefault.DefaultText)

	pterm.Warning = *pterm.Warning.WithPrefix(pterm.Prefix{
		Text:  "WARNING",
		Style: pterm.NewStyle(pterm.FgYellow),
	}).WithMessageStyle(&pterm.ThemeDefault.DefaultText)

	pterm.Error = *pterm.Error.WithPrefix(pterm.Prefix{
		Text:  "ERROR",
		Style: pterm.NewStyle(pterm.FgRed),
	}).WithMessageStyle(&pterm.ThemeDefault.DefaultText)

	pterm.Debug = *pterm.Debug.WithPrefix(pterm.Prefix{
		Text:  "DEBUG",
		Style: pterm.NewStyle(pterm.FgCyan),
	}).WithMessageStyle(&pterm.ThemeDefault.DefaultText)
}

// Level represents the severity of a log message.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarning:
		return "WARNING"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger is the process-wide colorized logger. Debug messages are gated on
// debugEnabled (set from METEOR_DEBUG_BUILD or --verbose); quietEnabled
// suppresses everything below Warning.
type Logger struct {
	mu           sync.RWMutex
	debugEnabled bool
	quietEnabled bool
}

var globalLogger = &Logger{debugEnabled: os.Getenv("METEOR_DEBUG_BUILD") != ""}

// GetLogger returns the global logger instance.
func GetLogger() *Logger { return globalLogger }

// SetDebugEnabled controls whether Debug messages are emitted.
func (l *Logger) SetDebugEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debugEnabled = enabled
}

// IsDebugEnabled reports whether Debug messages are emitted.
func (l *Logger) IsDebugEnabled() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.debugEnabled
}

// SetQuietEnabled suppresses Info and Debug messages.
func (l *Logger) SetQuietEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.quietEnabled = enabled
}

// IsQuietEnabled reports whether quiet mode is active.
func (l *Logger) IsQuietEnabled() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.quietEnabled
}

func (l *Logger) log(level Level, format string, args ...any) {
	l.mu.RLock()
	debugEnabled := l.debugEnabled
	quietEnabled := l.quietEnabled
	l.mu.RUnlock()

	if level == LevelDebug && !debugEnabled {
		return
	}
	if quietEnabled && (level == LevelInfo || level == LevelDebug) {
		return
	}

	message := fmt.Sprintf(format, args...)
	switch level {
	case LevelDebug:
		pterm.Debug.Println(message)
	case LevelInfo:
		pterm.Info.Println(message)
	case LevelWarning:
		pterm.Warning.Println(message)
	case LevelError:
		pterm.Error.Println(message)
	}
}

func (l *Logger) Debug(format string, args ...any)   { l.log(LevelDebug, format, args...) }
func (l *Logger) Info(format string, args ...any)    { l.log(LevelInfo, format, args...) }
func (l *Logger) Warning(format string, args ...any) { l.log(LevelWarning, format, args...) }
func (l *Logger) Error(format string, args ...any)   { l.log(LevelError, format, args...) }

// Success prints a success line unless quiet mode is active.
func (l *Logger) Success(format string, args ...any) {
	l.mu.RLock()
	quietEnabled := l.quietEnabled
	l.mu.RUnlock()
	if quietEnabled {
		return
	}
	pterm.Success.Printf(format+"\n", args...)
}

// Package-level convenience wrappers around the global logger.
func Debug(format string, args ...any)   { globalLogger.Debug(format, args...) }
func Info(format string, args ...any)    { globalLogger.Info(format, args...) }
func Warning(format string, args ...any) { globalLogger.Warning(format, args...) }
func Error(format string, args ...any)   { globalLogger.Error(format, args...) }
func Success(format string, args ...any) { globalLogger.Success(format, args...) }

func SetDebugEnabled(enabled bool) { globalLogger.SetDebugEnabled(enabled) }
func IsDebugEnabled() bool         { return globalLogger.IsDebugEnabled() }
func SetQuietEnabled(enabled bool) { globalLogger.SetQuietEnabled(enabled) }
func IsQuietEnabled() bool         { return globalLogger.IsQuietEnabled() }
