// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
)

// 🎯 Logger renders user-facing progress for a replication walk and mirrors
// every line into zerolog for debugging. Walk messages are indented
// proportionally to traversal depth.
type Logger struct {
	zlog    zerolog.Logger
	console io.Writer
	mu      sync.Mutex
}

// 🏭 New creates a logger writing user output to console.
func New(console io.Writer, zlog zerolog.Logger) *Logger {
	return &Logger{
		zlog:    zlog,
		console: console,
	}
}

// Discard returns a logger that keeps only the zerolog side.
func Discard(zlog zerolog.Logger) *Logger {
	return New(io.Discard, zlog)
}

func indent(depth int) string {
	return strings.Repeat("  ", depth)
}

func (l *Logger) line(depth int, symbol string, attr color.Attribute, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.console, "%s%s %s\n", indent(depth), color.New(attr).Sprint(symbol), msg)
}

// 📝 Replicating announces the top-level copy.
func (l *Logger) Replicating(name, id, copyName, destID string) {
	l.mu.Lock()
	fmt.Fprintf(l.console, "Copying directory %s (%s) to %s (in %s)\n",
		color.New(color.Bold).Sprint(name), id,
		color.New(color.Bold).Sprint(copyName), destID)
	l.mu.Unlock()
	l.zlog.Info().Str("source", id).Str("name", name).Str("copy_name", copyName).
		Str("dest", destID).Msg("copying directory")
}

// 📝 CreateDir reports a destination directory being created.
func (l *Logger) CreateDir(depth int, name string) {
	l.line(depth, "+", color.FgGreen, fmt.Sprintf("Creating directory %s", name))
	l.zlog.Debug().Str("name", name).Int("depth", depth).Msg("creating directory")
}

// 📝 MergeDir reports an existing destination directory being reused.
func (l *Logger) MergeDir(depth int, name string) {
	l.line(depth, "•", color.FgCyan, fmt.Sprintf("Merging into existing directory %s", name))
	l.zlog.Debug().Str("name", name).Int("depth", depth).Msg("merging into existing directory")
}

// 📝 Copy reports an object being copied under its own name.
func (l *Logger) Copy(depth int, typ, name string) {
	l.line(depth, "✓", color.FgGreen, fmt.Sprintf("Copying %s %s", typ, name))
	l.zlog.Debug().Str("type", typ).Str("name", name).Int("depth", depth).Msg("copying object")
}

// 📝 CopyRenamed reports a keep-both copy under a fresh name.
func (l *Logger) CopyRenamed(depth int, typ, oldName, newName string) {
	l.line(depth, "✓", color.FgGreen, fmt.Sprintf("Copying %s from %s to %s", typ, oldName, newName))
	l.zlog.Debug().Str("type", typ).Str("name", oldName).Str("new_name", newName).
		Int("depth", depth).Msg("copying object under new name")
}

// 📝 Overwrite reports an existing destination object being replaced.
func (l *Logger) Overwrite(depth int, typ, name string) {
	l.line(depth, "⟳", color.FgBlue, fmt.Sprintf("Overwriting %s %s", typ, name))
	l.zlog.Debug().Str("type", typ).Str("name", name).Int("depth", depth).Msg("overwriting object")
}

// 📝 Skip reports an object left alone.
func (l *Logger) Skip(depth int, typ, name, reason string) {
	msg := fmt.Sprintf("Skipping %s %s", typ, name)
	if reason != "" {
		msg += fmt.Sprintf(" (%s)", reason)
	}
	l.line(depth, "-", color.FgYellow, msg)
	l.zlog.Debug().Str("type", typ).Str("name", name).Str("reason", reason).
		Int("depth", depth).Msg("skipping object")
}

// 📝 Infof prints an unindented informational line.
func (l *Logger) Infof(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.mu.Lock()
	fmt.Fprintf(l.console, "%s\n", color.New(color.FgCyan).Sprint(msg))
	l.mu.Unlock()
	l.zlog.Info().Msg(msg)
}

// 📝 Warningf prints an unindented warning line.
func (l *Logger) Warningf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.mu.Lock()
	fmt.Fprintf(l.console, "%s\n", color.New(color.FgYellow).Sprint(msg))
	l.mu.Unlock()
	l.zlog.Warn().Msg(msg)
}

// 📝 Errorf prints an unindented error line.
func (l *Logger) Errorf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.mu.Lock()
	fmt.Fprintf(l.console, "%s\n", color.New(color.FgRed).Sprint(msg))
	l.mu.Unlock()
	l.zlog.Error().Msg(msg)
}
