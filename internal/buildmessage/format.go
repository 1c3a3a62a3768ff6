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

package buildmessage

import (
	"fmt"
	"strings"
)

// FormatMessages renders every job carrying a message as a
// "While <title>:\n" block of indented "<file>:<line>:<column>: <message>"
// lines. File-less messages are prefixed "error: "; a
// stack with more than one frame is appended as "    at <func> (<file>:<line>:<col>)"
// lines. Exact duplicate message+stack renderings within one job are
// suppressed. Jobs are visited in MessageSet order, depth-first.
func (s *MessageSet) FormatMessages() string {
	var sb strings.Builder
	for _, job := range s.Jobs() {
		formatJob(&sb, job)
	}
	return sb.String()
}

func formatJob(sb *strings.Builder, job *Job) {
	msgs := job.Messages()
	if len(msgs) > 0 {
		fmt.Fprintf(sb, "While %s:\n", titleOrDefault(job.Title))
		seen := map[string]bool{}
		for _, m := range msgs {
			line := formatOneMessage(m)
			if seen[line] {
				continue
			}
			seen[line] = true
			sb.WriteString(line)
		}
		sb.WriteString("\n")
	}
	for _, child := range job.Children() {
		formatJob(sb, child)
	}
}

func formatOneMessage(m Message) string {
	var sb strings.Builder
	switch {
	case m.File == "":
		fmt.Fprintf(&sb, "  error: %s\n", m.Text)
	case m.Line == 0 && m.Column == 0:
		fmt.Fprintf(&sb, "  %s: %s\n", m.File, m.Text)
	default:
		fmt.Fprintf(&sb, "  %s:%d:%d: %s\n", m.File, m.Line, m.Column, m.Text)
	}
	if len(m.Stack) > 1 {
		for _, f := range m.Stack {
			fmt.Fprintf(&sb, "    at %s (%s:%d:%d)\n", f.Func, f.File, f.Line, f.Column)
		}
	}
	return sb.String()
}
