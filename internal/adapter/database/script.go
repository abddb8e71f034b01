package database

import (
	"bufio"
	"io"
	"strings"
)

// ScriptScanner splits a SQL script as produced by mysqldump into single
// statements. It understands quoted strings, line and block comments and the
// DELIMITER directive of the mysql client. Versioned comments (/*!40101 ... */)
// are kept since the server executes them.
type ScriptScanner struct {
	r       *bufio.Reader
	delim   string
	buf     strings.Builder
	pending []string
	stmt    string
	err     error
	eof     bool

	quote byte
	block bool
}

func NewScriptScanner(r io.Reader) *ScriptScanner {
	return &ScriptScanner{r: bufio.NewReaderSize(r, 1<<20), delim: ";"}
}

func (s *ScriptScanner) Scan() bool {
	for len(s.pending) == 0 && !s.eof && s.err == nil {
		line, err := s.r.ReadString('\n')
		if err == io.EOF {
			s.eof = true
		} else if err != nil {
			s.err = err
			return false
		}
		if line != "" {
			s.consume(line)
		}
		if s.eof {
			s.emit()
		}
	}
	if len(s.pending) == 0 {
		return false
	}
	s.stmt, s.pending = s.pending[0], s.pending[1:]
	return true
}

func (s *ScriptScanner) Statement() string { return s.stmt }

func (s *ScriptScanner) Err() error { return s.err }

func (s *ScriptScanner) consume(line string) {
	if s.quote == 0 && !s.block && strings.TrimSpace(s.buf.String()) == "" {
		trimmed := strings.TrimSpace(line)
		if delim, ok := delimiterDirective(trimmed); ok {
			s.delim = delim
			return
		}
	}

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case s.block:
			if c == '*' && i+1 < len(line) && line[i+1] == '/' {
				s.block = false
				s.buf.WriteString("*/")
				i++
				continue
			}
			s.buf.WriteByte(c)

		case s.quote != 0:
			s.buf.WriteByte(c)
			if c == '\\' && s.quote != '`' && i+1 < len(line) {
				s.buf.WriteByte(line[i+1])
				i++
				continue
			}
			if c == s.quote {
				s.quote = 0
			}

		case strings.HasPrefix(line[i:], s.delim):
			s.emit()
			i += len(s.delim) - 1

		case c == '\'' || c == '"' || c == '`':
			s.quote = c
			s.buf.WriteByte(c)

		case c == '/' && i+1 < len(line) && line[i+1] == '*':
			s.block = true
			s.buf.WriteString("/*")
			i++

		case c == '#' || isDashComment(line, i):
			s.buf.WriteByte('\n')
			return

		default:
			s.buf.WriteByte(c)
		}
	}
}

func (s *ScriptScanner) emit() {
	stmt := strings.TrimSpace(s.buf.String())
	s.buf.Reset()
	if !isBlankStatement(stmt) {
		s.pending = append(s.pending, stmt)
	}
}

func delimiterDirective(line string) (string, bool) {
	fields := strings.Fields(line)
	if len(fields) == 2 && strings.EqualFold(fields[0], "DELIMITER") {
		return fields[1], true
	}
	return "", false
}

// isDashComment reports a "-- " comment starting at i. MySQL requires
// whitespace after the two dashes.
func isDashComment(line string, i int) bool {
	if !strings.HasPrefix(line[i:], "--") {
		return false
	}
	if i+2 == len(line) {
		return true
	}
	switch line[i+2] {
	case ' ', '\t', '\n', '\r':
		return true
	}
	return false
}

// isBlankStatement is true for text made only of plain block comments,
// which the server would reject as an empty query.
func isBlankStatement(stmt string) bool {
	for {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			return true
		}
		if !strings.HasPrefix(stmt, "/*") || strings.HasPrefix(stmt, "/*!") {
			return false
		}
		end := strings.Index(stmt, "*/")
		if end < 0 {
			return false
		}
		stmt = stmt[end+2:]
	}
}
