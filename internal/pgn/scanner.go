// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pgn

import (
	"bufio"
	"io"
	"strings"
)

// Scanner drives a Filter over a stream of concatenated PGN games, the
// concrete (non-spec) tokenizer standing in for the "streaming visitor
// library" §1 delegates notation parsing to. It reads one game per
// ScanGame call: the `[Key "Value"]` header block, a blank line, then
// movetext up to the result token.
type Scanner struct {
	r *bufio.Reader
}

// NewScanner wraps r for sequential per-game scanning.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{r: bufio.NewReaderSize(r, 64*1024)}
}

// ScanGame reads one game into f, calling f.BeginGame, f.Header (zero or
// more times), f.EndHeaders, f.San (zero or more times, unless
// EndHeaders requested a skip) and f.EndGame, in that order. It returns
// io.EOF once the stream is exhausted with no further games.
func (s *Scanner) ScanGame(f *Filter) error {
	f.BeginGame()

	sawHeader := false
	for {
		line, err := s.r.ReadString('\n')
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			if key, value, ok := parseHeaderLine(trimmed); ok {
				sawHeader = true
				f.Header(key, value)
			}
		} else if sawHeader {
			break
		}
		if err != nil {
			if err == io.EOF && !sawHeader {
				return io.EOF
			}
			break
		}
	}

	skipMoves := f.EndHeaders()

	for {
		line, err := s.r.ReadString('\n')
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if err != nil {
				break
			}
			if skipMoves {
				continue
			}
			break
		}
		if !skipMoves {
			for _, tok := range splitMovetext(trimmed) {
				f.San(tok)
			}
		}
		if err != nil {
			break
		}
		if movetextEndsGame(trimmed) {
			break
		}
	}

	return f.EndGame()
}

func parseHeaderLine(line string) (key, value string, ok bool) {
	if !strings.HasPrefix(line, "[") || !strings.HasSuffix(line, "]") {
		return "", "", false
	}
	body := line[1 : len(line)-1]
	sp := strings.IndexByte(body, ' ')
	if sp < 0 {
		return "", "", false
	}
	key = body[:sp]
	rest := strings.TrimSpace(body[sp+1:])
	value = strings.Trim(rest, `"`)
	return key, value, true
}

// splitMovetext tokenizes one line of movetext, discarding move numbers
// ("12.", "12..."), result markers, NAGs ("$1"), `{...}` comments and
// `(...)` variations, keeping only mainline SAN tokens. Comment and
// variation state is tracked within the line only; one that runs past
// the end of the line is not carried into the next.
func splitMovetext(line string) []string {
	fields := strings.Fields(line)
	out := make([]string, 0, len(fields))
	inComment, variation := false, 0
	for _, tok := range fields {
		switch {
		case inComment, strings.HasPrefix(tok, "{"):
			inComment = !strings.Contains(tok, "}")
			continue
		case variation > 0, strings.HasPrefix(tok, "("):
			variation += strings.Count(tok, "(") - strings.Count(tok, ")")
			continue
		case strings.HasPrefix(tok, "$"):
			continue
		}
		switch tok {
		case "1-0", "0-1", "1/2-1/2", "*":
			continue
		}
		if isMoveNumber(tok) {
			continue
		}
		out = append(out, tok)
	}
	return out
}

func isMoveNumber(tok string) bool {
	i := strings.IndexFunc(tok, func(r rune) bool { return r < '0' || r > '9' })
	if i == 0 {
		return false
	}
	if i < 0 {
		return true
	}
	return strings.Trim(tok[i:], ".") == ""
}

func movetextEndsGame(line string) bool {
	switch {
	case strings.HasSuffix(line, "1-0"),
		strings.HasSuffix(line, "0-1"),
		strings.HasSuffix(line, "1/2-1/2"),
		strings.HasSuffix(line, "*"):
		return true
	}
	return false
}
