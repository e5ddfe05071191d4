// Package stream turns incremental model tokens into speakable units.
// Tokens arrive in arbitrary fragments; the assembler buffers them and
// emits complete sentences so downstream synthesis can start before the
// full response exists. Emitted units keep their trailing whitespace,
// so concatenating every unit reproduces the raw token stream exactly.
package stream

import (
	"strings"
	"unicode"
)

const defaultMinUnitLen = 10

// abbreviations that end in a period without ending a sentence.
var abbreviations = map[string]struct{}{
	"mr.": {}, "mrs.": {}, "ms.": {}, "dr.": {}, "prof.": {},
	"sr.": {}, "jr.": {}, "st.": {}, "vs.": {}, "etc.": {},
	"e.g.": {}, "i.e.": {}, "u.s.": {}, "u.k.": {}, "inc.": {},
	"ltd.": {}, "co.": {}, "corp.": {}, "no.": {}, "approx.": {},
}

// Assembler accumulates tokens and splits them at sentence boundaries.
// A boundary is a run of sentence terminators followed by whitespace
// followed by more text; the whitespace stays attached to the finished
// unit. Fragments shorter than the minimum are merged into the next
// sentence rather than spoken on their own.
type Assembler struct {
	buf    strings.Builder
	minLen int
}

// NewAssembler returns an assembler with the given minimum unit length.
// A non-positive minLen selects the default.
func NewAssembler(minLen int) *Assembler {
	if minLen <= 0 {
		minLen = defaultMinUnitLen
	}
	return &Assembler{minLen: minLen}
}

// Push appends a token and returns any units completed by it, in order.
func (a *Assembler) Push(token string) []string {
	if token == "" {
		return nil
	}
	a.buf.WriteString(token)
	return a.drain()
}

// Flush returns whatever remains buffered, complete sentence or not,
// and resets the assembler. It returns "" when nothing is pending.
func (a *Assembler) Flush() string {
	rest := a.buf.String()
	a.buf.Reset()
	return rest
}

// Pending reports whether unemitted text is buffered.
func (a *Assembler) Pending() bool { return a.buf.Len() > 0 }

func (a *Assembler) drain() []string {
	var units []string
	s := a.buf.String()
	start := 0

	for {
		cut, ok := a.nextBoundary(s, start)
		if !ok {
			break
		}
		units = append(units, s[start:cut])
		start = cut
	}

	if start > 0 {
		rest := s[start:]
		a.buf.Reset()
		a.buf.WriteString(rest)
	}
	return units
}

// nextBoundary finds the end of the next complete unit at or after
// start. A boundary is only final once a non-whitespace rune follows
// the terminator's whitespace run; until then the run may still grow
// with the next token.
func (a *Assembler) nextBoundary(s string, start int) (int, bool) {
	i := start
	for i < len(s) {
		if !isTerminator(s[i]) {
			i++
			continue
		}
		for i < len(s) && isTerminator(s[i]) {
			i++
		}
		wsStart := i
		for i < len(s) && isSpace(s[i]) {
			i++
		}
		if wsStart == i || i >= len(s) {
			// No whitespace yet, or the whitespace run may continue.
			continue
		}
		if isAbbreviation(s[start:wsStart]) {
			continue
		}
		if len(strings.TrimSpace(s[start:wsStart])) < a.minLen {
			continue
		}
		return i, true
	}
	return 0, false
}

// isAbbreviation reports whether the candidate unit ends in a known
// abbreviation such as "dr." or "e.g.".
func isAbbreviation(candidate string) bool {
	trimmed := strings.TrimRight(candidate, "!?")
	if !strings.HasSuffix(trimmed, ".") {
		return false
	}
	idx := strings.LastIndexFunc(trimmed, unicode.IsSpace)
	word := strings.ToLower(trimmed[idx+1:])
	_, ok := abbreviations[word]
	return ok
}

func isTerminator(b byte) bool { return b == '.' || b == '!' || b == '?' }

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
