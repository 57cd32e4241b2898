// Package stream implements the incremental parser for the upstream
// completion wire format: free assistant text interleaved with line-delimited
// control markers. Chunks arrive with arbitrary boundaries, so the parser
// keeps a tail buffer and never assumes a marker arrives whole.
//
// Grammar (one construct per line):
//
//	[[CITATIONS_START]]          opens a citation block
//	[<json citation array>]      one or more JSON-array lines inside the block
//	[[CITATIONS_END]]            closes the block; later text is displayable again
//	[[STATUS:<label>]]           action signal, surfaced only before first content
//	[[THREAD_ID:<id>]]           thread identifier, captured once
//
// There is no escaping convention for literal marker text inside model
// output; that ambiguity is inherited from the wire protocol.
package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/af-corp/conduit/internal/types"
)

const (
	citationsStartMarker = "[[CITATIONS_START]]"
	citationsEndMarker   = "[[CITATIONS_END]]"
	statusPrefix         = "[[STATUS:"
	threadPrefix         = "[[THREAD_ID:"
	signalSuffix         = "]]"

	// A held partial line longer than this can no longer be a control
	// marker and is flushed as display text.
	maxSignalLine = 256
)

type parserState int

const (
	stateAccumulating parserState = iota
	stateInCitationBlock
)

// ChunkResult is the parser output after consuming one chunk. DisplayText and
// Citations are cumulative; Action carries only a signal that arrived in this
// chunk.
type ChunkResult struct {
	DisplayText        string
	ContentChanged     bool
	Citations          []types.Citation
	CitationsChanged   bool
	Action             string
	HasReceivedContent bool
}

// Parser consumes an upstream token stream incrementally. It is
// single-consumer: one goroutine feeds chunks and reads results between them.
type Parser struct {
	state parserState
	buf   []byte

	content strings.Builder
	// pendingNewline defers the newline terminating a content line until we
	// know the next line is not a control marker. The newline introducing a
	// marker line belongs to the marker, not the display text.
	pendingNewline bool
	// lineDirty means a prefix of the current line was already displayed, so
	// the rest of the line cannot start a marker.
	lineDirty bool

	citations     []types.Citation
	citationsSeen bool
	threadID      string
	warnings      []string
	finalized     bool

	// Per-chunk flags, reset on each ProcessChunk call.
	contentChanged   bool
	citationsChanged bool
	action           string
}

func NewParser() *Parser {
	return &Parser{}
}

// ProcessChunk feeds one raw chunk and returns the cumulative parse state.
func (p *Parser) ProcessChunk(chunk []byte) ChunkResult {
	p.contentChanged = false
	p.citationsChanged = false
	p.action = ""

	p.buf = append(p.buf, chunk...)
	for {
		idx := bytes.IndexByte(p.buf, '\n')
		if idx < 0 {
			break
		}
		line := string(p.buf[:idx])
		p.buf = p.buf[idx+1:]
		p.consumeLine(line)
	}
	p.handleTail()

	return p.result()
}

// Finalize flushes any held tail and returns the full visible text. Safe to
// call after a truncated stream; whatever accumulated stays usable.
func (p *Parser) Finalize() string {
	if p.finalized {
		return p.content.String()
	}
	p.finalized = true

	tail := string(p.buf)
	p.buf = nil

	switch p.state {
	case stateInCitationBlock:
		trimmed := strings.TrimRight(tail, "\r")
		if trimmed == citationsEndMarker {
			p.state = stateAccumulating
			p.pendingNewline = false
		} else {
			if trimmed != "" {
				p.parseCitationLine(trimmed)
			}
			p.warn("stream ended inside citation block")
		}
	case stateAccumulating:
		if tail != "" {
			p.consumeFinalLine(tail)
		}
	}

	// A trailing newline consumed from the input but never attached to a
	// marker belongs to the display text.
	if p.state == stateAccumulating && p.pendingNewline {
		p.content.WriteByte('\n')
		p.pendingNewline = false
	}
	return p.content.String()
}

// ThreadID returns the captured thread identifier, if any was signaled.
func (p *Parser) ThreadID() string { return p.threadID }

// Citations returns the parsed citation list.
func (p *Parser) Citations() []types.Citation { return p.citations }

// HasReceivedContent reports whether any visible text has arrived.
func (p *Parser) HasReceivedContent() bool { return p.content.Len() > 0 }

// Warnings returns parse anomalies (malformed citation lines, duplicate
// blocks, truncation). They never abort the parse.
func (p *Parser) Warnings() []string { return p.warnings }

func (p *Parser) result() ChunkResult {
	return ChunkResult{
		DisplayText:        p.content.String(),
		ContentChanged:     p.contentChanged,
		Citations:          p.citations,
		CitationsChanged:   p.citationsChanged,
		Action:             p.action,
		HasReceivedContent: p.content.Len() > 0,
	}
}

// consumeLine handles one complete line (its terminating newline already
// consumed from the buffer).
func (p *Parser) consumeLine(line string) {
	if p.lineDirty {
		// The line's prefix was already displayed; the rest is plain text.
		p.appendContent(line)
		p.lineDirty = false
		p.pendingNewline = true
		return
	}

	trimmed := strings.TrimRight(line, "\r")

	switch p.state {
	case stateAccumulating:
		switch {
		case trimmed == citationsStartMarker:
			if p.citationsSeen {
				p.warn("duplicate citation block, keeping the later one")
				p.citations = nil
				p.citationsChanged = true
			}
			p.citationsSeen = true
			p.state = stateInCitationBlock
			p.pendingNewline = false
		case isSignal(trimmed, statusPrefix):
			// First-content-wins: once real text arrived, status signals
			// keep coming from upstream but are no longer surfaced.
			if p.content.Len() == 0 {
				p.action = signalBody(trimmed, statusPrefix)
			}
			p.pendingNewline = false
		case isSignal(trimmed, threadPrefix):
			if p.threadID == "" {
				p.threadID = signalBody(trimmed, threadPrefix)
			}
			p.pendingNewline = false
		default:
			p.appendContent(line)
			p.pendingNewline = true
		}
	case stateInCitationBlock:
		if trimmed == citationsEndMarker {
			p.state = stateAccumulating
			p.pendingNewline = false
			return
		}
		p.parseCitationLine(trimmed)
	}
}

// consumeFinalLine handles the unterminated last line at stream end. Marker
// lines are still honored; anything else is display text with no trailing
// newline.
func (p *Parser) consumeFinalLine(tail string) {
	if p.lineDirty {
		p.appendContent(tail)
		return
	}
	trimmed := strings.TrimRight(tail, "\r")
	switch {
	case trimmed == citationsStartMarker:
		p.citationsSeen = true
		p.state = stateInCitationBlock
		p.pendingNewline = false
		p.warn("stream ended inside citation block")
	case isSignal(trimmed, statusPrefix):
		if p.content.Len() == 0 {
			p.action = signalBody(trimmed, statusPrefix)
		}
		p.pendingNewline = false
	case isSignal(trimmed, threadPrefix):
		if p.threadID == "" {
			p.threadID = signalBody(trimmed, threadPrefix)
		}
		p.pendingNewline = false
	default:
		p.appendContent(tail)
	}
}

// handleTail decides what to do with bytes after the last newline: display
// them eagerly, or hold them because they may still become a marker.
func (p *Parser) handleTail() {
	if len(p.buf) == 0 || p.state == stateInCitationBlock {
		return
	}
	if p.lineDirty {
		p.appendContent(string(p.buf))
		p.buf = p.buf[:0]
		return
	}
	if couldBeSignalPrefix(string(p.buf)) {
		return
	}
	p.appendContent(string(p.buf))
	p.lineDirty = true
	p.buf = p.buf[:0]
}

func (p *Parser) appendContent(s string) {
	if p.pendingNewline {
		p.content.WriteByte('\n')
		p.pendingNewline = false
		p.contentChanged = true
	}
	if s != "" {
		p.content.WriteString(s)
		p.contentChanged = true
	}
}

// parseCitationLine parses one JSON-array line inside a citation block.
// Malformed lines are skipped with a warning; later valid lines still count.
func (p *Parser) parseCitationLine(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	var cits []types.Citation
	if err := json.Unmarshal([]byte(line), &cits); err != nil {
		p.warn(fmt.Sprintf("skipping malformed citation line: %v", err))
		return
	}
	if len(cits) == 0 {
		return
	}
	p.citations = append(p.citations, cits...)
	// Renumber densely in appearance order; upstream numbering is advisory.
	for i := range p.citations {
		p.citations[i].Number = i + 1
	}
	p.citationsChanged = true
}

func (p *Parser) warn(msg string) {
	p.warnings = append(p.warnings, msg)
}

func isSignal(line, prefix string) bool {
	return strings.HasPrefix(line, prefix) &&
		strings.HasSuffix(line, signalSuffix) &&
		len(line) >= len(prefix)+len(signalSuffix)
}

func signalBody(line, prefix string) string {
	return line[len(prefix) : len(line)-len(signalSuffix)]
}

// couldBeSignalPrefix reports whether a partial line might still turn into a
// control marker once more bytes arrive.
func couldBeSignalPrefix(partial string) bool {
	partial = strings.TrimSuffix(partial, "\r")
	if partial == "" || len(partial) > maxSignalLine {
		return false
	}
	if len(partial) <= len(citationsStartMarker) &&
		strings.HasPrefix(citationsStartMarker, partial) {
		return true
	}
	for _, prefix := range []string{statusPrefix, threadPrefix} {
		if len(partial) <= len(prefix) {
			if strings.HasPrefix(prefix, partial) {
				return true
			}
			continue
		}
		if strings.HasPrefix(partial, prefix) {
			return true
		}
	}
	return false
}
