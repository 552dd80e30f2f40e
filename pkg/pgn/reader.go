// Package pgn reads the tag sections of Portable Game Notation streams.
//
// The reader tokenizes movetext only as far as needed to find game
// boundaries: moves, move numbers, NAGs, comments, variations and escape
// lines are consumed and never reported. Each game produces zero or more
// Header calls followed by exactly one EndGame call.
package pgn

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
)

// DefaultBufferSize is the read buffer used when no option overrides it
const DefaultBufferSize = 64 * 1024

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Visitor receives parse events for each game, in file order.
type Visitor interface {
	// Header is called once per tag pair. key and value point into the
	// reader's buffers and are only valid until Header returns. The value
	// is raw: escape sequences are not decoded.
	Header(key, value []byte)

	// EndGame is called after all tags and movetext of a game. A non-nil
	// error stops the reader and is returned unchanged.
	EndGame() error
}

// SyntaxError reports a malformed tag section.
type SyntaxError struct {
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("pgn: line %d: %s", e.Line, e.Msg)
}

// Option configures a Reader
type Option func(*Reader)

// WithBufferSize sets the size of the read buffer
func WithBufferSize(n int) Option {
	return func(r *Reader) {
		if n > 0 {
			r.bufSize = n
		}
	}
}

// Reader is a streaming PGN reader. It is not safe for concurrent use.
type Reader struct {
	br      *bufio.Reader
	bufSize int

	line       int
	bol        bool // next byte starts a line
	prevBOL    bool
	bomChecked bool

	key   []byte
	value []byte
	token []byte
}

// NewReader returns a Reader that reads PGN text from r
func NewReader(r io.Reader, opts ...Option) *Reader {
	rd := &Reader{
		bufSize: DefaultBufferSize,
		line:    1,
		bol:     true,
	}
	for _, opt := range opts {
		opt(rd)
	}
	rd.br = bufio.NewReaderSize(r, rd.bufSize)
	return rd
}

// ReadAll reads games until the end of the stream and returns how many
// games were delivered. The context is checked between games.
func (r *Reader) ReadAll(ctx context.Context, v Visitor) (int64, error) {
	var games int64
	for {
		if err := ctx.Err(); err != nil {
			return games, err
		}
		ok, err := r.ReadGame(v)
		if err != nil {
			return games, err
		}
		if !ok {
			return games, nil
		}
		games++
	}
}

// ReadGame reads a single game. It returns false with a nil error when the
// stream holds no further game.
func (r *Reader) ReadGame(v Visitor) (bool, error) {
	if !r.bomChecked {
		r.bomChecked = true
		b, err := r.br.Peek(len(utf8BOM))
		if err != nil && err != io.EOF {
			return false, err
		}
		if bytes.Equal(b, utf8BOM) {
			r.br.Discard(len(utf8BOM))
		}
	}

	// Tag section. Anything other than '[' starts the movetext.
	started := false
	for {
		c, err := r.skipBlank()
		if err == io.EOF {
			return r.finish(v, started)
		}
		if err != nil {
			return false, err
		}
		if c != '[' {
			r.unreadByte(c)
			break
		}
		if err := r.readTag(v); err != nil {
			return false, err
		}
		started = true
	}

	// Movetext. Only the nesting depth of variations matters here.
	depth := 0
	for {
		c, err := r.skipBlank()
		if err == io.EOF {
			return r.finish(v, true)
		}
		if err != nil {
			return false, err
		}

		switch c {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case '[':
			if depth == 0 {
				// Next game's tags without a result token in between.
				r.unreadByte(c)
				return r.finish(v, true)
			}
		case '*':
			if depth == 0 {
				return r.finish(v, true)
			}
		default:
			tok, err := r.readToken(c)
			if err != nil && err != io.EOF {
				return false, err
			}
			if depth == 0 && isResult(tok) {
				return r.finish(v, true)
			}
			if err == io.EOF {
				return r.finish(v, true)
			}
		}
	}
}

func (r *Reader) finish(v Visitor, started bool) (bool, error) {
	if !started {
		return false, nil
	}
	if err := v.EndGame(); err != nil {
		return false, err
	}
	return true, nil
}

// readTag parses `Name "value"]` after the opening bracket.
func (r *Reader) readTag(v Visitor) error {
	c, err := r.skipSpaces()
	if err != nil {
		return r.tagError(err, "unterminated tag")
	}

	r.key = r.key[:0]
	for !isSpace(c) && c != '"' && c != ']' {
		r.key = append(r.key, c)
		if c, _, err = r.readByte(); err != nil {
			return r.tagError(err, "unterminated tag")
		}
	}
	if len(r.key) == 0 {
		return &SyntaxError{Line: r.line, Msg: "missing tag name"}
	}

	if isSpace(c) {
		if c, err = r.skipSpaces(); err != nil {
			return r.tagError(err, "unterminated tag")
		}
	}
	if c != '"' {
		return &SyntaxError{Line: r.line, Msg: fmt.Sprintf("expected '\"' after tag %q", r.key)}
	}

	r.value = r.value[:0]
	for {
		c, _, err = r.readByte()
		if err != nil {
			return r.tagError(err, "unterminated tag value")
		}
		if c == '"' {
			break
		}
		if c == '\n' {
			return &SyntaxError{Line: r.line - 1, Msg: fmt.Sprintf("unterminated value for tag %q", r.key)}
		}
		r.value = append(r.value, c)
		if c == '\\' {
			if c, _, err = r.readByte(); err != nil {
				return r.tagError(err, "unterminated tag value")
			}
			r.value = append(r.value, c)
		}
	}

	if c, err = r.skipSpaces(); err != nil {
		return r.tagError(err, "unterminated tag")
	}
	if c != ']' {
		return &SyntaxError{Line: r.line, Msg: fmt.Sprintf("expected ']' after tag %q", r.key)}
	}

	v.Header(r.key, r.value)
	return nil
}

func (r *Reader) tagError(err error, msg string) error {
	if err == io.EOF {
		return &SyntaxError{Line: r.line, Msg: msg}
	}
	return err
}

// readToken reads a movetext token starting with first. The delimiter that
// ends the token is left unread.
func (r *Reader) readToken(first byte) ([]byte, error) {
	r.token = append(r.token[:0], first)
	for {
		c, _, err := r.readByte()
		if err != nil {
			return r.token, err
		}
		if isDelim(c) {
			r.unreadByte(c)
			return r.token, nil
		}
		r.token = append(r.token, c)
	}
}

// skipBlank skips whitespace, comments and escape lines and returns the
// next significant byte.
func (r *Reader) skipBlank() (byte, error) {
	for {
		c, bol, err := r.readByte()
		if err != nil {
			return 0, err
		}
		switch {
		case isSpace(c):
		case c == '%' && bol:
			if err := r.skipLine(); err != nil {
				return 0, err
			}
		case c == ';':
			if err := r.skipLine(); err != nil {
				return 0, err
			}
		case c == '{':
			if err := r.skipComment(); err != nil {
				return 0, err
			}
		default:
			return c, nil
		}
	}
}

// skipSpaces skips whitespace only.
func (r *Reader) skipSpaces() (byte, error) {
	for {
		c, _, err := r.readByte()
		if err != nil {
			return 0, err
		}
		if !isSpace(c) {
			return c, nil
		}
	}
}

func (r *Reader) skipLine() error {
	for {
		c, _, err := r.readByte()
		if err != nil {
			return err
		}
		if c == '\n' {
			return nil
		}
	}
}

func (r *Reader) skipComment() error {
	for {
		c, _, err := r.readByte()
		if err != nil {
			return err
		}
		if c == '}' {
			return nil
		}
	}
}

func (r *Reader) readByte() (byte, bool, error) {
	c, err := r.br.ReadByte()
	if err != nil {
		return 0, false, err
	}
	bol := r.bol
	r.prevBOL = bol
	r.bol = c == '\n'
	if c == '\n' {
		r.line++
	}
	return c, bol, nil
}

// unreadByte pushes back the last byte returned by readByte.
func (r *Reader) unreadByte(c byte) {
	_ = r.br.UnreadByte()
	r.bol = r.prevBOL
	if c == '\n' {
		r.line--
	}
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', '\v':
		return true
	}
	return false
}

func isDelim(c byte) bool {
	if isSpace(c) {
		return true
	}
	switch c {
	case '{', '}', '(', ')', ';', '[', ']', '*':
		return true
	}
	return false
}

func isResult(tok []byte) bool {
	switch string(tok) {
	case "1-0", "0-1", "1/2-1/2", "*":
		return true
	}
	return false
}
