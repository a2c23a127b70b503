package usd

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokPath  // <...>
	tokAsset // @...@
	tokPunct
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of file"
	case tokIdent:
		return "identifier"
	case tokNumber:
		return "number"
	case tokString:
		return "string"
	case tokPath:
		return "path"
	case tokAsset:
		return "asset"
	case tokPunct:
		return "punctuation"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

type token struct {
	kind tokenKind
	text string
	line int
}

func (t token) is(kind tokenKind, text string) bool {
	return t.kind == kind && t.text == text
}

func (t token) String() string {
	if t.kind == tokEOF {
		return t.kind.String()
	}
	return fmt.Sprintf("%s %q", t.kind, t.text)
}

type lexer struct {
	src  []byte
	pos  int
	line int
}

// lex splits a USDA layer into tokens. Comments and whitespace are dropped;
// the "#usda 1.0" header is an ordinary comment at this level.
func lex(src []byte) ([]token, error) {
	l := &lexer{src: src, line: 1}
	var toks []token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.kind == tokEOF {
			return toks, nil
		}
	}
}

func (l *lexer) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: line %d: %s", ErrSyntax, l.line, fmt.Sprintf(format, args...))
}

func (l *lexer) peekByte(off int) byte {
	if l.pos+off < len(l.src) {
		return l.src[l.pos+off]
	}
	return 0
}

func (l *lexer) skipSpaceAndComments() error {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == '\n':
			l.line++
			l.pos++
		case c == ' ' || c == '\t' || c == '\r':
			l.pos++
		case c == '#':
			l.skipLine()
		case c == '/' && l.peekByte(1) == '/':
			l.skipLine()
		case c == '/' && l.peekByte(1) == '*':
			start := l.line
			l.pos += 2
			for {
				if l.pos+1 >= len(l.src) {
					l.line = start
					return l.errorf("unterminated block comment")
				}
				if l.src[l.pos] == '*' && l.src[l.pos+1] == '/' {
					l.pos += 2
					break
				}
				if l.src[l.pos] == '\n' {
					l.line++
				}
				l.pos++
			}
		default:
			return nil
		}
	}
	return nil
}

func (l *lexer) skipLine() {
	for l.pos < len(l.src) && l.src[l.pos] != '\n' {
		l.pos++
	}
}

func (l *lexer) next() (token, error) {
	if err := l.skipSpaceAndComments(); err != nil {
		return token{}, err
	}
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, line: l.line}, nil
	}

	c := l.src[l.pos]
	switch {
	case c == '"' || c == '\'':
		return l.lexString(c)
	case c == '<':
		return l.lexDelimited('>', tokPath)
	case c == '@':
		return l.lexDelimited('@', tokAsset)
	case isDigit(c) || c == '.' && isDigit(l.peekByte(1)):
		return l.lexNumber()
	case (c == '-' || c == '+') && (isDigit(l.peekByte(1)) || l.peekByte(1) == '.'):
		return l.lexNumber()
	case c == '-' && isIdentStart(l.peekByte(1)):
		// -inf
		l.pos++
		tok := l.lexIdent()
		return token{kind: tokNumber, text: "-" + tok.text, line: tok.line}, nil
	case isIdentStart(c):
		return l.lexIdent(), nil
	case strings.IndexByte("()[]{}=,;:", c) >= 0:
		l.pos++
		return token{kind: tokPunct, text: string(c), line: l.line}, nil
	default:
		return token{}, l.errorf("unexpected character %q", c)
	}
}

func (l *lexer) lexIdent() token {
	start := l.pos
	for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
		l.pos++
	}
	// Namespace separators are part of property names ("primvars:st"), but a
	// trailing colon belongs to the punctuation that follows.
	for l.pos > start+1 && l.src[l.pos-1] == ':' {
		l.pos--
	}
	return token{kind: tokIdent, text: string(l.src[start:l.pos]), line: l.line}
}

func (l *lexer) lexNumber() (token, error) {
	start := l.pos
	if c := l.src[l.pos]; c == '-' || c == '+' {
		l.pos++
	}
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if isDigit(c) || c == '.' {
			l.pos++
			continue
		}
		if (c == 'e' || c == 'E') && l.pos > start {
			l.pos++
			if n := l.peekByte(0); n == '-' || n == '+' {
				l.pos++
			}
			continue
		}
		break
	}
	return token{kind: tokNumber, text: string(l.src[start:l.pos]), line: l.line}, nil
}

func (l *lexer) lexString(quote byte) (token, error) {
	line := l.line
	triple := l.peekByte(1) == quote && l.peekByte(2) == quote
	if triple {
		l.pos += 3
	} else {
		l.pos++
	}

	var sb strings.Builder
	for {
		if l.pos >= len(l.src) {
			l.line = line
			return token{}, l.errorf("unterminated string")
		}
		c := l.src[l.pos]
		switch {
		case c == '\\' && l.pos+1 < len(l.src):
			l.pos++
			switch e := l.src[l.pos]; e {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			default:
				sb.WriteByte(e)
			}
			l.pos++
		case c == quote && !triple:
			l.pos++
			return token{kind: tokString, text: sb.String(), line: line}, nil
		case c == quote && l.peekByte(1) == quote && l.peekByte(2) == quote:
			l.pos += 3
			return token{kind: tokString, text: sb.String(), line: line}, nil
		case c == '\n' && !triple:
			return token{}, l.errorf("newline in string")
		default:
			if c == '\n' {
				l.line++
			}
			sb.WriteByte(c)
			l.pos++
		}
	}
}

func (l *lexer) lexDelimited(end byte, kind tokenKind) (token, error) {
	line := l.line
	l.pos++
	start := l.pos
	for l.pos < len(l.src) && l.src[l.pos] != end {
		if l.src[l.pos] == '\n' {
			return token{}, l.errorf("newline in %s", kind)
		}
		l.pos++
	}
	if l.pos >= len(l.src) {
		return token{}, l.errorf("unterminated %s", kind)
	}
	text := string(l.src[start:l.pos])
	l.pos++
	return token{kind: kind, text: text, line: line}, nil
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentStart(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c) || c == ':' || c == '.' || c == '!'
}
