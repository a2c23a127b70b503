package usd

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const usdaMagic = "#usda "

type nodeKind int

const (
	nodeNumber nodeKind = iota
	nodeString
	nodeIdent
	nodePath
	nodeAsset
	nodeTuple // ( ... )
	nodeList  // [ ... ]
	nodeDict  // { ... }, contents discarded
)

// node is an untyped parsed value. Typing happens once the declared
// attribute type is known.
type node struct {
	kind  nodeKind
	text  string
	items []node
	line  int
}

// Unresolved stands in for a value whose declared type is not supported by
// this reader, or whose authored text does not fit the declared type. Typed
// lookups report it as a type mismatch.
type Unresolved struct {
	TypeName string
	Reason   string
}

func (u Unresolved) String() string {
	return fmt.Sprintf("unresolved %s: %s", u.TypeName, u.Reason)
}

// ParseUSDA parses a USDA text layer into a stage.
func ParseUSDA(data []byte) (*Stage, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !bytes.HasPrefix(data, []byte(usdaMagic)) {
		return nil, ErrInvalidUSDAHeader
	}
	header := data[len(usdaMagic):]
	if i := bytes.IndexByte(header, '\n'); i >= 0 {
		header = header[:i]
	}
	if v := string(bytes.TrimSpace(header)); !strings.HasPrefix(v, "1.") {
		return nil, fmt.Errorf("%w (got version %q)", ErrInvalidUSDAHeader, v)
	}

	toks, err := lex(data)
	if err != nil {
		return nil, err
	}

	p := &parser{toks: toks, stage: NewStage()}
	if err := p.parseLayer(); err != nil {
		return nil, err
	}
	return p.stage, nil
}

type parser struct {
	toks  []token
	pos   int
	stage *Stage
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) peekAt(off int) token {
	if p.pos+off < len(p.toks) {
		return p.toks[p.pos+off]
	}
	return p.toks[len(p.toks)-1]
}

func (p *parser) advance() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) errorf(t token, format string, args ...any) error {
	return fmt.Errorf("%w: line %d: %s", ErrSyntax, t.line, fmt.Sprintf(format, args...))
}

func (p *parser) expectPunct(s string) error {
	t := p.advance()
	if !t.is(tokPunct, s) {
		return p.errorf(t, "expected %q, got %s", s, t)
	}
	return nil
}

func (p *parser) expectKind(kind tokenKind) (token, error) {
	t := p.advance()
	if t.kind != kind {
		return t, p.errorf(t, "expected %s, got %s", kind, t)
	}
	return t, nil
}

// acceptPunct consumes the punctuation if it is next.
func (p *parser) acceptPunct(s string) bool {
	if p.peek().is(tokPunct, s) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) parseLayer() error {
	if p.peek().is(tokPunct, "(") {
		if err := p.parseLayerMetadata(); err != nil {
			return err
		}
	}
	for p.peek().kind != tokEOF {
		if p.acceptPunct(";") {
			continue
		}
		if err := p.parsePrim(p.stage.root); err != nil {
			return err
		}
	}
	return nil
}

func (p *parser) parseLayerMetadata() error {
	md := &p.stage.Metadata
	return p.parseMetadataBlock(func(key string, v node) {
		switch key {
		case "", "doc":
			md.Doc = v.text
		case "defaultPrim":
			md.DefaultPrim = v.text
		case "upAxis":
			md.UpAxis = v.text
		case "metersPerUnit":
			if f, err := parseFloat(v); err == nil {
				md.MetersPerUnit = f
			}
		case "startTimeCode":
			if f, err := parseFloat(v); err == nil {
				md.StartTimeCode = f
			}
		case "endTimeCode":
			if f, err := parseFloat(v); err == nil {
				md.EndTimeCode = f
			}
		}
	})
}

// parseMetadataBlock reads "( key = value ... )". A bare string entry is
// reported with an empty key. List-op keywords in front of a key are dropped.
func (p *parser) parseMetadataBlock(set func(key string, v node)) error {
	if err := p.expectPunct("("); err != nil {
		return err
	}
	for {
		t := p.peek()
		switch {
		case t.is(tokPunct, ")"):
			p.advance()
			return nil
		case t.is(tokPunct, ";"):
			p.advance()
		case t.kind == tokString:
			p.advance()
			set("", node{kind: nodeString, text: t.text, line: t.line})
		case t.kind == tokIdent:
			p.advance()
			key := t.text
			if isListOp(key) && p.peek().kind == tokIdent {
				key = p.advance().text
			}
			if err := p.expectPunct("="); err != nil {
				return err
			}
			v, err := p.parseValue()
			if err != nil {
				return err
			}
			set(key, v)
		default:
			return p.errorf(t, "unexpected %s in metadata", t)
		}
	}
}

func isListOp(s string) bool {
	switch s {
	case "prepend", "append", "add", "delete", "reorder":
		return true
	}
	return false
}

func (p *parser) parsePrim(parent *Prim) error {
	kw := p.advance()
	var spec Specifier
	switch {
	case kw.is(tokIdent, "def"):
		spec = SpecifierDef
	case kw.is(tokIdent, "over"):
		spec = SpecifierOver
	case kw.is(tokIdent, "class"):
		spec = SpecifierClass
	default:
		return p.errorf(kw, "expected prim specifier, got %s", kw)
	}

	typeName := ""
	if p.peek().kind == tokIdent {
		typeName = p.advance().text
	}
	nameTok, err := p.expectKind(tokString)
	if err != nil {
		return err
	}
	if nameTok.text == "" || strings.ContainsAny(nameTok.text, "/.") {
		return p.errorf(nameTok, "invalid prim name %q", nameTok.text)
	}

	path := parent.path.AppendChild(nameTok.text)
	_, existed := p.stage.prims[path]
	prim := p.stage.DefinePrim(path, typeName)
	if !existed || spec == SpecifierDef {
		prim.SetSpecifier(spec)
	}

	if p.peek().is(tokPunct, "(") {
		err := p.parseMetadataBlock(func(key string, v node) {
			if key == "" {
				key = "doc"
			}
			prim.SetMetadata(key, plainValue(v))
		})
		if err != nil {
			return err
		}
	}

	if err := p.expectPunct("{"); err != nil {
		return err
	}
	for {
		t := p.peek()
		switch {
		case t.is(tokPunct, "}"):
			p.advance()
			return nil
		case t.kind == tokEOF:
			return p.errorf(t, "unterminated prim %s", path)
		case t.is(tokPunct, ";"):
			p.advance()
		case t.is(tokIdent, "def"), t.is(tokIdent, "over"), t.is(tokIdent, "class"):
			if err := p.parsePrim(prim); err != nil {
				return err
			}
		case t.is(tokIdent, "variantSet"):
			if err := p.skipVariantSet(); err != nil {
				return err
			}
		case t.is(tokIdent, "reorder"):
			// reorder nameChildren = [...] / reorder properties = [...]
			p.advance()
			p.advance()
			if err := p.expectPunct("="); err != nil {
				return err
			}
			if _, err := p.parseValue(); err != nil {
				return err
			}
		case t.kind == tokIdent:
			if err := p.parseProperty(prim); err != nil {
				return err
			}
		default:
			return p.errorf(t, "unexpected %s in prim %s", t, path)
		}
	}
}

func (p *parser) skipVariantSet() error {
	p.advance() // variantSet
	if _, err := p.expectKind(tokString); err != nil {
		return err
	}
	if err := p.expectPunct("="); err != nil {
		return err
	}
	return p.skipBalanced("{", "}")
}

// skipBalanced consumes a bracketed group including nested groups of any kind.
func (p *parser) skipBalanced(open, close string) error {
	start := p.peek()
	if err := p.expectPunct(open); err != nil {
		return err
	}
	depth := 1
	for depth > 0 {
		t := p.advance()
		switch {
		case t.kind == tokEOF:
			return p.errorf(start, "unterminated %q", open)
		case t.is(tokPunct, open):
			depth++
		case t.is(tokPunct, close):
			depth--
		}
	}
	return nil
}

func (p *parser) parseProperty(prim *Prim) error {
	var custom, uniform bool
	for {
		t := p.peek()
		if t.kind != tokIdent {
			return p.errorf(t, "expected property declaration, got %s", t)
		}
		switch t.text {
		case "custom":
			custom = true
		case "uniform":
			uniform = true
		case "varying", "config":
		case "prepend", "append", "add", "delete":
			// list-edited relationships and connections
		case "rel":
			p.advance()
			return p.parseRelationship(prim)
		default:
			return p.parseAttribute(prim, custom, uniform)
		}
		p.advance()
	}
}

func (p *parser) parseRelationship(prim *Prim) error {
	nameTok, err := p.expectKind(tokIdent)
	if err != nil {
		return err
	}
	name := nameTok.text

	var targets []Path
	if p.acceptPunct("=") {
		v, err := p.parseValue()
		if err != nil {
			return err
		}
		switch v.kind {
		case nodePath:
			targets = append(targets, Path(v.text))
		case nodeList:
			for _, it := range v.items {
				if it.kind != nodePath {
					return p.errorf(nameTok, "relationship %s: target is not a path", name)
				}
				targets = append(targets, Path(it.text))
			}
		case nodeIdent:
			if v.text != "None" {
				return p.errorf(nameTok, "relationship %s: unexpected %q", name, v.text)
			}
		default:
			return p.errorf(nameTok, "relationship %s: unexpected value", name)
		}
	}
	if p.peek().is(tokPunct, "(") {
		if err := p.parseMetadataBlock(func(string, node) {}); err != nil {
			return err
		}
	}

	prim.SetRelationship(strings.TrimSuffix(name, ".default"), targets...)
	return nil
}

func (p *parser) parseAttribute(prim *Prim, custom, uniform bool) error {
	typeTok := p.advance()
	typeName := typeTok.text
	if p.peek().is(tokPunct, "[") && p.peekAt(1).is(tokPunct, "]") {
		p.pos += 2
		typeName += "[]"
	}

	nameTok, err := p.expectKind(tokIdent)
	if err != nil {
		return err
	}
	name := nameTok.text

	switch {
	case strings.HasSuffix(name, ".connect"):
		if err := p.expectPunct("="); err != nil {
			return err
		}
		if _, err := p.parseValue(); err != nil {
			return err
		}
		return p.skipOptionalMetadata()

	case strings.HasSuffix(name, ".timeSamples"):
		name = strings.TrimSuffix(name, ".timeSamples")
		if err := p.expectPunct("="); err != nil {
			return err
		}
		sample, ok, err := p.parseTimeSamples()
		if err != nil {
			return err
		}
		attr := prim.Attribute(name)
		if attr == nil || attr.Value == nil {
			var value any
			if ok {
				value = convertValue(typeName, sample)
			}
			attr = prim.SetAttribute(name, typeName, value)
		}
		attr.Custom = attr.Custom || custom
		attr.Uniform = attr.Uniform || uniform
		return p.skipOptionalMetadata()
	}

	var value any
	hasValue := false
	if p.acceptPunct("=") {
		v, err := p.parseValue()
		if err != nil {
			return err
		}
		hasValue = true
		if !v.is(nodeIdent, "None") {
			value = convertValue(typeName, v)
		}
	}

	attr := prim.Attribute(name)
	if attr == nil || hasValue {
		attr = prim.SetAttribute(name, typeName, value)
	}
	attr.Custom = custom
	attr.Uniform = uniform

	if p.peek().is(tokPunct, "(") {
		return p.parseMetadataBlock(func(key string, v node) {
			if key == "" {
				key = "doc"
			}
			attr.SetMetadata(key, plainValue(v))
		})
	}
	return nil
}

func (p *parser) skipOptionalMetadata() error {
	if p.peek().is(tokPunct, "(") {
		return p.skipBalanced("(", ")")
	}
	return nil
}

// parseTimeSamples reads "{ time: value, ... }" and returns the sample with
// the earliest time. Blocked samples (None) are skipped.
func (p *parser) parseTimeSamples() (node, bool, error) {
	if err := p.expectPunct("{"); err != nil {
		return node{}, false, err
	}
	var (
		best     node
		bestTime = math.Inf(1)
		found    bool
	)
	for !p.acceptPunct("}") {
		t, err := p.expectKind(tokNumber)
		if err != nil {
			return node{}, false, err
		}
		when, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return node{}, false, p.errorf(t, "bad sample time %q", t.text)
		}
		if err := p.expectPunct(":"); err != nil {
			return node{}, false, err
		}
		v, err := p.parseValue()
		if err != nil {
			return node{}, false, err
		}
		if !v.is(nodeIdent, "None") && when < bestTime {
			best, bestTime, found = v, when, true
		}
		if !p.acceptPunct(",") && !p.peek().is(tokPunct, "}") {
			t := p.peek()
			return node{}, false, p.errorf(t, "expected ',' or '}' in timeSamples, got %s", t)
		}
	}
	return best, found, nil
}

func (p *parser) parseValue() (node, error) {
	t := p.peek()
	switch t.kind {
	case tokNumber:
		p.advance()
		return node{kind: nodeNumber, text: t.text, line: t.line}, nil
	case tokString:
		p.advance()
		return node{kind: nodeString, text: t.text, line: t.line}, nil
	case tokIdent:
		p.advance()
		return node{kind: nodeIdent, text: t.text, line: t.line}, nil
	case tokPath:
		p.advance()
		return node{kind: nodePath, text: t.text, line: t.line}, nil
	case tokAsset:
		p.advance()
		if p.peek().kind == tokPath {
			// reference arc: @layer@</Prim>
			p.advance()
		}
		return node{kind: nodeAsset, text: t.text, line: t.line}, nil
	case tokPunct:
		switch t.text {
		case "(":
			return p.parseSequence(nodeTuple, "(", ")")
		case "[":
			return p.parseSequence(nodeList, "[", "]")
		case "{":
			if err := p.skipBalanced("{", "}"); err != nil {
				return node{}, err
			}
			return node{kind: nodeDict, line: t.line}, nil
		}
	}
	return node{}, p.errorf(t, "expected value, got %s", t)
}

func (p *parser) parseSequence(kind nodeKind, open, close string) (node, error) {
	start := p.advance()
	n := node{kind: kind, line: start.line}
	if p.acceptPunct(close) {
		return n, nil
	}
	for {
		v, err := p.parseValue()
		if err != nil {
			return node{}, err
		}
		n.items = append(n.items, v)
		if p.acceptPunct(close) {
			return n, nil
		}
		if err := p.expectPunct(","); err != nil {
			return node{}, err
		}
		// trailing comma
		if p.acceptPunct(close) {
			return n, nil
		}
	}
}

func (n node) is(kind nodeKind, text string) bool {
	return n.kind == kind && n.text == text
}

// plainValue converts a metadata value without a declared type.
func plainValue(n node) any {
	switch n.kind {
	case nodeNumber:
		if i, err := strconv.ParseInt(n.text, 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(n.text, 64); err == nil {
			return f
		}
		return n.text
	case nodeString:
		return n.text
	case nodeIdent:
		switch n.text {
		case "true":
			return true
		case "false":
			return false
		case "None":
			return nil
		}
		return Token(n.text)
	case nodePath:
		return Path(n.text)
	case nodeAsset:
		return Asset(n.text)
	case nodeTuple, nodeList:
		out := make([]any, len(n.items))
		for i, it := range n.items {
			out[i] = plainValue(it)
		}
		return out
	default:
		return nil
	}
}
