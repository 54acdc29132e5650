// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

func NewParser() *Parser {
	return &Parser{}
}

// Parser reads lambda expressions such as
//
//	(m, o) => m.Id == o.MemberId && o.Total > $min
//
// Identifiers starting with $ are inputs, looked up in the argument map when
// the expression is parsed.
type Parser struct {
	input string
	pos   int
	// nextPos is start of the next char.
	nextPos int
	// char is the rune starting at pos. char is set to 0 when pos reaches the
	// end of input.
	char rune
	// lineNum is the number of the current line of the input.
	lineNum int
	// lineStart is the position of the first char of the current line in the
	// input.
	lineStart int
	// args holds the values of input references.
	args map[string]any
	// scopes holds the parameters of the lambdas being parsed, innermost
	// last.
	scopes []map[string]*Param
}

// Parse parses a lambda expression. Input references are resolved from args.
func (p *Parser) Parse(input string, args map[string]any) (l *Lambda, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("cannot parse expression: %s", err)
		}
	}()

	p.init(input, args)
	p.skipBlanks()
	l, ok, err := p.parseLambda()
	if err != nil {
		return nil, err
	} else if !ok {
		return nil, errorAt(fmt.Errorf("expected lambda expression"), p.lineNum, p.colNum(), p.input)
	}
	p.skipBlanks()
	if p.pos < len(p.input) {
		return nil, errorAt(fmt.Errorf("unexpected %q", p.char), p.lineNum, p.colNum(), p.input)
	}
	return l, nil
}

// init resets the state of the parser and sets the input string.
func (p *Parser) init(input string, args map[string]any) {
	p.input = input
	p.pos = 0
	p.nextPos = 0
	p.char = 0
	p.lineNum = 1
	p.lineStart = 0
	p.args = args
	p.scopes = nil
	p.advanceChar()
}

// colNum calculates the current column number taking into account line breaks.
func (p *Parser) colNum() int {
	return p.pos - p.lineStart + 1
}

// advanceChar moves the parser to the next character in the input. It also
// takes care of updating the line and column numbers if it encounters line
// breaks.
func (p *Parser) advanceChar() bool {
	if p.nextPos >= len(p.input) {
		p.char = 0
		p.pos = p.nextPos
		return false
	}
	if p.char == '\n' {
		p.lineStart = p.nextPos
		p.lineNum++
	}
	var size int
	p.char, size = utf8.DecodeRuneInString(p.input[p.nextPos:])
	p.pos = p.nextPos
	p.nextPos += size
	return true
}

// errorAt wraps an error with line and column information.
func errorAt(err error, line int, column int, input string) error {
	if strings.ContainsRune(input, '\n') {
		return fmt.Errorf("line %d, column %d: %w", line, column, err)
	}
	return fmt.Errorf("column %d: %w", column, err)
}

// A checkpoint struct for saving parser state to restore later.
type checkpoint struct {
	parser    *Parser
	pos       int
	nextPos   int
	char      rune
	lineNum   int
	lineStart int
}

// save takes a snapshot of the state of the parser and returns a pointer to a
// checkpoint that represents it.
func (p *Parser) save() *checkpoint {
	return &checkpoint{
		parser:    p,
		pos:       p.pos,
		nextPos:   p.nextPos,
		char:      p.char,
		lineNum:   p.lineNum,
		lineStart: p.lineStart,
	}
}

// restore sets the internal state of the parser to the values stored in the
// checkpoint.
func (cp *checkpoint) restore() {
	cp.parser.pos = cp.pos
	cp.parser.nextPos = cp.nextPos
	cp.parser.char = cp.char
	cp.parser.lineNum = cp.lineNum
	cp.parser.lineStart = cp.lineStart
}

// colNum is the column number of the checkpoint.
func (cp *checkpoint) colNum() int {
	return cp.pos - cp.lineStart + 1
}

// errorf returns an error located at the current position.
func (p *Parser) errorf(format string, args ...any) error {
	return errorAt(fmt.Errorf(format, args...), p.lineNum, p.colNum(), p.input)
}

// peekChar returns true if the current char equals the one passed as parameter.
func (p *Parser) peekChar(c rune) bool {
	return p.pos < len(p.input) && p.char == c
}

// peekNextChar returns true if the char after the current one equals c.
func (p *Parser) peekNextChar(c rune) bool {
	if p.nextPos >= len(p.input) {
		return false
	}
	next, _ := utf8.DecodeRuneInString(p.input[p.nextPos:])
	return next == c
}

// skipChar jumps over the current char if it matches the char passed as a
// parameter. Returns true in that case, false otherwise.
func (p *Parser) skipChar(c rune) bool {
	if p.pos < len(p.input) && p.char == c {
		p.advanceChar()
		return true
	}
	return false
}

// skipCharFind looks for a char that matches the one passed as parameter and
// then advances the parser to jump over it. In that case returns true. If the
// end of the string is reached and no matching char was found, it returns
// false and it does not change the parser.
func (p *Parser) skipCharFind(c rune) bool {
	cp := p.save()
	for p.pos < len(p.input) {
		if p.char == c {
			p.advanceChar()
			return true
		}
		p.advanceChar()
	}
	cp.restore()
	return false
}

// skipBlanks advances the parser past spaces, tabs and newlines. Returns
// whether the parser position was changed.
func (p *Parser) skipBlanks() bool {
	mark := p.pos
	for p.pos < len(p.input) {
		switch p.char {
		case ' ', '\t', '\r', '\n':
			p.advanceChar()
		default:
			return p.pos != mark
		}
	}
	return p.pos != mark
}

// skipString advances the parser and jumps over the string passed as
// parameter. In that case returns true, false otherwise.
func (p *Parser) skipString(s string) bool {
	if p.pos+len(s) <= len(p.input) && p.input[p.pos:p.pos+len(s)] == s {
		for range s {
			p.advanceChar()
		}
		return true
	}
	return false
}

// isNameChar returns true if the given char can be part of a name. It returns
// false otherwise.
func isNameChar(c rune) bool {
	return unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_'
}

// isInitialNameChar returns true if the given char can appear at the start of a
// name. It returns false otherwise.
func isInitialNameChar(c rune) bool {
	return unicode.IsLetter(c) || c == '_'
}

// parseName parses a name starting with a letter or underscore and followed
// by letters, digits and underscores.
func (p *Parser) parseName() (string, bool) {
	mark := p.pos
	if p.pos < len(p.input) && isInitialNameChar(p.char) {
		p.advanceChar()
		for p.pos < len(p.input) && isNameChar(p.char) {
			p.advanceChar()
		}
	}
	if p.pos > mark {
		return p.input[mark:p.pos], true
	}
	return "", false
}

// Functions with the prefix parse attempt to parse some construct. They return
// the construct, and an error and/or a bool that indicates if the construct
// was successfully parsed.
//
// Return cases:
//  - bool == true, err == nil
//		The construct was successfully parsed
//  - bool == false, err != nil
//		The construct was recognised but was not correctly formatted
//  - bool == false, err == nil
//		The construct was not the one we are looking for

// parseLambda parses "x => body" or "(x, y) => body".
func (p *Parser) parseLambda() (*Lambda, bool, error) {
	cp := p.save()

	var names []string
	if p.skipChar('(') {
		p.skipBlanks()
		for !p.peekChar(')') {
			name, ok := p.parseName()
			if !ok {
				cp.restore()
				return nil, false, nil
			}
			names = append(names, name)
			p.skipBlanks()
			if !p.skipChar(',') {
				break
			}
			p.skipBlanks()
		}
		if !p.skipChar(')') {
			cp.restore()
			return nil, false, nil
		}
	} else if name, ok := p.parseName(); ok {
		names = append(names, name)
	} else {
		return nil, false, nil
	}

	p.skipBlanks()
	if !p.skipString("=>") {
		cp.restore()
		return nil, false, nil
	}
	if len(names) == 0 {
		return nil, false, errorAt(fmt.Errorf("lambda declares no parameters"), cp.lineNum, cp.colNum(), p.input)
	}

	scope := map[string]*Param{}
	l := &Lambda{}
	for _, name := range names {
		if _, ok := scope[name]; ok {
			return nil, false, errorAt(fmt.Errorf("parameter %q declared twice", name), cp.lineNum, cp.colNum(), p.input)
		}
		param := &Param{Name: name}
		scope[name] = param
		l.Params = append(l.Params, param)
	}

	p.scopes = append(p.scopes, scope)
	defer func() { p.scopes = p.scopes[:len(p.scopes)-1] }()

	p.skipBlanks()
	body, err := p.parseExpr()
	if err != nil {
		return nil, false, err
	}
	l.Body = body
	return l, true, nil
}

// lookupParam finds a lambda parameter in the enclosing scopes.
func (p *Parser) lookupParam(name string) (*Param, bool) {
	for i := len(p.scopes) - 1; i >= 0; i-- {
		if param, ok := p.scopes[i][name]; ok {
			return param, true
		}
	}
	return nil, false
}

func (p *Parser) parseExpr() (Node, error) {
	return p.parseLogical(OpOr, "||", func() (Node, error) {
		return p.parseLogical(OpAnd, "&&", p.parseComparison)
	})
}

// parseLogical parses a left associative chain of operands joined by op.
func (p *Parser) parseLogical(op Op, token string, operand func() (Node, error)) (Node, error) {
	left, err := operand()
	if err != nil {
		return nil, err
	}
	for {
		p.skipBlanks()
		if !p.skipString(token) {
			return left, nil
		}
		p.skipBlanks()
		right, err := operand()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, Left: left, Right: right}
	}
}

var comparisonTokens = []struct {
	token string
	op    Op
}{
	{"==", OpEqual},
	{"!=", OpNotEqual},
	{"<=", OpLessEqual},
	{">=", OpGreaterEqual},
	{"<", OpLess},
	{">", OpGreater},
}

func (p *Parser) parseComparison() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	p.skipBlanks()
	for _, ct := range comparisonTokens {
		if p.skipString(ct.token) {
			p.skipBlanks()
			right, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			return &Binary{Op: ct.op, Left: left, Right: right}, nil
		}
	}
	return left, nil
}

func (p *Parser) parseUnary() (Node, error) {
	if p.peekChar('!') && !p.peekNextChar('=') {
		p.advanceChar()
		p.skipBlanks()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Negation{Operand: operand}, nil
	}
	return p.parsePostfix()
}

// parsePostfix parses a primary expression followed by member accesses and
// method calls.
func (p *Parser) parsePostfix() (Node, error) {
	n, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.skipChar('.') {
		name, ok := p.parseName()
		if !ok {
			return nil, p.errorf("expected member name")
		}
		if p.peekChar('(') {
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			n = &Call{Receiver: n, Method: name, Args: args}
			continue
		}
		n = &Member{Operand: n, Name: name}
	}
	return n, nil
}

// parseArgs parses a parenthesized, comma separated argument list. Arguments
// may be lambdas.
func (p *Parser) parseArgs() ([]Node, error) {
	cp := p.save()
	p.skipChar('(')
	p.skipBlanks()
	args := []Node{}
	if p.skipChar(')') {
		return args, nil
	}
	for {
		p.skipBlanks()
		var arg Node
		if l, ok, err := p.parseLambda(); err != nil {
			return nil, err
		} else if ok {
			arg = l
		} else if arg, err = p.parseExpr(); err != nil {
			return nil, err
		}
		args = append(args, arg)
		p.skipBlanks()
		if p.skipChar(',') {
			continue
		}
		if p.skipChar(')') {
			return args, nil
		}
		return nil, errorAt(fmt.Errorf("missing closing parenthesis"), cp.lineNum, cp.colNum(), p.input)
	}
}

// conversions are the type names accepted in conversion expressions.
var conversions = map[string]reflect.Type{
	"bool":    reflect.TypeOf(false),
	"int":     reflect.TypeOf(int(0)),
	"int8":    reflect.TypeOf(int8(0)),
	"int16":   reflect.TypeOf(int16(0)),
	"int32":   reflect.TypeOf(int32(0)),
	"int64":   reflect.TypeOf(int64(0)),
	"uint":    reflect.TypeOf(uint(0)),
	"uint8":   reflect.TypeOf(uint8(0)),
	"uint16":  reflect.TypeOf(uint16(0)),
	"uint32":  reflect.TypeOf(uint32(0)),
	"uint64":  reflect.TypeOf(uint64(0)),
	"float32": reflect.TypeOf(float32(0)),
	"float64": reflect.TypeOf(float64(0)),
	"string":  reflect.TypeOf(""),
	"decimal": decimalType,
}

func (p *Parser) parsePrimary() (Node, error) {
	if p.pos >= len(p.input) {
		return nil, p.errorf("unexpected end of expression")
	}
	switch {
	case p.peekChar('('):
		cp := p.save()
		p.advanceChar()
		p.skipBlanks()
		n, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		p.skipBlanks()
		if !p.skipChar(')') {
			return nil, errorAt(fmt.Errorf("missing closing parenthesis"), cp.lineNum, cp.colNum(), p.input)
		}
		return n, nil
	case p.peekChar('"') || p.peekChar('\''):
		return p.parseStringLiteral()
	case unicode.IsDigit(p.char) || (p.peekChar('-') && p.nextPos < len(p.input) && unicode.IsDigit(rune(p.input[p.nextPos]))):
		return p.parseNumber()
	case p.peekChar('$'):
		return p.parseInput()
	}

	cp := p.save()
	name, ok := p.parseName()
	if !ok {
		return nil, p.errorf("unexpected %q", p.char)
	}
	switch name {
	case "null":
		return &Constant{Value: nil}, nil
	case "true":
		return &Constant{Value: true}, nil
	case "false":
		return &Constant{Value: false}, nil
	case "new":
		return p.parseInit()
	}
	if t, ok := conversions[name]; ok && p.peekChar('(') {
		args, err := p.parseArgs()
		if err != nil {
			return nil, err
		}
		if len(args) != 1 {
			return nil, errorAt(fmt.Errorf("conversion to %s takes one argument", name), cp.lineNum, cp.colNum(), p.input)
		}
		return &Convert{Operand: args[0], Type: t}, nil
	}
	if param, ok := p.lookupParam(name); ok {
		return param, nil
	}
	return nil, errorAt(fmt.Errorf("unknown identifier %q", name), cp.lineNum, cp.colNum(), p.input)
}

// escapes are the backslash escapes accepted in double quoted strings.
var escapes = map[rune]rune{
	'"':  '"',
	'\'': '\'',
	'\\': '\\',
	'n':  '\n',
	'r':  '\r',
	't':  '\t',
}

// parseStringLiteral parses a single or double quoted string. Doubled up
// quotes are escaped. Double quoted strings also take backslash escapes.
func (p *Parser) parseStringLiteral() (Node, error) {
	cp := p.save()
	q := p.char
	p.advanceChar()
	var sb strings.Builder
	for {
		if p.pos >= len(p.input) {
			cp.restore()
			return nil, p.errorf("missing closing quote in string literal")
		}
		switch c := p.char; {
		case c == q:
			p.advanceChar()
			if !p.peekChar(q) {
				return &Constant{Value: sb.String()}, nil
			}
			sb.WriteRune(q)
		case c == '\\' && q == '"':
			esc := p.save()
			p.advanceChar()
			r, ok := escapes[p.char]
			if p.pos >= len(p.input) || !ok {
				esc.restore()
				return nil, p.errorf("invalid escape sequence in string literal")
			}
			sb.WriteRune(r)
		default:
			sb.WriteRune(c)
		}
		p.advanceChar()
	}
}

func (p *Parser) parseNumber() (Node, error) {
	mark := p.pos
	p.skipChar('-')
	for unicode.IsDigit(p.char) {
		p.advanceChar()
	}
	isFloat := false
	if p.peekChar('.') && p.nextPos < len(p.input) && unicode.IsDigit(rune(p.input[p.nextPos])) {
		isFloat = true
		p.advanceChar()
		for unicode.IsDigit(p.char) {
			p.advanceChar()
		}
	}
	text := p.input[mark:p.pos]
	if isFloat {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, p.errorf("invalid number %q", text)
		}
		return &Constant{Value: f}, nil
	}
	i, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return nil, p.errorf("invalid number %q", text)
	}
	return &Constant{Value: i}, nil
}

// parseInput parses an input reference "$name" and replaces it with the
// argument value.
func (p *Parser) parseInput() (Node, error) {
	cp := p.save()
	p.advanceChar()
	name, ok := p.parseName()
	if !ok {
		return nil, errorAt(fmt.Errorf("invalid input name"), cp.lineNum, cp.colNum(), p.input)
	}
	v, ok := p.args[name]
	if !ok {
		return nil, errorAt(fmt.Errorf("no argument named %q", name), cp.lineNum, cp.colNum(), p.input)
	}
	return &Constant{Value: v}, nil
}

// parseInit parses the rest of "new [Type] { bindings }".
func (p *Parser) parseInit() (Node, error) {
	init := &Init{}
	p.skipBlanks()
	if name, ok := p.parseName(); ok {
		init.TypeName = name
		p.skipBlanks()
	}
	if !p.skipChar('{') {
		return nil, p.errorf("expected '{'")
	}
	p.skipBlanks()
	if p.skipChar('}') {
		return init, nil
	}
	for {
		p.skipBlanks()
		b, err := p.parseBinding()
		if err != nil {
			return nil, err
		}
		init.Bindings = append(init.Bindings, b)
		p.skipBlanks()
		if p.skipChar(',') {
			continue
		}
		if p.skipChar('}') {
			return init, nil
		}
		return nil, p.errorf("expected ',' or '}'")
	}
}

// parseBinding parses "Name = value" or a member access standing for
// itself.
func (p *Parser) parseBinding() (Binding, error) {
	cp := p.save()
	if name, ok := p.parseName(); ok {
		p.skipBlanks()
		if p.peekChar('=') && !p.peekNextChar('=') && !p.peekNextChar('>') {
			p.advanceChar()
			p.skipBlanks()
			if p.peekChar('{') {
				value, err := p.parseCollection()
				if err != nil {
					return Binding{}, err
				}
				return Binding{Member: name, Value: value, Kind: ListBinding}, nil
			}
			value, err := p.parseExpr()
			if err != nil {
				return Binding{}, err
			}
			return Binding{Member: name, Value: value, Kind: AssignBinding}, nil
		}
		cp.restore()
	}

	value, err := p.parseExpr()
	if err != nil {
		return Binding{}, err
	}
	m, ok := unwrap(value).(*Member)
	if !ok {
		return Binding{}, errorAt(fmt.Errorf("projection item must be a member access or an assignment"), cp.lineNum, cp.colNum(), p.input)
	}
	return Binding{Member: m.Name, Value: value, Kind: MemberBinding}, nil
}

// parseCollection parses a collection initializer "{ a, b }".
func (p *Parser) parseCollection() (*Collection, error) {
	p.skipChar('{')
	p.skipBlanks()
	c := &Collection{}
	if p.skipChar('}') {
		return c, nil
	}
	for {
		p.skipBlanks()
		elem, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		c.Elements = append(c.Elements, elem)
		p.skipBlanks()
		if p.skipChar(',') {
			continue
		}
		if p.skipChar('}') {
			return c, nil
		}
		return nil, p.errorf("expected ',' or '}'")
	}
}
