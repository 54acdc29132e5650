package expr

import (
	. "gopkg.in/check.v1"
)

type parseHelperTest struct {
	charf    func(rune) bool
	stringf  func(string) bool
	stringf0 func() bool
	result   []bool
	input    string
	data     []string
}

func (s *ExprInternalSuite) TestRunTable(c *C) {
	var p = NewParser()
	var parseTests = []parseHelperTest{

		{charf: p.peekChar, result: []bool{false}, input: "", data: []string{"a"}},
		{charf: p.peekChar, result: []bool{false}, input: "b", data: []string{"a"}},
		{charf: p.peekChar, result: []bool{true}, input: "a", data: []string{"a"}},

		{charf: p.skipChar, result: []bool{false}, input: "", data: []string{"a"}},
		{charf: p.skipChar, result: []bool{false}, input: "abc", data: []string{"b"}},
		{charf: p.skipChar, result: []bool{true, true}, input: "abc", data: []string{"a", "b"}},

		{charf: p.skipCharFind, result: []bool{false}, input: "", data: []string{"a"}},
		{charf: p.skipCharFind, result: []bool{false, true, true}, input: "abcde", data: []string{"x", "b", "c"}},
		{charf: p.skipCharFind, result: []bool{true, false}, input: "abcde ", data: []string{" ", " "}},

		{stringf0: p.skipBlanks, result: []bool{false}, input: "", data: []string{}},
		{stringf0: p.skipBlanks, result: []bool{false}, input: "abc    d", data: []string{}},
		{stringf0: p.skipBlanks, result: []bool{true}, input: "     abcd", data: []string{}},
		{stringf0: p.skipBlanks, result: []bool{true}, input: "  \t  abcd", data: []string{}},
		{stringf0: p.skipBlanks, result: []bool{true}, input: "\n\r\t  abcd", data: []string{}},

		{stringf: p.skipString, result: []bool{false}, input: "", data: []string{"=>"}},
		{stringf: p.skipString, result: []bool{false}, input: "=", data: []string{"=>"}},
		{stringf: p.skipString, result: []bool{true, true}, input: "=>&&", data: []string{"=>", "&&"}},
		{stringf: p.skipString, result: []bool{false, true}, input: "!=", data: []string{"==", "!="}},
	}
	for _, v := range parseTests {
		// Reset the input.
		p.init(v.input, nil)
		for i := range v.result {
			var result bool
			if v.charf != nil {
				result = v.charf(rune(v.data[i][0]))
			}
			if v.stringf != nil {
				result = v.stringf(v.data[i])
			}
			if v.stringf0 != nil {
				result = v.stringf0()
			}
			if v.result[i] != result {
				c.Errorf("Test %#v failed. Expected: '%t', got '%t'\n", v, v.result[i], result)
			}
		}
	}
}

func (s *ExprInternalSuite) TestValidQuotes(c *C) {
	var p = NewParser()

	validQuotes := []struct {
		input string
		value string
	}{
		{`'stringy string'`, "stringy string"},
		{`'O''Flan'`, "O'Flan"},
		{`"J ""Quickfingers"" Johnson"`, `J "Quickfingers" Johnson`},
		{`''`, ""},
		{`''' '''`, "' '"},
		{`""`, ""},
		{`'"""'`, `"""`},
		{`' "''" '`, ` "'" `},
		{`"a\"b"`, `a"b`},
		{`"a\\b"`, `a\b`},
		{`"\t\n'"`, "\t\n'"},
		{`'a\b'`, `a\b`},
	}

	for _, q := range validQuotes {
		p.init(q.input, nil)
		n, err := p.parseStringLiteral()
		c.Assert(err, IsNil, Commentf("%s is a valid quoted string", q.input))
		c.Check(n.(*Constant).Value, Equals, q.value)
		c.Check(p.pos, Equals, len(q.input))
	}
}

func (s *ExprInternalSuite) TestUnfinishedQuote(c *C) {
	var p = NewParser()

	unfinishedQuotes := []string{
		`'`,
		`"`,
		`' ''`,
		`'"" ''`,
		`'string`,
		`'string"`,
		`"string`,
		`"string\"`,
		`"\`,
	}

	for _, q := range unfinishedQuotes {
		p.init(q, nil)
		_, err := p.parseStringLiteral()
		if err == nil {
			c.Errorf("test failed. the string %s was parsed but is not valid", q)
		}
	}
}

func (s *ExprInternalSuite) TestInvalidEscape(c *C) {
	var p = NewParser()
	p.init(`"a\qb"`, nil)
	_, err := p.parseStringLiteral()
	c.Assert(err, ErrorMatches, "column 3: invalid escape sequence in string literal")
}

func (s *ExprInternalSuite) TestParseEscapedQuote(c *C) {
	l, err := NewParser().Parse(`x => x.FirstName == "a\"b" || x.FirstName == 'O''Brien'`, nil)
	c.Assert(err, IsNil)
	or := l.Body.(*Binary)
	c.Check(or.Left.(*Binary).Right.(*Constant).Value, Equals, `a"b`)
	c.Check(or.Right.(*Binary).Right.(*Constant).Value, Equals, "O'Brien")
}
