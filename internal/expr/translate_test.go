package expr

import (
	"github.com/shopspring/decimal"
	. "gopkg.in/check.v1"
)

type conditionTest struct {
	summary  string
	input    string
	args     M
	aliases  []string
	expected string
	params   map[string]any
}

var conditionTests = []conditionTest{{
	summary:  "numeric equality is inlined",
	input:    "x => x.Id == 1",
	expected: "[Id] = {=Id_0}",
	params:   map[string]any{"Id_0": int64(1)},
}, {
	summary:  "string equality is bound with its column type",
	input:    `x => x.FirstName == "GoodJob"`,
	expected: "[first_name] = @FirstName_0",
	params: map[string]any{
		"FirstName_0": DbString{Value: "GoodJob", IsAnsi: true, Length: 20},
	},
}, {
	summary:  "conjunction",
	input:    `x => x.Id == 1 && x.FirstName == "GoodJob"`,
	expected: "([Id] = {=Id_0}) AND ([first_name] = @FirstName_0)",
	params: map[string]any{
		"Id_0":        int64(1),
		"FirstName_0": DbString{Value: "GoodJob", IsAnsi: true, Length: 20},
	},
}, {
	summary:  "nested logical operations",
	input:    "x => x.Id == 1 || x.Status != 2 && x.Active",
	expected: "([Id] = {=Id_0}) OR (([Status] <> {=Status_0}) AND ([Active] = {=Active_0}))",
	params:   map[string]any{"Id_0": int64(1), "Status_0": int64(2), "Active_0": true},
}, {
	summary:  "null equality",
	input:    "x => x.FirstName == null",
	expected: "[first_name] IS NULL",
	params:   map[string]any{"FirstName_0": nil},
}, {
	summary:  "null inequality",
	input:    "x => x.Age != $age",
	args:     M{"age": (*int)(nil)},
	expected: "[Age] IS NOT NULL",
	params:   map[string]any{"Age_0": nil},
}, {
	summary:  "unicode string with declared length",
	input:    "x => x.LastName.CompareTo('M') > 0",
	expected: "[LastName] > @LastName_0",
	params: map[string]any{
		"LastName_0": DbString{Value: "M", Length: 50},
	},
}, {
	summary:  "aliased column",
	input:    "x => x.Id >= 10",
	aliases:  []string{"m"},
	expected: "[m].[Id] >= {=Id_0}",
	params:   map[string]any{"Id_0": int64(10)},
}, {
	summary:  "equals call",
	input:    "x => x.Status.Equals(3)",
	expected: "[Status] = {=Status_0}",
	params:   map[string]any{"Status_0": int64(3)},
}, {
	summary:  "conversions are transparent",
	input:    "x => int(x.Status) <= int32(4)",
	expected: "[Status] <= {=Status_0}",
	params:   map[string]any{"Status_0": int32(4)},
}, {
	summary:  "negation",
	input:    "x => !(x.Id < 5)",
	expected: "NOT ([Id] < {=Id_0})",
	params:   map[string]any{"Id_0": int64(5)},
}, {
	summary:  "input member chain",
	input:    "x => x.FirstName == $p.FirstName && x.Age == $p.Age",
	args:     M{"p": &Person{FirstName: "Bob"}},
	expected: "([first_name] = @FirstName_0) AND ([Age] IS NULL)",
	params: map[string]any{
		"FirstName_0": DbString{Value: "Bob", IsAnsi: true, Length: 20},
		"Age_0":       nil,
	},
}, {
	summary:  "decimal column",
	input:    "x => x.Balance > decimal('10.5')",
	expected: "[Balance] > {=Balance_0}",
	params:   map[string]any{"Balance_0": decimal.RequireFromString("10.5")},
}, {
	summary:  "starts with",
	input:    "x => x.FirstName.StartsWith('Jo')",
	expected: "[first_name] LIKE @FirstName_0 + '%'",
	params: map[string]any{
		"FirstName_0": DbString{Value: "Jo", IsAnsi: true, Length: 20},
	},
}, {
	summary:  "ends with",
	input:    "x => x.LastName.EndsWith('son')",
	expected: "[LastName] LIKE '%' + @LastName_0",
	params: map[string]any{
		"LastName_0": DbString{Value: "son", Length: 50},
	},
}, {
	summary:  "string contains",
	input:    "x => x.LastName.Contains('an')",
	expected: "[LastName] LIKE '%' + @LastName_0 + '%'",
	params: map[string]any{
		"LastName_0": DbString{Value: "an", Length: 50},
	},
}, {
	summary:  "collection contains",
	input:    "x => $names.Contains(x.FirstName)",
	args:     M{"names": []string{"a", "b", "c"}},
	expected: "[first_name] = @FirstName_0 OR [first_name] = @FirstName_1 OR [first_name] = @FirstName_2",
	params: map[string]any{
		"FirstName_0": DbString{Value: "a", IsAnsi: true, Length: 20},
		"FirstName_1": DbString{Value: "b", IsAnsi: true, Length: 20},
		"FirstName_2": DbString{Value: "c", IsAnsi: true, Length: 20},
	},
}, {
	summary:  "collection contains qualified by alias",
	input:    "x => $names.Contains(x.FirstName)",
	args:     M{"names": []string{"a", "b"}},
	aliases:  []string{"m"},
	expected: "[m].[first_name] = @FirstName_0 OR [m].[first_name] = @FirstName_1",
	params: map[string]any{
		"FirstName_0": DbString{Value: "a", IsAnsi: true, Length: 20},
		"FirstName_1": DbString{Value: "b", IsAnsi: true, Length: 20},
	},
}, {
	summary:  "collection contains with null element",
	input:    "x => $ids.Contains(x.Age)",
	args:     M{"ids": []*int{nil}},
	expected: "[Age] IS NULL",
	params:   map[string]any{"Age_0": nil},
}, {
	summary:  "empty collection contains",
	input:    "x => $ids.Contains(x.Id)",
	args:     M{"ids": []int{}},
	expected: "1 = 0",
	params:   map[string]any{},
}}

func (s *ExprInternalSuite) TestTranslate(c *C) {
	for i, t := range conditionTests {
		comment := Commentf("test %d failed (%s)", i, t.summary)
		l := parseBound(c, t.input, t.args, Person{})
		params := NewParams()
		sql, err := Translate(l, t.aliases, params)
		c.Assert(err, IsNil, comment)
		c.Check(sql, Equals, t.expected, comment)
		c.Check(params.Len(), Equals, len(t.params), comment)
		for name, expected := range t.params {
			v, ok := params.Value(name)
			c.Check(ok, Equals, true, comment)
			if d, ok := expected.(decimal.Decimal); ok {
				c.Check(d.Equal(v.(decimal.Decimal)), Equals, true, comment)
				continue
			}
			c.Check(v, Equals, expected, comment)
		}
	}
}

func (s *ExprInternalSuite) TestTranslateSharedParams(c *C) {
	params := NewParams()
	first := parseBound(c, "x => x.LastName == 'A'", nil, Person{})
	second := parseBound(c, "x => x.LastName == 'B'", nil, Person{})

	sql, err := Translate(first, nil, params)
	c.Assert(err, IsNil)
	c.Assert(sql, Equals, "[LastName] = @LastName_0")
	sql, err = Translate(second, nil, params)
	c.Assert(err, IsNil)
	c.Assert(sql, Equals, "[LastName] = @LastName_1")
	c.Assert(params.Names(), DeepEquals, []string{"LastName_0", "LastName_1"})
}

func (s *ExprInternalSuite) TestTranslateIsDeterministic(c *C) {
	l := parseBound(c, "x => x.FirstName == null && x.Id > 3", nil, Person{})
	var outputs []string
	var names [][]string
	for i := 0; i < 3; i++ {
		params := NewParams()
		sql, err := Translate(l, []string{"m"}, params)
		c.Assert(err, IsNil)
		outputs = append(outputs, sql)
		names = append(names, params.Names())
	}
	c.Assert(outputs[0], Equals, "([m].[first_name] IS NULL) AND ([m].[Id] > {=Id_0})")
	c.Assert(outputs[1], Equals, outputs[0])
	c.Assert(outputs[2], Equals, outputs[0])
	c.Assert(names[1], DeepEquals, names[0])
}

func (s *ExprInternalSuite) TestTranslateBuilder(c *C) {
	x := NewParam("x", entity(c, Person{}))
	l := NewLambda(And(Eq(x.Field("Id"), Const(7)), Gt(x.Field("Status"), Const(int32(1)))), x)
	params := NewParams()
	sql, err := Translate(l, nil, params)
	c.Assert(err, IsNil)
	c.Assert(sql, Equals, "([Id] = {=Id_0}) AND ([Status] > {=Status_0})")
	v, _ := params.Value("Id_0")
	c.Assert(v, Equals, 7)
}

func (s *ExprInternalSuite) TestTranslateErrors(c *C) {
	tests := []struct {
		input string
		args  M
		err   string
	}{{
		input: "x => 1 == x.Id",
		err:   `unsupported expression: left expression must be a member access, got 1`,
	}, {
		input: "x => x.FirstName < null",
		err:   `unsupported expression: cannot compare x.FirstName with null using <`,
	}, {
		input: "x => x.Secret == 'a'",
		err:   `member cannot be mapped: cannot map member "Secret" of Person: member is excluded from mapping`,
	}, {
		input: "x => x.Nickname == 'a'",
		err:   `member cannot be mapped: cannot map member "Nickname" of Person: no such member`,
	}, {
		input: "x => x.Id == x.Status",
		err:   `unsupported expression: right expression must be reducible to a value, got x.Status`,
	}, {
		input: "x => x.Id",
		err:   `unsupported expression: expression x.Id is not a condition`,
	}, {
		input: "x => x.FirstName.ToUpper() == 'A'",
		err:   `unsupported expression: left expression must be a member access, got x.FirstName.ToUpper\(\)`,
	}, {
		input: "x => x.FirstName.Trim('a')",
		err:   `unsupported expression: unsupported method Trim in condition`,
	}, {
		input: "x => x.FirstName.StartsWith(null)",
		err:   `unsupported expression: cannot match x.FirstName against null`,
	}, {
		input: "x => $n.Contains(x.Id)",
		args:  M{"n": 3},
		err:   `unsupported expression: Contains must be called on a collection value, got 3`,
	}}
	for _, t := range tests {
		l := parseBound(c, t.input, t.args, Person{})
		_, err := Translate(l, nil, NewParams())
		c.Check(err, ErrorMatches, t.err, Commentf("input %q", t.input))
	}

	// Collection Contains needs somewhere to bind its elements.
	l := parseBound(c, "x => $ids.Contains(x.Id)", M{"ids": []int{1}}, Person{})
	_, err := Translate(l, nil, nil)
	c.Assert(err, ErrorMatches, "unsupported expression: collection Contains requires a parameter table")
}

func (s *ExprInternalSuite) TestSelectList(c *C) {
	l := parseBound(c, "x => new { x.Id, Name = x.FirstName, x.Secret }", nil, Person{})
	p, err := SelectList(l, []string{"m"})
	c.Assert(err, IsNil)
	c.Assert(p.Columns, Equals, "[m].[Id], [m].[first_name] AS [Name]")
	c.Assert(p.SplitOn, HasLen, 0)

	l = parseBound(c, "x => x.FirstName", nil, Person{})
	p, err = SelectList(l, nil)
	c.Assert(err, IsNil)
	c.Assert(p.Columns, Equals, "[first_name] AS [FirstName]")

	l = parseBound(c, "x => x", nil, Person{})
	p, err = SelectList(l, nil)
	c.Assert(err, IsNil)
	c.Assert(p.Columns, Equals, "[Id], [first_name] AS [FirstName], [LastName], [Age], [Status], [Balance], [Active]")
}

func (s *ExprInternalSuite) TestSelectListMultiTable(c *C) {
	l := parseBound(c, "(m, o) => new { m.Id, m.FirstName, OrderId = o.Id, o.Total }", nil, Person{}, Order{})
	p, err := SelectList(l, []string{"m", "o"})
	c.Assert(err, IsNil)
	c.Assert(p.Columns, Equals, "[m].[Id], [m].[first_name] AS [FirstName], [o].[Id] AS [OrderId], [o].[Total]")
	c.Assert(p.SplitOn, DeepEquals, []string{"OrderId"})

	l = parseBound(c, "(m, o) => new { m.Id, m.FirstName }", nil, Person{}, Order{})
	_, err = SelectList(l, []string{"m", "o"})
	c.Assert(err, ErrorMatches, `selected columns must cover all joined tables: no column of "o" is selected`)

	l = parseBound(c, "(m, o) => new { m.Id, o.Id }", nil, Person{}, Order{})
	p, err = AllColumns(l.Params, []string{"m", "o"})
	c.Assert(err, IsNil)
	c.Assert(p.Columns, Equals, "[m].[Id], [m].[first_name] AS [FirstName], [m].[LastName], [m].[Age], [m].[Status], [m].[Balance], [m].[Active], "+
		"[o].[Id], [o].[member_id] AS [MemberId], [o].[Total], [o].[Code]")
	c.Assert(p.SplitOn, DeepEquals, []string{"Id"})
}

func (s *ExprInternalSuite) TestSelectListErrors(c *C) {
	l := parseBound(c, "x => new { Double = x.Id.Plus(x.Id) }", nil, Person{})
	_, err := SelectList(l, nil)
	c.Assert(err, ErrorMatches, `unsupported expression: projected expression x.Id.Plus\(x.Id\) is not a member access`)

	l = parseBound(c, "x => new { x.Secret }", nil, Person{})
	_, err = SelectList(l, nil)
	c.Assert(err, ErrorMatches, `unsupported expression: projection new \{ x.Secret \} selects no columns`)
}

func (s *ExprInternalSuite) TestSetList(c *C) {
	l := parseBound(c, `x => new Person { FirstName = "X", Age = $age, Status = int32(2) }`, M{"age": 3}, Person{})
	params := NewParams()
	list, err := SetList(l, params)
	c.Assert(err, IsNil)
	c.Assert(list, DeepEquals, []Assignment{
		{Column: "[first_name]", Placeholder: "@FirstName_0"},
		{Column: "[Age]", Placeholder: "{=Age_0}"},
		{Column: "[Status]", Placeholder: "{=Status_0}"},
	})
	c.Assert(RenderSet(list), Equals, "[first_name] = @FirstName_0, [Age] = {=Age_0}, [Status] = {=Status_0}")
	cols, vals := RenderColumns(list)
	c.Assert(cols, Equals, "[first_name], [Age], [Status]")
	c.Assert(vals, Equals, "@FirstName_0, {=Age_0}, {=Status_0}")

	v, _ := params.Value("FirstName_0")
	c.Assert(v, Equals, DbString{Value: "X", IsAnsi: true, Length: 20})
	v, _ = params.Value("Age_0")
	c.Assert(v, Equals, 3)
}

func (s *ExprInternalSuite) TestColumnListNull(c *C) {
	l := parseBound(c, `x => new Person { LastName = null, Id = 4 }`, nil, Person{})
	list, err := ColumnList(l, NewParams())
	c.Assert(err, IsNil)
	cols, vals := RenderColumns(list)
	c.Assert(cols, Equals, "[LastName], [Id]")
	c.Assert(vals, Equals, "NULL, {=Id_0}")
}

func (s *ExprInternalSuite) TestSetListErrors(c *C) {
	tests := []struct {
		input string
		err   string
	}{{
		input: `x => new { FirstName = "X" }`,
		err:   `unsupported expression: expected member-init expression, got new \{ FirstName = "X" \}`,
	}, {
		input: `x => new Person { FirstName = x.LastName }`,
		err:   `unsupported expression: value of FirstName is not reducible to a constant, field or property chain`,
	}, {
		input: `x => new Person { Secret = "s" }`,
		err:   `member cannot be mapped: cannot map member "Secret" of Person: member is excluded from mapping`,
	}, {
		input: `x => new Person { }`,
		err:   `unsupported expression: member-init new Person \{  \} assigns no members`,
	}, {
		input: `x => x.Id == 1`,
		err:   `unsupported expression: expected member-init expression, got \(x.Id == 1\)`,
	}}
	for _, t := range tests {
		l := parseBound(c, t.input, nil, Person{})
		_, err := SetList(l, NewParams())
		c.Check(err, ErrorMatches, t.err, Commentf("input %q", t.input))
	}

	x := NewParam("x", entity(c, Person{}))
	init := New(entity(c, Person{}), Binding{Member: "Tags", Value: Const(1), Kind: ListBinding})
	_, err := SetList(NewLambda(init, x), NewParams())
	c.Assert(err, ErrorMatches, `unsupported expression: binding Tags = 1 of new Person \{ Tags = 1 \} is not an assignment`)

	l := parseBound(c, `x => new Person { Tags = { "a", "b" } }`, nil, Person{})
	_, err = SetList(l, NewParams())
	c.Assert(err, ErrorMatches, `unsupported expression: binding Tags = \{ "a", "b" \} of new Person \{ Tags = \{ "a", "b" \} \} is not an assignment`)
	_, err = SelectList(l, nil)
	c.Assert(err, ErrorMatches, `unsupported expression: unsupported binding Tags = \{ "a", "b" \} in projection`)
}

func (s *ExprInternalSuite) TestJoin(c *C) {
	l := parseBound(c, "(m, o) => m.Id == o.MemberId", nil, Person{}, Order{})
	cond, err := JoinCondition(l, []string{"m", "o"})
	c.Assert(err, IsNil)
	c.Assert(cond, Equals, "[m].[Id] = [o].[member_id]")
	c.Assert(Join(InnerJoin, "[dbo].[Order]", "o", cond, true), Equals,
		"INNER JOIN [dbo].[Order] o WITH (NOLOCK) ON [m].[Id] = [o].[member_id]")
	c.Assert(Join(LeftJoin, "[Order]", "", cond, false), Equals,
		"LEFT JOIN [Order] ON [m].[Id] = [o].[member_id]")

	l = parseBound(c, "(m, o) => m.Id == o.MemberId && m.Status.Equals(o.Id)", nil, Person{}, Order{})
	cond, err = JoinCondition(l, []string{"m", "o"})
	c.Assert(err, IsNil)
	c.Assert(cond, Equals, "([m].[Id] = [o].[member_id]) AND ([m].[Status] = [o].[Id])")

	l = parseBound(c, "(m, o) => m.Id == 3", nil, Person{}, Order{})
	_, err = JoinCondition(l, []string{"m", "o"})
	c.Assert(err, ErrorMatches, `unsupported expression: expression 3 is not a member access`)

	l = parseBound(c, "m => m.Id == m.Status", nil, Person{})
	_, err = JoinCondition(l, []string{"m"})
	c.Assert(err, ErrorMatches, `unsupported expression: join condition must take two table parameters, got 1`)
}

func (s *ExprInternalSuite) TestOrderAndGroup(c *C) {
	l := parseBound(c, "x => x.FirstName", nil, Person{})
	sql, err := OrderBy(l, []string{"m"}, true)
	c.Assert(err, IsNil)
	c.Assert(sql, Equals, "[m].[first_name] DESC")

	l = parseBound(c, "x => new { x.LastName, x.Id }", nil, Person{})
	sql, err = OrderBy(l, nil, false)
	c.Assert(err, IsNil)
	c.Assert(sql, Equals, "[LastName] ASC, [Id] ASC")

	l = parseBound(c, "(m, o) => new { m.Id, o.Code }", nil, Person{}, Order{})
	sql, err = GroupBy(l, []string{"m", "o"})
	c.Assert(err, IsNil)
	c.Assert(sql, Equals, "[m].[Id], [o].[Code]")

	l = parseBound(c, "x => x.Secret", nil, Person{})
	_, err = GroupBy(l, nil)
	c.Assert(err, ErrorMatches, `member cannot be mapped: .*`)
}

func (s *ExprInternalSuite) TestAggregates(c *C) {
	l, err := NewParser().Parse(`g => new {
		Name = g.Select(x => x.FirstName),
		Total = g.Count(),
		Oldest = g.Max(x => x.Age),
		Spent = g.Sum((m, o) => o.Total),
		Mean = g.Avg((m, o) => o.Total),
		Youngest = g.Min(x => x.Age)
	}`, nil)
	c.Assert(err, IsNil)
	l, err = l.BindGroup(entity(c, Person{}), entity(c, Order{}))
	c.Assert(err, IsNil)

	sql, err := Aggregates(l, []string{"m", "o"})
	c.Assert(err, IsNil)
	c.Assert(sql, Equals, "[m].[first_name] AS [Name], COUNT(*) AS [Total], MAX([m].[Age]) AS [Oldest], "+
		"SUM([o].[Total]) AS [Spent], AVG(CAST([o].[Total] AS DECIMAL)) AS [Mean], MIN([m].[Age]) AS [Youngest]")

	tests := []struct {
		input string
		err   string
	}{{
		input: "g => new { Total = g.Count(1) }",
		err:   `unsupported expression: Count takes no argument, got 1`,
	}, {
		input: "g => new { Total = g.Median(x => x.Age) }",
		err:   `unsupported expression: unsupported aggregate Median`,
	}, {
		input: "g => new { Total = 1 }",
		err:   `unsupported expression: value of Total is not an aggregate call`,
	}, {
		input: "g => g.Count()",
		err:   `unsupported expression: expected member-init expression, got g.Count\(\)`,
	}}
	for _, t := range tests {
		l, err := NewParser().Parse(t.input, nil)
		c.Assert(err, IsNil)
		l, err = l.BindGroup(entity(c, Person{}))
		c.Assert(err, IsNil)
		_, err = Aggregates(l, []string{"m"})
		c.Check(err, ErrorMatches, t.err, Commentf("input %q", t.input))
	}
}
