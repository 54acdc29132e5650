// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlexpr_test

import (
	"database/sql"
	"errors"

	sq "github.com/Masterminds/squirrel"
	mssql "github.com/denisenkom/go-mssqldb"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	. "gopkg.in/check.v1"

	"github.com/canonical/sqlexpr"
)

type StatementSuite struct{}

var _ = Suite(&StatementSuite{})

type Account struct {
	_       struct{} `schema:"dbo" tvp:"dbo.AccountType" conn:"Main,Reporting"`
	Id      int      `db:",key"`
	Code    string   `dbtype:"char(4)"`
	Name    string   `dbtype:"nvarchar(50)"`
	Notes   string   `dbtype:"nvarchar(max)"`
	Blob    string   `dbtype:"varchar(max)"`
	Ref     uuid.UUID
	Balance decimal.Decimal
	Active  bool
}

func accounts(c *C) *sqlexpr.Table {
	table, err := sqlexpr.TableOf[Account]()
	c.Assert(err, IsNil)
	return table
}

func (s *StatementSuite) TestRender(c *C) {
	ref := uuid.MustParse("6f1c3e5a-2d4b-4c8e-9a7f-0b1d2e3f4a5b")
	var tests = []struct {
		summary  string
		where    string
		inputs   sqlexpr.M
		sql      string
		rendered string
		args     []any
		plain    []any
	}{{
		summary:  "ansi fixed length string and boolean",
		where:    "x => x.Code == 'AB12' && x.Active",
		sql:      "([Code] = @Code_0) AND ([Active] = {=Active_0})",
		rendered: "([Code] = @Code_0) AND ([Active] = 1)",
		args:     []any{sql.Named("Code_0", mssql.VarChar("AB12"))},
		plain:    []any{sql.Named("Code_0", "AB12")},
	}, {
		summary:  "unicode strings",
		where:    "x => x.Name == $name || x.Notes == $name",
		inputs:   sqlexpr.M{"name": "Zoë"},
		sql:      "([Name] = @Name_0) OR ([Notes] = @Notes_0)",
		rendered: "([Name] = @Name_0) OR ([Notes] = @Notes_0)",
		args:     []any{sql.Named("Name_0", "Zoë"), sql.Named("Notes_0", mssql.NVarCharMax("Zoë"))},
		plain:    []any{sql.Named("Name_0", "Zoë"), sql.Named("Notes_0", "Zoë")},
	}, {
		summary:  "ansi max string",
		where:    "x => x.Blob.StartsWith('abc')",
		sql:      "[Blob] LIKE @Blob_0 + '%'",
		rendered: "[Blob] LIKE @Blob_0 + '%'",
		args:     []any{sql.Named("Blob_0", mssql.VarCharMax("abc"))},
		plain:    []any{sql.Named("Blob_0", "abc")},
	}, {
		summary:  "unique identifier",
		where:    "x => x.Ref == $ref",
		inputs:   sqlexpr.M{"ref": ref},
		sql:      "[Ref] = @Ref_0",
		rendered: "[Ref] = @Ref_0",
		args:     []any{sql.Named("Ref_0", mssql.UniqueIdentifier(ref))},
		plain:    []any{sql.Named("Ref_0", ref.String())},
	}, {
		summary:  "decimal and integer literals",
		where:    "x => x.Balance > $b && x.Id != $id",
		inputs:   sqlexpr.M{"b": decimal.RequireFromString("10.25"), "id": 7},
		sql:      "([Balance] > {=Balance_0}) AND ([Id] <> {=Id_0})",
		rendered: "([Balance] > 10.25) AND ([Id] <> 7)",
	}}

	table := accounts(c)
	for i, t := range tests {
		comment := Commentf("test %d failed (%s)", i, t.summary)
		stmt, err := table.Delete(sqlexpr.MustParse(t.where, t.inputs))
		if !c.Check(err, IsNil, comment) {
			continue
		}
		c.Check(stmt.SQL(), Equals, "DELETE FROM [dbo].[Account] WHERE "+t.sql+";", comment)

		text, args, err := stmt.ToSql()
		c.Assert(err, IsNil, comment)
		c.Check(text, Equals, "DELETE FROM [dbo].[Account] WHERE "+t.rendered+";", comment)
		c.Check(args, DeepEquals, t.args, comment)

		_, args, err = stmt.Render()
		c.Assert(err, IsNil, comment)
		c.Check(args, DeepEquals, t.plain, comment)
	}
}

func (s *StatementSuite) TestRenderSharedParameter(c *C) {
	stmt, err := accounts(c).Upsert(
		sqlexpr.MustParse("x => new Account { Name = $name, Active = false }", sqlexpr.M{"name": "Ann"}),
		sqlexpr.MustParse("x => x.Id == 5"))
	c.Assert(err, IsNil)
	c.Assert(stmt.ParamNames(), DeepEquals, []string{"Name_0", "Active_0", "Id_0"})

	text, args, err := stmt.ToSql()
	c.Assert(err, IsNil)
	c.Assert(text, Equals, "UPDATE [dbo].[Account] SET [Name] = @Name_0, [Active] = 0 WHERE [Id] = 5; "+
		"IF @@rowcount = 0 BEGIN INSERT INTO [dbo].[Account]([Name], [Active]) VALUES (@Name_0, 0); END")
	// The parameter is passed once however often it is referenced.
	c.Assert(args, DeepEquals, []any{sql.Named("Name_0", "Ann")})
}

func (s *StatementSuite) TestStatementAccessors(c *C) {
	stmt, err := accounts(c).Select(sqlexpr.Select{
		Columns: sqlexpr.MustParse("x => new { x.Id, x.Name }"),
		Where:   sqlexpr.MustParse("x => x.Name == 'a'"),
	})
	c.Assert(err, IsNil)
	c.Assert(stmt.ReturnsRows(), Equals, true)
	c.Assert(stmt.SplitOn(), HasLen, 0)
	c.Assert(stmt.String(), Equals, "SELECT [Id], [Name] FROM [dbo].[Account] WITH (NOLOCK) WHERE [Name] = @Name_0;")

	v, ok := stmt.Param("Name_0")
	c.Assert(ok, Equals, true)
	c.Assert(v, Equals, sqlexpr.DbString{Value: "a", Length: 50})
	_, ok = stmt.Param("Name_1")
	c.Assert(ok, Equals, false)

	// Statements are squirrel Sqlizers.
	var sqlizer sq.Sqlizer = stmt
	text, _, err := sqlizer.ToSql()
	c.Assert(err, IsNil)
	c.Assert(text, Equals, stmt.SQL())
}

func (s *StatementSuite) TestRenderBulk(c *C) {
	rows := []Account{{Id: 1, Name: "a"}, {Id: 2, Name: "b"}}
	stmt, err := accounts(c).BulkDelete(rows)
	c.Assert(err, IsNil)
	c.Assert(stmt.SQL(), Equals, "DELETE t FROM [dbo].[Account] t INNER JOIN @tvp tvp ON t.[Id] = tvp.[Id];")

	_, args, err := stmt.ToSql()
	c.Assert(err, IsNil)
	c.Assert(args, HasLen, 1)
	named, ok := args[0].(sql.NamedArg)
	c.Assert(ok, Equals, true)
	c.Assert(named.Name, Equals, "tvp")
	tvp, ok := named.Value.(mssql.TVP)
	c.Assert(ok, Equals, true)
	c.Assert(tvp.TypeName, Equals, "dbo.AccountType")
}

func (s *StatementSuite) TestCondition(c *C) {
	table := accounts(c)
	params := sqlexpr.NewParams()

	first, err := table.Condition(sqlexpr.MustParse("x => x.Name == 'a'"), "a", params)
	c.Assert(err, IsNil)
	c.Assert(first, Equals, "[a].[Name] = @Name_0")

	// A shared parameter table keeps names distinct.
	second, err := table.Condition(sqlexpr.MustParse("x => x.Name != 'b'"), "", params)
	c.Assert(err, IsNil)
	c.Assert(second, Equals, "[Name] <> @Name_1")
	c.Assert(params.Names(), DeepEquals, []string{"Name_0", "Name_1"})

	_, err = table.Condition(nil, "", params)
	c.Assert(errors.Is(err, sqlexpr.ErrShape), Equals, true)

	_, err = table.Condition(sqlexpr.MustParse("x => x.Missing == 1"), "", params)
	c.Assert(errors.Is(err, sqlexpr.ErrMapping), Equals, true)
}

func (s *StatementSuite) TestParseErrors(c *C) {
	_, err := sqlexpr.Parse("x => x.Id ==")
	c.Assert(err, ErrorMatches, "cannot parse expression: .*")

	c.Assert(func() { sqlexpr.MustParse("x =>") }, PanicMatches, "cannot parse expression: .*")
}

func (s *StatementSuite) TestEntity(c *C) {
	e, err := sqlexpr.EntityOf[Account]()
	c.Assert(err, IsNil)
	c.Assert(e.Name(), Equals, "Account")
	c.Assert(e.Table(), Equals, "[dbo].[Account]")
	c.Assert(e.Connections(), DeepEquals, []string{"Main", "Reporting"})
	c.Assert(e.Columns(), DeepEquals, []string{"Id", "Code", "Name", "Notes", "Blob", "Ref", "Balance", "Active"})

	same, err := sqlexpr.EntityFor(&Account{})
	c.Assert(err, IsNil)
	c.Assert(same.Table(), Equals, e.Table())

	_, err = sqlexpr.EntityFor(3)
	c.Assert(err, NotNil)
}

func (s *StatementSuite) TestLoadSchema(c *C) {
	entities, err := sqlexpr.LoadSchema([]byte(`
entities:
  - name: Member
    schema: dbo
    connections: [Main]
    fields:
      - name: Id
        kind: int
        key: true
      - name: FirstName
        column: first_name
        type: varchar(20)
`))
	c.Assert(err, IsNil)
	c.Assert(entities, HasLen, 1)
	m := entities["Member"]
	c.Assert(m, NotNil)
	c.Assert(m.Columns(), DeepEquals, []string{"Id", "first_name"})

	stmt, err := sqlexpr.NewTable(m, sqlexpr.WithNoLock(false)).Select(sqlexpr.Select{
		Where: sqlexpr.MustParse("x => x.FirstName == 'Ann'"),
	})
	c.Assert(err, IsNil)
	c.Assert(stmt.SQL(), Equals, "SELECT [Id], [first_name] AS [FirstName] FROM [dbo].[Member] WHERE [first_name] = @FirstName_0;")
	v, _ := stmt.Param("FirstName_0")
	c.Assert(v, Equals, sqlexpr.DbString{Value: "Ann", IsAnsi: true, Length: 20})
}

func (s *StatementSuite) TestMaxStringLength(c *C) {
	type Note struct {
		Text string `dbtype:"nvarchar"`
	}
	table, err := sqlexpr.TableOf[Note](sqlexpr.WithMaxStringLength(100))
	c.Assert(err, IsNil)
	stmt, err := table.Delete(sqlexpr.MustParse("x => x.Text == 'a'"))
	c.Assert(err, IsNil)
	v, _ := stmt.Param("Text_0")
	c.Assert(v, Equals, sqlexpr.DbString{Value: "a", Length: 100})
}
