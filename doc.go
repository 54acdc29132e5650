/*
Package sqlexpr translates lambda expressions over Go structs into parameterized SQL Server
statements and runs them through database/sql.

Entities are structs whose tags map them to a table. Entity level settings go on a blank field:

	type Member struct {
		_         struct{} `table:"Member" schema:"dbo" conn:"Main" tvp:"dbo.MemberType"`
		Id        int      `db:",key"`
		FirstName string   `db:"first_name" dbtype:"varchar(20)"`
		Age       *int
		Notes     string `db:"-"`
	}

Conditions, projections and assignments are written as lambdas whose parameters stand for the
tables of the statement, in order:

	where := sqlexpr.MustParse(`x => x.FirstName == $name && x.Age != null`, sqlexpr.M{"name": "Ann"})
	stmt, err := sqlexpr.NewTable(member).Select(sqlexpr.Select{Where: where})

builds

	SELECT [Id], [first_name] AS [FirstName], [Age] FROM [dbo].[Member] WITH (NOLOCK)
	WHERE ([first_name] = @FirstName_0) AND ([Age] IS NOT NULL);

# Parameters

Every value in an expression becomes a parameter named after the member it is compared with or
assigned to, with a counter suffix: FirstName_0, FirstName_1 and so on. Numeric values are written
as {=name} placeholders, replaced by literals when the statement is run. Other values are bound
as @name parameters. String values of columns declaring a SQL type through the dbtype tag are
bound as [DbString] values carrying the ANSI, fixed length and length facets of the column.

# Expressions

Lambdas support the comparison operators == != < <= > >=, && and || (always parenthesized in the
output), !, comparisons with null (IS NULL and IS NOT NULL), the string methods StartsWith,
EndsWith, Contains, Equals and CompareTo, Contains on a collection input (an OR chain), and
conversions such as int(x.Status). Inputs are written $name and may be followed by member
accesses resolved when the expression is parsed. String literals take single or double quotes;
a doubled quote stands for itself ('O''Brien'), and double quoted strings also accept the
backslash escapes \", \', \\, \n, \r and \t.

Projections are member-inits: x => new { x.Id, Name = x.FirstName }. Selecting from joined
tables must take at least one column of each of them; the columns where the rows of each table
start are reported by [Statement.SplitOn] and used to split a row between several outputs of
[Query.Get].

# Execution

A [DB] prepares statements on first use and keeps them in a bounded cache. [DataAccess] ties
a [Table] to the database of the connection its entity declares, as configured by [LoadConfig].
*/
package sqlexpr
