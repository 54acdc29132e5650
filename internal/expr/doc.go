/*
Package expr translates lambda expressions over entities into SQL Server
fragments. It covers everything between an expression and a SQL fragment with
its parameter table; it does not assemble whole statements or interact with
databases.

The work is split into three stages: Parsing, Binding and Translation.

# Parsing stage

Expressions are trees of Node values. They are either built directly with the
builder functions (Eq, And, New, ...) or parsed from a small lambda syntax by
the Parser. Input references in the syntax are replaced by their values while
parsing, so a parsed tree holds no free variables other than its table
parameters.

# Binding stage

Lambda.Bind attaches entity metadata to the table parameters, by position,
and resolves the entity of member-inits. Binding copies the tree, so a parsed
expression can be bound to different tables concurrently.

# Translation stage

The translators walk bound trees and produce text: Translate for search
conditions, SelectList and Aggregates for SELECT lists, SetList and ColumnList
for UPDATE and INSERT, JoinCondition, OrderBy and GroupBy for the remaining
clauses. Values are bound into a Params table and referenced through
placeholders: {=name} for numeric columns, substituted inline at execution
time, and @name for everything else. For a given tree, alias list and
starting parameter table the output is always byte-identical.
*/
package expr
