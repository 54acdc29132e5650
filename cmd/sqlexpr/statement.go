// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/canonical/sqlexpr"
)

var (
	sqlColor   = color.New(color.FgCyan, color.Bold)
	nameColor  = color.New(color.FgYellow)
	splitColor = color.New(color.FgMagenta)
)

// printStatement writes the SQL of a statement followed by its parameters in
// binding order.
func printStatement(w io.Writer, stmt *sqlexpr.Statement) {
	sqlColor.Fprintln(w, stmt.SQL())
	for _, name := range stmt.ParamNames() {
		v, _ := stmt.Param(name)
		fmt.Fprintf(w, "  %s = %v\n", nameColor.Sprint(name), v)
	}
	if split := stmt.SplitOn(); len(split) > 0 {
		fmt.Fprintf(w, "  %s %v\n", splitColor.Sprint("split on"), split)
	}
}

func statementCmds(a *app) []*cobra.Command {
	var (
		top     int
		columns string
		orderBy []string
		desc    bool
	)

	whereCmd := &cobra.Command{
		Use:   "where <lambda>",
		Short: "Translate a condition",
		Example: `  sqlexpr where --alias m --arg names=[Ann,Bob] 'x => $names.Contains(x.FirstName)'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := a.table()
			if err != nil {
				return err
			}
			where, err := a.parse(args[0])
			if err != nil {
				return err
			}
			params := sqlexpr.NewParams()
			cond, err := table.Condition(where, a.alias, params)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			sqlColor.Fprintln(w, cond)
			params.Each(func(name string, value any) {
				fmt.Fprintf(w, "  %s = %v\n", nameColor.Sprint(name), value)
			})
			return nil
		},
	}

	query := func(args []string) (sqlexpr.Select, error) {
		q := sqlexpr.Select{Top: top, Alias: a.alias}
		var err error
		if len(args) == 1 {
			if q.Where, err = a.parse(args[0]); err != nil {
				return q, err
			}
		}
		if columns != "" {
			if q.Columns, err = a.parse(columns); err != nil {
				return q, err
			}
		}
		for _, src := range orderBy {
			by, err := a.parse(src)
			if err != nil {
				return q, err
			}
			q.OrderBy = append(q.OrderBy, sqlexpr.Order{By: by, Desc: desc})
		}
		return q, nil
	}

	selectCmd := &cobra.Command{
		Use:   "select [<where>]",
		Short: "Build a SELECT statement",
		Example: `  sqlexpr select --top 10 --columns 'x => new { x.Id, x.FirstName }' --order 'x => x.Id' 'x => x.Age > 30'`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := a.table()
			if err != nil {
				return err
			}
			q, err := query(args)
			if err != nil {
				return err
			}
			stmt, err := table.Select(q)
			if err != nil {
				return err
			}
			printStatement(cmd.OutOrStdout(), stmt)
			return nil
		},
	}
	selectCmd.Flags().IntVar(&top, "top", 0, "maximum number of rows")
	selectCmd.Flags().StringVar(&columns, "columns", "", "projection lambda (default: every mapped column)")
	selectCmd.Flags().StringArrayVar(&orderBy, "order", nil, "ordering lambda, repeatable")
	selectCmd.Flags().BoolVar(&desc, "desc", false, "order descending")

	countCmd := &cobra.Command{
		Use:   "count [<where>]",
		Short: "Build a SELECT COUNT(*) statement",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := a.table()
			if err != nil {
				return err
			}
			q, err := query(args)
			if err != nil {
				return err
			}
			stmt, err := table.Count(q)
			if err != nil {
				return err
			}
			printStatement(cmd.OutOrStdout(), stmt)
			return nil
		},
	}

	insertCmd := &cobra.Command{
		Use:     "insert <set>",
		Short:   "Build an INSERT statement",
		Example: `  sqlexpr insert --arg name=Ann 'x => new Member { FirstName = $name, Age = 30 }'`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.modify(cmd, args, func(t *sqlexpr.Table, exprs []*sqlexpr.Expr) (*sqlexpr.Statement, error) {
				return t.Insert(exprs[0])
			})
		},
	}

	updateCmd := &cobra.Command{
		Use:   "update <set> <where>",
		Short: "Build an UPDATE statement",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.modify(cmd, args, func(t *sqlexpr.Table, exprs []*sqlexpr.Expr) (*sqlexpr.Statement, error) {
				return t.Update(exprs[0], exprs[1])
			})
		},
	}

	upsertCmd := &cobra.Command{
		Use:   "upsert <set> <where>",
		Short: "Build an UPDATE statement inserting when no row matches",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.modify(cmd, args, func(t *sqlexpr.Table, exprs []*sqlexpr.Expr) (*sqlexpr.Statement, error) {
				return t.Upsert(exprs[0], exprs[1])
			})
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <where>",
		Short: "Build a DELETE statement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.modify(cmd, args, func(t *sqlexpr.Table, exprs []*sqlexpr.Expr) (*sqlexpr.Statement, error) {
				return t.Delete(exprs[0])
			})
		},
	}

	return []*cobra.Command{whereCmd, selectCmd, countCmd, insertCmd, updateCmd, upsertCmd, deleteCmd}
}

// modify parses args as lambdas and prints the statement build makes of them.
func (a *app) modify(cmd *cobra.Command, args []string, build func(*sqlexpr.Table, []*sqlexpr.Expr) (*sqlexpr.Statement, error)) error {
	table, err := a.table()
	if err != nil {
		return err
	}
	exprs := make([]*sqlexpr.Expr, len(args))
	for i, src := range args {
		if exprs[i], err = a.parse(src); err != nil {
			return err
		}
	}
	stmt, err := build(table, exprs)
	if err != nil {
		return err
	}
	printStatement(cmd.OutOrStdout(), stmt)
	return nil
}
