// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/canonical/sqlexpr"
)

// app holds the state shared by the commands of one invocation.
type app struct {
	cfg    *sqlexpr.Config
	logger zerolog.Logger

	cfgFile string
	schema  string
	entity  string
	alias   string
	args    []string
	noLock  bool
}

// Command group IDs
const (
	groupStatement = "statement"
	groupUtility   = "utility"
)

func newRootCmd() *cobra.Command {
	a := &app{logger: zerolog.Nop()}
	root := &cobra.Command{
		Use:   "sqlexpr",
		Short: "Translate lambda expressions to SQL Server statements",
		Long: `sqlexpr - lambda expressions to SQL Server statements

sqlexpr builds the statements a program using the sqlexpr package would run,
from entities described in a YAML schema file, and prints them with their
parameters.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			return a.load(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default: auto-discover sqlexpr.yaml)")
	root.PersistentFlags().StringVar(&a.schema, "schema", "", "YAML schema file describing entities (default: schema from config)")
	root.PersistentFlags().StringVarP(&a.entity, "entity", "e", "", "entity the statement is about (default: the only entity of the schema)")
	root.PersistentFlags().StringVar(&a.alias, "alias", "", "alias qualifying the columns of the entity")
	root.PersistentFlags().StringArrayVar(&a.args, "arg", nil, "input value as name=value, repeatable; [a,b] is a list, null is nil")
	root.PersistentFlags().BoolVar(&a.noLock, "nolock", true, "read tables WITH (NOLOCK) (default: nolock from config)")

	root.AddGroup(
		&cobra.Group{ID: groupStatement, Title: "Statements:"},
		&cobra.Group{ID: groupUtility, Title: "Utility:"},
	)
	for _, cmd := range statementCmds(a) {
		cmd.GroupID = groupStatement
		root.AddCommand(cmd)
	}
	config := configCmd(a)
	config.GroupID = groupUtility
	root.AddCommand(config)
	return root
}

// load reads the configuration and sets up logging.
func (a *app) load(cmd *cobra.Command) error {
	cfg, err := sqlexpr.LoadConfig(a.cfgFile)
	if err != nil {
		return fmt.Errorf("cannot load configuration: %w", err)
	}
	a.cfg = cfg
	if !cmd.Flags().Changed("nolock") {
		a.noLock = cfg.NoLock
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	a.logger = zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.RFC3339}).
		Level(level).With().Timestamp().Logger()
	cfg.SetLogger(a.logger)
	if path := cfg.Path(); path != "" {
		a.logger.Debug().Str("path", path).Msg("loaded configuration")
	}
	return nil
}

// table returns the statement builder of the selected entity.
func (a *app) table() (*sqlexpr.Table, error) {
	path := a.schema
	if path == "" {
		path = a.cfg.Schema
	}
	if path == "" {
		return nil, fmt.Errorf("no schema file: use --schema or set schema in the configuration")
	}
	entities, err := sqlexpr.LoadSchemaFile(path)
	if err != nil {
		return nil, err
	}
	a.logger.Debug().Str("path", path).Int("entities", len(entities)).Msg("loaded schema")

	var entity *sqlexpr.Entity
	switch {
	case a.entity != "":
		entity = entities[a.entity]
		if entity == nil {
			return nil, fmt.Errorf("schema %s has no entity %q", path, a.entity)
		}
	case len(entities) == 1:
		for _, e := range entities {
			entity = e
		}
	default:
		names := make([]string, 0, len(entities))
		for name := range entities {
			names = append(names, name)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("schema %s has entities %s, use --entity to pick one", path, strings.Join(names, ", "))
	}

	opts := a.cfg.TableOptions()
	opts = append(opts, sqlexpr.WithNoLock(a.noLock))
	return sqlexpr.NewTable(entity, opts...), nil
}

// parse parses a lambda with the --arg inputs.
func (a *app) parse(src string) (*sqlexpr.Expr, error) {
	inputs, err := parseArgs(a.args)
	if err != nil {
		return nil, err
	}
	return sqlexpr.Parse(src, inputs)
}

// parseArgs turns name=value pairs into expression inputs.
func parseArgs(args []string) (sqlexpr.M, error) {
	inputs := sqlexpr.M{}
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --arg %q: need name=value", arg)
		}
		if strings.HasPrefix(value, "[") && strings.HasSuffix(value, "]") {
			list := []any{}
			if inner := strings.TrimSpace(value[1 : len(value)-1]); inner != "" {
				for _, elem := range strings.Split(inner, ",") {
					list = append(list, parseValue(strings.TrimSpace(elem)))
				}
			}
			inputs[name] = list
			continue
		}
		inputs[name] = parseValue(value)
	}
	return inputs, nil
}

func parseValue(s string) any {
	if s == "null" {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}
