// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Command sqlexpr prints the SQL Server statements built from lambda
// expressions over the entities of a schema file, along with their
// parameters.
//
// Usage:
//
//	sqlexpr [flags] <command> <lambda>...
//
// For example:
//
//	sqlexpr --schema entities.yaml --entity Member --arg name=Ann where 'x => x.FirstName == $name'
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(1)
	}
}
