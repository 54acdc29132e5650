// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
Package typeinfo resolves entity metadata: table names, connection names and
the column descriptor of every member. Metadata comes either from struct tags,
reflected once per type through a Cache, or from a YAML schema file. As much
as possible, reflection code is limited to this package, including scanning
query results into structs and building table-valued parameter rows.
*/
package typeinfo
