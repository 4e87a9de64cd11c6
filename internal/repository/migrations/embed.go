package migrations

import "embed"

// FS embeds the Story/Scene schema migrations for use with golang-migrate's
// iofs source driver.
//
//go:embed *.sql
var FS embed.FS
