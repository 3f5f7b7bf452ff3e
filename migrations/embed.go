// Package migrations embeds the SQL migration files into the binary so the
// journal schema can be created without the files on disk.
package migrations

import "embed"

//go:embed *.sql
var files embed.FS

// FS holds every migration file at its root.
var FS = files
