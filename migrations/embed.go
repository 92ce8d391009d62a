// Package migrations embeds the relay's SQL schema into the binary.
//
// The queue file is created and upgraded on startup from these files, so a
// fresh device needs no external setup step.
package migrations

import (
	"embed"

	"github.com/nerrad567/solbox-relay/internal/infrastructure/database"
)

//go:embed *.sql
var files embed.FS

// Source is the relay's schema history, oldest first.
var Source = database.Source{FS: files, Dir: "."}
