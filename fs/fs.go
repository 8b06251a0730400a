// Package appfs embeds the files shipped with the binaries: SQL migrations & email templates.
package appfs

import "embed"

//go:embed migrations all:templates
var FS embed.FS
