// Package web embeds the console's browser assets: the login page, the console shell
// and the script that drives them against the session API.
package web

import "embed"

// Static holds the embedded web/static directory.
// Handlers access it via fs.Sub(Static, "static").
//
//go:embed static
var Static embed.FS
