package web

import (
	"embed"
)

// static holds the booth page, its stylesheet and script.
// The final binary includes all files under static/.
//
//go:embed static/*
var staticFiles embed.FS
