// Package dashboard embeds the HTML templates and stylesheet for the
// token-protected results dashboard.
package dashboard

import "embed"

//go:embed templates/*.html
var Templates embed.FS

//go:embed assets/*
var Assets embed.FS
