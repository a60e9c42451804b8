package loader

import (
	"io"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"tripetl/internal/layout"
)

// decodeReader normalizes raw file bytes to UTF-8 before CSV parsing.
//
// Modern monthly exports are UTF-8, occasionally with a BOM. Legacy
// quarterly exports came out of Windows tooling and can carry Windows-1252
// station names, so for legacy files the no-BOM fallback is Windows-1252
// instead of assuming UTF-8.
func decodeReader(r io.Reader, l layout.Layout) io.Reader {
	var fallback encoding.Encoding = unicode.UTF8
	if l == layout.Legacy {
		fallback = charmap.Windows1252
	}
	return transform.NewReader(r, unicode.BOMOverride(fallback.NewDecoder()))
}
