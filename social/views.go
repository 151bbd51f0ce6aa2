package social

import (
	"embed"
	"io/fs"
)

//go:embed views/*.html
var viewsFS embed.FS

// Views returns the built-in sign-in, error and new-user templates rooted
// at the template directory.
func Views() fs.FS {
	sub, err := fs.Sub(viewsFS, "views")
	if err != nil {
		return viewsFS
	}
	return sub
}
