// Package blob stores uploaded file content and resolves it to a stable URL.
package blob

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// Object is content on its way into the store.
type Object struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Ref locates stored content.
type Ref struct {
	URL       string
	ContentID string
}

// Store persists objects. Implementations must not leave a Ref behind on error.
type Store interface {
	Put(ctx context.Context, obj Object) (Ref, error)
}

// Key builds "<folder>/<unix-ms>-<name>" with the name reduced to a safe base name.
func Key(folder, name string, now time.Time) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	if base == "." || base == "/" || base == "" {
		base = "upload"
	}
	base = strings.Map(func(r rune) rune {
		switch {
		case r == ' ':
			return '_'
		case r < 0x20 || r == 0x7f:
			return -1
		}
		return r
	}, base)
	key := fmt.Sprintf("%d-%s", now.UnixMilli(), base)
	if folder = strings.Trim(folder, "/"); folder != "" {
		key = folder + "/" + key
	}
	return key
}
