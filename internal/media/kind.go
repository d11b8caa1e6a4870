package media

import (
	"path"
	"strings"
)

type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindFile  Kind = "file"
)

var (
	imageExts = map[string]bool{"jpg": true, "jpeg": true, "png": true, "gif": true, "webp": true, "bmp": true, "svg": true}
	videoExts = map[string]bool{"mp4": true, "webm": true, "ogg": true, "mov": true}
)

func extension(filename string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
}

// KindOf classifies a file by its extension.
func KindOf(filename string) Kind {
	ext := extension(filename)
	switch {
	case imageExts[ext]:
		return KindImage
	case videoExts[ext]:
		return KindVideo
	}
	return KindFile
}

// MIMEType is the content type a player would use for the file; empty for
// generic files.
func MIMEType(filename string) string {
	ext := extension(filename)
	switch KindOf(filename) {
	case KindImage:
		switch ext {
		case "jpg":
			return "image/jpeg"
		case "svg":
			return "image/svg+xml"
		}
		return "image/" + ext
	case KindVideo:
		if ext == "mov" {
			return "video/quicktime"
		}
		return "video/" + ext
	}
	return ""
}
