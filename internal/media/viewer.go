package media

import (
	"errors"

	"gemini-console/internal/models"
)

var ErrNotViewable = errors.New("file is not an image or video")

// Viewer steps through the images and videos of one rendered page. Next and
// Prev wrap around at either end.
type Viewer struct {
	items []models.MediaFile
	index int
}

// NewViewer opens the viewer on filename.
func NewViewer(files []models.MediaFile, filename string) (*Viewer, error) {
	v := &Viewer{}
	for _, f := range files {
		if k := KindOf(f.Filename); k == KindImage || k == KindVideo {
			v.items = append(v.items, f)
		}
	}
	for i, f := range v.items {
		if f.Filename == filename {
			v.index = i
			return v, nil
		}
	}
	return nil, ErrNotViewable
}

func (v *Viewer) Len() int {
	return len(v.items)
}

func (v *Viewer) Index() int {
	return v.index
}

func (v *Viewer) Current() models.MediaFile {
	return v.items[v.index]
}

func (v *Viewer) Next() models.MediaFile {
	return v.step(1)
}

func (v *Viewer) Prev() models.MediaFile {
	return v.step(-1)
}

func (v *Viewer) step(n int) models.MediaFile {
	v.index += n
	if v.index >= len(v.items) {
		v.index = 0
	}
	if v.index < 0 {
		v.index = len(v.items) - 1
	}
	return v.items[v.index]
}
