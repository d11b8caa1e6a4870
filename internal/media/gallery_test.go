package media

import (
	"context"
	"fmt"
	"testing"

	"gemini-console/internal/adminfake"
	"gemini-console/internal/api"
	"gemini-console/internal/dialog"
	"gemini-console/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGallery(t *testing.T, answers ...dialog.Answer) (*Gallery, *adminfake.Server) {
	t.Helper()
	srv := adminfake.New()
	t.Cleanup(srv.Close)

	var files []models.MediaFile
	for i := 0; i < 25; i++ {
		ext := []string{"png", "mp4", "txt", "MOV", "jpeg"}[i%5]
		name := fmt.Sprintf("f%02d.%s", i, ext)
		files = append(files, models.MediaFile{
			Filename:  name,
			URL:       "/images/" + name,
			CreatedAt: fmt.Sprintf("2026-01-01T00:00:%02d", i),
		})
	}
	srv.Media["local"] = files
	srv.Media["memory"] = files[:3]
	srv.Storage["local"] = models.StorageDetails{TotalImages: 25, MaxImages: 100, TotalSizeMB: 12.5, MaxSizeMB: 50}
	srv.Storage["memory"] = models.StorageDetails{TotalImages: 3, MaxImages: 8}

	dialogs := dialog.New()
	t.Cleanup(dialog.Start(context.Background(), dialogs, dialog.NewScripted(answers...)))
	client := api.New(api.Options{BaseURL: srv.URL()}, &adminfake.StaticTokens{Value: adminfake.Token})
	return NewGallery(client, dialogs), srv
}

func TestFetchPaginates(t *testing.T) {
	g, _ := newTestGallery(t)
	ctx := context.Background()

	files, err := g.Fetch(ctx, 1, 10, "local")
	require.NoError(t, err)
	require.Len(t, files, 10)
	assert.Equal(t, "f24.jpeg", files[0].Filename, "newest first")

	p := g.Pagination()
	assert.Equal(t, 3, p.TotalPages())
	assert.False(t, p.HasPrev())
	assert.True(t, p.HasNext())
	assert.False(t, p.Hidden())

	files, err = g.NextPage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "f14.jpeg", files[0].Filename)
	files, err = g.NextPage(ctx)
	require.NoError(t, err)
	assert.Len(t, files, 5)
	assert.False(t, g.Pagination().HasNext())

	_, err = g.Fetch(ctx, 1, 15, "local")
	assert.ErrorIs(t, err, ErrInvalidPageSize)
	assert.Equal(t, 3, g.Pagination().Page, "failed fetch keeps the page")
}

func TestPaginationHidden(t *testing.T) {
	assert.True(t, Pagination{Page: 1, PageSize: 10, Total: 10}.Hidden())
	assert.True(t, Pagination{Page: 1, PageSize: 10, Total: 0}.Hidden())
	assert.False(t, Pagination{Page: 1, PageSize: 10, Total: 11}.Hidden())
	// One page of 20 still shows the size selector.
	assert.False(t, Pagination{Page: 1, PageSize: 20, Total: 15}.Hidden())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindImage, KindOf("a.JPG"))
	assert.Equal(t, KindImage, KindOf("a.svg"))
	assert.Equal(t, KindVideo, KindOf("clip.mov"))
	assert.Equal(t, KindFile, KindOf("notes.txt"))
	assert.Equal(t, KindFile, KindOf("noext"))

	assert.Equal(t, "video/quicktime", MIMEType("clip.MOV"))
	assert.Equal(t, "video/webm", MIMEType("clip.webm"))
	assert.Equal(t, "image/jpeg", MIMEType("a.jpg"))
	assert.Equal(t, "", MIMEType("a.txt"))
}

func TestViewerWrapsAroundMediaOnly(t *testing.T) {
	files := []models.MediaFile{
		{Filename: "a.png"}, {Filename: "doc.pdf"}, {Filename: "b.mp4"}, {Filename: "c.gif"},
	}
	v, err := NewViewer(files, "c.gif")
	require.NoError(t, err)
	assert.Equal(t, 3, v.Len())

	assert.Equal(t, "a.png", v.Next().Filename)
	assert.Equal(t, "c.gif", v.Prev().Filename)
	assert.Equal(t, "b.mp4", v.Prev().Filename)
	assert.Equal(t, "b.mp4", v.Current().Filename)

	_, err = NewViewer(files, "doc.pdf")
	assert.ErrorIs(t, err, ErrNotViewable)
}

func TestSelection(t *testing.T) {
	g, _ := newTestGallery(t)
	_, err := g.Fetch(context.Background(), 1, 10, "memory")
	require.NoError(t, err)

	on, err := g.Toggle("f01.mp4")
	require.NoError(t, err)
	assert.True(t, on)
	assert.Equal(t, []string{"f01.mp4"}, g.Selected())

	_, err = g.Toggle("f24.jpeg")
	assert.ErrorIs(t, err, ErrNotOnPage)

	assert.True(t, g.ToggleAll())
	assert.Equal(t, []string{"f02.txt", "f01.mp4", "f00.png"}, g.Selected())
	assert.False(t, g.ToggleAll())
	assert.Empty(t, g.Selected())
}

func TestDeleteSelected(t *testing.T) {
	g, srv := newTestGallery(t, dialog.No(), dialog.Yes())
	ctx := context.Background()

	_, err := g.DeleteSelected(ctx)
	assert.ErrorIs(t, err, ErrNothingSelected)

	_, err = g.Fetch(ctx, 1, 10, "memory")
	require.NoError(t, err)
	g.Toggle("f00.png")
	g.Toggle("f02.txt")

	_, err = g.DeleteSelected(ctx)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Len(t, srv.Media["memory"], 3)

	res, err := g.DeleteSelected(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2 files deleted", res.Message)
	assert.Equal(t, 1, srv.RequestCount("DELETE /admin/media"))

	files := g.Files()
	require.Len(t, files, 1)
	assert.Equal(t, "f01.mp4", files[0].Filename)
	assert.Empty(t, g.Selected(), "refetch clears the selection")
}

func TestQuota(t *testing.T) {
	g, srv := newTestGallery(t)
	ctx := context.Background()

	q, err := g.LoadQuota(ctx, "local")
	require.NoError(t, err)
	assert.True(t, q.Shown)
	assert.Equal(t, 25, RoundPercent(q.CountPercent()))
	assert.True(t, q.SizeBar())
	assert.Equal(t, 25, RoundPercent(q.SizePercent()))

	q, err = g.LoadQuota(ctx, "memory")
	require.NoError(t, err)
	assert.False(t, q.SizeBar(), "no size limit hides the bar")
	assert.Equal(t, 38, RoundPercent(q.CountPercent()))

	before := srv.RequestCount("GET /admin/storage_details")
	q, err = g.LoadQuota(ctx, "s3")
	require.NoError(t, err)
	assert.False(t, q.Shown)
	assert.Equal(t, before, srv.RequestCount("GET /admin/storage_details"))
}

func TestSwitchStorage(t *testing.T) {
	g, _ := newTestGallery(t)
	ctx := context.Background()
	_, err := g.Fetch(ctx, 3, 10, "local")
	require.NoError(t, err)

	require.NoError(t, g.SwitchStorage(ctx, "memory"))
	p := g.Pagination()
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, "memory", p.StorageType)
	assert.Equal(t, 3, p.Total)
	assert.Equal(t, "memory", g.Quota().StorageType)
}

func TestSetPageSize(t *testing.T) {
	g, _ := newTestGallery(t)
	files, err := g.SetPageSize(context.Background(), 50)
	require.NoError(t, err)
	assert.Len(t, files, 25)
	assert.True(t, g.Pagination().TotalPages() == 1)
	assert.False(t, g.Pagination().Hidden())
}
