package console

import (
	"bytes"
	"context"
	"testing"
	"time"

	"gemini-console/internal/adminfake"
	"gemini-console/internal/api"
	"gemini-console/internal/database"
	"gemini-console/internal/dialog"
	"gemini-console/internal/keys"
	"gemini-console/internal/media"
	"gemini-console/internal/models"
	"gemini-console/internal/runner"
	"gemini-console/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	console *Console
	srv     *adminfake.Server
	guard   *session.Guard
}

func newFixture(t *testing.T, token string, answers ...dialog.Answer) *fixture {
	t.Helper()
	srv := adminfake.New()
	t.Cleanup(srv.Close)
	srv.GeminiKeys = []string{"AIza-one-1111", "AIza-two-2222"}
	srv.Mappings = []models.APIMapping{{Prefix: "/openai", TargetURL: "https://api.openai.com"}}
	srv.AccessKeys = []models.AccessKey{{Key: "sk-a", Name: "ci", IsActive: true}}
	srv.Media["local"] = []models.MediaFile{{Filename: "a.png", URL: "/images/a.png", CreatedAt: "2026-01-01T00:00:00"}}
	srv.Storage["local"] = models.StorageDetails{TotalImages: 1, MaxImages: 10}

	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })

	guard := session.NewGuard(session.NewStore(db), srv.URL())
	if token != "" {
		require.NoError(t, guard.Login(token))
	}

	dialogs := dialog.New()
	t.Cleanup(dialog.Start(context.Background(), dialogs, dialog.NewScripted(answers...)))
	client := api.New(api.Options{BaseURL: srv.URL()}, guard)
	c := New(client, guard, dialogs, Options{
		Keys: keys.Options{
			Profile: srv.URL(),
			Runner:  runner.New(1, 0),
			Drafts:  keys.NewDrafts(db),
		},
	})
	return &fixture{console: c, srv: srv, guard: guard}
}

func TestLoadRequiresSession(t *testing.T) {
	f := newFixture(t, "")
	_, err := f.console.Load(context.Background())
	assert.ErrorIs(t, err, session.ErrNoSession)
	assert.Empty(t, f.srv.Requests, "no request without a token")
}

func TestLoadPopulatesEveryPanel(t *testing.T) {
	f := newFixture(t, adminfake.Token)
	res, err := f.console.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, res.OK(), "%v", res.Err())

	assert.Len(t, f.console.Settings.Panels(), 1)
	assert.Equal(t, []string{"AIza-one-1111", "AIza-two-2222"}, f.console.Keys.Store().Current())
	assert.Len(t, f.console.Mappings.Rows(), 1)
	assert.Len(t, f.console.Access.Rows(), 1)
	assert.Len(t, f.console.Media.Files(), 1)
	assert.Equal(t, 10, f.console.Media.Pagination().PageSize)
	assert.True(t, f.console.Media.Quota().Shown)

	assert.Equal(t, 1, f.srv.RequestCount("GET /admin/env"))
	assert.Equal(t, 1, f.srv.RequestCount("GET /admin/storage_details"))
}

func TestLoadCollectsPanelErrors(t *testing.T) {
	f := newFixture(t, adminfake.Token)
	delete(f.srv.Storage, "local")

	res, err := f.console.Load(context.Background())
	require.NoError(t, err)
	require.False(t, res.OK())
	require.Contains(t, res.Errors, PanelQuota)
	assert.Equal(t, 404, api.StatusCode(res.Errors[PanelQuota]))
	assert.Len(t, res.Errors, 1)
	assert.ErrorContains(t, res.Err(), "storage: ")

	assert.Len(t, f.console.Mappings.Rows(), 1, "other panels still load")
	assert.Len(t, f.console.Media.Files(), 1)
}

func TestLoadExpiredSession(t *testing.T) {
	f := newFixture(t, "stale-token")
	_, err := f.console.Load(context.Background())
	assert.ErrorIs(t, err, session.ErrSessionExpired)
	assert.False(t, f.guard.Valid(), "rejected token is forgotten")
	assert.Equal(t, 1, f.srv.RequestCount("GET /admin/env"), "list panels are not loaded")
}

func TestSaveKeysPanelSettlesKeyManager(t *testing.T) {
	f := newFixture(t, adminfake.Token, dialog.Text(adminfake.Password))
	ctx := context.Background()
	_, err := f.console.Load(ctx)
	require.NoError(t, err)

	store := f.console.Keys.Store()
	require.NoError(t, store.Add("AIza-three-3333"))
	require.True(t, store.Modified())

	_, err = f.console.SaveSettings(ctx, adminfake.KeysCategory)
	require.NoError(t, err)
	assert.False(t, store.Modified())
	assert.Equal(t, "AIza-one-1111,AIza-two-2222,AIza-three-3333", f.srv.LastUpdate()[adminfake.KeysField])
}

func TestStagedKeysSurviveReload(t *testing.T) {
	f := newFixture(t, adminfake.Token)
	ctx := context.Background()
	_, err := f.console.Load(ctx)
	require.NoError(t, err)
	require.NoError(t, f.console.Keys.Store().Delete("AIza-one-1111"))

	_, err = f.console.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"AIza-two-2222"}, f.console.Keys.Store().Current())
	assert.True(t, f.console.Keys.Store().Modified())
}

func TestMapError(t *testing.T) {
	assert.ErrorIs(t, MapError(api.ErrUnauthorized), session.ErrSessionExpired)
	assert.Nil(t, MapError(nil))
	assert.True(t, Cancelled(keys.ErrCancelled))
	assert.True(t, Cancelled(media.ErrCancelled))
	assert.False(t, Cancelled(keys.ErrBusy))
}

func TestRenderAccessKeys(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limit := 100
	soon := now.Add(3 * time.Hour).Unix()
	past := now.Add(-time.Hour).Unix()
	rows := []models.AccessKey{
		{Key: "sk-1", Name: "ci", UsageLimit: &limit, UsageCount: 4, ResetDaily: true, IsActive: true, ExpiresAt: &soon},
		{Key: "sk-2", Name: "old", ExpiresAt: &past},
	}
	var buf bytes.Buffer
	require.NoError(t, RenderAccessKeys(&buf, "STATUS", rows, now))
	out := buf.String()
	assert.Contains(t, out, "4 / 100")
	assert.Contains(t, out, "in 3h")
	assert.Contains(t, out, "daily")
	assert.Contains(t, out, "0 / unlimited")
	assert.Contains(t, out, "expired")
	assert.Contains(t, out, "inactive")
}

func TestRenderQuota(t *testing.T) {
	var buf bytes.Buffer
	q := &media.Quota{StorageType: "local", Shown: true, Details: models.StorageDetails{TotalImages: 5, MaxImages: 10, TotalSizeMB: 1, MaxSizeMB: 4}}
	require.NoError(t, RenderQuota(&buf, q))
	assert.Contains(t, buf.String(), "50%")
	assert.Contains(t, buf.String(), "25%")

	buf.Reset()
	require.NoError(t, RenderQuota(&buf, &media.Quota{StorageType: "s3"}))
	assert.Contains(t, buf.String(), "only available")
}
