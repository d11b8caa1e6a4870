package accesskeys

import (
	"context"
	"strings"
	"testing"
	"time"

	"gemini-console/internal/adminfake"
	"gemini-console/internal/api"
	"gemini-console/internal/dialog"
	"gemini-console/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }

func newTestManager(t *testing.T, answers ...dialog.Answer) (*Manager, *adminfake.Server, *dialog.ScriptedPresenter) {
	t.Helper()
	srv := adminfake.New()
	t.Cleanup(srv.Close)
	srv.AccessKeys = []models.AccessKey{
		{Key: "sk-old", Name: "ci", UsageLimit: intPtr(100), UsageCount: 42, IsActive: true, ResetDaily: true},
		{Key: "sk-mid", Name: "bot", UsageCount: 7, IsActive: false},
		{Key: "sk-new", Name: "web", UsageCount: 3, ExpiresAt: int64Ptr(fixedNow.Add(5 * time.Hour).Unix()), IsActive: true},
	}

	dialogs := dialog.New()
	presenter := dialog.NewScripted(answers...)
	t.Cleanup(dialog.Start(context.Background(), dialogs, presenter))

	m := NewManager(api.New(api.Options{BaseURL: srv.URL()}, &adminfake.StaticTokens{Value: adminfake.Token}), dialogs)
	m.now = func() time.Time { return fixedNow }
	m.newKey = func() string { return "sk-generated" }
	return m, srv, presenter
}

func names(keys []models.AccessKey) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.Name
	}
	return out
}

func TestListNewestFirst(t *testing.T) {
	m, _, _ := newTestManager(t)
	rows, err := m.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"web", "bot", "ci"}, names(rows))
}

func TestFilterCycle(t *testing.T) {
	m, srv, _ := newTestManager(t)
	_, err := m.List(context.Background())
	require.NoError(t, err)
	initialHeader := m.Header()
	requests := srv.RequestCount("GET /admin/keys")

	assert.Equal(t, FilterActive, m.CycleFilter())
	assert.Equal(t, []string{"web", "ci"}, names(m.Visible()))
	assert.Equal(t, "STATUS (active)", m.Header())

	assert.Equal(t, FilterInactive, m.CycleFilter())
	assert.Equal(t, []string{"bot"}, names(m.Visible()))

	assert.Equal(t, FilterAll, m.CycleFilter())
	assert.Len(t, m.Visible(), 3)
	assert.Equal(t, initialHeader, m.Header())

	assert.Equal(t, requests, srv.RequestCount("GET /admin/keys"), "filtering never refetches")
}

func TestAddUnlimitedForcesNoDailyReset(t *testing.T) {
	m, srv, _ := newTestManager(t, dialog.With(dialog.AccessKeyInput{Name: "mobile", ResetDaily: true, ExpiresInHours: "2"}))

	created, err := m.Add(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sk-generated", created.Key)
	assert.False(t, created.ResetDaily)
	assert.Nil(t, created.UsageLimit)
	assert.True(t, created.IsActive)
	assert.Zero(t, created.UsageCount)
	require.NotNil(t, created.ExpiresAt)
	assert.Equal(t, fixedNow.Add(2*time.Hour).Unix(), *created.ExpiresAt)

	stored := srv.AccessKeys[len(srv.AccessKeys)-1]
	assert.Equal(t, "mobile", stored.Name)
	assert.False(t, stored.ResetDaily)
	assert.Equal(t, "mobile", m.Rows()[0].Name, "list reloaded with the new key on top")
}

func TestCreateIgnoresResetDailyWithoutLimit(t *testing.T) {
	m, _, _ := newTestManager(t)
	created, err := m.Create(context.Background(), dialog.AccessKeyForm{Name: "raw", ResetDaily: true})
	require.NoError(t, err)
	assert.False(t, created.ResetDaily)
}

func TestAddRejectsDuplicateNameBeforeRequest(t *testing.T) {
	m, srv, _ := newTestManager(t, dialog.With(dialog.AccessKeyInput{Name: "bot"}))

	_, err := m.Add(context.Background())
	assert.ErrorIs(t, err, ErrDuplicateName)
	assert.Zero(t, srv.RequestCount("POST /admin/keys"))

	// Case matters.
	_, err = m.Create(context.Background(), dialog.AccessKeyForm{Name: "BOT"})
	assert.NoError(t, err)
}

func TestAddCancelled(t *testing.T) {
	m, srv, _ := newTestManager(t, dialog.Dismiss())
	_, err := m.Add(context.Background())
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Zero(t, srv.RequestCount("POST /admin/keys"))
}

func TestEditKeepsUsageCount(t *testing.T) {
	m, srv, presenter := newTestManager(t, dialog.With(dialog.AccessKeyInput{
		Name: "web-2", UsageLimit: "10", ResetDaily: true, ExpiresInHours: "1", IsActive: false,
	}))

	updated, err := m.Edit(context.Background(), "sk-new")
	require.NoError(t, err)
	assert.Equal(t, 3, updated.UsageCount)
	assert.False(t, updated.IsActive)
	assert.True(t, updated.ResetDaily)

	reqs := presenter.Requests()
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].Editing)
	assert.Equal(t, "web", reqs[0].AccessKey.Name)
	assert.Equal(t, "5", reqs[0].AccessKey.ExpiresInHours)
	assert.True(t, reqs[0].AccessKey.IsActive)

	stored := srv.AccessKeys[2]
	assert.Equal(t, "sk-new", stored.Key)
	assert.Equal(t, "web-2", stored.Name)
	assert.Equal(t, 3, stored.UsageCount)
	assert.Equal(t, fixedNow.Add(time.Hour).Unix(), *stored.ExpiresAt)
	assert.Equal(t, 1, srv.RequestCount("PUT /admin/keys/sk-new"))
}

func TestEditNearExpiryKeepsItsDefaults(t *testing.T) {
	soon := fixedNow.Add(20 * time.Minute).Unix()
	m, srv, presenter := newTestManager(t, dialog.With(dialog.AccessKeyInput{Name: "web-renamed", ExpiresInHours: "0", IsActive: true}))
	srv.AccessKeys[2].ExpiresAt = int64Ptr(soon)

	_, err := m.Edit(context.Background(), "sk-new")
	require.NoError(t, err)
	assert.Equal(t, "0", presenter.Requests()[0].AccessKey.ExpiresInHours)
	assert.Empty(t, presenter.Errors())

	stored := srv.AccessKeys[2]
	assert.Equal(t, "web-renamed", stored.Name)
	require.NotNil(t, stored.ExpiresAt)
	assert.Equal(t, soon, *stored.ExpiresAt)
}

func TestUpdateExpiredKeyWithShownDefaults(t *testing.T) {
	expired := fixedNow.Add(-3 * time.Hour).Unix()
	m, srv, _ := newTestManager(t)
	srv.AccessKeys[2].ExpiresAt = int64Ptr(expired)

	form, err := dialog.ParseAccessKey(dialog.AccessKeyInput{
		Name:           "web-2",
		ExpiresInHours: HoursRemaining(fixedNow, &expired),
		IsActive:       true,
	}, true)
	require.NoError(t, err)

	_, err = m.Update(context.Background(), "sk-new", form)
	require.NoError(t, err)
	require.NotNil(t, srv.AccessKeys[2].ExpiresAt)
	assert.Equal(t, expired, *srv.AccessKeys[2].ExpiresAt)
}

func TestEditShowsLimitAndAllowsOwnName(t *testing.T) {
	m, _, presenter := newTestManager(t, dialog.With(dialog.AccessKeyInput{Name: "ci", UsageLimit: "100", ResetDaily: true, IsActive: true}))
	_, err := m.Edit(context.Background(), "sk-old")
	require.NoError(t, err)
	assert.Equal(t, "100", presenter.Requests()[0].AccessKey.UsageLimit)
}

func TestEditRejectsOtherKeysName(t *testing.T) {
	m, srv, _ := newTestManager(t, dialog.With(dialog.AccessKeyInput{Name: "bot", IsActive: true}))
	_, err := m.Edit(context.Background(), "sk-old")
	assert.ErrorIs(t, err, ErrDuplicateName)
	assert.Zero(t, srv.RequestCount("PUT /admin/keys/sk-old"))
}

func TestEditMissingKey(t *testing.T) {
	m, _, presenter := newTestManager(t)
	_, err := m.Edit(context.Background(), "sk-nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, presenter.Requests())
}

func TestDeleteRemovesExactlyOne(t *testing.T) {
	m, srv, _ := newTestManager(t, dialog.Yes(), dialog.No())
	ctx := context.Background()

	require.NoError(t, m.Delete(ctx, "sk-mid"))
	require.Len(t, srv.AccessKeys, 2)
	assert.Equal(t, "sk-old", srv.AccessKeys[0].Key)
	assert.Equal(t, 42, srv.AccessKeys[0].UsageCount)
	assert.Equal(t, "sk-new", srv.AccessKeys[1].Key)
	assert.Equal(t, 3, srv.AccessKeys[1].UsageCount)
	assert.Equal(t, []string{"web", "ci"}, names(m.Rows()))

	assert.ErrorIs(t, m.Delete(ctx, "sk-old"), ErrCancelled)
	assert.Len(t, srv.AccessKeys, 2)
}

func TestDeleteUnknownShowsServerDetail(t *testing.T) {
	m, _, _ := newTestManager(t, dialog.Yes())
	err := m.Delete(context.Background(), "sk-nope")
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "access key not found", apiErr.Detail)
}

func TestGenerateKey(t *testing.T) {
	k := GenerateKey("")
	assert.True(t, strings.HasPrefix(k, "sk-"))
	assert.Len(t, k, 3+32)
	assert.NotContains(t, k[3:], "-")
	assert.NotEqual(t, k, GenerateKey(""))
}

func TestHoursRemaining(t *testing.T) {
	assert.Equal(t, "", HoursRemaining(fixedNow, nil))
	assert.Equal(t, "2", HoursRemaining(fixedNow, int64Ptr(fixedNow.Add(150*time.Minute).Unix()-1)))
	assert.Equal(t, "0", HoursRemaining(fixedNow, int64Ptr(fixedNow.Add(-3*time.Hour).Unix())))

	hours := 1.5
	assert.Equal(t, fixedNow.Add(90*time.Minute).Unix(), *ExpiryFromHours(fixedNow, &hours))
	assert.Nil(t, ExpiryFromHours(fixedNow, nil))
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter("Inactive")
	require.NoError(t, err)
	assert.Equal(t, FilterInactive, f)
	_, err = ParseFilter("expired")
	assert.Error(t, err)
}
