package mappings

import (
	"context"
	"testing"

	"gemini-console/internal/adminfake"
	"gemini-console/internal/api"
	"gemini-console/internal/dialog"
	"gemini-console/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, answers ...dialog.Answer) (*Manager, *adminfake.Server, *dialog.ScriptedPresenter) {
	t.Helper()
	srv := adminfake.New()
	t.Cleanup(srv.Close)
	srv.Mappings = []models.APIMapping{
		{Prefix: "/openai", TargetURL: "https://api.openai.com"},
		{Prefix: "/claude/v1", TargetURL: "https://api.anthropic.com"},
	}
	dialogs := dialog.New()
	presenter := dialog.NewScripted(answers...)
	t.Cleanup(dialog.Start(context.Background(), dialogs, presenter))
	client := api.New(api.Options{BaseURL: srv.URL()}, &adminfake.StaticTokens{Value: adminfake.Token})
	return NewManager(client, dialogs), srv, presenter
}

func TestListKeepsServerOrder(t *testing.T) {
	m, _, _ := newTestManager(t)
	rows, err := m.List(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "/openai", rows[0].Prefix)
	assert.Equal(t, "/claude/v1", rows[1].Prefix)
}

func TestAddNormalisesPrefix(t *testing.T) {
	m, srv, _ := newTestManager(t, dialog.With(dialog.MappingInput{Prefix: "xai", TargetURL: "https://api.x.ai"}))
	res, err := m.Add(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "mapping added", res.Message)
	assert.Equal(t, models.APIMapping{Prefix: "/xai", TargetURL: "https://api.x.ai"}, srv.Mappings[2])
	assert.Len(t, m.Rows(), 3)
}

func TestAddRejectsDuplicatePrefix(t *testing.T) {
	m, srv, _ := newTestManager(t)
	_, err := m.Create(context.Background(), models.APIMapping{Prefix: "openai", TargetURL: "https://other"})
	assert.ErrorIs(t, err, ErrDuplicatePrefix)
	assert.Zero(t, srv.RequestCount("POST /admin/api_mappings"))
}

func TestAddFormStaysOpenUntilValid(t *testing.T) {
	m, _, presenter := newTestManager(t,
		dialog.With(dialog.MappingInput{Prefix: "/g"}),
		dialog.With(dialog.MappingInput{Prefix: "/g", TargetURL: "https://g"}),
	)
	_, err := m.Add(context.Background())
	require.NoError(t, err)
	require.Len(t, presenter.Errors(), 1)
	assert.ErrorIs(t, presenter.Errors()[0], dialog.ErrMappingRequired)
}

func TestEditSendsOldAndNewPrefix(t *testing.T) {
	m, srv, presenter := newTestManager(t, dialog.With(dialog.MappingInput{Prefix: "/oai", TargetURL: "https://api.openai.com/v1"}))
	_, err := m.Edit(context.Background(), "openai")
	require.NoError(t, err)

	assert.Equal(t, dialog.MappingInput{Prefix: "/openai", TargetURL: "https://api.openai.com"}, presenter.Requests()[0].Mapping)
	assert.Equal(t, models.APIMapping{Prefix: "/oai", TargetURL: "https://api.openai.com/v1"}, srv.Mappings[0])
}

func TestEditIntoExistingPrefix(t *testing.T) {
	m, srv, _ := newTestManager(t)
	_, err := m.Update(context.Background(), "/openai", models.APIMapping{Prefix: "/claude/v1", TargetURL: "x"})
	assert.ErrorIs(t, err, ErrDuplicatePrefix)
	assert.Zero(t, srv.RequestCount("PUT /admin/api_mappings"))

	_, err = m.Update(context.Background(), "/missing", models.APIMapping{Prefix: "/m", TargetURL: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteEscapesPrefix(t *testing.T) {
	m, srv, _ := newTestManager(t, dialog.Yes(), dialog.No())
	ctx := context.Background()

	_, err := m.Delete(ctx, "/claude/v1")
	require.NoError(t, err)
	require.Len(t, srv.Mappings, 1)
	assert.Equal(t, "/openai", srv.Mappings[0].Prefix)
	assert.Equal(t, "/admin/api_mappings/claude%2Fv1", api.MappingPath("/claude/v1"))

	_, err = m.Delete(ctx, "/openai")
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Len(t, srv.Mappings, 1)
}
