package settings

import (
	"context"
	"testing"

	"gemini-console/internal/adminfake"
	"gemini-console/internal/api"
	"gemini-console/internal/dialog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const schemaDoc = `{
	"基础设置": {
		"PORT": {"label": "Port", "type": "text", "value": "7860", "description": "listen port"},
		"ADMIN_PASSWORD": {"label": "Admin password", "type": "password", "value": "secret"},
		"IMAGE_STORAGE": {"label": "Storage", "type": "radio", "value": "local", "description": "ignored for radios",
			"options": [{"value": "local", "description": "disk"}, {"value": "memory"}]}
	},
	"API与访问控制": {
		"GEMINI_API_KEYS": {"label": "Gemini keys", "type": "text", "value": "a,b"},
		"ALLOWED_ORIGINS": {"label": "Origins", "type": "text", "value": "*"}
	}
}`

func newTestForm(t *testing.T, answers ...dialog.Answer) (*Form, *adminfake.Server) {
	t.Helper()
	srv := adminfake.New()
	t.Cleanup(srv.Close)
	srv.Schema = schemaDoc

	client := api.New(api.Options{BaseURL: srv.URL()}, &adminfake.StaticTokens{Value: adminfake.Token})
	dialogs := dialog.New()
	t.Cleanup(dialog.Start(context.Background(), dialogs, dialog.NewScripted(answers...)))

	schema, err := client.Env(context.Background())
	require.NoError(t, err)
	form := NewForm(client, dialogs)
	form.Load(schema)
	return form, srv
}

func TestBuildPanelsInSchemaOrder(t *testing.T) {
	form, _ := newTestForm(t)
	panels := form.Panels()
	require.Len(t, panels, 2)
	assert.Equal(t, "基础设置", panels[0].Name)
	assert.Equal(t, "API与访问控制", panels[1].Name)

	fields := panels[0].Fields
	require.Len(t, fields, 3)
	assert.Equal(t, "PORT", fields[0].Key)
	assert.True(t, fields[0].ShowDescription())
	assert.Equal(t, "password", fields[1].Type)
	assert.Equal(t, "secret", fields[1].Value)

	radio := fields[2]
	assert.True(t, radio.IsRadio())
	assert.False(t, radio.ShowDescription())
	assert.Equal(t, []Option{
		{Value: "local", Description: "disk", Checked: true},
		{Value: "memory"},
	}, radio.Options)
}

func TestSetValidatesRadio(t *testing.T) {
	form, _ := newTestForm(t)

	require.NoError(t, form.Set("基础设置", "IMAGE_STORAGE", "memory"))
	p, err := form.Panel("基础设置")
	require.NoError(t, err)
	assert.False(t, p.Fields[2].Options[0].Checked)
	assert.True(t, p.Fields[2].Options[1].Checked)

	assert.ErrorIs(t, form.Set("基础设置", "IMAGE_STORAGE", "s3"), ErrInvalidOption)
	assert.ErrorIs(t, form.Set("基础设置", "NOPE", "x"), ErrUnknownField)
	assert.ErrorIs(t, form.Set("nope", "PORT", "x"), ErrUnknownCategory)
}

func TestSavePostsWholeCategory(t *testing.T) {
	form, srv := newTestForm(t, dialog.Text(adminfake.Password))
	require.NoError(t, form.Set("基础设置", "PORT", "9000"))

	res, err := form.Save(context.Background(), "基础设置")
	require.NoError(t, err)
	assert.Equal(t, "settings updated", res.Message)
	assert.Equal(t, map[string]string{
		"PORT":           "9000",
		"ADMIN_PASSWORD": "secret",
		"IMAGE_STORAGE":  "local",
		"password":       adminfake.Password,
	}, srv.LastUpdate())
}

func TestSaveCancelled(t *testing.T) {
	form, srv := newTestForm(t, dialog.Dismiss())
	_, err := form.Save(context.Background(), "基础设置")
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Zero(t, srv.RequestCount("POST /admin/update"))
}

func TestSaveWrongPassword(t *testing.T) {
	form, _ := newTestForm(t, dialog.Text("nope"))
	_, err := form.Save(context.Background(), "基础设置")
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "wrong admin password", apiErr.Detail)
}

func TestKeysFieldMirrorsKeyManager(t *testing.T) {
	form, srv := newTestForm(t, dialog.Text(adminfake.Password))
	joined := "b,c"
	form.MirrorKeys(func() string { return joined })

	p, err := form.Panel("API与访问控制")
	require.NoError(t, err)
	assert.Equal(t, "b,c", p.Fields[0].Value)

	_, err = form.Save(context.Background(), "API与访问控制")
	require.NoError(t, err)
	assert.Equal(t, "b,c", srv.LastUpdate()[KeysField])
	assert.Equal(t, []string{"b", "c"}, srv.GeminiKeys)
}

func TestRadioWithoutCheckedOptionIsOmitted(t *testing.T) {
	form, _ := newTestForm(t)
	form.mu.Lock()
	form.panels[0].Fields[2].Value = "gone"
	form.mu.Unlock()

	values, err := form.Values("基础设置")
	require.NoError(t, err)
	assert.NotContains(t, values, "IMAGE_STORAGE")
	assert.Contains(t, values, "PORT")
}
