package api

import (
	"context"
	"fmt"
	"net/http"

	"gemini-console/internal/models"

	"github.com/tidwall/gjson"
)

// Env fetches the settings schema. Category and key order follow the
// server's document order.
func (c *Client) Env(ctx context.Context) (models.Schema, error) {
	body, err := c.get(ctx, "/admin/env", nil)
	if err != nil {
		return nil, err
	}
	return ParseSchema(body)
}

func ParseSchema(body []byte) (models.Schema, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid settings schema: not JSON")
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, fmt.Errorf("invalid settings schema: expected an object")
	}

	var schema models.Schema
	root.ForEach(func(name, group gjson.Result) bool {
		category := models.Category{Name: name.String()}
		group.ForEach(func(key, raw gjson.Result) bool {
			category.Settings = append(category.Settings, parseSetting(key.String(), raw))
			return true
		})
		schema = append(schema, category)
		return true
	})
	return schema, nil
}

func parseSetting(key string, raw gjson.Result) models.Setting {
	s := models.Setting{
		Key:         key,
		Label:       raw.Get("label").String(),
		Type:        raw.Get("type").String(),
		Value:       raw.Get("value").String(),
		Description: raw.Get("description").String(),
	}
	if s.Label == "" {
		s.Label = key
	}
	if s.Type == "" {
		s.Type = "text"
	}
	for _, opt := range raw.Get("options").Array() {
		if opt.Type == gjson.String {
			s.Options = append(s.Options, models.SettingOption{Value: opt.String()})
			continue
		}
		s.Options = append(s.Options, models.SettingOption{
			Value:       opt.Get("value").String(),
			Description: opt.Get("description").String(),
		})
	}
	return s
}

// Update persists settings. The backend authorises the change with the
// admin password carried in the same body.
func (c *Client) Update(ctx context.Context, fields map[string]string, password string) (*MessageResult, error) {
	body := make(map[string]string, len(fields)+1)
	for k, v := range fields {
		body[k] = v
	}
	body["password"] = password
	return c.send(ctx, http.MethodPost, "/admin/update", nil, body)
}
