package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"gemini-console/internal/models"

	"github.com/tidwall/gjson"
)

// CheckGeminiKey asks the backend whether the key is currently accepted upstream.
func (c *Client) CheckGeminiKey(ctx context.Context, key string) (models.KeyCheckResult, error) {
	return c.check(ctx, "/admin/check_gemini_key", map[string]string{"key": key})
}

// CheckGeminiKeyReal runs a real generation against the named model.
func (c *Client) CheckGeminiKeyReal(ctx context.Context, key, model string) (models.KeyCheckResult, error) {
	return c.check(ctx, "/admin/check_gemini_key_real", map[string]string{"key": key, "model": model})
}

func (c *Client) check(ctx context.Context, path string, body map[string]string) (models.KeyCheckResult, error) {
	var result models.KeyCheckResult
	raw, err := c.do(ctx, http.MethodPost, path, nil, body)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return result, fmt.Errorf("failed to decode check result: %w", err)
	}
	return result, nil
}

// AccessKeys lists access keys in server document order.
func (c *Client) AccessKeys(ctx context.Context) ([]models.AccessKey, error) {
	body, err := c.get(ctx, "/admin/keys", nil)
	if err != nil {
		return nil, err
	}

	keys := make([]models.AccessKey, 0)
	var decodeErr error
	gjson.ParseBytes(body).ForEach(func(id, raw gjson.Result) bool {
		var k models.AccessKey
		if err := json.Unmarshal([]byte(raw.Raw), &k); err != nil {
			decodeErr = fmt.Errorf("failed to decode access key %q: %w", id.String(), err)
			return false
		}
		if k.Key == "" {
			k.Key = id.String()
		}
		keys = append(keys, k)
		return true
	})
	if decodeErr != nil {
		return nil, decodeErr
	}
	return keys, nil
}

func (c *Client) CreateAccessKey(ctx context.Context, k models.AccessKey) (*MessageResult, error) {
	return c.send(ctx, http.MethodPost, "/admin/keys", nil, k)
}

func (c *Client) UpdateAccessKey(ctx context.Context, k models.AccessKey) (*MessageResult, error) {
	return c.send(ctx, http.MethodPut, "/admin/keys/"+url.PathEscape(k.Key), nil, k)
}

func (c *Client) DeleteAccessKey(ctx context.Context, key string) (*MessageResult, error) {
	return c.send(ctx, http.MethodDelete, "/admin/keys/"+url.PathEscape(key), nil, nil)
}
