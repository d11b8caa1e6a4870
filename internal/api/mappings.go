package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"gemini-console/internal/models"

	"github.com/tidwall/gjson"
)

func (c *Client) APIMappings(ctx context.Context) ([]models.APIMapping, error) {
	body, err := c.get(ctx, "/admin/api_mappings", nil)
	if err != nil {
		return nil, err
	}

	mappings := make([]models.APIMapping, 0)
	gjson.ParseBytes(body).ForEach(func(prefix, target gjson.Result) bool {
		mappings = append(mappings, models.APIMapping{Prefix: prefix.String(), TargetURL: target.String()})
		return true
	})
	return mappings, nil
}

func (c *Client) CreateAPIMapping(ctx context.Context, m models.APIMapping) (*MessageResult, error) {
	return c.send(ctx, http.MethodPost, "/admin/api_mappings", nil, m)
}

func (c *Client) UpdateAPIMapping(ctx context.Context, oldPrefix string, m models.APIMapping) (*MessageResult, error) {
	return c.send(ctx, http.MethodPut, "/admin/api_mappings", nil, map[string]string{
		"old_prefix": oldPrefix,
		"new_prefix": m.Prefix,
		"target_url": m.TargetURL,
	})
}

// DeleteAPIMapping addresses the mapping by its prefix without the leading "/".
func (c *Client) DeleteAPIMapping(ctx context.Context, prefix string) (*MessageResult, error) {
	return c.send(ctx, http.MethodDelete, MappingPath(prefix), nil, nil)
}

func MappingPath(prefix string) string {
	return "/admin/api_mappings/" + url.PathEscape(strings.TrimPrefix(prefix, "/"))
}
