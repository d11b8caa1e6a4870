package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"gemini-console/internal/models"
)

func (c *Client) Media(ctx context.Context, storageType string, page, pageSize int) (*models.MediaPage, error) {
	query := url.Values{}
	query.Set("storage_type", storageType)
	query.Set("page", strconv.Itoa(page))
	query.Set("page_size", strconv.Itoa(pageSize))

	body, err := c.get(ctx, "/admin/media", query)
	if err != nil {
		return nil, err
	}

	var result models.MediaPage
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode media page: %w", err)
	}
	if result.Files == nil {
		result.Files = []models.MediaFile{}
	}
	if result.Page == 0 {
		result.Page = page
	}
	if result.PageSize == 0 {
		result.PageSize = pageSize
	}
	return &result, nil
}

// DeleteMedia removes the named files; the body is a bare JSON array.
func (c *Client) DeleteMedia(ctx context.Context, storageType string, filenames []string) (*MessageResult, error) {
	query := url.Values{}
	query.Set("storage_type", storageType)
	return c.send(ctx, http.MethodDelete, "/admin/media", query, filenames)
}

func (c *Client) StorageDetails(ctx context.Context, storageType string) (*models.StorageDetails, error) {
	query := url.Values{}
	query.Set("storage_type", storageType)

	body, err := c.get(ctx, "/admin/storage_details", query)
	if err != nil {
		return nil, err
	}

	var details models.StorageDetails
	if err := json.Unmarshal(body, &details); err != nil {
		return nil, fmt.Errorf("failed to decode storage details: %w", err)
	}
	return &details, nil
}
