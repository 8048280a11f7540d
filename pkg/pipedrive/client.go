// Package pipedrive reads and updates CRM deals and maps their hash-keyed
// custom fields to named, typed values.
package pipedrive

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"ledger_bridge/pkg/apperr"

	"github.com/go-resty/resty/v2"
)

const dealFieldsPageSize = 500

// Client is a CRM API client authenticated with an API token.
type Client struct {
	resty *resty.Client
}

func NewClient(baseURL, apiToken string, timeout time.Duration) *Client {
	r := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetQueryParam("api_token", apiToken).
		SetHeader("Accept", "application/json")
	if timeout > 0 {
		r.SetTimeout(timeout)
	}
	return &Client{resty: r}
}

func decode[T any](op string, resp *resty.Response, err error) (*envelope[T], error) {
	if err != nil {
		return nil, &apperr.UpstreamError{Op: op, Err: err}
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, &apperr.UpstreamError{Op: op, Status: resp.StatusCode(), Body: resp.String()}
	}

	var env envelope[T]
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", op, err)
	}
	if !env.Success {
		return nil, &apperr.UpstreamError{Op: op, Status: resp.StatusCode(), Body: resp.String()}
	}
	return &env, nil
}

// GetDeal fetches one deal including its custom fields.
func (c *Client) GetDeal(ctx context.Context, dealID int64) (Deal, error) {
	op := fmt.Sprintf("get deal %d", dealID)
	resp, err := c.resty.R().
		SetContext(ctx).
		SetPathParam("id", strconv.FormatInt(dealID, 10)).
		Get("/v1/deals/{id}")
	env, err := decode[Deal](op, resp, err)
	if err != nil {
		return nil, err
	}
	if env.Data == nil {
		return nil, fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
	}
	return env.Data, nil
}

// UpdateDealField sets a single field on a deal.
func (c *Client) UpdateDealField(ctx context.Context, dealID int64, key string, value interface{}) error {
	op := fmt.Sprintf("update deal %d field %s", dealID, key)
	resp, err := c.resty.R().
		SetContext(ctx).
		SetPathParam("id", strconv.FormatInt(dealID, 10)).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]interface{}{key: value}).
		Put("/v1/deals/{id}")
	_, err = decode[Deal](op, resp, err)
	return err
}

// ListDealFields returns every deal field definition, following pagination.
func (c *Client) ListDealFields(ctx context.Context) ([]FieldDefinition, error) {
	var defs []FieldDefinition
	start := 0

	for {
		resp, err := c.resty.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"start": strconv.Itoa(start),
				"limit": strconv.Itoa(dealFieldsPageSize),
			}).
			Get("/v1/dealFields")
		env, err := decode[[]dealField]("list deal fields", resp, err)
		if err != nil {
			return nil, err
		}

		for _, f := range env.Data {
			defs = append(defs, f.definition())
		}

		page := env.AdditionalData.Pagination
		if !page.MoreItemsInCollection || page.NextStart <= start {
			break
		}
		start = page.NextStart
	}

	return defs, nil
}

func (f dealField) definition() FieldDefinition {
	var options []Option
	for _, o := range f.Options {
		options = append(options, Option{ID: stringValue(o.ID), Label: o.Label})
	}
	return FieldDefinition{
		Key:    f.Key,
		Name:   f.Name,
		Type:   ParseFieldType(f.FieldType, options),
		Custom: f.EditFlag,
	}
}
