package remote

import (
	"context"
	"fmt"
	"net/http"
)

// MinMaxValue is one bound in the bulk upsert payload.
type MinMaxValue struct {
	DataElement string `json:"dataElement"`
	OrgUnit     string `json:"orgUnit"`
	OptionCombo string `json:"optionCombo"`
	MinValue    int64  `json:"minValue"`
	MaxValue    int64  `json:"maxValue"`
}

// MinMaxBatch is the bulk upsert body for one dataset.
type MinMaxBatch struct {
	DataSet string        `json:"dataSet"`
	Values  []MinMaxValue `json:"values"`
}

// BulkOutcome is the tally returned by the bulk endpoint. Nil fields were
// absent from the response body.
type BulkOutcome struct {
	Successful *int
	Ignored    *int
}

type bulkResponse struct {
	Successful *int `json:"successful"`
	Ignored    *int `json:"ignored"`
	Response   *struct {
		Successful *int `json:"successful"`
		Ignored    *int `json:"ignored"`
	} `json:"response"`
}

// UpsertMinMax posts one batch to the bulk bounds endpoint. Only 200 and 201
// count as success.
func (c *Client) UpsertMinMax(ctx context.Context, batch MinMaxBatch) (BulkOutcome, error) {
	const path = "/api/minMaxDataElements/upsert"
	var resp bulkResponse
	code, err := c.do(ctx, http.MethodPost, path, nil, batch, &resp)
	if err != nil {
		return BulkOutcome{}, err
	}
	if code != http.StatusOK && code != http.StatusCreated {
		return BulkOutcome{}, &StatusError{Method: http.MethodPost, Path: path, Code: code}
	}
	out := BulkOutcome{Successful: resp.Successful, Ignored: resp.Ignored}
	if resp.Response != nil {
		if out.Successful == nil {
			out.Successful = resp.Response.Successful
		}
		if out.Ignored == nil {
			out.Ignored = resp.Response.Ignored
		}
	}
	return out, nil
}

// LegacyMinMaxValue is the single-record body of the legacy endpoint.
type LegacyMinMaxValue struct {
	DataElement         string `json:"dataElement"`
	OrgUnit             string `json:"orgUnit"`
	CategoryOptionCombo string `json:"categoryOptionCombo"`
	MinValue            int64  `json:"minValue"`
	MaxValue            int64  `json:"maxValue"`
}

// PostMinMaxValue posts one bound to the legacy endpoint. Only 200 counts as
// success.
func (c *Client) PostMinMaxValue(ctx context.Context, v LegacyMinMaxValue) error {
	const path = "/api/dataEntry/minMaxValues"
	code, err := c.do(ctx, http.MethodPost, path, nil, v, nil)
	if err != nil {
		return fmt.Errorf("remote: legacy min/max: %w", err)
	}
	if code != http.StatusOK {
		return fmt.Errorf("remote: legacy min/max: %w", &StatusError{Method: http.MethodPost, Path: path, Code: code})
	}
	return nil
}
