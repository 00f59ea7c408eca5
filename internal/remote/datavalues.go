package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dqworkbench/dqsync/internal/period"
)

// DataValue is one value as exchanged through /api/dataValueSets.
type DataValue struct {
	DataElement          string `json:"dataElement"`
	Period               string `json:"period"`
	OrgUnit              string `json:"orgUnit"`
	CategoryOptionCombo  string `json:"categoryOptionCombo,omitempty"`
	AttributeOptionCombo string `json:"attributeOptionCombo,omitempty"`
	Value                string `json:"value"`
}

// DataValueQuery selects values to fetch. Either DataSet or DataElements is
// normally set.
type DataValueQuery struct {
	DataSet      string
	DataElements []string
	OrgUnit      string
	Start, End  time.Time
	Children    bool
}

func (q DataValueQuery) values() url.Values {
	v := url.Values{}
	if q.DataSet != "" {
		v.Set("dataSet", q.DataSet)
	}
	for _, de := range q.DataElements {
		v.Add("dataElement", de)
	}
	v.Set("orgUnit", q.OrgUnit)
	v.Set("startDate", q.Start.Format(period.DateLayout))
	v.Set("endDate", q.End.Format(period.DateLayout))
	v.Set("children", strconv.FormatBool(q.Children))
	return v
}

// DataValues fetches the values matching q.
func (c *Client) DataValues(ctx context.Context, q DataValueQuery) ([]DataValue, error) {
	var resp struct {
		DataValues []DataValue `json:"dataValues"`
	}
	if err := c.getJSON(ctx, "/api/dataValueSets", q.values(), &resp); err != nil {
		return nil, fmt.Errorf("remote: data values for %s: %w", q.OrgUnit, err)
	}
	return resp.DataValues, nil
}

// ImportStrategy selects how posted values are applied.
type ImportStrategy string

const (
	StrategyCreateAndUpdate ImportStrategy = "CREATE_AND_UPDATE"
	StrategyDelete          ImportStrategy = "DELETE"
)

// ImportCount is the per-outcome tally in an import summary.
type ImportCount struct {
	Imported int `json:"imported"`
	Updated  int `json:"updated"`
	Ignored  int `json:"ignored"`
	Deleted  int `json:"deleted"`
}

type importSummary struct {
	Status      string       `json:"status"`
	ImportCount *ImportCount `json:"importCount"`
	Response    *struct {
		Status      string       `json:"status"`
		ImportCount *ImportCount `json:"importCount"`
	} `json:"response"`
}

func (s importSummary) count() ImportCount {
	switch {
	case s.Response != nil && s.Response.ImportCount != nil:
		return *s.Response.ImportCount
	case s.ImportCount != nil:
		return *s.ImportCount
	}
	return ImportCount{}
}

// PostDataValues posts values with the given import strategy and returns
// the platform's import count. Older platforms return the summary at the top
// level; newer ones wrap it in a "response" object. Both are accepted.
func (c *Client) PostDataValues(ctx context.Context, values []DataValue, strategy ImportStrategy) (ImportCount, error) {
	body := struct {
		DataValues []DataValue `json:"dataValues"`
	}{DataValues: values}
	q := url.Values{"importStrategy": {string(strategy)}}

	var sum importSummary
	if _, err := c.do(ctx, http.MethodPost, "/api/dataValueSets", q, body, &sum); err != nil {
		return ImportCount{}, fmt.Errorf("remote: post data values: %w", err)
	}
	return sum.count(), nil
}
