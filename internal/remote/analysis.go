package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dqworkbench/dqsync/internal/period"
)

// ValidationRuleRequest is the body of a validation rule analysis.
type ValidationRuleRequest struct {
	OrgUnit      string `json:"ou"`
	StartDate    string `json:"startDate"`
	EndDate      string `json:"endDate"`
	Group        string `json:"vrg"`
	MaxResults   int    `json:"maxResults"`
	Notification bool   `json:"notification"`
	Persist      bool   `json:"persist"`
}

// Violation is one validation rule violation.
type Violation struct {
	ValidationRuleID   string `json:"validationRuleId"`
	OrganisationUnitID string `json:"organisationUnitId"`
	PeriodID           string `json:"periodId"`
}

// ValidationRuleAnalysis runs a validation rule group over an org unit
// subtree and returns the violations found.
func (c *Client) ValidationRuleAnalysis(ctx context.Context, req ValidationRuleRequest) ([]Violation, error) {
	var out []Violation
	if _, err := c.do(ctx, http.MethodPost, "/api/dataAnalysis/validationRules", nil, req, &out); err != nil {
		return nil, fmt.Errorf("remote: validation rule analysis %s/%s: %w", req.OrgUnit, req.Group, err)
	}
	return out, nil
}

// OutlierQuery selects an outlier detection run.
type OutlierQuery struct {
	DataSets   []string
	OrgUnit    string
	Start, End time.Time
	Algorithm  string
	Threshold  float64
	MaxResults int
	OrderBy    string
	SortOrder  string
}

// Outlier is one detected outlier value.
type Outlier struct {
	DataElement          string  `json:"de"`
	Period               string  `json:"pe"`
	OrgUnit              string  `json:"ou"`
	CategoryOptionCombo  string  `json:"coc"`
	AttributeOptionCombo string  `json:"aoc"`
	Value                float64 `json:"value"`
}

// Outliers runs outlier detection for one org unit subtree.
func (c *Client) Outliers(ctx context.Context, q OutlierQuery) ([]Outlier, error) {
	v := url.Values{
		"ds":         {strings.Join(q.DataSets, ",")},
		"ou":         {q.OrgUnit},
		"startDate":  {q.Start.Format(period.DateLayout)},
		"endDate":    {q.End.Format(period.DateLayout)},
		"algorithm":  {q.Algorithm},
		"threshold":  {strconv.FormatFloat(q.Threshold, 'f', -1, 64)},
		"maxResults": {strconv.Itoa(q.MaxResults)},
	}
	if q.OrderBy != "" {
		v.Set("orderBy", q.OrderBy)
	}
	if q.SortOrder != "" {
		v.Set("sortOrder", q.SortOrder)
	}

	var resp struct {
		OutlierValues []Outlier `json:"outlierValues"`
	}
	if err := c.getJSON(ctx, "/api/outlierDetection", v, &resp); err != nil {
		return nil, fmt.Errorf("remote: outlier detection %s: %w", q.OrgUnit, err)
	}
	return resp.OutlierValues, nil
}
