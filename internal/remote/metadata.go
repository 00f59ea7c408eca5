package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
)

// NumericValueTypes are the value types bounds and counts are computed for.
var NumericValueTypes = []string{
	"INTEGER",
	"INTEGER_POSITIVE",
	"INTEGER_NEGATIVE",
	"INTEGER_ZERO_OR_POSITIVE",
	"NUMBER",
	"PERCENTAGE",
	"UNIT_INTERVAL",
}

// IsNumeric reports whether valueType is one of NumericValueTypes.
func IsNumeric(valueType string) bool {
	return slices.Contains(NumericValueTypes, valueType)
}

// Ref is an identifier-only object reference.
type Ref struct {
	ID string `json:"id"`
}

// DataElement is the subset of data element metadata the pipeline needs.
type DataElement struct {
	ID        string `json:"id"`
	Code      string `json:"code,omitempty"`
	ValueType string `json:"valueType"`
}

// DataSetElement links a data element to the category combo used in a dataset.
type DataSetElement struct {
	DataElement   DataElement `json:"dataElement"`
	CategoryCombo struct {
		CategoryOptionCombos []Ref `json:"categoryOptionCombos"`
	} `json:"categoryCombo"`
}

// DataSet is the dataset structure used for loading and imputation.
type DataSet struct {
	ID                string           `json:"id"`
	Name              string           `json:"name"`
	PeriodType        string           `json:"periodType"`
	OrganisationUnits []Ref            `json:"organisationUnits"`
	DataSetElements   []DataSetElement `json:"dataSetElements"`
}

// OrgUnitIDs returns the ids of the dataset's assigned org units.
func (d *DataSet) OrgUnitIDs() []string {
	out := make([]string, 0, len(d.OrganisationUnits))
	for _, ou := range d.OrganisationUnits {
		out = append(out, ou.ID)
	}
	return out
}

// NumericElements returns the dataset elements with a numeric value type.
func (d *DataSet) NumericElements() []DataSetElement {
	var out []DataSetElement
	for _, dse := range d.DataSetElements {
		if IsNumeric(dse.DataElement.ValueType) {
			out = append(out, dse)
		}
	}
	return out
}

const dataSetFields = "id,name,periodType,organisationUnits[id]," +
	"dataSetElements[dataElement[id,valueType],categoryCombo[categoryOptionCombos[id]]]"

// DataSet fetches the structure of dataset id.
func (c *Client) DataSet(ctx context.Context, id string) (*DataSet, error) {
	var ds DataSet
	path := "/api/dataSets/" + url.PathEscape(id)
	if err := c.getJSON(ctx, path, url.Values{"fields": {dataSetFields}}, &ds); err != nil {
		return nil, fmt.Errorf("remote: dataset %s: %w", id, err)
	}
	return &ds, nil
}

// OrgUnitGroupMembers returns the org unit ids in group id.
func (c *Client) OrgUnitGroupMembers(ctx context.Context, id string) ([]string, error) {
	var grp struct {
		OrganisationUnits []Ref `json:"organisationUnits"`
	}
	path := "/api/organisationUnitGroups/" + url.PathEscape(id)
	if err := c.getJSON(ctx, path, url.Values{"fields": {"organisationUnits[id]"}}, &grp); err != nil {
		return nil, fmt.Errorf("remote: org unit group %s: %w", id, err)
	}
	out := make([]string, 0, len(grp.OrganisationUnits))
	for _, ou := range grp.OrganisationUnits {
		out = append(out, ou.ID)
	}
	return out, nil
}

// DataElementGroupMembers returns the data elements in group id.
func (c *Client) DataElementGroupMembers(ctx context.Context, id string) ([]DataElement, error) {
	var grp struct {
		DataElements []DataElement `json:"dataElements"`
	}
	path := "/api/dataElementGroups/" + url.PathEscape(id)
	if err := c.getJSON(ctx, path, url.Values{"fields": {"dataElements[id,code,valueType]"}}, &grp); err != nil {
		return nil, fmt.Errorf("remote: data element group %s: %w", id, err)
	}
	return grp.DataElements, nil
}

// OrgUnitsAtLevel returns the ids of every org unit at hierarchy level.
func (c *Client) OrgUnitsAtLevel(ctx context.Context, level int) ([]string, error) {
	var resp struct {
		OrganisationUnits []Ref `json:"organisationUnits"`
	}
	q := url.Values{
		"filter": {"level:eq:" + strconv.Itoa(level)},
		"fields": {"id"},
		"paging": {"false"},
	}
	if err := c.getJSON(ctx, "/api/organisationUnits", q, &resp); err != nil {
		return nil, fmt.Errorf("remote: org units at level %d: %w", level, err)
	}
	out := make([]string, 0, len(resp.OrganisationUnits))
	for _, ou := range resp.OrganisationUnits {
		out = append(out, ou.ID)
	}
	return out, nil
}

// Authorities returns the authorities held by the authenticated account.
func (c *Client) Authorities(ctx context.Context) ([]string, error) {
	var me struct {
		Authorities []string `json:"authorities"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/api/me", url.Values{"fields": {"authorities"}}, nil, &me); err != nil {
		return nil, fmt.Errorf("remote: me: %w", err)
	}
	return me.Authorities, nil
}
