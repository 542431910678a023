// ABOUTME: CRM source adapter speaking a HubSpot-style v3 REST API
// ABOUTME: One adapter type covers the five mirrored CRM object types
package sync

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/harperreed/corral/db"
	"github.com/harperreed/corral/models"
)

const crmPageLimit = 100

// remote object type paths and the properties fetched for each.
var crmObjectConfig = map[string]struct {
	path       string
	properties []string
}{
	models.ObjectAccounts:      {"companies", []string{"name", "domain", "industry"}},
	models.ObjectContacts:      {"contacts", []string{"firstname", "lastname", "email", "phone", "jobtitle", "associatedcompanyid"}},
	models.ObjectLeads:         {"leads", []string{"name", "email", "phone", "hs_lead_status"}},
	models.ObjectOpportunities: {"deals", []string{"dealname", "dealstage", "amount", "closedate", "associatedcompanyid"}},
	models.ObjectActivities:    {"activities", []string{"hs_activity_type", "hs_timestamp", "subject", "contact_id", "company_id"}},
}

// CRMAdapter pages one CRM object type. Incremental fetches use the search
// endpoint filtered and sorted on hs_lastmodifieddate ascending, so
// records arrive in watermark order — the adapter is cursor-ordered and
// partial runs may advance past what was written.
type CRMAdapter struct {
	client     *apiClient
	objectType string
}

func NewCRMAdapter(baseURL, token, objectType string) (*CRMAdapter, error) {
	if _, ok := crmObjectConfig[objectType]; !ok {
		return nil, fmt.Errorf("unknown CRM object type %q", objectType)
	}
	if baseURL == "" {
		return nil, fmt.Errorf("CRM base URL is required")
	}
	return &CRMAdapter{
		client:     newAPIClient(baseURL, token),
		objectType: objectType,
	}, nil
}

func (a *CRMAdapter) Source() string      { return models.SourceCRM }
func (a *CRMAdapter) ObjectType() string  { return a.objectType }
func (a *CRMAdapter) CursorOrdered() bool { return true }

func (a *CRMAdapter) Fetch(ctx context.Context, mode, watermark string) (Pager, error) {
	pager := &crmPager{
		adapter: a,
		mode:    mode,
		started: time.Now().UTC(),
	}
	if mode != models.ModeFull && watermark != "" {
		since, err := time.Parse(time.RFC3339, watermark)
		if err != nil {
			return nil, fmt.Errorf("bad CRM watermark %q: %w", watermark, err)
		}
		pager.since = &since
	}
	return pager, nil
}

type crmObject struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

type crmPage struct {
	Results []crmObject `json:"results"`
	Paging  *struct {
		Next *struct {
			After string `json:"after"`
		} `json:"next"`
	} `json:"paging"`
}

type crmPager struct {
	adapter   *CRMAdapter
	mode      string
	since     *time.Time
	after     string
	exhausted bool
	lastSeen  time.Time
	started   time.Time
}

func (p *crmPager) Next(ctx context.Context) (*Page, error) {
	if p.exhausted {
		return nil, nil
	}

	config := crmObjectConfig[p.adapter.objectType]
	var response crmPage

	if p.since != nil {
		// Incremental: search filtered on last-modified, ascending.
		body := map[string]any{
			"filterGroups": []map[string]any{{
				"filters": []map[string]any{{
					"propertyName": "hs_lastmodifieddate",
					"operator":     "GT",
					"value":        strconv.FormatInt(p.since.UnixMilli(), 10),
				}},
			}},
			"sorts": []map[string]any{{
				"propertyName": "hs_lastmodifieddate",
				"direction":    "ASCENDING",
			}},
			"properties": config.properties,
			"limit":      crmPageLimit,
		}
		if p.after != "" {
			body["after"] = p.after
		}
		if err := p.adapter.client.postJSON(ctx, "/crm/v3/objects/"+config.path+"/search", body, &response); err != nil {
			return nil, err
		}
	} else {
		query := url.Values{}
		query.Set("limit", strconv.Itoa(crmPageLimit))
		for _, prop := range config.properties {
			query.Add("properties", prop)
		}
		if p.after != "" {
			query.Set("after", p.after)
		}
		if err := p.adapter.client.getJSON(ctx, "/crm/v3/objects/"+config.path, query, &response); err != nil {
			return nil, err
		}
	}

	page := &Page{}
	for _, obj := range response.Results {
		if obj.UpdatedAt.After(p.lastSeen) {
			p.lastSeen = obj.UpdatedAt
		}
		page.Records = append(page.Records, p.adapter.record(obj))
	}

	if response.Paging != nil && response.Paging.Next != nil && response.Paging.Next.After != "" {
		p.after = response.Paging.Next.After
	} else {
		p.exhausted = true
	}

	return page, nil
}

// Watermark trails the newest last-modified seen; an empty window reports
// the fetch start so the next run doesn't re-scan it forever.
func (p *crmPager) Watermark() string {
	if !p.lastSeen.IsZero() {
		return p.lastSeen.UTC().Format(time.RFC3339)
	}
	return p.started.Format(time.RFC3339)
}

func (a *CRMAdapter) record(obj crmObject) Record {
	if obj.ID == "" {
		return Record{Invalid: fmt.Errorf("CRM %s object without id", a.objectType)}
	}

	switch a.objectType {
	case models.ObjectAccounts:
		account := &models.Account{
			ID:           obj.ID,
			Name:         obj.Properties["name"],
			Domain:       obj.Properties["domain"],
			Industry:     obj.Properties["industry"],
			LastModified: obj.UpdatedAt,
		}
		return Record{NativeID: obj.ID, Apply: func(database *sql.DB) error {
			return db.UpsertAccount(database, account)
		}}

	case models.ObjectContacts:
		name := joinName(obj.Properties["firstname"], obj.Properties["lastname"])
		if name == "" {
			name = obj.Properties["email"]
		}
		contact := &models.Contact{
			ID:           obj.ID,
			Name:         name,
			Email:        obj.Properties["email"],
			Phone:        obj.Properties["phone"],
			Title:        obj.Properties["jobtitle"],
			AccountID:    obj.Properties["associatedcompanyid"],
			LastModified: obj.UpdatedAt,
		}
		return Record{NativeID: obj.ID, Apply: func(database *sql.DB) error {
			return db.UpsertContact(database, contact)
		}}

	case models.ObjectLeads:
		lead := &models.Lead{
			ID:           obj.ID,
			Name:         obj.Properties["name"],
			Email:        obj.Properties["email"],
			Phone:        obj.Properties["phone"],
			Status:       obj.Properties["hs_lead_status"],
			LastModified: obj.UpdatedAt,
		}
		return Record{NativeID: obj.ID, Apply: func(database *sql.DB) error {
			return db.UpsertLead(database, lead)
		}}

	case models.ObjectOpportunities:
		opp := &models.Opportunity{
			ID:           obj.ID,
			Name:         obj.Properties["dealname"],
			AccountID:    obj.Properties["associatedcompanyid"],
			Stage:        obj.Properties["dealstage"],
			LastModified: obj.UpdatedAt,
		}
		if raw := obj.Properties["amount"]; raw != "" {
			amount, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return Record{NativeID: obj.ID, Invalid: fmt.Errorf("deal %s has bad amount %q: %w", obj.ID, raw, err)}
			}
			opp.Amount = int64(amount * 100)
		}
		if raw := obj.Properties["closedate"]; raw != "" {
			closeDate, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return Record{NativeID: obj.ID, Invalid: fmt.Errorf("deal %s has bad closedate %q: %w", obj.ID, raw, err)}
			}
			opp.CloseDate = &closeDate
		}
		return Record{NativeID: obj.ID, Apply: func(database *sql.DB) error {
			return db.UpsertOpportunity(database, opp)
		}}

	case models.ObjectActivities:
		occurredAt, err := time.Parse(time.RFC3339, obj.Properties["hs_timestamp"])
		if err != nil {
			return Record{NativeID: obj.ID, Invalid: fmt.Errorf("activity %s has bad timestamp %q: %w", obj.ID, obj.Properties["hs_timestamp"], err)}
		}
		activity := &models.Activity{
			ID:           obj.ID,
			Type:         obj.Properties["hs_activity_type"],
			ContactID:    obj.Properties["contact_id"],
			AccountID:    obj.Properties["company_id"],
			Subject:      obj.Properties["subject"],
			OccurredAt:   occurredAt,
			LastModified: obj.UpdatedAt,
		}
		return Record{NativeID: obj.ID, Apply: func(database *sql.DB) error {
			return db.UpsertActivity(database, activity)
		}}
	}

	return Record{NativeID: obj.ID, Invalid: fmt.Errorf("unhandled CRM object type %q", a.objectType)}
}

func joinName(first, last string) string {
	switch {
	case first == "":
		return last
	case last == "":
		return first
	}
	return first + " " + last
}
