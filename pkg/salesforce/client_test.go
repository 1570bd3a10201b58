package salesforce

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	gosf "github.com/k-capehart/go-salesforce/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crm-resolver/internal/model"
)

// newTestClient creates a Client backed by an httptest server.
func newTestClient(t *testing.T, handler http.Handler) (Client, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	sf, err := gosf.Init(gosf.Creds{
		AccessToken: "test-token",
		Domain:      ts.URL,
	},
		gosf.WithValidateAuthentication(false),
		gosf.WithRoundTripper(http.DefaultTransport),
	)
	require.NoError(t, err)
	require.NotNil(t, sf)

	return NewClient(sf), ts
}

func TestClientQuery(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/query")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"totalSize": 1,
			"done":      true,
			"records": []map[string]any{
				{
					"attributes":       map[string]any{"type": "Opportunity"},
					"Id":               "006xx1",
					"Company__c":       "Acme",
					"Contact_Email__c": "jane@acme.com",
				},
			},
		})
	})

	client, _ := newTestClient(t, handler)

	var opps []Opportunity
	err := client.Query(context.Background(), "SELECT Id FROM Opportunity", &opps)
	require.NoError(t, err)
	require.Len(t, opps, 1)
	assert.Equal(t, "006xx1", opps[0].ID)
	assert.Equal(t, "Acme", opps[0].CompanyText)
}

func TestClientQueryError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"message": "invalid SOQL", "errorCode": "MALFORMED_QUERY"},
		})
	})

	client, _ := newTestClient(t, handler)

	var opps []Opportunity
	err := client.Query(context.Background(), "INVALID SOQL", &opps)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "sf: query")
}

func TestFetchDeals(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		soql := r.URL.Query().Get("q")
		assert.Contains(t, soql, "FROM Opportunity")
		assert.Contains(t, soql, "LIMIT 50")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"totalSize": 1,
			"done":      true,
			"records": []map[string]any{
				{
					"attributes":       map[string]any{"type": "Opportunity"},
					"Id":               "006xx1",
					"Company__c":       "Acme",
					"Contact_Name__c":  "Jane Doe",
					"Contact_Email__c": "jane@acme.com",
					"OwnerId":          "005xx9",
					"StageName":        "Prospecting",
				},
			},
		})
	})

	client, _ := newTestClient(t, handler)

	deals, err := FetchDeals(context.Background(), client, 50)
	require.NoError(t, err)
	require.Len(t, deals, 1)
	assert.Equal(t, "006xx1", deals[0].CRMID)
	assert.Equal(t, "Acme", deals[0].Company)
	assert.Equal(t, "jane@acme.com", deals[0].ContactEmail)
	assert.Equal(t, "005xx9", deals[0].Owner)
}

func TestPushResolvedSkipsUnresolved(t *testing.T) {
	called := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})
	client, _ := newTestClient(t, handler)

	failed, err := PushResolved(context.Background(), client, nil)
	require.NoError(t, err)
	assert.Nil(t, failed)
	assert.False(t, called, "no resolved deals, no API call")
}

func TestPushResolved(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.Contains(r.URL.Path, "/composite/sobjects"), r.URL.Path)

		var body struct {
			Records []map[string]any `json:"records"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Records, 1)
		assert.Equal(t, "006xx1", body.Records[0]["Id"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"id": "006xx1", "success": true, "errors": []any{}},
		})
	})
	client, _ := newTestClient(t, handler)

	companyID, contactID := int64(1), int64(2)
	deals := []model.Deal{
		{CRMID: "006xx1", CompanyID: &companyID, PrimaryContactID: &contactID},
		{CRMID: "006xx2"}, // unresolved, skipped
		{CompanyID: &companyID, PrimaryContactID: &contactID}, // no CRM id, skipped
	}

	failed, err := PushResolved(context.Background(), client, deals)
	require.NoError(t, err)
	assert.Empty(t, failed)
}
