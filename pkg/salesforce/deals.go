package salesforce

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crm-resolver/internal/model"
)

// Opportunity mirrors the CRM deal fields the resolver consumes. Company,
// contact name and contact email live in free-text custom fields.
type Opportunity struct {
	ID           string `json:"Id" salesforce:"Id"`
	CompanyText  string `json:"Company__c" salesforce:"Company__c"`
	ContactName  string `json:"Contact_Name__c" salesforce:"Contact_Name__c"`
	ContactEmail string `json:"Contact_Email__c" salesforce:"Contact_Email__c"`
	OwnerID      string `json:"OwnerId" salesforce:"OwnerId"`
	StageName    string `json:"StageName" salesforce:"StageName"`
}

// FetchDeals pulls open opportunities that have not been resolved yet.
// limit 0 means no cap.
func FetchDeals(ctx context.Context, client Client, limit int) ([]model.Deal, error) {
	soql := `SELECT Id, Company__c, Contact_Name__c, Contact_Email__c, OwnerId, StageName
		FROM Opportunity
		WHERE Resolved_Company_ID__c = null OR Resolved_Contact_ID__c = null
		ORDER BY CreatedDate DESC`
	if limit > 0 {
		soql += fmt.Sprintf(" LIMIT %d", limit)
	}

	var opps []Opportunity
	if err := client.Query(ctx, soql, &opps); err != nil {
		return nil, eris.Wrap(err, "sf: fetch deals")
	}

	deals := make([]model.Deal, len(opps))
	for i, o := range opps {
		deals[i] = model.Deal{
			CRMID:        o.ID,
			Company:      o.CompanyText,
			ContactName:  o.ContactName,
			ContactEmail: o.ContactEmail,
			Owner:        o.OwnerID,
			Stage:        o.StageName,
		}
	}
	return deals, nil
}

// PushResolved writes resolved entity references back onto the CRM deals.
// Deals without a CRM id or without both references are skipped. Returns
// the ids of records the CRM rejected.
func PushResolved(ctx context.Context, client Client, deals []model.Deal) ([]string, error) {
	var records []CollectionRecord
	for _, d := range deals {
		if d.CRMID == "" || !d.Resolved() {
			continue
		}
		records = append(records, CollectionRecord{
			ID: d.CRMID,
			Fields: map[string]any{
				"Resolved_Company_ID__c": *d.CompanyID,
				"Resolved_Contact_ID__c": *d.PrimaryContactID,
			},
		})
	}
	if len(records) == 0 {
		return nil, nil
	}

	results, err := client.UpdateCollection(ctx, "Opportunity", records)
	if err != nil {
		return nil, eris.Wrap(err, "sf: push resolved deals")
	}

	var failed []string
	for _, r := range results {
		if !r.Success {
			failed = append(failed, r.ID)
		}
	}
	return failed, nil
}
