package plan

// ComplianceItem is an acknowledgement shown on the plan selection page.
type ComplianceItem struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Required bool   `json:"required"`
	Link     string `json:"link,omitempty"`
}

var complianceItems = []ComplianceItem{
	{ID: "terms_of_service", Label: "I agree to the Biypod Terms of Service", Required: true, Link: "https://biypod.com/terms"},
	{ID: "privacy_policy", Label: "I agree to the Biypod Privacy Policy", Required: true, Link: "https://biypod.com/privacy"},
	{ID: "shopify_billing", Label: "I understand that charges will be processed through Shopify billing", Required: true},
	{ID: "usage_fees", Label: "I understand that usage fees apply to orders containing customized products", Required: true},
	{ID: "plan_limits", Label: "I understand the product publishing limits for my selected plan", Required: true},
	{ID: "email_marketing", Label: "I agree to receive product updates and marketing emails (optional)", Required: false},
	{ID: "data_processing", Label: "I consent to data processing for app functionality and analytics", Required: true},
}

// ComplianceItems returns the acknowledgements in display order.
func ComplianceItems() []ComplianceItem {
	out := make([]ComplianceItem, len(complianceItems))
	copy(out, complianceItems)
	return out
}

// MissingAcknowledgements returns the ids of required items not present in accepted.
func MissingAcknowledgements(accepted []string) []string {
	seen := make(map[string]struct{}, len(accepted))
	for _, id := range accepted {
		seen[id] = struct{}{}
	}

	var missing []string
	for _, item := range complianceItems {
		if !item.Required {
			continue
		}
		if _, ok := seen[item.ID]; !ok {
			missing = append(missing, item.ID)
		}
	}
	return missing
}
