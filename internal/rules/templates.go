package rules

// intPtr is a small helper for the optional retention fields in templates.
func intPtr(v int) *int { return &v }

// Template is a named, ready-to-use rule shape an operator can
// instantiate without hand-authoring conditions/actions (supplemented
// from src/rules.py's RULE_TEMPLATES, not present in the distilled spec).
type Template struct {
	Key            string
	Name           string
	Description    string
	Conditions     []Condition
	Actions        []Action
	ConditionLogic ConditionLogic
	Priority       int
}

// Instantiate builds a Rule from the template for a given account, leaving
// ID/timestamps for the store to fill in on Add.
func (t Template) Instantiate(accountEmail string) Rule {
	return Rule{
		Name:           t.Name,
		Description:    t.Description,
		Conditions:     append([]Condition(nil), t.Conditions...),
		Actions:        append([]Action(nil), t.Actions...),
		AccountEmail:   accountEmail,
		ConditionLogic: t.ConditionLogic,
		Active:         true,
		Priority:       t.Priority,
	}
}

// Templates is the built-in template library, keyed the way
// RULE_TEMPLATES is keyed in the original.
var Templates = map[string]Template{
	"package_delivery": {
		Key:         "package_delivery",
		Name:        "Package Delivery",
		Description: "Automatically organize package delivery notifications with 90-day retention",
		Conditions: []Condition{
			{Type: SenderDomainEquals, Value: "fedex.com"},
			{Type: SenderDomainEquals, Value: "ups.com"},
			{Type: SenderDomainEquals, Value: "usps.com"},
			{Type: SenderDomainEquals, Value: "amazon.com"},
			{Type: SenderDomainEquals, Value: "dhl.com"},
		},
		Actions: []Action{
			{Type: ActionMoveToFolder, Target: "INBOX.Packages", RetentionDays: intPtr(90), TrashRetentionDays: intPtr(14)},
			{Type: ActionAddToList, Target: "packages.txt"},
		},
		ConditionLogic: LogicAny,
		Priority:       50,
	},
	"receipts_invoices": {
		Key:         "receipts_invoices",
		Name:        "Receipts & Invoices",
		Description: "Organize financial documents and receipts",
		Conditions: []Condition{
			{Type: SubjectContains, Value: "invoice"},
			{Type: SubjectContains, Value: "receipt"},
			{Type: SubjectContains, Value: "bill"},
			{Type: SubjectContains, Value: "statement"},
			{Type: SubjectContains, Value: "payment"},
		},
		Actions: []Action{
			{Type: ActionMoveToFolder, Target: "INBOX.Receipts"},
			{Type: ActionAddToList, Target: "receipts.txt"},
		},
		ConditionLogic: LogicAny,
		Priority:       60,
	},
}
