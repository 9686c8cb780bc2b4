package domain

// Category is one of the five fixed classification outcomes. The set is
// closed: anything else coming back from the classifier is a parse error,
// never a silent default.
type Category string

const (
	CategorySpam             Category = "spam"
	CategoryReceipt          Category = "receipt"
	CategoryUsefulArchive    Category = "useful_archive"
	CategoryRequiresResponse Category = "requires_response"
	CategoryShouldRead       Category = "should_read"
)

// Categories lists all valid categories in reporting order.
var Categories = []Category{
	CategorySpam,
	CategoryReceipt,
	CategoryUsefulArchive,
	CategoryRequiresResponse,
	CategoryShouldRead,
}

func (c Category) Valid() bool {
	switch c {
	case CategorySpam, CategoryReceipt, CategoryUsefulArchive, CategoryRequiresResponse, CategoryShouldRead:
		return true
	}
	return false
}

// Label names used by the canonical category -> action mapping.
const (
	ReceiptLabel          = "Receipts"
	RequiresResponseLabel = "Requiring Response"
	ShouldReadLabel       = "User Should Read"
	DefaultArchiveLabel   = "Filed"
)

// Decision is the parsed classifier output (or a manual override) for a
// single message.
type Decision struct {
	Category   Category
	Label      string
	Confidence float64
	Reason     string
	Summary    string
}

// Action is the canonical mailbox mutation derived from a decision.
type Action struct {
	// Delete permanently removes the message. Mutually exclusive with the
	// label fields.
	Delete bool
	// Archive removes the INBOX label.
	Archive bool
	// AddLabel is the label name to apply, empty for none.
	AddLabel string
}

// Name returns the short action name used in the decision log.
func (a Action) Name() string {
	switch {
	case a.Delete:
		return "delete"
	case a.Archive:
		return "archive"
	case a.AddLabel != "":
		return "label"
	}
	return "none"
}

// Action maps the decision onto the canonical mailbox mutation:
//
//	spam              -> delete
//	receipt           -> archive + label "Receipts"
//	useful_archive    -> archive + explicit or default label
//	requires_response -> keep in inbox + label "Requiring Response"
//	should_read       -> keep in inbox + label "User Should Read"
func (d Decision) Action() Action {
	switch d.Category {
	case CategorySpam:
		return Action{Delete: true}
	case CategoryReceipt:
		return Action{Archive: true, AddLabel: ReceiptLabel}
	case CategoryUsefulArchive:
		label := d.Label
		if label == "" {
			label = DefaultArchiveLabel
		}
		return Action{Archive: true, AddLabel: label}
	case CategoryRequiresResponse:
		return Action{AddLabel: RequiresResponseLabel}
	case CategoryShouldRead:
		return Action{AddLabel: ShouldReadLabel}
	}
	return Action{}
}
