package domain

// MessageEnvelope carries the metadata the decision engine needs to classify
// a message. Bodies are never fetched; the snippet is enough for triage.
type MessageEnvelope struct {
	ID       string
	Subject  string
	From     string
	To       string
	Date     string
	Snippet  string
	LabelIDs []string
}
