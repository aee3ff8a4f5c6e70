package types

// Event is the wire-level representation of a notification emitted by the
// engine. Attributes carry string projections of the payload fields.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
