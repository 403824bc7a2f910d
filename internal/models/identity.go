package models

type IdentityState string

const (
	IdentityCreated IdentityState = "created"
	IdentityUpdated IdentityState = "updated"
)

// TrackedIdentity is a recurring person. Embedding is fixed at creation and
// is nil when the first observation could not be embedded.
type TrackedIdentity struct {
	ID           string        `json:"id"`
	Seq          int           `json:"seq"`
	Embedding    []float32     `json:"-"`
	FirstSeen    string        `json:"first_seen"`
	LastSeen     string        `json:"last_seen"`
	State        IdentityState `json:"state"`
	Observations int           `json:"observations"`
}

func (t TrackedIdentity) HasEmbedding() bool {
	return len(t.Embedding) > 0
}
