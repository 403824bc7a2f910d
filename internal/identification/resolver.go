// Package identification assigns stable person ids across frames by
// greedy threshold clustering of crop embeddings.
package identification

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/kdimtricp/camsearch/internal/models"
	"github.com/kdimtricp/camsearch/internal/vectorindex"
)

const DefaultThreshold = 0.85

type CropEncoder interface {
	EncodeCrop(ctx context.Context, crop []byte) ([]float32, error)
}

// Resolver keeps identities in an arena indexed by sequence number. An
// identity's reference embedding is set once and never averaged, and
// identities are never merged.
type Resolver struct {
	encoder   CropEncoder
	threshold float64
	log       logrus.FieldLogger

	mu         sync.Mutex
	identities []models.TrackedIdentity
}

func NewResolver(encoder CropEncoder, threshold float64, log logrus.FieldLogger) *Resolver {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Resolver{encoder: encoder, threshold: threshold, log: log}
}

// Resolve embeds the crop and assigns it an identity in one step.
func (r *Resolver) Resolve(ctx context.Context, crop []byte, frameRef string) string {
	return r.Assign(r.Embed(ctx, crop, frameRef), frameRef)
}

// Embed returns the normalized crop embedding, or nil when the crop cannot
// be embedded. It does not touch the identity arena.
func (r *Resolver) Embed(ctx context.Context, crop []byte, frameRef string) []float32 {
	if r.encoder == nil {
		return nil
	}
	vec, err := r.encoder.EncodeCrop(ctx, crop)
	if err != nil {
		r.log.WithError(err).WithField("frame", frameRef).Warn("person crop embedding failed")
		return nil
	}
	unit := vectorindex.Normalize(vec)
	if unit == nil {
		r.log.WithField("frame", frameRef).Warn("person crop embedding is zero")
	}
	return unit
}

// Assign returns the id of the identity whose embedding is most similar to
// unit when that similarity exceeds the threshold, otherwise a new id. A nil
// embedding always mints a new identity that will never be matched again.
func (r *Resolver) Assign(unit []float32, frameRef string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if unit != nil {
		best, bestIdx := 0.0, -1
		for i, id := range r.identities {
			if len(id.Embedding) != len(unit) {
				continue
			}
			if s := vectorindex.Dot(unit, id.Embedding); bestIdx < 0 || s > best {
				best, bestIdx = s, i
			}
		}
		if bestIdx >= 0 && best > r.threshold {
			id := &r.identities[bestIdx]
			id.LastSeen = frameRef
			id.State = models.IdentityUpdated
			id.Observations++
			return id.ID
		}
	}

	seq := len(r.identities) + 1
	identity := models.TrackedIdentity{
		ID:           formatID(seq),
		Seq:          seq,
		Embedding:    unit,
		FirstSeen:    frameRef,
		LastSeen:     frameRef,
		State:        models.IdentityCreated,
		Observations: 1,
	}
	r.identities = append(r.identities, identity)
	r.log.WithFields(logrus.Fields{
		"person_id": identity.ID,
		"frame":     frameRef,
	}).Debug("new identity")
	return identity.ID
}

func (r *Resolver) Get(id string) (models.TrackedIdentity, bool) {
	seq, ok := parseID(id)
	r.mu.Lock()
	defer r.mu.Unlock()
	if !ok || seq > len(r.identities) {
		return models.TrackedIdentity{}, false
	}
	return r.identities[seq-1], true
}

func (r *Resolver) Identities() []models.TrackedIdentity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.TrackedIdentity(nil), r.identities...)
}

func (r *Resolver) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.identities)
}

func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.identities = nil
}

func formatID(seq int) string {
	return fmt.Sprintf("P%d", seq)
}

func parseID(id string) (int, bool) {
	if !strings.HasPrefix(id, "P") {
		return 0, false
	}
	seq, err := strconv.Atoi(id[1:])
	if err != nil || seq < 1 {
		return 0, false
	}
	return seq, true
}
