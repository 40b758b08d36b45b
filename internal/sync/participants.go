package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/njoerd114/calnotes/internal/model"
	"github.com/njoerd114/calnotes/internal/store"
)

// ParticipantInput is everything ReconcileParticipants needs.
type ParticipantInput struct {
	UserID   string
	Location *time.Location
	Incoming []*model.IncomingEvent
	// EventIDs maps incoming event keys to local event ids (from ExecuteEvents).
	EventIDs map[model.EventKey]string
	Sessions *SessionIndex
	Humans   []*model.Human
	Mappings []*model.ParticipantMapping
	NewID    IDFunc
}

// ParticipantPlan lists the participant mutations of one run.
type ParticipantPlan struct {
	HumansToCreate []*model.Human
	// ToDelete holds ids of auto mappings whose participant left the event.
	ToDelete []string
	// ToAdd holds new auto mappings.
	ToAdd []*model.ParticipantMapping
}

// Empty reports whether the plan mutates nothing.
func (p *ParticipantPlan) Empty() bool {
	return len(p.HumansToCreate) == 0 && len(p.ToDelete) == 0 && len(p.ToAdd) == 0
}

// humanResolver finds or allocates the Human for a participant. Humans are
// matched by normalised email when the participant has one, otherwise by
// exact name.
type humanResolver struct {
	userID  string
	newID   IDFunc
	byEmail map[string]*model.Human
	byName  map[string]*model.Human
	created []*model.Human
}

func newHumanResolver(userID string, humans []*model.Human, newID IDFunc) *humanResolver {
	r := &humanResolver{
		userID:  userID,
		newID:   newID,
		byEmail: make(map[string]*model.Human, len(humans)),
		byName:  make(map[string]*model.Human, len(humans)),
	}
	for _, h := range humans {
		r.index(h)
	}
	return r
}

func (r *humanResolver) index(h *model.Human) {
	if email := model.NormalizeEmail(h.Email); email != "" {
		if _, ok := r.byEmail[email]; !ok {
			r.byEmail[email] = h
		}
	}
	if h.Name != "" {
		if _, ok := r.byName[h.Name]; !ok {
			r.byName[h.Name] = h
		}
	}
}

func (r *humanResolver) resolve(p model.Participant) *model.Human {
	email := model.NormalizeEmail(p.Email)
	if email != "" {
		if h, ok := r.byEmail[email]; ok {
			return h
		}
	} else if h, ok := r.byName[p.Name]; ok && p.Name != "" {
		return h
	}
	if email == "" && p.Name == "" {
		return nil
	}

	h := &model.Human{ID: r.newID(), UserID: r.userID, Name: p.Name, Email: p.Email}
	r.created = append(r.created, h)
	r.index(h)
	return h
}

// ReconcileParticipants computes the participant links of every session bound
// to a touched event. Current-user participants are skipped. Only auto
// mappings are ever removed; a manual or excluded mapping for a human blocks
// adding that human again.
func ReconcileParticipants(in ParticipantInput) ParticipantPlan {
	var plan ParticipantPlan

	mappingsBySession := make(map[string][]*model.ParticipantMapping)
	for _, m := range in.Mappings {
		mappingsBySession[m.SessionID] = append(mappingsBySession[m.SessionID], m)
	}

	resolver := newHumanResolver(in.UserID, in.Humans, in.NewID)
	seenEvents := make(map[string]bool)

	for _, ie := range in.Incoming {
		eventID, ok := in.EventIDs[ie.Key(in.Location)]
		if !ok || seenEvents[eventID] {
			continue
		}
		seenEvents[eventID] = true

		sessions := in.Sessions.ForEvent(eventID)
		if len(sessions) == 0 {
			continue
		}

		var wanted []string
		wantedSet := make(map[string]bool)
		for _, p := range ie.Participants {
			if p.IsCurrentUser {
				continue
			}
			h := resolver.resolve(p)
			if h == nil || wantedSet[h.ID] {
				continue
			}
			wantedSet[h.ID] = true
			wanted = append(wanted, h.ID)
		}

		for _, sess := range sessions {
			have := make(map[string]bool)
			for _, m := range mappingsBySession[sess.ID] {
				have[m.HumanID] = true
				if m.Source == model.SourceAuto && !wantedSet[m.HumanID] {
					plan.ToDelete = append(plan.ToDelete, m.ID)
				}
			}
			for _, humanID := range wanted {
				if have[humanID] {
					continue
				}
				plan.ToAdd = append(plan.ToAdd, &model.ParticipantMapping{
					ID:        in.NewID(),
					UserID:    in.UserID,
					SessionID: sess.ID,
					HumanID:   humanID,
					Source:    model.SourceAuto,
				})
			}
		}
	}

	plan.HumansToCreate = resolver.created
	return plan
}

// ExecuteParticipants applies plan in one transaction: humans first, then
// stale mapping deletes, then new mappings.
func ExecuteParticipants(ctx context.Context, st Store, plan *ParticipantPlan) error {
	if plan.Empty() {
		return nil
	}
	ops := make([]store.Op, 0, len(plan.HumansToCreate)+len(plan.ToDelete)+len(plan.ToAdd))
	for _, h := range plan.HumansToCreate {
		ops = append(ops, store.InsertHuman{Human: h})
	}
	for _, id := range plan.ToDelete {
		ops = append(ops, store.DeleteMapping{ID: id})
	}
	for _, m := range plan.ToAdd {
		ops = append(ops, store.InsertMapping{Mapping: m})
	}
	if err := st.Apply(ctx, ops...); err != nil {
		return fmt.Errorf("applying participant changes: %w", err)
	}
	return nil
}
