package model

import (
	"fmt"
	"strings"
	"time"
)

// ParticipantSource records how a session↔human link was created.
type ParticipantSource string

const (
	// SourceAuto links are created by calendar sync and may be removed by it.
	SourceAuto ParticipantSource = "auto"
	// SourceManual links were added by the user and are never touched by sync.
	SourceManual ParticipantSource = "manual"
	// SourceExcluded marks a human the user removed from a session; sync must
	// not add it back.
	SourceExcluded ParticipantSource = "excluded"
)

// ParseParticipantSource validates a mapping source. An empty value is read
// as manual: a link with unknown provenance is never pruned.
func ParseParticipantSource(s string) (ParticipantSource, error) {
	switch p := ParticipantSource(s); p {
	case SourceAuto, SourceManual, SourceExcluded:
		return p, nil
	case "":
		return SourceManual, nil
	default:
		return "", fmt.Errorf("unknown participant source %q", s)
	}
}

// Human is a contact record.
type Human struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	Name      string
	Email     string
}

// Participant is a normalised event participant.
type Participant struct {
	Name          string
	Email         string
	IsOrganizer   bool
	IsCurrentUser bool
}

// ParticipantMapping links a session to a human.
type ParticipantMapping struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	SessionID string
	HumanID   string
	Source    ParticipantSource
}

// NormalizeEmail lower-cases and trims an address for identity comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EmailSet is a set of normalised addresses, used to recognise the current
// user among event participants.
type EmailSet map[string]struct{}

// NewEmailSet builds an EmailSet from raw addresses; blanks are dropped.
func NewEmailSet(emails ...string) EmailSet {
	s := make(EmailSet, len(emails))
	for _, e := range emails {
		if n := NormalizeEmail(e); n != "" {
			s[n] = struct{}{}
		}
	}
	return s
}

// Has reports whether email is in the set after normalisation.
func (s EmailSet) Has(email string) bool {
	_, ok := s[NormalizeEmail(email)]
	return ok && email != ""
}
