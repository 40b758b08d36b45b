package model

import (
	"testing"
	"time"
)

func TestSession_IsEmpty(t *testing.T) {
	tests := []struct {
		name string
		s    *Session
		want bool
	}{
		{"nil", nil, true},
		{"blank", &Session{ID: "s1"}, true},
		{"whitespace only", &Session{RawContent: " \n\t"}, true},
		{"raw content", &Session{RawContent: "agenda"}, false},
		{"enhanced content", &Session{EnhancedContent: "summary"}, false},
		{"transcript", &Session{HasTranscript: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.s.IsEmpty(); got != tt.want {
				t.Errorf("IsEmpty() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseSnapshot_DegradesToAbsent(t *testing.T) {
	for _, raw := range []string{"", "   ", "{not json", `{"title":"no tracking id"}`} {
		if got := ParseSnapshot(raw); got != nil {
			t.Errorf("ParseSnapshot(%q) = %+v, want nil", raw, got)
		}
	}
}

func TestSnapshot_EncodeParse(t *testing.T) {
	snap := &EventSnapshot{
		TrackingID:         "t1",
		CalendarID:         "c1",
		Title:              "Standup",
		StartedAt:          time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
		EndedAt:            time.Date(2024, 1, 15, 10, 15, 0, 0, time.UTC),
		HasRecurrenceRules: true,
	}
	raw, err := EncodeSnapshot(snap)
	if err != nil {
		t.Fatalf("EncodeSnapshot: %v", err)
	}
	got := ParseSnapshot(raw)
	if !snap.Equal(got) {
		t.Errorf("parsed snapshot = %+v, want %+v", got, snap)
	}

	empty, err := EncodeSnapshot(nil)
	if err != nil || empty != "" {
		t.Errorf("EncodeSnapshot(nil) = %q, %v", empty, err)
	}
}

func TestParseParticipantSource(t *testing.T) {
	tests := []struct {
		in      string
		want    ParticipantSource
		wantErr bool
	}{
		{"auto", SourceAuto, false},
		{"manual", SourceManual, false},
		{"excluded", SourceExcluded, false},
		{"", SourceManual, false},
		{"robot", "", true},
	}
	for _, tt := range tests {
		got, err := ParseParticipantSource(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseParticipantSource(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseParticipantSource(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
