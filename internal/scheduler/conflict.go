// Package scheduler detects overlapping meetings.
package scheduler

import (
	"sort"
	"strings"
	"time"
)

// Slot is a meeting occupying a time range with a set of attendees and an optional
// physical location.
type Slot struct {
	ID        string
	Attendees []string
	Location  string
	Start     time.Time
	End       time.Time
}

// ConflictType describes why two slots collide.
type ConflictType string

const (
	// ConflictTypeParticipant indicates an attendee is double-booked.
	ConflictTypeParticipant ConflictType = "participant"
	// ConflictTypeLocation indicates a location is double-booked.
	ConflictTypeLocation ConflictType = "location"
)

// Conflict details an overlapping slot that callers can present to users.
type Conflict struct {
	WithID      string
	Type        ConflictType
	Participant string
	Location    string
	Start       time.Time
	End         time.Time
}

// Overlaps reports whether the half-open ranges [aStart, aEnd) and [bStart, bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// DetectConflicts returns the conflicts between candidate and existing slots, ordered by
// start time then slot ID. Slots sharing the candidate's ID are ignored so an update
// does not conflict with its previous version. Back-to-back slots do not conflict.
func DetectConflicts(existing []Slot, candidate Slot) []Conflict {
	attendees := make(map[string]struct{}, len(candidate.Attendees))
	for _, id := range candidate.Attendees {
		if id = strings.TrimSpace(id); id != "" {
			attendees[id] = struct{}{}
		}
	}
	location := normalizeLocation(candidate.Location)

	conflicts := make([]Conflict, 0)
	for _, slot := range existing {
		if slot.ID == candidate.ID && candidate.ID != "" {
			continue
		}
		if !Overlaps(candidate.Start, candidate.End, slot.Start, slot.End) {
			continue
		}

		seen := make(map[string]struct{}, len(slot.Attendees))
		for _, id := range slot.Attendees {
			if _, ok := attendees[id]; !ok {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			conflicts = append(conflicts, Conflict{
				WithID:      slot.ID,
				Type:        ConflictTypeParticipant,
				Participant: id,
				Start:       slot.Start,
				End:         slot.End,
			})
		}

		if location != "" && normalizeLocation(slot.Location) == location {
			conflicts = append(conflicts, Conflict{
				WithID:   slot.ID,
				Type:     ConflictTypeLocation,
				Location: slot.Location,
				Start:    slot.Start,
				End:      slot.End,
			})
		}
	}

	sort.SliceStable(conflicts, func(i, j int) bool {
		if !conflicts[i].Start.Equal(conflicts[j].Start) {
			return conflicts[i].Start.Before(conflicts[j].Start)
		}
		if conflicts[i].WithID != conflicts[j].WithID {
			return conflicts[i].WithID < conflicts[j].WithID
		}
		return conflicts[i].Participant < conflicts[j].Participant
	})
	return conflicts
}

// normalizeLocation folds case and whitespace. Online-only meetings have no location.
func normalizeLocation(location string) string {
	return strings.ToLower(strings.Join(strings.Fields(location), " "))
}
