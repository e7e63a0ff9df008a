package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/example/hrms/internal/persistence"
	"github.com/example/hrms/internal/scheduler"
)

// Meeting and participant states.
const (
	MeetingStatusScheduled = "scheduled"
	MeetingStatusCancelled = "cancelled"

	ResponsePending   = "pending"
	ResponseAccepted  = "accepted"
	ResponseDeclined  = "declined"
	ResponseTentative = "tentative"
)

// MeetingInput describes a new meeting organized by the caller.
type MeetingInput struct {
	Title          string    `json:"title" validate:"required,max=200"`
	Description    string    `json:"description" validate:"max=5000"`
	Location       string    `json:"location" validate:"max=200"`
	MeetingURL     string    `json:"meetingUrl" validate:"omitempty,url"`
	StartTime      time.Time `json:"startTime" validate:"required"`
	EndTime        time.Time `json:"endTime" validate:"required"`
	ParticipantIDs []string  `json:"participantIds"`
}

// UpdateMeetingInput replaces the attributes and participants of a meeting.
type UpdateMeetingInput struct {
	ID             string    `json:"id" validate:"required"`
	Title          string    `json:"title" validate:"required,max=200"`
	Description    string    `json:"description" validate:"max=5000"`
	Location       string    `json:"location" validate:"max=200"`
	MeetingURL     string    `json:"meetingUrl" validate:"omitempty,url"`
	StartTime      time.Time `json:"startTime" validate:"required"`
	EndTime        time.Time `json:"endTime" validate:"required"`
	ParticipantIDs []string  `json:"participantIds"`
}

// RespondInput records the caller's answer to an invitation.
type RespondInput struct {
	MeetingID string `json:"meetingId" validate:"required"`
	Response  string `json:"response" validate:"required,oneof=accepted declined tentative"`
}

// ListMeetingsInput selects the caller's meetings. A range preset takes precedence over
// explicit bounds.
type ListMeetingsInput struct {
	Range            RangePreset `json:"range" validate:"omitempty,oneof=day week month"`
	Reference        *time.Time  `json:"reference"`
	From             *time.Time  `json:"from"`
	To               *time.Time  `json:"to"`
	IncludeCancelled bool        `json:"includeCancelled"`
}

// ConflictsInput describes a candidate slot to check for overlaps.
type ConflictsInput struct {
	MeetingID      string    `json:"meetingId"`
	StartTime      time.Time `json:"startTime" validate:"required"`
	EndTime        time.Time `json:"endTime" validate:"required"`
	Location       string    `json:"location"`
	ParticipantIDs []string  `json:"participantIds"`
}

// MeetingResult pairs a written meeting with the overlaps detected for it.
type MeetingResult struct {
	Meeting  Meeting           `json:"meeting"`
	Warnings []ConflictWarning `json:"warnings"`
}

// MeetingService schedules meetings and tracks participant responses.
type MeetingService struct {
	meetings    persistence.MeetingRepository
	users       persistence.UserRepository
	notifier    Notifier
	location    *time.Location
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewMeetingService constructs a MeetingService.
func NewMeetingService(meetings persistence.MeetingRepository, users persistence.UserRepository, notifier Notifier, location *time.Location, idGenerator func() string, now func() time.Time) *MeetingService {
	return NewMeetingServiceWithLogger(meetings, users, notifier, location, idGenerator, now, nil)
}

// NewMeetingServiceWithLogger constructs a MeetingService with a specified logger.
func NewMeetingServiceWithLogger(meetings persistence.MeetingRepository, users persistence.UserRepository, notifier Notifier, location *time.Location, idGenerator func() string, now func() time.Time, logger *slog.Logger) *MeetingService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &MeetingService{
		meetings:    meetings,
		users:       users,
		notifier:    notifierOrNoop(notifier),
		location:    locationOrDefault(location),
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *MeetingService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "MeetingService", operation, attrs...)
}

// Create schedules a meeting organized by the caller and invites its participants.
func (s *MeetingService) Create(ctx context.Context, principal Principal, input MeetingInput) (result MeetingResult, err error) {
	if s == nil {
		err = fmt.Errorf("MeetingService is nil")
		return
	}
	logger := s.loggerWith(ctx, "Create", "user_id", principal.UserID)
	defer func() { logOutcome(ctx, logger, err, "meeting created", "meeting_id", result.Meeting.ID, "warnings", len(result.Warnings)) }()

	if err = requireAuthenticated(principal); err != nil {
		return
	}
	input.Title = strings.TrimSpace(input.Title)
	vErr := validateInput(input)
	checkTimeOrder(vErr, input.StartTime, input.EndTime)
	if err = vErr.errOrNil(); err != nil {
		return
	}

	participantIDs := participantsExcluding(input.ParticipantIDs, principal.UserID)
	if err = s.ensureParticipants(ctx, participantIDs); err != nil {
		return
	}

	now := s.now()
	record := persistence.Meeting{
		ID:          s.idGenerator(),
		OrganizerID: principal.UserID,
		Title:       input.Title,
		Description: strings.TrimSpace(input.Description),
		Location:    strings.TrimSpace(input.Location),
		MeetingURL:  strings.TrimSpace(input.MeetingURL),
		StartTime:   input.StartTime,
		EndTime:     input.EndTime,
		Status:      MeetingStatusScheduled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, id := range participantIDs {
		record.Participants = append(record.Participants, persistence.MeetingParticipant{
			MeetingID: record.ID,
			UserID:    id,
			Response:  ResponsePending,
		})
	}

	var warnings []ConflictWarning
	if warnings, err = s.detectConflicts(ctx, record); err != nil {
		return
	}
	if err = s.meetings.CreateMeeting(ctx, record); err != nil {
		err = mapStoreError(err, "meeting")
		return
	}

	s.notifyParticipants(ctx, record, participantIDs, NotificationMeetingInvite, "会議に招待されました")
	result = MeetingResult{Meeting: meetingFromRecord(record), Warnings: warnings}
	return
}

// Update rewrites a meeting. Only the organizer may update it. Responses reset to pending
// when the time changes.
func (s *MeetingService) Update(ctx context.Context, principal Principal, input UpdateMeetingInput) (result MeetingResult, err error) {
	if s == nil {
		err = fmt.Errorf("MeetingService is nil")
		return
	}
	logger := s.loggerWith(ctx, "Update", "user_id", principal.UserID, "meeting_id", input.ID)
	defer func() { logOutcome(ctx, logger, err, "meeting updated", "warnings", len(result.Warnings)) }()

	if err = requireAuthenticated(principal); err != nil {
		return
	}
	input.Title = strings.TrimSpace(input.Title)
	vErr := validateInput(input)
	checkTimeOrder(vErr, input.StartTime, input.EndTime)
	if err = vErr.errOrNil(); err != nil {
		return
	}

	var existing persistence.Meeting
	if existing, err = s.meetings.GetMeeting(ctx, input.ID); err != nil {
		err = mapStoreError(err, "meeting")
		return
	}
	if existing.OrganizerID != principal.UserID {
		err = forbidden("only the organizer may update the meeting")
		return
	}
	if existing.Status == MeetingStatusCancelled {
		err = badRequest("the meeting has been cancelled")
		return
	}

	participantIDs := participantsExcluding(input.ParticipantIDs, existing.OrganizerID)
	if err = s.ensureParticipants(ctx, participantIDs); err != nil {
		return
	}

	timeChanged := !existing.StartTime.Equal(input.StartTime) || !existing.EndTime.Equal(input.EndTime)
	previous := make(map[string]persistence.MeetingParticipant, len(existing.Participants))
	for _, p := range existing.Participants {
		previous[p.UserID] = p
	}

	updated := existing
	updated.Title = input.Title
	updated.Description = strings.TrimSpace(input.Description)
	updated.Location = strings.TrimSpace(input.Location)
	updated.MeetingURL = strings.TrimSpace(input.MeetingURL)
	updated.StartTime = input.StartTime
	updated.EndTime = input.EndTime
	updated.UpdatedAt = s.now()
	updated.Participants = make([]persistence.MeetingParticipant, 0, len(participantIDs))
	for _, id := range participantIDs {
		p := persistence.MeetingParticipant{MeetingID: existing.ID, UserID: id, Response: ResponsePending}
		if prev, ok := previous[id]; ok && !timeChanged {
			p = prev
		}
		updated.Participants = append(updated.Participants, p)
	}

	var warnings []ConflictWarning
	if warnings, err = s.detectConflicts(ctx, updated); err != nil {
		return
	}
	if err = s.meetings.UpdateMeeting(ctx, updated); err != nil {
		err = mapStoreError(err, "meeting")
		return
	}

	var invited, kept []string
	for _, id := range participantIDs {
		if _, ok := previous[id]; ok {
			kept = append(kept, id)
		} else {
			invited = append(invited, id)
		}
	}
	s.notifyParticipants(ctx, updated, invited, NotificationMeetingInvite, "会議に招待されました")
	s.notifyParticipants(ctx, updated, kept, NotificationMeetingUpdate, "会議の内容が変更されました")

	result = MeetingResult{Meeting: meetingFromRecord(updated), Warnings: warnings}
	return
}

// Cancel marks a meeting cancelled and notifies its participants.
func (s *MeetingService) Cancel(ctx context.Context, principal Principal, id string) (result Meeting, err error) {
	if s == nil {
		err = fmt.Errorf("MeetingService is nil")
		return
	}
	logger := s.loggerWith(ctx, "Cancel", "user_id", principal.UserID, "meeting_id", id)
	defer func() { logOutcome(ctx, logger, err, "meeting cancelled") }()

	if err = requireAuthenticated(principal); err != nil {
		return
	}
	var record persistence.Meeting
	if record, err = s.meetings.GetMeeting(ctx, id); err != nil {
		err = mapStoreError(err, "meeting")
		return
	}
	if record.OrganizerID != principal.UserID {
		err = forbidden("only the organizer may cancel the meeting")
		return
	}
	if record.Status == MeetingStatusCancelled {
		err = badRequest("the meeting is already cancelled")
		return
	}

	record.Status = MeetingStatusCancelled
	record.UpdatedAt = s.now()
	if err = s.meetings.UpdateMeeting(ctx, record); err != nil {
		err = mapStoreError(err, "meeting")
		return
	}

	s.notifyParticipants(ctx, record, participantIDsOf(record), NotificationMeetingCancel, "会議がキャンセルされました")
	result = meetingFromRecord(record)
	return
}

// Delete removes a meeting. The organizer and administrators may delete it.
func (s *MeetingService) Delete(ctx context.Context, principal Principal, id string) (err error) {
	if s == nil {
		return fmt.Errorf("MeetingService is nil")
	}
	logger := s.loggerWith(ctx, "Delete", "user_id", principal.UserID, "meeting_id", id)
	defer func() { logOutcome(ctx, logger, err, "meeting deleted") }()

	if err = requireAuthenticated(principal); err != nil {
		return
	}
	var record persistence.Meeting
	if record, err = s.meetings.GetMeeting(ctx, id); err != nil {
		err = mapStoreError(err, "meeting")
		return
	}
	if record.OrganizerID != principal.UserID && !principal.IsAdmin() {
		err = forbidden("only the organizer may delete the meeting")
		return
	}
	err = mapStoreError(s.meetings.DeleteMeeting(ctx, id), "meeting")
	return
}

// Get returns a meeting to its organizer, its participants, and administrators.
func (s *MeetingService) Get(ctx context.Context, principal Principal, id string) (Meeting, error) {
	if s == nil {
		return Meeting{}, fmt.Errorf("MeetingService is nil")
	}
	if err := requireAuthenticated(principal); err != nil {
		return Meeting{}, err
	}
	record, err := s.meetings.GetMeeting(ctx, id)
	if err != nil {
		return Meeting{}, mapStoreError(err, "meeting")
	}
	if record.OrganizerID != principal.UserID && !principal.IsAdmin() && !isParticipant(record, principal.UserID) {
		return Meeting{}, forbidden("not invited to this meeting")
	}
	return meetingFromRecord(record), nil
}

// List returns the meetings the caller organizes or attends, ordered by start time.
func (s *MeetingService) List(ctx context.Context, principal Principal, input ListMeetingsInput) ([]Meeting, error) {
	if s == nil {
		return nil, fmt.Errorf("MeetingService is nil")
	}
	if err := requireAuthenticated(principal); err != nil {
		return nil, err
	}
	vErr := validateInput(input)
	if input.From != nil && input.To != nil && !input.To.After(*input.From) {
		vErr.add("to", "to must be after from")
	}
	if err := vErr.errOrNil(); err != nil {
		return nil, err
	}

	filter := persistence.MeetingFilter{
		UserID:           principal.UserID,
		From:             input.From,
		To:               input.To,
		IncludeCancelled: input.IncludeCancelled,
	}
	if input.Range != RangeNone {
		reference := s.now()
		if input.Reference != nil {
			reference = *input.Reference
		}
		from, to := computePeriodRange(input.Range, reference, s.location)
		filter.From, filter.To = &from, &to
	}

	records, err := s.meetings.ListMeetings(ctx, filter)
	if err != nil {
		return nil, err
	}
	meetings := make([]Meeting, 0, len(records))
	for _, r := range records {
		meetings = append(meetings, meetingFromRecord(r))
	}
	return meetings, nil
}

// Respond records the caller's answer to an invitation.
func (s *MeetingService) Respond(ctx context.Context, principal Principal, input RespondInput) (result Meeting, err error) {
	if s == nil {
		err = fmt.Errorf("MeetingService is nil")
		return
	}
	logger := s.loggerWith(ctx, "Respond", "user_id", principal.UserID, "meeting_id", input.MeetingID, "response", input.Response)
	defer func() { logOutcome(ctx, logger, err, "meeting response recorded") }()

	if err = requireAuthenticated(principal); err != nil {
		return
	}
	if err = validateInput(input).errOrNil(); err != nil {
		return
	}

	var record persistence.Meeting
	if record, err = s.meetings.GetMeeting(ctx, input.MeetingID); err != nil {
		err = mapStoreError(err, "meeting")
		return
	}
	if !isParticipant(record, principal.UserID) {
		err = forbidden("only invited participants may respond")
		return
	}
	if record.Status == MeetingStatusCancelled {
		err = badRequest("the meeting has been cancelled")
		return
	}

	now := s.now()
	participant := persistence.MeetingParticipant{
		MeetingID:   record.ID,
		UserID:      principal.UserID,
		Response:    input.Response,
		RespondedAt: &now,
	}
	if err = s.meetings.UpdateParticipantResponse(ctx, participant); err != nil {
		err = mapStoreError(err, "participant")
		return
	}
	for i := range record.Participants {
		if record.Participants[i].UserID == principal.UserID {
			record.Participants[i] = participant
		}
	}
	result = meetingFromRecord(record)
	return
}

// Conflicts reports the overlaps a candidate slot would create for the caller and the
// listed participants.
func (s *MeetingService) Conflicts(ctx context.Context, principal Principal, input ConflictsInput) ([]ConflictWarning, error) {
	if s == nil {
		return nil, fmt.Errorf("MeetingService is nil")
	}
	if err := requireAuthenticated(principal); err != nil {
		return nil, err
	}
	vErr := validateInput(input)
	checkTimeOrder(vErr, input.StartTime, input.EndTime)
	if err := vErr.errOrNil(); err != nil {
		return nil, err
	}

	candidate := persistence.Meeting{
		ID:          input.MeetingID,
		OrganizerID: principal.UserID,
		Location:    input.Location,
		StartTime:   input.StartTime,
		EndTime:     input.EndTime,
	}
	for _, id := range participantsExcluding(input.ParticipantIDs, principal.UserID) {
		candidate.Participants = append(candidate.Participants, persistence.MeetingParticipant{UserID: id})
	}
	return s.detectConflicts(ctx, candidate)
}

// upcoming returns the next non-cancelled meetings of a user starting after now.
func (s *MeetingService) upcoming(ctx context.Context, userID string, limit int) ([]Meeting, error) {
	now := s.now()
	records, err := s.meetings.ListMeetings(ctx, persistence.MeetingFilter{UserID: userID, From: &now})
	if err != nil {
		return nil, err
	}
	meetings := make([]Meeting, 0, limit)
	for _, r := range records {
		if !r.StartTime.After(now) {
			continue
		}
		meetings = append(meetings, meetingFromRecord(r))
		if len(meetings) == limit {
			break
		}
	}
	return meetings, nil
}

func (s *MeetingService) ensureParticipants(ctx context.Context, ids []string) error {
	var missing []string
	for _, id := range ids {
		user, err := s.users.GetUser(ctx, id)
		if err != nil {
			if isStoreNotFound(err) {
				missing = append(missing, id)
				continue
			}
			return err
		}
		if !user.Active {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	vErr := &ValidationError{}
	vErr.add("participantIds", fmt.Sprintf("unknown user ids: %s", strings.Join(missing, ", ")))
	return vErr
}

func (s *MeetingService) detectConflicts(ctx context.Context, candidate persistence.Meeting) ([]ConflictWarning, error) {
	from, to := candidate.StartTime, candidate.EndTime
	records, err := s.meetings.ListMeetings(ctx, persistence.MeetingFilter{From: &from, To: &to})
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return []ConflictWarning{}, nil
		}
		return nil, err
	}

	existing := make([]scheduler.Slot, 0, len(records))
	for _, r := range records {
		existing = append(existing, toSlot(r))
	}
	return toConflictWarnings(scheduler.DetectConflicts(existing, toSlot(candidate))), nil
}

func (s *MeetingService) notifyParticipants(ctx context.Context, meeting persistence.Meeting, userIDs []string, kind, title string) {
	start := meeting.StartTime.In(s.location).Format("2006-01-02 15:04")
	for _, id := range userIDs {
		s.notifier.Notify(ctx, NotificationInput{
			UserID:  id,
			Kind:    kind,
			Title:   title,
			Message: fmt.Sprintf("%s (%s)", meeting.Title, start),
			Link:    "/meetings/" + meeting.ID,
		})
	}
}

// toSlot converts a meeting into a scheduler slot. Declined participants are not
// considered busy.
func toSlot(m persistence.Meeting) scheduler.Slot {
	attendees := make([]string, 0, len(m.Participants)+1)
	attendees = append(attendees, m.OrganizerID)
	for _, p := range m.Participants {
		if p.Response == ResponseDeclined {
			continue
		}
		attendees = append(attendees, p.UserID)
	}
	return scheduler.Slot{
		ID:        m.ID,
		Attendees: attendees,
		Location:  m.Location,
		Start:     m.StartTime,
		End:       m.EndTime,
	}
}

func toConflictWarnings(conflicts []scheduler.Conflict) []ConflictWarning {
	warnings := make([]ConflictWarning, 0, len(conflicts))
	for _, c := range conflicts {
		warnings = append(warnings, ConflictWarning{
			MeetingID:     c.WithID,
			Type:          string(c.Type),
			ParticipantID: c.Participant,
			Location:      c.Location,
			Start:         c.Start,
			End:           c.End,
		})
	}
	return warnings
}

func participantsExcluding(ids []string, organizerID string) []string {
	result := make([]string, 0, len(ids))
	for _, id := range uniqueStrings(ids) {
		if id != organizerID {
			result = append(result, id)
		}
	}
	sort.Strings(result)
	return result
}

func participantIDsOf(m persistence.Meeting) []string {
	ids := make([]string, 0, len(m.Participants))
	for _, p := range m.Participants {
		ids = append(ids, p.UserID)
	}
	return ids
}

func isParticipant(m persistence.Meeting, userID string) bool {
	for _, p := range m.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

func checkTimeOrder(vErr *ValidationError, start, end time.Time) {
	if start.IsZero() || end.IsZero() {
		return
	}
	if !end.After(start) {
		vErr.add("endTime", "endTime must be after startTime")
	}
}
