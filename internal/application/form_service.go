package application

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/hrms/internal/persistence"
)

// Form submission states.
const (
	FormStatusPending  = "pending"
	FormStatusApproved = "approved"
	FormStatusRejected = "rejected"
)

// FormInput describes a new form submission. Data must be a JSON object.
type FormInput struct {
	FormType string          `json:"formType" validate:"required,oneof=expense equipment overtime general"`
	Title    string          `json:"title" validate:"required,max=200"`
	Data     json.RawMessage `json:"data"`
}

// ListFormsInput filters form listings.
type ListFormsInput struct {
	Status   string `json:"status" validate:"omitempty,oneof=pending approved rejected"`
	FormType string `json:"formType" validate:"omitempty,oneof=expense equipment overtime general"`
}

// FormService handles generic request forms.
type FormService struct {
	forms       persistence.FormRepository
	notifier    Notifier
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewFormService constructs a FormService.
func NewFormService(forms persistence.FormRepository, notifier Notifier, idGenerator func() string, now func() time.Time) *FormService {
	return NewFormServiceWithLogger(forms, notifier, idGenerator, now, nil)
}

// NewFormServiceWithLogger constructs a FormService with a specified logger.
func NewFormServiceWithLogger(forms persistence.FormRepository, notifier Notifier, idGenerator func() string, now func() time.Time, logger *slog.Logger) *FormService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &FormService{
		forms:       forms,
		notifier:    notifierOrNoop(notifier),
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *FormService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "FormService", operation, attrs...)
}

// Submit stores a new pending submission for the caller.
func (s *FormService) Submit(ctx context.Context, principal Principal, input FormInput) (result FormSubmission, err error) {
	if s == nil {
		err = fmt.Errorf("FormService is nil")
		return
	}
	logger := s.loggerWith(ctx, "Submit", "user_id", principal.UserID, "form_type", input.FormType)
	defer func() { logOutcome(ctx, logger, err, "form submitted", "form_id", result.ID) }()

	if err = requireAuthenticated(principal); err != nil {
		return
	}
	input.Title = strings.TrimSpace(input.Title)
	vErr := validateInput(input)
	data, ok := normalizeFormData(input.Data)
	if !ok {
		vErr.add("data", "data must be a JSON object")
	}
	if err = vErr.errOrNil(); err != nil {
		return
	}

	now := s.now()
	record := persistence.FormSubmission{
		ID:        s.idGenerator(),
		UserID:    principal.UserID,
		FormType:  input.FormType,
		Title:     input.Title,
		Data:      data,
		Status:    FormStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err = s.forms.CreateForm(ctx, record); err != nil {
		err = mapStoreError(err, "form")
		return
	}
	result = formFromRecord(record)
	return
}

// Mine lists the caller's submissions.
func (s *FormService) Mine(ctx context.Context, principal Principal, input ListFormsInput) ([]FormSubmission, error) {
	if s == nil {
		return nil, fmt.Errorf("FormService is nil")
	}
	if err := requireAuthenticated(principal); err != nil {
		return nil, err
	}
	return s.list(ctx, principal.UserID, input)
}

// List lists every submission for administrators.
func (s *FormService) List(ctx context.Context, principal Principal, input ListFormsInput) ([]FormSubmission, error) {
	if s == nil {
		return nil, fmt.Errorf("FormService is nil")
	}
	if err := requireAdmin(principal); err != nil {
		return nil, err
	}
	return s.list(ctx, "", input)
}

func (s *FormService) list(ctx context.Context, userID string, input ListFormsInput) ([]FormSubmission, error) {
	if err := validateInput(input).errOrNil(); err != nil {
		return nil, err
	}
	records, err := s.forms.ListForms(ctx, persistence.FormFilter{UserID: userID, Status: input.Status, FormType: input.FormType})
	if err != nil {
		return nil, err
	}
	result := make([]FormSubmission, 0, len(records))
	for _, r := range records {
		result = append(result, formFromRecord(r))
	}
	return result, nil
}

// Get returns a submission to its owner or an administrator.
func (s *FormService) Get(ctx context.Context, principal Principal, id string) (FormSubmission, error) {
	if s == nil {
		return FormSubmission{}, fmt.Errorf("FormService is nil")
	}
	if err := requireAuthenticated(principal); err != nil {
		return FormSubmission{}, err
	}
	record, err := s.forms.GetForm(ctx, id)
	if err != nil {
		return FormSubmission{}, mapStoreError(err, "form")
	}
	if record.UserID != principal.UserID && !principal.IsAdmin() {
		return FormSubmission{}, forbidden("the form belongs to another user")
	}
	return formFromRecord(record), nil
}

// Resolve approves or rejects a pending submission and notifies its owner.
func (s *FormService) Resolve(ctx context.Context, principal Principal, input ResolveInput) (result FormSubmission, err error) {
	if s == nil {
		err = fmt.Errorf("FormService is nil")
		return
	}
	logger := s.loggerWith(ctx, "Resolve", "user_id", principal.UserID, "form_id", input.ID, "decision", input.Decision)
	defer func() { logOutcome(ctx, logger, err, "form resolved") }()

	if err = requireAdmin(principal); err != nil {
		return
	}
	if err = validateInput(input).errOrNil(); err != nil {
		return
	}

	var record persistence.FormSubmission
	if record, err = s.forms.GetForm(ctx, input.ID); err != nil {
		err = mapStoreError(err, "form")
		return
	}
	if record.Status != FormStatusPending {
		err = badRequest("only pending forms can be resolved")
		return
	}

	now := s.now()
	reviewer := principal.UserID
	record.Status = input.Decision
	record.ReviewerID = &reviewer
	record.ReviewNote = strings.TrimSpace(input.Note)
	record.ReviewedAt = &now
	record.UpdatedAt = now
	if err = s.forms.UpdateFormStatus(ctx, record, FormStatusPending); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			err = badRequest("the form is no longer pending")
			return
		}
		err = mapStoreError(err, "form")
		return
	}

	title := "申請が却下されました"
	if input.Decision == FormStatusApproved {
		title = "申請が承認されました"
	}
	s.notifier.Notify(ctx, NotificationInput{
		UserID:  record.UserID,
		Kind:    NotificationFormResolved,
		Title:   title,
		Message: record.Title,
		Link:    "/forms/" + record.ID,
	})

	result = formFromRecord(record)
	return
}

// Withdraw deletes one of the caller's pending submissions.
func (s *FormService) Withdraw(ctx context.Context, principal Principal, id string) (err error) {
	if s == nil {
		return fmt.Errorf("FormService is nil")
	}
	logger := s.loggerWith(ctx, "Withdraw", "user_id", principal.UserID, "form_id", id)
	defer func() { logOutcome(ctx, logger, err, "form withdrawn") }()

	if err = requireAuthenticated(principal); err != nil {
		return
	}

	var record persistence.FormSubmission
	if record, err = s.forms.GetForm(ctx, id); err != nil {
		err = mapStoreError(err, "form")
		return
	}
	if record.UserID != principal.UserID {
		err = forbidden("only the submitter may withdraw a form")
		return
	}
	if record.Status != FormStatusPending {
		err = badRequest("only pending forms can be withdrawn")
		return
	}
	if err = s.forms.DeleteForm(ctx, id, FormStatusPending); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			err = badRequest("the form is no longer pending")
			return
		}
		err = mapStoreError(err, "form")
	}
	return
}

// normalizeFormData compacts a JSON object payload. An empty payload becomes {}.
func normalizeFormData(raw json.RawMessage) (string, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "{}", true
	}
	var obj map[string]any
	if err := json.Unmarshal(trimmed, &obj); err != nil || obj == nil {
		return "", false
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return "", false
	}
	return buf.String(), true
}
