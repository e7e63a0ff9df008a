package application

import (
	"context"
	"errors"
	"strings"

	"github.com/example/hrms/internal/persistence"
)

// PasswordHasher derives a storable hash from a plaintext password.
type PasswordHasher func(password string) (string, error)

// PasswordVerifier compares a stored hash with a candidate password.
type PasswordVerifier func(hashedPassword, password string) error

// Notifier delivers best-effort notifications raised by domain events.
type Notifier interface {
	Notify(ctx context.Context, n NotificationInput)
}

// NotificationInput describes a notification raised on behalf of the system.
type NotificationInput struct {
	UserID  string
	Kind    string
	Title   string
	Message string
	Link    string
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, NotificationInput) {}

func notifierOrNoop(n Notifier) Notifier {
	if n == nil {
		return noopNotifier{}
	}
	return n
}

// mapStoreError converts persistence errors into classified application errors.
func mapStoreError(err error, resource string) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		return notFound("%s not found", resource)
	case errors.Is(err, persistence.ErrDuplicate):
		return conflict("%s already exists", resource)
	case errors.Is(err, persistence.ErrForeignKeyViolation):
		return badRequest("%s references a record that does not exist", resource)
	case errors.Is(err, persistence.ErrConstraintViolation):
		return badRequest("%s is invalid", resource)
	}
	return err
}

func isStoreNotFound(err error) bool {
	return errors.Is(err, persistence.ErrNotFound)
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func stringPtrOrNil(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
