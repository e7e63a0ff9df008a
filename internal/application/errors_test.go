package application

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError_Error(t *testing.T) {
	t.Parallel()

	var err *ValidationError
	assert.Empty(t, err.Error())

	empty := &ValidationError{}
	assert.Equal(t, "validation failed", empty.Error())

	withFields := &ValidationError{FieldErrors: map[string]string{"startDate": "invalid", "email": "required"}}
	assert.Equal(t, "validation failed: email, startDate", withFields.Error())
}

func TestValidationError_AddAndMerge(t *testing.T) {
	t.Parallel()

	base := &ValidationError{}
	assert.NoError(t, base.errOrNil())
	base.add("first", "value")
	base.add("first", "ignored")
	assert.Equal(t, "value", base.FieldErrors["first"])

	base.merge(&ValidationError{FieldErrors: map[string]string{"second": "another"}})
	base.merge(nil)
	assert.Equal(t, map[string]string{"first": "value", "second": "another"}, base.FieldErrors)
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"validation", &ValidationError{FieldErrors: map[string]string{"a": "b"}}, KindBadRequest},
		{"request error", conflict("already exists"), KindConflict},
		{"wrapped request error", fmt.Errorf("outer: %w", forbidden("admins only")), KindForbidden},
		{"credentials", ErrInvalidCredentials, KindUnauthorized},
		{"two factor", ErrInvalidTwoFactorCode, KindUnauthorized},
		{"not found", fmt.Errorf("load: %w", ErrNotFound), KindNotFound},
		{"bad request sentinel", ErrBadRequest, KindBadRequest},
		{"unknown", errors.New("disk full"), KindInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, KindOf(tc.err))
		})
	}
}

func TestRequestErrorUnwrapsToSentinel(t *testing.T) {
	t.Parallel()

	err := notFound("leave request %s not found", "leave-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "leave request leave-1 not found", err.Error())
	assert.ErrorIs(t, badRequest("no active entry"), ErrBadRequest)
}
