package workflows

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.temporal.io/sdk/temporal"

	"github.com/samirrijal/pharmacover/internal/core/domain"
)

func TestApplicationError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{domain.ErrNoResults, ErrTypeNoResults},
		{fmt.Errorf("charge: %w", domain.ErrInsufficientCredits), ErrTypeInsufficientCredits},
		{domain.ErrInvalidRegion, ErrTypeInvalidInput},
		{domain.ErrAreaTooLarge, ErrTypeInvalidInput},
		{domain.ErrSearchNameTaken, ErrTypeConflict},
		{domain.ErrNotFound, ErrTypeNotFound},
	}
	for _, tt := range tests {
		var appErr *temporal.ApplicationError
		if assert.True(t, errors.As(applicationError(tt.err), &appErr), tt.err) {
			assert.Equal(t, tt.want, appErr.Type())
			assert.True(t, appErr.NonRetryable())
		}
	}

	plain := errors.New("connection reset")
	assert.Same(t, plain, applicationError(plain))
	assert.NoError(t, applicationError(nil))
}
