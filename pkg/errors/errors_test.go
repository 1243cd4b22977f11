package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/rid-registry/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// New / Wrap
// ─────────────────────────────────────────────────────────────────────────────

func TestNew_FieldsAreSetCorrectly(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		code    errors.ErrorCode
		message string
	}{
		{"internal", errors.CodeInternal, "unexpected failure"},
		{"snapshot not found", errors.CodeSnapshotNotFound, "snapshot 42 not found"},
		{"invalid param", errors.CodeInvalidParam, "category is required"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ae := errors.New(tc.code, tc.message)
			require.NotNil(t, ae)
			assert.Equal(t, tc.code, ae.Code)
			assert.Equal(t, tc.message, ae.Message)
			assert.Empty(t, ae.Detail)
			assert.Nil(t, ae.Cause)
			assert.NotEmpty(t, ae.Stack)
		})
	}
}

func TestError_Format(t *testing.T) {
	ae := errors.New(errors.CodeMissingColumns, "missing columns").WithDetail("registration number")
	assert.Equal(t, "[REG_001] missing columns: registration number", ae.Error())

	wrapped := errors.Wrap(fmt.Errorf("boom"), errors.CodeDBQueryError, "query failed")
	assert.Equal(t, "[COMMON_012] query failed: boom", wrapped.Error())
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, errors.Wrap(nil, errors.CodeInternal, "x"))
	assert.Nil(t, errors.Wrapf(nil, errors.CodeInternal, "x %d", 1))
}

func TestWrap_PreservesCodeWhenUnknown(t *testing.T) {
	inner := errors.New(errors.CodeCategoryNotFound, "category invention missing")
	outer := errors.Wrap(inner, errors.CodeUnknown, "loading category")

	assert.Equal(t, errors.CodeCategoryNotFound, outer.Code)
	assert.True(t, stderrors.Is(outer, inner))
}

func TestWrapf_FormatsMessage(t *testing.T) {
	ae := errors.Wrapf(fmt.Errorf("eof"), errors.CodeSnapshotUnreadable, "snapshot %d", 7)
	assert.Equal(t, "snapshot 7", ae.Message)
	assert.Equal(t, errors.CodeSnapshotUnreadable, ae.Code)
}

// ─────────────────────────────────────────────────────────────────────────────
// Chain inspection
// ─────────────────────────────────────────────────────────────────────────────

func TestIsCode_TraversesChain(t *testing.T) {
	base := errors.Conflict("slug taken")
	chain := fmt.Errorf("outer: %w", errors.Wrap(base, errors.CodeInternal, "insert"))

	assert.True(t, errors.IsCode(chain, errors.CodeConflict))
	assert.True(t, errors.IsCode(chain, errors.CodeInternal))
	assert.False(t, errors.IsCode(chain, errors.CodeNotFound))
	assert.True(t, errors.IsConflict(chain))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, errors.IsNotFound(errors.NotFound("x")))
	assert.True(t, errors.IsNotFound(errors.New(errors.CodeSnapshotNotFound, "x")))
	assert.True(t, errors.IsNotFound(fmt.Errorf("w: %w", errors.New(errors.CodeCategoryNotFound, "x"))))
	assert.False(t, errors.IsNotFound(errors.Internal("x")))
	assert.False(t, errors.IsNotFound(nil))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, errors.CodeOK, errors.GetCode(nil))
	assert.Equal(t, errors.CodeUnknown, errors.GetCode(fmt.Errorf("plain")))
	assert.Equal(t, errors.CodeLockHeld, errors.GetCode(errors.New(errors.CodeLockHeld, "held")))
}

func TestWithDetail_NilSafeAndCopies(t *testing.T) {
	var nilErr *errors.AppError
	assert.Nil(t, nilErr.WithDetail("x"))
	assert.Nil(t, nilErr.WithCause(fmt.Errorf("x")))

	orig := errors.InvalidParam("bad")
	withDetail := orig.WithDetail("field=year")
	assert.Empty(t, orig.Detail)
	assert.Equal(t, "field=year", withDetail.Detail)

	cause := fmt.Errorf("root")
	withCause := orig.WithCause(cause)
	assert.Nil(t, orig.Cause)
	assert.Equal(t, cause, stderrors.Unwrap(withCause))
}
