package errors_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/featurebasedb/lakeingest/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrors(t *testing.T) {
	t.Run("Is", func(t *testing.T) {
		uncoded := newUncoded("uncoded error")
		tnf := newErrTableNotFound("farm.orders")
		conflict := newErrCommitConflict("farm.orders")
		tnfCustom := errors.New(errTableNotFound, "custom table message")

		tests := []struct {
			err    error
			target errors.Code
			exp    bool
		}{
			{
				err:    uncoded,
				target: errUncoded,
				exp:    true,
			},
			{
				err:    uncoded,
				target: errTableNotFound,
				exp:    false,
			},
			{
				err:    tnf,
				target: errTableNotFound,
				exp:    true,
			},
			{
				err:    tnf,
				target: errCommitConflict,
				exp:    false,
			},
			{
				err:    errors.Wrap(conflict, "with message"),
				target: errCommitConflict,
				exp:    true,
			},
			{
				err:    tnfCustom,
				target: errTableNotFound,
				exp:    true,
			},
		}

		for i, test := range tests {
			t.Run(fmt.Sprintf("test-%d", i), func(t *testing.T) {
				got := errors.Is(test.err, test.target)
				assert.Equal(t, test.exp, got)
			})
		}
	})

	t.Run("CodeOf", func(t *testing.T) {
		assert.Equal(t, errCommitConflict, errors.CodeOf(errors.Wrap(newErrCommitConflict("t"), "appending")))
		assert.Equal(t, errors.Code(""), errors.CodeOf(errors.Errorf("plain")))
	})

	t.Run("JSONRoundTrip", func(t *testing.T) {
		orig := errors.Wrap(newErrTableNotFound("farm.orders"), "loading table")
		s := errors.MarshalJSON(orig)

		got := errors.UnmarshalJSON(strings.NewReader(s))
		assert.True(t, errors.Is(got, errTableNotFound))
		assert.Equal(t, orig.Error(), got.Error())
	})

	t.Run("UnmarshalNonJSON", func(t *testing.T) {
		got := errors.UnmarshalJSON(strings.NewReader("bad gateway"))
		assert.Equal(t, "bad gateway", got.Error())
		assert.Equal(t, errors.Code(""), errors.CodeOf(got))
	})
}

// Test error codes.

const (
	errUncoded        errors.Code = "Uncoded"
	errTableNotFound  errors.Code = "TableNotFound"
	errCommitConflict errors.Code = "CommitConflict"
)

func newUncoded(message string) error {
	return errors.New(
		errUncoded,
		message,
	)
}

func newErrTableNotFound(table string) error {
	return errors.New(
		errTableNotFound,
		"table not found: "+table,
	)
}

func newErrCommitConflict(table string) error {
	return errors.New(
		errCommitConflict,
		"commit conflict: "+table,
	)
}
