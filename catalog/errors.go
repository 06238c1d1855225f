package catalog

import (
	"fmt"

	"github.com/featurebasedb/lakeingest/errors"
)

const (
	ErrNamespaceExists   errors.Code = "NamespaceExists"
	ErrNamespaceNotFound errors.Code = "NamespaceNotFound"
	ErrTableExists       errors.Code = "TableExists"
	ErrTableNotFound     errors.Code = "TableNotFound"
	ErrCommitConflict    errors.Code = "CommitConflict"
	ErrInvalidArgument   errors.Code = "InvalidArgument"
)

func NewErrNamespaceExists(ns string) error {
	return errors.New(
		ErrNamespaceExists,
		fmt.Sprintf("namespace '%s' already exists", ns),
	)
}

func NewErrNamespaceNotFound(ns string) error {
	return errors.New(
		ErrNamespaceNotFound,
		fmt.Sprintf("namespace '%s' does not exist", ns),
	)
}

func NewErrTableExists(ident TableIdent) error {
	return errors.New(
		ErrTableExists,
		fmt.Sprintf("table '%s' already exists", ident),
	)
}

func NewErrTableNotFound(ident TableIdent) error {
	return errors.New(
		ErrTableNotFound,
		fmt.Sprintf("table '%s' does not exist", ident),
	)
}

func NewErrCommitConflict(ident TableIdent, base, current int64) error {
	return errors.New(
		ErrCommitConflict,
		fmt.Sprintf("commit to '%s' based on snapshot %d conflicts with current snapshot %d", ident, base, current),
	)
}

func NewErrInvalidArgument(msg string) error {
	return errors.New(ErrInvalidArgument, msg)
}
