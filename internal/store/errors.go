package store

import (
	pkgerrors "github.com/angelmondragon/fieldsync/pkg/errors"
)

// ErrNotInitialized is returned by every operation before Init succeeds or after Close.
var ErrNotInitialized = pkgerrors.New(pkgerrors.CodeStorageUnavailable, "local store is not initialized")

// NotFound builds the error returned when an addressed row is absent.
func NotFound(entity, id string) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, entity+" not found").
		WithDetails(map[string]any{"entity": entity, "id": id})
}

// Unavailable wraps an engine failure as StorageUnavailable.
func Unavailable(err error, op string) error {
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeStorageUnavailable, err, op)
}
