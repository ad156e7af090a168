package datastore

import (
	"github.com/agrilens/agrilens-go/internal/errors"
)

// dbError wraps err as a database-category error for backend and operation.
func dbError(err error, backend, operation string) error {
	if err == nil {
		return nil
	}
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("backend", backend).
		Context("operation", operation).
		Build()
}

// configError reports an unusable backend configuration.
func configError(format string, args ...any) error {
	return errors.Newf(format, args...).
		Component("datastore").
		Category(errors.CategoryConfiguration).
		Build()
}
