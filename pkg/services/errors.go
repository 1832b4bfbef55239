package services

import (
	"errors"

	"spaces-backend/pkg/apperr"
	"spaces-backend/pkg/database"
)

// translate 将仓储错误转换为应用错误；已是应用错误的原样返回
func translate(err error, notFound string) error {
	if err == nil {
		return nil
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	if errors.Is(err, database.ErrNotFound) {
		return apperr.New(apperr.NotFound, notFound)
	}
	return apperr.Wrap(apperr.Internal, "database operation failed", err)
}
