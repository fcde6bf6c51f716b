package mongodb

import (
	"github.com/samber/oops"

	"github.com/geocoder89/tourhub/internal/apperr"
)

const msgStoreUnavailable = "The database is temporarily unavailable, please try again later"

func wrapErr(op string, err error, kv ...any) error {
	return oops.In("mongo").With("op", op).With(kv...).Wrap(err)
}

// storeErr tags err as StoreUnavailable with op context for the logs.
func storeErr(op string, err error, kv ...any) error {
	return apperr.Wrap(apperr.StoreUnavailable, msgStoreUnavailable, wrapErr(op, err, kv...))
}
