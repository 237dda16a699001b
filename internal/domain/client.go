package domain

import (
	"context"
	"net/url"
)

// WAPIClient defines the operations the application layer needs from an
// InfoBlox WAPI endpoint. Paths are relative to /wapi/<version>/ and are
// either an object type ("network", "record:a") or an object reference.
//
// Result values are the decoded JSON bodies: a []any for collection reads,
// a map[string]any for single objects, and a string reference for most
// create/update/delete responses.
type WAPIClient interface {
	// BaseURL returns https://<host>/wapi/<version>.
	BaseURL() string

	Get(ctx context.Context, path string, query url.Values) (any, error)
	Post(ctx context.Context, path string, body any) (any, error)
	Put(ctx context.Context, path string, body any) (any, error)
	Delete(ctx context.Context, path string) (any, error)

	// ObjectSchema fetches <objectType>?_schema.
	ObjectSchema(ctx context.Context, objectType string) (map[string]any, error)

	// ObjectExists probes <objectType>?_max_results=1 and reports whether
	// the appliance answered with a success status.
	ObjectExists(ctx context.Context, objectType string) bool
}
