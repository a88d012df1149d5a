// Package credentials owns the single upstream credential of the proxy.
//
// A Source is selected once at startup by Resolve, in priority order:
//
//  1. a fixed API key from FACTORY_API_KEY, used as is;
//  2. a refresh token from DROID_REFRESH_KEY;
//  3. a refresh token persisted in the configured storage (a JSON file,
//     ~/.factory/auth.json by default, or the OS keyring);
//  4. none, in which case every client must bring its own Authorization header.
//
// With a refresh token, Store exchanges it for an access token at startup and
// again whenever the cached token is older than the refresh interval. Concurrent
// callers that observe a stale token share one exchange:
//
//	store, err := credentials.Open(ctx, cfg)
//	bearer, err := store.Credential(ctx, r.Header.Get("Authorization"))
//
// The token endpoint rotates the refresh token on every exchange. Both tokens are
// written back by reading the stored document, merging the new values into it and
// writing it back, so fields owned by other tools survive.
package credentials
