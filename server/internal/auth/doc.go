// Package auth provides authentication middleware for polyviewd.
//
// APIKey(mode, header, key) returns chi-compatible HTTP middleware that
// validates the API key from the named header or the api_key query
// parameter. When mode != "apikey" or key == "", all requests pass through.
package auth
