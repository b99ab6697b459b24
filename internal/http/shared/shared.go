// Package shared holds the JSON response helpers every handler uses so error
// envelopes stay consistent across the API.
package shared

import (
	"context"
	"encoding/json"
	"net/http"

	dErrors "pulse-analytics/pkg/domain-errors"
	"pulse-analytics/pkg/requestcontext"
)

// WriteJSON writes a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// CheckOwner rejects access to another user's resources. Compares the
// authenticated user set by RequireAuth against the user the request targets.
// An empty authenticated user means authentication is disabled for this
// deployment and ownership is not enforced.
func CheckOwner(ctx context.Context, userID string) error {
	if authUser := requestcontext.UserID(ctx); authUser != "" && authUser != userID {
		return dErrors.New(dErrors.CodeForbidden, "cannot access another user's data")
	}
	return nil
}

// WriteError translates a domain error into the JSON error envelope. Internal
// errors omit the description so store details never leak to clients.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	body := map[string]string{"error": string(code)}
	if code != dErrors.CodeInternal {
		body["error_description"] = dErrors.MessageOf(err)
	}
	WriteJSON(w, dErrors.ToHTTPStatus(code), body)
}
