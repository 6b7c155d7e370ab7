package api

import (
	"net/http"
)

// WhoAmIResponse describes the authenticated caller.
type WhoAmIResponse struct {
	Username string `json:"username"`
	Admin    bool   `json:"admin"`
}

// WhoAmI returns the identity resolved for the current request.
func (a *API) WhoAmI(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}
	writeJSON(w, http.StatusOK, WhoAmIResponse{
		Username: id.Name,
		Admin:    id.IsAdmin,
	})
}

// CACertificate serves the PEM trust anchor the server was started
// with. 404 when the server runs on an externally provisioned
// certificate.
func (a *API) CACertificate(w http.ResponseWriter, r *http.Request) {
	if len(a.caPEM) == 0 {
		writeError(w, http.StatusNotFound, "no CA certificate published")
		return
	}
	w.Header().Set("Content-Type", "application/x-pem-file")
	w.Write(a.caPEM)
}

// Health is the unauthenticated liveness endpoint, mounted outside the
// versioned router.
func Health(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("OK"))
}
