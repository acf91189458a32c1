package controllers

import (
	"net/http"

	"github.com/armorylabs/armory-backend/api/middleware"
	"github.com/armorylabs/armory-backend/api/responses"
)

func PublicPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]string{"scope": "public", "status": "ok"}
		if sid := middleware.SessionIDFromContext(r.Context()); sid != "" {
			payload["session_id"] = sid
		}
		responses.WriteSuccess(w, payload)
	}
}
