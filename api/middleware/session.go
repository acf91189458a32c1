package middleware

import (
	"net/http"
	"time"

	"github.com/armorylabs/armory-backend/api/responses"
	"github.com/armorylabs/armory-backend/pkg/auth"
	"github.com/armorylabs/armory-backend/pkg/config"
	pkgerrors "github.com/armorylabs/armory-backend/pkg/errors"
	"github.com/armorylabs/armory-backend/pkg/logger"
)

// Session resolves the anonymous browsing session from the signed cookie.
// A missing, expired, or tampered cookie silently rotates to a fresh
// session; the storefront never sees an auth failure for browsing.
func Session(cfg config.SessionConfig, secureCookies bool, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			sessionID := ""
			if cookie, err := r.Cookie(cfg.CookieName); err == nil && cookie.Value != "" {
				if claims, parseErr := auth.ParseSessionToken(cfg, cookie.Value); parseErr == nil {
					sessionID = claims.SessionID
				}
			}

			if sessionID == "" {
				token, newSessionID, err := auth.MintSessionToken(cfg, time.Now(), "")
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint session"))
					return
				}
				sessionID = newSessionID
				http.SetCookie(w, &http.Cookie{
					Name:     cfg.CookieName,
					Value:    token,
					Path:     "/",
					MaxAge:   int(cfg.TTL.Seconds()),
					HttpOnly: true,
					Secure:   secureCookies,
					SameSite: http.SameSiteLaxMode,
				})
			}

			ctx = WithSessionID(ctx, sessionID)
			if logg != nil {
				ctx = logg.WithSessionID(ctx, sessionID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
