package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/armorylabs/armory-backend/api/responses"
	"github.com/armorylabs/armory-backend/pkg/config"
	pkgerrors "github.com/armorylabs/armory-backend/pkg/errors"
	"github.com/armorylabs/armory-backend/pkg/logger"
)

const readinessTimeout = 5 * time.Second

type pinger interface {
	Ping(context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Armory-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports ready only when the hard dependencies answer.
func HealthReady(cfg *config.Config, logg *logger.Logger, db pinger, cache pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Armory-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		checks := map[string]string{}
		ready := true
		for name, dep := range map[string]pinger{"database": db, "redis": cache} {
			if dep == nil {
				checks[name] = "not configured"
				ready = false
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				if logg != nil {
					logg.Error(ctx, name+" readiness ping failed", err)
				}
				checks[name] = "down"
				ready = false
				continue
			}
			checks[name] = "ok"
		}

		if !ready {
			responses.WriteError(ctx, logg, w,
				pkgerrors.New(pkgerrors.CodeDependency, "dependencies unavailable").WithDetails(checks))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
