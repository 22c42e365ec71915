package handler

import (
	"net/http"

	"linechat/internal/pkg/errs"
	"linechat/internal/pkg/logx"
	"linechat/internal/pkg/resp"
)

// HandlePresence returns every registered account with its online flag.
func HandlePresence(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := deps.Manager.Presence(r.Context())
		if err != nil {
			logx.Error(err, "Failed to build presence snapshot")
			resp.RespondError(w, r, errs.NewError(errs.ErrStoreFailed))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"users":  users,
			"online": deps.Manager.Registry().Len(),
		})
	}
}
