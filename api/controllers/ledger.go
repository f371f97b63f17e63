package controllers

import (
	"net/http"

	"github.com/angelmondragon/barter-backend/api/responses"
	"github.com/angelmondragon/barter-backend/api/validators"
	"github.com/angelmondragon/barter-backend/internal/ledger"
	"github.com/angelmondragon/barter-backend/pkg/db/models"
	"github.com/angelmondragon/barter-backend/pkg/logger"
)

// ListUserTransactions returns every completed trade the user took part in,
// on either side, oldest first.
func ListUserTransactions(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := validators.ParseID(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		history, err := svc.ListForUser(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if history == nil {
			history = []models.TradeTransaction{}
		}
		responses.WriteSuccess(w, history)
	}
}
