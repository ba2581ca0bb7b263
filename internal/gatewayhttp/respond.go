package gatewayhttp

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/scottopell/phoenix-ide/internal/statemachine"
	"github.com/scottopell/phoenix-ide/internal/storage"
	"github.com/scottopell/phoenix-ide/pkg/convcore"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeDispatchError maps a Dispatch failure to an HTTP status per spec.md
// §7's propagation policy: pure transition errors (AgentBusy,
// InvalidTransition, CancellationInProgress) return synchronously and carry
// their own status, everything else is a 500.
func writeDispatchError(w http.ResponseWriter, err error) {
	var te *statemachine.TransitionError
	if errors.As(err, &te) {
		status := http.StatusConflict
		if te.Kind == convcore.ErrorKindInvalidTransition {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, map[string]string{"error": te.Message, "kind": string(te.Kind)})
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

// writeStoreError maps a storage-layer failure: storage.ErrNotFound becomes
// 404, everything else is a 500.
func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
