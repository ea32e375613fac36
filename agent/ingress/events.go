package ingress

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Vault-Concierge/agent/contract"
	qstashx "github.com/tanpawarit/Vault-Concierge/pkg/qstash"
)

// handleEvent runs a QStash delivery to completion. Any non-2xx response makes
// QStash redeliver.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unable to read body")
		return
	}

	if err := s.verifier.Verify(r.Header.Get(qstashx.SignatureHeader), body, s.destination); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("rejected event delivery")
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var env contractx.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		writeError(w, http.StatusBadRequest, "invalid envelope")
		return
	}
	evt, err := contractx.DecodeEvent(env)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, contractx.ErrUnknownEvent) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err.Error())
		return
	}

	if err := s.dispatcher.Dispatch(ctx, evt); err != nil {
		writeError(w, http.StatusInternalServerError, "workflow failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
