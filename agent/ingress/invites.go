package ingress

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	classifyx "github.com/tanpawarit/Vault-Concierge/agent/classify"
	contractx "github.com/tanpawarit/Vault-Concierge/agent/contract"
)

type createInviteRequest struct {
	FirstName         string `json:"firstName"`
	LastName          string `json:"lastName"`
	Phone             string `json:"phone"`
	NominatorFullName string `json:"nominatorFullName"`
	NominatorContext  string `json:"nominatorContext,omitempty"`
}

func (r createInviteRequest) valid() bool {
	for _, v := range []string{r.FirstName, r.LastName, r.Phone, r.NominatorFullName} {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}

type createInviteResponse struct {
	OK       bool   `json:"ok"`
	MemberID string `json:"memberId"`
	InviteID string `json:"inviteId"`
}

func (s *Server) handleCreateInvite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createInviteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !req.valid() {
		writeError(w, http.StatusBadRequest, "firstName, lastName, phone, and nominatorFullName are required")
		return
	}

	member := &contractx.Member{
		FirstName:           strings.TrimSpace(req.FirstName),
		LastName:            strings.TrimSpace(req.LastName),
		Phone:               classifyx.NormalizePhone(req.Phone),
		NominatedByFullName: strings.TrimSpace(req.NominatorFullName),
		NominatorContext:    strings.TrimSpace(req.NominatorContext),
	}
	invite := &contractx.Invite{}

	if err := s.store.CreateMemberWithInvite(ctx, member, invite); err != nil {
		if errors.Is(err, contractx.ErrConflict) {
			writeError(w, http.StatusConflict, "a member with this phone already exists")
			return
		}
		log.Ctx(ctx).Error().Err(err).Msg("create member with invite")
		writeError(w, http.StatusInternalServerError, "unable to create invite")
		return
	}

	if err := s.events.Send(ctx, contractx.InviteQueued{MemberID: member.ID, InviteID: invite.ID}); err != nil {
		// The sweeper re-emits invites that stay queued.
		log.Ctx(ctx).Error().Err(err).Str("invite_id", invite.ID).Msg("emit invite.queued")
	}

	writeJSON(w, http.StatusOK, createInviteResponse{OK: true, MemberID: member.ID, InviteID: invite.ID})
}
