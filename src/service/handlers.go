package service

import (
	"context"
	"io"
	"net/http"

	"github.com/MalekiRe/nexus-social/src/common"
	"github.com/MalekiRe/nexus-social/src/identity"
	"github.com/MalekiRe/nexus-social/src/node"
	"github.com/MalekiRe/nexus-social/src/outbox"
	"github.com/MalekiRe/nexus-social/src/social"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

/*******************************************************************************
Admin
*******************************************************************************/

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.node.GetStats())
}

// AddUser registers a new local user and returns its global identity.
func (s *Service) AddUser(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]

	if err := s.node.Register(username); err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, s.node.Identity(username))
}

/*******************************************************************************
Private reads
*******************************************************************************/

// user loads the record named in the path, writing the error response if
// there is none.
func (s *Service) user(w http.ResponseWriter, r *http.Request) (*social.UserRecord, bool) {
	u, err := s.node.GetUser(mux.Vars(r)["username"])
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return u, true
}

// GetFriends ...
func (s *Service) GetFriends(w http.ResponseWriter, r *http.Request) {
	if u, ok := s.user(w, r); ok {
		writeJSON(w, http.StatusOK, u.Friends)
	}
}

// GetSentFriendRequests ...
func (s *Service) GetSentFriendRequests(w http.ResponseWriter, r *http.Request) {
	if u, ok := s.user(w, r); ok {
		writeJSON(w, http.StatusOK, u.SentFriendRequests.Sorted())
	}
}

// GetReceivedFriendRequests ...
func (s *Service) GetReceivedFriendRequests(w http.ResponseWriter, r *http.Request) {
	if u, ok := s.user(w, r); ok {
		writeJSON(w, http.StatusOK, u.ReceivedFriendRequests.Sorted())
	}
}

// GetFriendRequest ...
func (s *Service) GetFriendRequest(w http.ResponseWriter, r *http.Request) {
	u, ok := s.user(w, r)
	if !ok {
		return
	}

	fr, err := u.GetFriendRequest(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, fr)
}

// GetSentInvites ...
func (s *Service) GetSentInvites(w http.ResponseWriter, r *http.Request) {
	if u, ok := s.user(w, r); ok {
		writeJSON(w, http.StatusOK, u.SentInvites.Sorted())
	}
}

// GetReceivedInvites ...
func (s *Service) GetReceivedInvites(w http.ResponseWriter, r *http.Request) {
	if u, ok := s.user(w, r); ok {
		writeJSON(w, http.StatusOK, u.ReceivedInvites.Sorted())
	}
}

// GetInvite ...
func (s *Service) GetInvite(w http.ResponseWriter, r *http.Request) {
	u, ok := s.user(w, r)
	if !ok {
		return
	}

	inv, err := u.GetInvite(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, inv)
}

/*******************************************************************************
Private writes
*******************************************************************************/

// sendBody is the body of send-friend-request and send-invite. From may be
// omitted; when present it must be the user named in the path. ID may be
// omitted, in which case the node generates one.
type sendBody struct {
	From identity.Identity `json:"from"`
	To   identity.Identity `json:"to"`
	ID   string            `json:"id"`
}

type sendFunc func(ctx context.Context, username string, to identity.Identity, id string) (node.Receipt, error)

type resolveFunc func(ctx context.Context, username string, id string) (node.Receipt, error)

func (s *Service) send(w http.ResponseWriter, r *http.Request, fn sendFunc) {
	username := mux.Vars(r)["username"]

	var body sendBody
	if err := decode(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.checkFrom(username, body.From); err != nil {
		s.writeError(w, r, err)
		return
	}

	receipt, err := fn(r.Context(), username, body.To, body.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeReceipt(w, receipt)
}

func (s *Service) resolve(w http.ResponseWriter, r *http.Request, fn resolveFunc) {
	username := mux.Vars(r)["username"]

	var id string
	if err := decode(w, r, &id); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := social.ValidateID(id); err != nil {
		s.writeError(w, r, err)
		return
	}

	receipt, err := fn(r.Context(), username, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeReceipt(w, receipt)
}

func (s *Service) checkFrom(username string, from identity.Identity) error {
	if !from.IsZero() && from != s.node.Identity(username) {
		return common.NewErr("Identity", common.Malformed, from.String())
	}
	return nil
}

// SendFriendRequest ...
func (s *Service) SendFriendRequest(w http.ResponseWriter, r *http.Request) {
	s.send(w, r, s.node.SendFriendRequest)
}

// AcceptFriendRequest ...
func (s *Service) AcceptFriendRequest(w http.ResponseWriter, r *http.Request) {
	s.resolve(w, r, s.node.AcceptFriendRequest)
}

// DenyFriendRequest ...
func (s *Service) DenyFriendRequest(w http.ResponseWriter, r *http.Request) {
	s.resolve(w, r, s.node.DenyFriendRequest)
}

// Unfriend ...
func (s *Service) Unfriend(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]

	var notice social.UnfriendRequest
	if err := decode(w, r, &notice); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.checkFrom(username, notice.From); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := social.Validate(notice.To); err != nil {
		s.writeError(w, r, err)
		return
	}

	receipt, err := s.node.Unfriend(r.Context(), username, notice.To)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeReceipt(w, receipt)
}

// SendInvite ...
func (s *Service) SendInvite(w http.ResponseWriter, r *http.Request) {
	s.send(w, r, s.node.SendInvite)
}

// AcceptInvite ...
func (s *Service) AcceptInvite(w http.ResponseWriter, r *http.Request) {
	s.resolve(w, r, s.node.AcceptInvite)
}

// RemoveInvite ...
func (s *Service) RemoveInvite(w http.ResponseWriter, r *http.Request) {
	s.resolve(w, r, s.node.RemoveInvite)
}

/*******************************************************************************
Federation
*******************************************************************************/

// Receive returns the handler of a federation route. The body is handed to
// the node as is.
func (s *Service) Receive(route string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
		if err != nil {
			s.writeError(w, r, common.WrapErr("Message", common.Malformed, "body", err))
			return
		}

		if err := s.node.Receive(r.Context(), mux.Vars(r)["username"], route, body); err != nil {
			s.writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, struct{}{})
	}
}

/*******************************************************************************
Responses
*******************************************************************************/

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Kind    string `json:"kind"`
	Problem string `json:"problem"`
}

// StatusOf maps an error to the HTTP status returned for it.
func StatusOf(err error) int {
	kind, ok := common.KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}

	switch kind {
	case common.NotFound:
		return http.StatusNotFound
	case common.AlreadyExists, common.DuplicateID:
		return http.StatusConflict
	case common.Malformed:
		return http.StatusBadRequest
	case common.Forbidden:
		return http.StatusForbidden
	case common.DeliveryFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// receiptStatus is 200 when the push was delivered, 202 when it is pending
// and 502 when it failed. The local change is committed in all three cases.
func receiptStatus(r node.Receipt) int {
	switch r.Status {
	case outbox.Delivered:
		return http.StatusOK
	case outbox.Pending:
		return http.StatusAccepted
	default:
		return http.StatusBadGateway
	}
}

func writeReceipt(w http.ResponseWriter, r node.Receipt) {
	writeJSON(w, receiptStatus(r), r)
}

func (s *Service) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusOf(err)

	kind := "Internal"
	if k, ok := common.KindOf(err); ok {
		kind = k.String()
	}

	logger := s.logger.WithError(err).WithField("path", r.URL.Path)
	if c, ok := CallerFrom(r.Context()); ok {
		logger = logger.WithFields(logrus.Fields{
			"tier":   c.Tier,
			"remote": c.Remote,
		})
	}
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed")
	} else {
		logger.Debug("Request refused")
	}

	writeJSON(w, status, ErrorResponse{
		Error:   true,
		Kind:    kind,
		Problem: err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decode reads a JSON request body into v.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		return common.WrapErr("Message", common.Malformed, "body", err)
	}
	return nil
}

func (s *Service) notFound(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, common.NewErr("Route", common.NotFound, r.URL.Path))
}

func (s *Service) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{
		Error:   true,
		Kind:    "Method Not Allowed",
		Problem: r.Method + " " + r.URL.Path,
	})
}
