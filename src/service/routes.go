package service

import (
	"net/http"
	"strings"

	"github.com/MalekiRe/nexus-social/src/net"
)

// registerHandlers registers the API handlers with the router of the service.
func (s *Service) registerHandlers() {
	s.logger.Debug("Registering Nexus API handlers")

	r := s.router

	// admin
	r.HandleFunc("/stats", s.tier(Admin, s.GetStats)).Methods("GET")
	r.HandleFunc("/add-user/{username}", s.tier(Admin, s.AddUser)).Methods("GET")

	// private reads
	r.HandleFunc("/{username}/private/get/friends", s.tier(Private, s.GetFriends)).Methods("GET")
	r.HandleFunc("/{username}/private/get/sent-friend-requests", s.tier(Private, s.GetSentFriendRequests)).Methods("GET")
	r.HandleFunc("/{username}/private/get/rec-friend-requests", s.tier(Private, s.GetReceivedFriendRequests)).Methods("GET")
	r.HandleFunc("/{username}/private/get/friend-request/{id}", s.tier(Private, s.GetFriendRequest)).Methods("GET")
	r.HandleFunc("/{username}/private/get/sent-invites", s.tier(Private, s.GetSentInvites)).Methods("GET")
	r.HandleFunc("/{username}/private/get/rec-invites", s.tier(Private, s.GetReceivedInvites)).Methods("GET")
	r.HandleFunc("/{username}/private/get/invite/{id}", s.tier(Private, s.GetInvite)).Methods("GET")

	// private writes
	r.HandleFunc("/{username}/private/post/send-friend-request", s.tier(Private, s.SendFriendRequest)).Methods("POST")
	r.HandleFunc("/{username}/private/post/accept-friend-request", s.tier(Private, s.AcceptFriendRequest)).Methods("POST")
	r.HandleFunc("/{username}/private/post/deny-friend-request", s.tier(Private, s.DenyFriendRequest)).Methods("POST")
	r.HandleFunc("/{username}/private/post/unfriend", s.tier(Private, s.Unfriend)).Methods("POST")
	r.HandleFunc("/{username}/private/post/send-invite", s.tier(Private, s.SendInvite)).Methods("POST")
	r.HandleFunc("/{username}/private/post/accept-invite", s.tier(Private, s.AcceptInvite)).Methods("POST")
	r.HandleFunc("/{username}/private/post/remove-invite", s.tier(Private, s.RemoveInvite)).Methods("POST")

	// federation
	for _, route := range net.Routes {
		r.HandleFunc("/{username}/"+route, s.tier(routeTier(route), s.Receive(route))).Methods("POST")
	}

	r.NotFoundHandler = http.HandlerFunc(s.notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(s.methodNotAllowed)
}

func routeTier(route string) Tier {
	if strings.HasPrefix(route, "friend/") {
		return Friend
	}
	return Public
}
