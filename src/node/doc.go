// Package node implements the relationship state machine of a Nexus node.
//
// A node hosts the records of its local users. Friend requests and invites
// always involve two records, usually hosted on two different nodes, and there
// is no transaction spanning both. Every operation is therefore split in two
// halves:
//
// - The acting half runs on the node of the user who acts (sends, accepts,
// denies, unfriends, removes). It commits one local transaction and only then
// pushes a federation message to the counterpart's node.
//
// - The receiving half (Receive) runs on the counterpart's node when the message
// arrives, and applies the symmetric change to the counterpart's record.
//
// The local view can thus be ahead of the remote view, never behind it. The
// push goes through an outbox: if the counterpart's node is unreachable the
// message is journaled and retried in the background, and the acting call
// returns a Receipt with a Pending status instead of an error. Receiving
// halves are idempotent so that retried messages are harmless.
//
// Friend requests
//
//	alice@x                         bob@y
//	SendFriendRequest ---public/post/send-friend-request--->  received
//	sent              <--public/post/accept-friend-request---  AcceptFriendRequest
//	friends += bob                                            friends += alice
//
// DenyFriendRequest mirrors AcceptFriendRequest without the friendship, and
// Unfriend pushes to friend/post/unfriend.
//
// Invites
//
// Invites follow the same shape but never affect friendship. Removal is
// symmetric: AcceptInvite and RemoveInvite, from either side, push the id to
// the counterpart's friend/post/remove-invite route.
package node
