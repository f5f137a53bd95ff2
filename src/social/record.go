package social

import (
	"bytes"
	"sort"

	"github.com/MalekiRe/nexus-social/src/common"
	"github.com/MalekiRe/nexus-social/src/identity"
	"github.com/ugorji/go/codec"
)

// IDSet is a set of request or invite ids.
type IDSet map[string]bool

// Add ...
func (s IDSet) Add(id string) {
	s[id] = true
}

// Has ...
func (s IDSet) Has(id string) bool {
	return s[id]
}

// Remove deletes id and reports whether it was present.
func (s IDSet) Remove(id string) bool {
	if !s[id] {
		return false
	}
	delete(s, id)
	return true
}

// Sorted returns the ids in lexical order. It never returns nil.
func (s IDSet) Sorted() []string {
	res := make([]string, 0, len(s))
	for id := range s {
		res = append(res, id)
	}
	sort.Strings(res)
	return res
}

// UserRecord is everything a node knows about the relationships of one of its
// local users.
//
// An id is in SentFriendRequests or ReceivedFriendRequests if and only if
// FriendRequests holds its details (and likewise for invites). The methods
// below are the only code that changes these fields, and they always update
// both sides together.
//
// Once a request or invite is resolved its details move to
// ResolvedFriendRequests or ResolvedInvites, where they stay. A late copy of
// the original push is then recognised and ignored instead of reopening it.
type UserRecord struct {
	Friends                []identity.Identity      `codec:"friends"`
	SentFriendRequests     IDSet                    `codec:"sent_friend_requests"`
	ReceivedFriendRequests IDSet                    `codec:"rec_friend_requests"`
	FriendRequests         map[string]FriendRequest `codec:"friend_requests"`
	ResolvedFriendRequests map[string]FriendRequest `codec:"resolved_friend_requests"`
	SentInvites            IDSet                    `codec:"sent_invites"`
	ReceivedInvites        IDSet                    `codec:"rec_invites"`
	Invites                map[string]Invite        `codec:"invites"`
	ResolvedInvites        map[string]Invite        `codec:"resolved_invites"`
}

// NewUserRecord returns an empty record.
func NewUserRecord() *UserRecord {
	u := &UserRecord{}
	u.init()
	return u
}

func (u *UserRecord) init() {
	if u.Friends == nil {
		u.Friends = []identity.Identity{}
	}
	if u.SentFriendRequests == nil {
		u.SentFriendRequests = IDSet{}
	}
	if u.ReceivedFriendRequests == nil {
		u.ReceivedFriendRequests = IDSet{}
	}
	if u.FriendRequests == nil {
		u.FriendRequests = map[string]FriendRequest{}
	}
	if u.ResolvedFriendRequests == nil {
		u.ResolvedFriendRequests = map[string]FriendRequest{}
	}
	if u.SentInvites == nil {
		u.SentInvites = IDSet{}
	}
	if u.ReceivedInvites == nil {
		u.ReceivedInvites = IDSet{}
	}
	if u.Invites == nil {
		u.Invites = map[string]Invite{}
	}
	if u.ResolvedInvites == nil {
		u.ResolvedInvites = map[string]Invite{}
	}
}

/*******************************************************************************
Friends
*******************************************************************************/

// AddFriend appends id unless it is already a friend. Friends behaves as a set
// that keeps insertion order, so repeated accept cycles never duplicate
// entries.
func (u *UserRecord) AddFriend(id identity.Identity) bool {
	if u.IsFriend(id) {
		return false
	}
	u.Friends = append(u.Friends, id)
	return true
}

// RemoveFriend removes every entry equal to id and returns how many there
// were.
func (u *UserRecord) RemoveFriend(id identity.Identity) int {
	kept := u.Friends[:0]
	removed := 0
	for _, f := range u.Friends {
		if f == id {
			removed++
			continue
		}
		kept = append(kept, f)
	}
	u.Friends = kept
	return removed
}

// IsFriend ...
func (u *UserRecord) IsFriend(id identity.Identity) bool {
	for _, f := range u.Friends {
		if f == id {
			return true
		}
	}
	return false
}

/*******************************************************************************
Friend requests
*******************************************************************************/

// GetFriendRequest returns the details of a pending request, sent or received.
func (u *UserRecord) GetFriendRequest(id string) (FriendRequest, error) {
	fr, ok := u.FriendRequests[id]
	if !ok {
		return FriendRequest{}, common.NewErr("FriendRequest", common.NotFound, id)
	}
	return fr, nil
}

// AddSentFriendRequest records a request this user initiated. The id must not
// have been used before, pending or resolved.
func (u *UserRecord) AddSentFriendRequest(fr FriendRequest) error {
	if _, ok := u.FriendRequests[fr.ID]; ok {
		return common.NewErr("FriendRequest", common.DuplicateID, fr.ID)
	}
	if _, ok := u.ResolvedFriendRequests[fr.ID]; ok {
		return common.NewErr("FriendRequest", common.DuplicateID, fr.ID)
	}
	u.FriendRequests[fr.ID] = fr
	u.SentFriendRequests.Add(fr.ID)
	return nil
}

// AddReceivedFriendRequest records a request pushed by another node. Receiving
// the exact same request twice is not an error; the second call returns false.
// The same holds after the request was accepted or denied.
func (u *UserRecord) AddReceivedFriendRequest(fr FriendRequest) (bool, error) {
	if existing, ok := u.FriendRequests[fr.ID]; ok {
		if existing == fr && u.ReceivedFriendRequests.Has(fr.ID) {
			return false, nil
		}
		return false, common.NewErr("FriendRequest", common.DuplicateID, fr.ID)
	}
	if resolved, ok := u.ResolvedFriendRequests[fr.ID]; ok {
		if resolved == fr {
			return false, nil
		}
		return false, common.NewErr("FriendRequest", common.DuplicateID, fr.ID)
	}
	u.FriendRequests[fr.ID] = fr
	u.ReceivedFriendRequests.Add(fr.ID)
	return true, nil
}

// TakeReceivedFriendRequest removes a pending received request and returns it.
func (u *UserRecord) TakeReceivedFriendRequest(id string) (FriendRequest, error) {
	fr, ok := u.FriendRequests[id]
	if !ok || !u.ReceivedFriendRequests.Has(id) {
		return FriendRequest{}, common.NewErr("FriendRequest", common.NotFound, id)
	}
	delete(u.FriendRequests, id)
	u.ReceivedFriendRequests.Remove(id)
	u.ResolvedFriendRequests[id] = fr
	return fr, nil
}

// TakeSentFriendRequest removes a pending sent request and returns it.
func (u *UserRecord) TakeSentFriendRequest(id string) (FriendRequest, error) {
	fr, ok := u.FriendRequests[id]
	if !ok || !u.SentFriendRequests.Has(id) {
		return FriendRequest{}, common.NewErr("FriendRequest", common.NotFound, id)
	}
	delete(u.FriendRequests, id)
	u.SentFriendRequests.Remove(id)
	u.ResolvedFriendRequests[id] = fr
	return fr, nil
}

/*******************************************************************************
Invites
*******************************************************************************/

// GetInvite returns the details of a pending invite, sent or received.
func (u *UserRecord) GetInvite(id string) (Invite, error) {
	inv, ok := u.Invites[id]
	if !ok {
		return Invite{}, common.NewErr("Invite", common.NotFound, id)
	}
	return inv, nil
}

// AddSentInvite records an invite this user initiated. Like friend request ids,
// invite ids are never reused.
func (u *UserRecord) AddSentInvite(inv Invite) error {
	if _, ok := u.Invites[inv.ID]; ok {
		return common.NewErr("Invite", common.DuplicateID, inv.ID)
	}
	if _, ok := u.ResolvedInvites[inv.ID]; ok {
		return common.NewErr("Invite", common.DuplicateID, inv.ID)
	}
	u.Invites[inv.ID] = inv
	u.SentInvites.Add(inv.ID)
	return nil
}

// AddReceivedInvite records an invite pushed by a friend's node. Like
// AddReceivedFriendRequest it tolerates an identical redelivery.
func (u *UserRecord) AddReceivedInvite(inv Invite) (bool, error) {
	if existing, ok := u.Invites[inv.ID]; ok {
		if existing == inv && u.ReceivedInvites.Has(inv.ID) {
			return false, nil
		}
		return false, common.NewErr("Invite", common.DuplicateID, inv.ID)
	}
	if resolved, ok := u.ResolvedInvites[inv.ID]; ok {
		if resolved == inv {
			return false, nil
		}
		return false, common.NewErr("Invite", common.DuplicateID, inv.ID)
	}
	u.Invites[inv.ID] = inv
	u.ReceivedInvites.Add(inv.ID)
	return true, nil
}

// TakeReceivedInvite removes a pending received invite and returns it.
func (u *UserRecord) TakeReceivedInvite(id string) (Invite, error) {
	inv, ok := u.Invites[id]
	if !ok || !u.ReceivedInvites.Has(id) {
		return Invite{}, common.NewErr("Invite", common.NotFound, id)
	}
	delete(u.Invites, id)
	u.ReceivedInvites.Remove(id)
	u.ResolvedInvites[id] = inv
	return inv, nil
}

// TakeInvite removes a pending invite from whichever side holds it. sent
// reports whether it was an invite this user had sent.
func (u *UserRecord) TakeInvite(id string) (inv Invite, sent bool, err error) {
	inv, ok := u.Invites[id]
	if !ok {
		return Invite{}, false, common.NewErr("Invite", common.NotFound, id)
	}
	sent = u.SentInvites.Remove(id)
	if !sent {
		u.ReceivedInvites.Remove(id)
	}
	delete(u.Invites, id)
	u.ResolvedInvites[id] = inv
	return inv, sent, nil
}

/*******************************************************************************
Encoding
*******************************************************************************/

// Marshal - json encoding of UserRecord
func (u *UserRecord) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(u); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal ...
func (u *UserRecord) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	if err := dec.Decode(u); err != nil {
		return err
	}

	u.init()

	return nil
}

// Copy returns a deep copy of the record.
func (u *UserRecord) Copy() (*UserRecord, error) {
	data, err := u.Marshal()
	if err != nil {
		return nil, err
	}
	c := &UserRecord{}
	if err := c.Unmarshal(data); err != nil {
		return nil, err
	}
	return c, nil
}
