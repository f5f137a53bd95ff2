// Package client is a Go client for the HTTP API of Nexus nodes. It talks to
// the private routes on behalf of local users and to the admin routes.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MalekiRe/nexus-social/src/common"
	"github.com/MalekiRe/nexus-social/src/identity"
	"github.com/MalekiRe/nexus-social/src/node"
	"github.com/MalekiRe/nexus-social/src/service"
	"github.com/MalekiRe/nexus-social/src/social"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client ...
type Client struct {
	http *http.Client
}

// NewClient returns a client whose requests are abandoned after timeout.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		http: &http.Client{Timeout: timeout},
	}
}

// AddUser registers user on its home node.
func (c *Client) AddUser(ctx context.Context, user identity.Identity) error {
	url := fmt.Sprintf("http://%s/add-user/%s", user.Node, user.Username)
	return c.do(ctx, http.MethodGet, url, nil, nil)
}

// Stats returns the statistics of a node.
func (c *Client) Stats(ctx context.Context, node string) (map[string]string, error) {
	var stats map[string]string
	err := c.do(ctx, http.MethodGet, "http://"+node+"/stats", nil, &stats)
	return stats, err
}

// Friends ...
func (c *Client) Friends(ctx context.Context, user identity.Identity) ([]identity.Identity, error) {
	var res []identity.Identity
	err := c.get(ctx, user, "private/get/friends", &res)
	return res, err
}

// SentFriendRequests ...
func (c *Client) SentFriendRequests(ctx context.Context, user identity.Identity) ([]string, error) {
	var res []string
	err := c.get(ctx, user, "private/get/sent-friend-requests", &res)
	return res, err
}

// ReceivedFriendRequests ...
func (c *Client) ReceivedFriendRequests(ctx context.Context, user identity.Identity) ([]string, error) {
	var res []string
	err := c.get(ctx, user, "private/get/rec-friend-requests", &res)
	return res, err
}

// FriendRequest ...
func (c *Client) FriendRequest(ctx context.Context, user identity.Identity, id string) (social.FriendRequest, error) {
	var res social.FriendRequest
	err := c.get(ctx, user, "private/get/friend-request/"+id, &res)
	return res, err
}

// SentInvites ...
func (c *Client) SentInvites(ctx context.Context, user identity.Identity) ([]string, error) {
	var res []string
	err := c.get(ctx, user, "private/get/sent-invites", &res)
	return res, err
}

// ReceivedInvites ...
func (c *Client) ReceivedInvites(ctx context.Context, user identity.Identity) ([]string, error) {
	var res []string
	err := c.get(ctx, user, "private/get/rec-invites", &res)
	return res, err
}

// Invite ...
func (c *Client) Invite(ctx context.Context, user identity.Identity, id string) (social.Invite, error) {
	var res social.Invite
	err := c.get(ctx, user, "private/get/invite/"+id, &res)
	return res, err
}

// SendFriendRequest sends fr on behalf of fr.From. An empty fr.ID lets the node
// choose one; it is returned in the Receipt.
func (c *Client) SendFriendRequest(ctx context.Context, fr social.FriendRequest) (node.Receipt, error) {
	return c.post(ctx, fr.From, "private/post/send-friend-request", fr)
}

// AcceptFriendRequest ...
func (c *Client) AcceptFriendRequest(ctx context.Context, user identity.Identity, id string) (node.Receipt, error) {
	return c.post(ctx, user, "private/post/accept-friend-request", id)
}

// DenyFriendRequest ...
func (c *Client) DenyFriendRequest(ctx context.Context, user identity.Identity, id string) (node.Receipt, error) {
	return c.post(ctx, user, "private/post/deny-friend-request", id)
}

// Unfriend ...
func (c *Client) Unfriend(ctx context.Context, user identity.Identity, friend identity.Identity) (node.Receipt, error) {
	return c.post(ctx, user, "private/post/unfriend", social.UnfriendRequest{From: user, To: friend})
}

// SendInvite sends inv on behalf of inv.From.
func (c *Client) SendInvite(ctx context.Context, inv social.Invite) (node.Receipt, error) {
	return c.post(ctx, inv.From, "private/post/send-invite", inv)
}

// AcceptInvite ...
func (c *Client) AcceptInvite(ctx context.Context, user identity.Identity, id string) (node.Receipt, error) {
	return c.post(ctx, user, "private/post/accept-invite", id)
}

// RemoveInvite ...
func (c *Client) RemoveInvite(ctx context.Context, user identity.Identity, id string) (node.Receipt, error) {
	return c.post(ctx, user, "private/post/remove-invite", id)
}

func (c *Client) get(ctx context.Context, user identity.Identity, route string, out interface{}) error {
	return c.do(ctx, http.MethodGet, user.BaseURL()+"/"+route, nil, out)
}

// post returns the Receipt of an acting operation. A Receipt is returned
// whenever the node committed the change, even if it could not deliver it.
func (c *Client) post(ctx context.Context, user identity.Identity, route string, in interface{}) (node.Receipt, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return node.Receipt{}, err
	}

	var receipt node.Receipt
	err = c.do(ctx, http.MethodPost, user.BaseURL()+"/"+route, body, &receipt)

	return receipt, err
}

// do sends a request and decodes a successful response into out. Error
// responses are turned back into errors of the kind the node reported.
func (c *Client) do(ctx context.Context, method, url string, body []byte, out interface{}) error {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, url, err)
	}

	var e service.ErrorResponse
	if resp.StatusCode >= 400 && json.Unmarshal(data, &e) == nil && e.Error {
		kind, ok := common.ParseErrKind(e.Kind)
		if !ok {
			return fmt.Errorf("%s %s: %s: %s", method, url, resp.Status, e.Problem)
		}
		return common.WrapErr("Response", kind, url, errors.New(e.Problem))
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("%s %s: %s: %w", method, url, resp.Status, err)
		}
	}

	return nil
}
