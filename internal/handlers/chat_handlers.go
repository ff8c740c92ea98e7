package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/pelusa-v/threadchat/internal/apperr"
	"github.com/pelusa-v/threadchat/internal/messages"
)

type postRequest struct {
	Text      string `json:"text"`
	ChannelID string `json:"channelId"`
	ParentID  string `json:"parentId"`
}

type forwardRequest struct {
	Comment   string `json:"comment"`
	ChannelID string `json:"channelId"`
	ThreadID  string `json:"threadId"`
}

type reactionRequest struct {
	Key string `json:"key"`
}

type threadResponse struct {
	Root    messages.Root      `json:"root"`
	Replies []messages.Message `json:"replies"`
}

// validID reports whether id has the shape of a message id.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (a *API) listRoots(c *fiber.Ctx, channelID string) error {
	if _, err := a.Channels.Get(channelID); err != nil {
		return err
	}
	return c.JSON(a.Messages.ListRoots(channelID, messages.ParseOrder(c.Query("order"))))
}

// ChannelRootsHandler GET /api/v1/channels/:channelId/messages?order=asc|desc
func (a *API) ChannelRootsHandler(c *fiber.Ctx) error {
	return a.listRoots(c, c.Params("channelId"))
}

// ListRootsHandler GET /api/v1/messages?channelId=&order=
func (a *API) ListRootsHandler(c *fiber.Ctx) error {
	return a.listRoots(c, c.Query("channelId", messages.DefaultChannel))
}

// ThreadHandler GET /api/v1/threads/:tid
func (a *API) ThreadHandler(c *fiber.Ctx) error {
	tid := c.Params("tid")
	if !validID(tid) {
		return apperr.ErrInvalidThreadID
	}
	// one read so replyCount always matches the replies returned
	thread := a.Messages.ListThread(tid)
	if len(thread) == 0 {
		return apperr.ErrNoSuchThread
	}
	return c.JSON(threadResponse{
		Root:    messages.Root{Message: thread[0], ReplyCount: len(thread) - 1},
		Replies: append([]messages.Message{}, thread[1:]...),
	})
}

// PostMessageHandler POST /api/v1/messages
func (a *API) PostMessageHandler(c *fiber.Ctx) error {
	var req postRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	m, err := a.Messages.Add(c.UserContext(), currentUser(c), req.Text, messages.AddOptions{
		ChannelID: strings.TrimSpace(req.ChannelID),
	})
	if err != nil {
		return err
	}
	return c.JSON(m)
}

// PostReplyHandler POST /api/v1/threads/:tid
func (a *API) PostReplyHandler(c *fiber.Ctx) error {
	var req postRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Text) == "" {
		return apperr.ErrRequiredMessage
	}
	tid := c.Params("tid")
	if !validID(tid) {
		return apperr.ErrInvalidThreadID
	}
	if req.ParentID != "" && !validID(req.ParentID) {
		return apperr.ErrInvalidParent
	}
	m, err := a.Messages.Add(c.UserContext(), currentUser(c), req.Text, messages.AddOptions{
		ThreadID: tid,
		ParentID: req.ParentID,
	})
	if err != nil {
		return err
	}
	return c.JSON(m)
}

// EditMessageHandler PATCH /api/v1/messages/:id
func (a *API) EditMessageHandler(c *fiber.Ctx) error {
	var req postRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Text) == "" {
		return apperr.ErrRequiredMessage
	}
	id := c.Params("id")
	if !validID(id) {
		return apperr.ErrNoSuchMessage
	}
	m, err := a.Messages.Update(c.UserContext(), id, currentUser(c), req.Text)
	if err != nil {
		return err
	}
	return c.JSON(m)
}

// ForwardHandler POST /api/v1/messages/:id/forward
func (a *API) ForwardHandler(c *fiber.Ctx) error {
	var req forwardRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	id := c.Params("id")
	if !validID(id) {
		return apperr.ErrNoSuchMessage
	}
	if req.ThreadID != "" && !validID(req.ThreadID) {
		return apperr.ErrInvalidThreadID
	}
	m, err := a.Messages.Forward(c.UserContext(), currentUser(c), id, req.Comment, messages.ForwardOptions{
		ChannelID: strings.TrimSpace(req.ChannelID),
		ThreadID:  req.ThreadID,
	})
	if err != nil {
		return err
	}
	return c.JSON(m)
}

// AddReactionHandler POST /api/v1/messages/:id/reactions
func (a *API) AddReactionHandler(c *fiber.Ctx) error {
	var req reactionRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	id := c.Params("id")
	if !validID(id) {
		return apperr.ErrNoSuchID
	}
	m, err := a.Messages.AddReaction(c.UserContext(), id, currentUser(c), req.Key)
	if err != nil {
		return err
	}
	return c.JSON(m)
}

// RemoveReactionHandler DELETE /api/v1/messages/:id/reactions/:key
func (a *API) RemoveReactionHandler(c *fiber.Ctx) error {
	id := c.Params("id")
	if !validID(id) {
		return apperr.ErrNoSuchID
	}
	m, err := a.Messages.RemoveReaction(c.UserContext(), id, currentUser(c), c.Params("key"))
	if err != nil {
		return err
	}
	return c.JSON(m)
}
