// Group HTTP handlers.
//
// This file exposes REST endpoints for chat groups:
//   - POST   /chat/group/create      (create, caller becomes manager)
//   - PUT    /chat/group/edit        (replace members, optional rename)
//   - DELETE /chat/group/{id}        (delete group and its history)
//   - GET    /chat/groups            (groups of the caller with unread counts)
//   - GET    /chat/groups/{id}       (single group, members only)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-group-chat/internal/domain"
	"github.com/tbourn/go-group-chat/internal/http/middleware"
	"github.com/tbourn/go-group-chat/internal/services"
)

//
// Service contracts (context-aware)
//

// GroupService defines group lifecycle operations consumed by HTTP handlers.
type GroupService interface {
	Create(ctx context.Context, managerID, name string, memberIDs []string) (*domain.Group, []domain.UserGroup, error)
	EditMembership(ctx context.Context, actorID, groupID string, name *string, memberIDs []string) (*domain.Group, error)
	Delete(ctx context.Context, actorID, groupID string) error
	Get(ctx context.Context, userID, groupID string) (*domain.Group, error)
	ListForUser(ctx context.Context, userID string) ([]services.GroupSummary, error)
}

// MessageService defines message send, history, read-marker, and search
// operations.
type MessageService interface {
	Send(ctx context.Context, senderID, groupID, content string) (*domain.Message, error)
	ResolveWindow(ctx context.Context, groupID, callerID string, q services.WindowQuery) ([]domain.Message, error)
	MarkRead(ctx context.Context, groupID, userID, messageID string) error
	Search(ctx context.Context, groupID, query string, limit int) ([]services.SearchHit, error)
}

// UploadService defines chunked upload operations.
type UploadService interface {
	Enabled() bool
	PutChunk(ctx context.Context, userID, uploadID string, index int, data []byte) error
	Complete(ctx context.Context, userID, uploadID string, total int, filename, contentType string) (*services.UploadResult, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for groups, messages, and uploads.
type Handlers struct {
	groupSvc  GroupService
	msgSvc    MessageService
	uploadSvc UploadService
}

// New constructs and returns a Handlers instance bound to the given services.
// uploads may be nil, in which case upload endpoints answer 503.
func New(groupSvc GroupService, msgSvc MessageService, uploadSvc UploadService) *Handlers {
	return &Handlers{groupSvc: groupSvc, msgSvc: msgSvc, uploadSvc: uploadSvc}
}

// db returns the database behind the concrete MessageService, or nil when a
// different implementation is wired (tests).
func (h *Handlers) db() *gorm.DB {
	if svc, ok := h.msgSvc.(*services.MessageService); ok {
		return svc.DB
	}
	return nil
}

// currentUser returns the id set by middleware.Auth, answering 401 when
// absent.
func currentUser(c *gin.Context) (string, bool) {
	uid := middleware.UserID(c)
	if uid == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return "", false
	}
	return uid, true
}

//
// DTOs
//

// CreateGroupRequest is the JSON payload for creating a group. The caller is
// always added as a member.
type CreateGroupRequest struct {
	GroupName string   `json:"groupName" binding:"required" example:"Batch 7 annotators"`
	Members   []string `json:"members" example:"u_anna,u_ben"`
}

// CreateGroupResponse returns the new group and one membership per member.
type CreateGroupResponse struct {
	Envelope
	Group      *domain.Group      `json:"group"`
	UserGroups []domain.UserGroup `json:"userGroups"`
}

// EditGroupRequest replaces the member set; Name renames when present.
type EditGroupRequest struct {
	GroupID string   `json:"groupId" binding:"required" example:"4b1f7f1e-3f0a-4c53-9a69-2a7c3d3f4f10"`
	Name    *string  `json:"name,omitempty" example:"Batch 7 reviewers"`
	Members []string `json:"members" binding:"required" example:"u_anna,u_cara"`
}

// GroupResponse wraps a single group.
type GroupResponse struct {
	Envelope
	Group *domain.Group `json:"group"`
}

// ListGroupsResponse wraps the caller's groups.
type ListGroupsResponse struct {
	Envelope
	Groups []services.GroupSummary `json:"groups"`
}

//
// Handlers
//

// CreateGroup godoc
// @ID          createGroup
// @Summary     Create a chat group
// @Description Creates a group managed by the caller, with one membership record per distinct member (caller included). All writes share one transaction.
// @Tags        Groups
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.CreateGroupRequest  true  "Group payload"
// @Success     200   {object}  handlers.CreateGroupResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401   {object}  handlers.ErrorResponse  "Unauthenticated"
// @Failure     500   {object}  handlers.ErrorResponse  "Internal error"
// @Router      /chat/group/create [post]
func (h *Handlers) CreateGroup(c *gin.Context) {
	uid, okUser := currentUser(c)
	if !okUser {
		return
	}
	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "groupName required")
		return
	}

	g, ugs, err := h.groupSvc.Create(c.Request.Context(), uid, req.GroupName, req.Members)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyGroupName):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "groupName required")
		default:
			middleware.LoggerFrom(c).Error().Err(err).Msg("group create rolled back")
			fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, CreateGroupResponse{Envelope: success(), Group: g, UserGroups: ugs})
}

// EditGroup godoc
// @ID          editGroup
// @Summary     Edit group membership
// @Description Replaces the member list (the manager is always kept) and optionally renames the group. Only the manager may edit.
// @Tags        Groups
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.EditGroupRequest  true  "Edit payload"
// @Success     200   {object}  handlers.GroupResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401   {object}  handlers.ErrorResponse  "Unauthenticated"
// @Failure     403   {object}  handlers.ErrorResponse  "Not the manager"
// @Failure     404   {object}  handlers.ErrorResponse  "Group not found"
// @Failure     500   {object}  handlers.ErrorResponse  "Internal error"
// @Router      /chat/group/edit [put]
func (h *Handlers) EditGroup(c *gin.Context) {
	uid, okUser := currentUser(c)
	if !okUser {
		return
	}
	var req EditGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.GroupID) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "groupId and members required")
		return
	}

	g, err := h.groupSvc.EditMembership(c.Request.Context(), uid, strings.TrimSpace(req.GroupID), req.Name, req.Members)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyGroupName):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name must not be blank")
		case errors.Is(err, services.ErrGroupNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "group not found")
		case errors.Is(err, services.ErrForbidden):
			fail(c, http.StatusForbidden, ErrCodeForbidden, err.Error())
		default:
			middleware.LoggerFrom(c).Error().Err(err).Str("group_id", req.GroupID).Msg("group edit rolled back")
			fail(c, http.StatusInternalServerError, ErrCodeUpdateFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, GroupResponse{Envelope: success(), Group: g})
}

// DeleteGroup godoc
// @ID          deleteGroup
// @Summary     Delete a group
// @Description Deletes the group with its messages and memberships in one transaction. Only the manager may delete.
// @Tags        Groups
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Group ID"
// @Success     200  {object}  handlers.OKResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthenticated"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the manager"
// @Failure     404  {object}  handlers.ErrorResponse  "Group not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /chat/group/{id} [delete]
func (h *Handlers) DeleteGroup(c *gin.Context) {
	uid, okUser := currentUser(c)
	if !okUser {
		return
	}
	groupID := c.Param("id")

	if err := h.groupSvc.Delete(c.Request.Context(), uid, groupID); err != nil {
		switch {
		case errors.Is(err, services.ErrGroupNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "group not found")
		case errors.Is(err, services.ErrForbidden):
			fail(c, http.StatusForbidden, ErrCodeForbidden, err.Error())
		default:
			middleware.LoggerFrom(c).Error().Err(err).Str("group_id", groupID).Msg("group delete rolled back")
			fail(c, http.StatusInternalServerError, ErrCodeDeleteFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, OKResponse{Envelope: success()})
}

// ListGroups godoc
// @ID          listGroups
// @Summary     List the caller's groups
// @Description Returns every group the caller belongs to with its last message and unread count.
// @Tags        Groups
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.ListGroupsResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthenticated"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /chat/groups [get]
func (h *Handlers) ListGroups(c *gin.Context) {
	uid, okUser := currentUser(c)
	if !okUser {
		return
	}
	groups, err := h.groupSvc.ListForUser(c.Request.Context(), uid)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	if groups == nil {
		groups = []services.GroupSummary{}
	}
	ok(c, http.StatusOK, ListGroupsResponse{Envelope: success(), Groups: groups})
}

// GetGroup godoc
// @ID          getGroup
// @Summary     Get a group
// @Description Returns a group with its member list. Only members may read it.
// @Tags        Groups
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Group ID"
// @Success     200  {object}  handlers.GroupResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthenticated"
// @Failure     403  {object}  handlers.ErrorResponse  "Not a member"
// @Failure     404  {object}  handlers.ErrorResponse  "Group not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /chat/groups/{id} [get]
func (h *Handlers) GetGroup(c *gin.Context) {
	uid, okUser := currentUser(c)
	if !okUser {
		return
	}
	g, err := h.groupSvc.Get(c.Request.Context(), uid, c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrGroupNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "group not found")
		case errors.Is(err, services.ErrNotMember):
			fail(c, http.StatusForbidden, ErrCodeNotMember, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, GroupResponse{Envelope: success(), Group: g})
}
