package handlers

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"intake/internal/models"
	"intake/internal/services"
	"intake/internal/utils"
)

type SessionHandler struct {
	Identifiers *services.IdentifierService
	Sessions    *services.SessionService
	Tokens      *utils.SessionTokens
}

func NewSessionHandler(ids *services.IdentifierService, sessions *services.SessionService, tokens *utils.SessionTokens) *SessionHandler {
	return &SessionHandler{Identifiers: ids, Sessions: sessions, Tokens: tokens}
}

type CreateSessionResponse struct {
	ID        string              `json:"id"`
	State     models.SessionState `json:"state"`
	Token     string              `json:"token"`
	ExpiresAt time.Time           `json:"expires_at"`
}

type ProfileRequest struct {
	DisplayName string `json:"display_name" validate:"required"`
}

// @Summary      Start a session
// @Description  Issues a new session identifier and a bearer token bound to it
// @Tags         Sessions
// @Produce      json
// @Success      201  {object}  CreateSessionResponse
// @Failure      429  {object}  ErrorResponse
// @Failure      503  {object}  ErrorResponse
// @Router       /sessions [post]
func (h *SessionHandler) Create(c *gin.Context) {
	sess, err := h.Identifiers.IssueIdentifier(c.Request.Context())
	if err != nil {
		respondError(c, "session.create", err)
		return
	}
	token, exp, err := h.Tokens.Sign(sess.ID)
	if err != nil {
		log.Printf("[session][create] sign token session_id=%s err=%v", sess.ID, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error", Code: services.KindInternal.String()})
		return
	}
	c.JSON(http.StatusCreated, CreateSessionResponse{
		ID:        sess.ID,
		State:     sess.State,
		Token:     token,
		ExpiresAt: exp,
	})
}

// @Summary      Get a session
// @Tags         Sessions
// @Produce      json
// @Security     SessionToken
// @Param        id   path      string  true  "Session id"
// @Success      200  {object}  models.Session
// @Failure      401  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /sessions/{id} [get]
func (h *SessionHandler) Get(c *gin.Context) {
	sess, err := h.Sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "session.get", err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// @Summary      Set the display name
// @Tags         Sessions
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        id       path      string          true  "Session id"
// @Param        profile  body      ProfileRequest  true  "Profile"
// @Success      200      {object}  models.Session
// @Failure      400      {object}  ErrorResponse
// @Failure      409      {object}  ErrorResponse
// @Router       /sessions/{id}/profile [put]
func (h *SessionHandler) UpdateProfile(c *gin.Context) {
	var req ProfileRequest
	if !bindJSON(c, &req) {
		return
	}
	sess, err := h.Sessions.UpdateProfile(c.Request.Context(), c.Param("id"), req.DisplayName)
	if err != nil {
		respondError(c, "session.profile", err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// @Summary      Complete onboarding
// @Description  Requires a verified email address
// @Tags         Sessions
// @Produce      json
// @Security     SessionToken
// @Param        id   path      string  true  "Session id"
// @Success      200  {object}  models.Session
// @Failure      409  {object}  ErrorResponse
// @Router       /sessions/{id}/complete [post]
func (h *SessionHandler) Complete(c *gin.Context) {
	sess, err := h.Sessions.Complete(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "session.complete", err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// @Summary      Upload an artifact
// @Tags         Sessions
// @Accept       multipart/form-data
// @Produce      json
// @Security     SessionToken
// @Param        id    path      string  true  "Session id"
// @Param        file  formData  file    true  "Artifact"
// @Success      201   {object}  models.ObjectInfo
// @Failure      400   {object}  ErrorResponse
// @Failure      404   {object}  ErrorResponse
// @Router       /sessions/{id}/uploads [post]
func (h *SessionHandler) Upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			badRequest(c, errors.New("file is required"))
			return
		}
		badRequest(c, err)
		return
	}
	f, err := fh.Open()
	if err != nil {
		badRequest(c, err)
		return
	}
	defer f.Close()

	info, err := h.Sessions.Upload(c.Request.Context(), c.Param("id"), fh.Filename, f)
	if err != nil {
		respondError(c, "session.upload", err)
		return
	}
	c.JSON(http.StatusCreated, info)
}
