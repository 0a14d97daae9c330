package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"intake/internal/services"
)

type VerifyHandler struct {
	Verification *services.VerificationService
}

func NewVerifyHandler(s *services.VerificationService) *VerifyHandler {
	return &VerifyHandler{Verification: s}
}

type EmailRequest struct {
	Email string `json:"email" validate:"required,max=254"`
}

type CodeRequest struct {
	Code string `json:"code" validate:"required,max=16"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ConfirmResponse struct {
	Outcome           services.Outcome `json:"outcome"`
	AttemptsRemaining int              `json:"attempts_remaining"`
	Error             string           `json:"error,omitempty"`
	Code              string           `json:"code,omitempty"`
}

// @Summary      Send a verification code
// @Description  Records the email on the session and mails it a one-time code
// @Tags         Verification
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        id     path      string        true  "Session id"
// @Param        email  body      EmailRequest  true  "Address to verify"
// @Success      202    {object}  MessageResponse
// @Failure      400    {object}  ErrorResponse
// @Failure      409    {object}  ErrorResponse
// @Failure      429    {object}  ErrorResponse
// @Failure      503    {object}  ErrorResponse
// @Router       /sessions/{id}/verification [post]
func (h *VerifyHandler) Begin(c *gin.Context) {
	var req EmailRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.Verification.BeginVerification(c.Request.Context(), c.Param("id"), req.Email); err != nil {
		respondError(c, "verify.begin", err)
		return
	}
	c.JSON(http.StatusAccepted, MessageResponse{Message: "verification code sent"})
}

// @Summary      Resend the verification code
// @Tags         Verification
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        id     path      string        true  "Session id"
// @Param        email  body      EmailRequest  true  "Address to verify"
// @Success      202    {object}  MessageResponse
// @Failure      429    {object}  ErrorResponse
// @Router       /sessions/{id}/verification/resend [post]
func (h *VerifyHandler) Resend(c *gin.Context) {
	var req EmailRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.Verification.ResendVerification(c.Request.Context(), c.Param("id"), req.Email); err != nil {
		respondError(c, "verify.resend", err)
		return
	}
	c.JSON(http.StatusAccepted, MessageResponse{Message: "verification code sent"})
}

// @Summary      Submit a verification code
// @Description  verified: 200; invalid: 400 with attempts_remaining; expired: 410; reset_required: 423
// @Tags         Verification
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        id    path      string       true  "Session id"
// @Param        code  body      CodeRequest  true  "Code"
// @Success      200   {object}  ConfirmResponse
// @Failure      400   {object}  ConfirmResponse
// @Failure      404   {object}  ErrorResponse
// @Failure      410   {object}  ConfirmResponse
// @Failure      423   {object}  ConfirmResponse
// @Router       /sessions/{id}/verification/confirm [post]
func (h *VerifyHandler) Confirm(c *gin.Context) {
	var req CodeRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.Verification.SubmitVerificationCode(c.Request.Context(), c.Param("id"), req.Code)
	if err != nil && res.Outcome == "" {
		respondError(c, "verify.confirm", err)
		return
	}

	body := ConfirmResponse{Outcome: res.Outcome, AttemptsRemaining: res.AttemptsRemaining}
	switch {
	case err != nil:
		status, msg := errorStatus(err)
		body.Error, body.Code = msg, services.KindOf(err).String()
		c.JSON(status, body)
	case res.Outcome == services.OutcomeInvalid:
		body.Error, body.Code = "invalid code", services.KindValidation.String()
		c.JSON(http.StatusBadRequest, body)
	default:
		c.JSON(http.StatusOK, body)
	}
}
