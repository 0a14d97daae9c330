package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"intake/internal/services"
)

type AdminHandler struct {
	Reconciler *services.Reconciler
	Sessions   *services.SessionService
}

func NewAdminHandler(r *services.Reconciler, sessions *services.SessionService) *AdminHandler {
	return &AdminHandler{Reconciler: r, Sessions: sessions}
}

// @Summary      Run a reconciliation sweep
// @Description  Deletes uploads of sessions that never completed. dry_run only reports candidates.
// @Tags         Admin
// @Produce      json
// @Security     BasicAuth
// @Param        dry_run  query     bool    false  "Report only"
// @Param        age      query     string  false  "Age threshold, e.g. 30m"
// @Success      200      {object}  services.SweepReport
// @Failure      400      {object}  ErrorResponse
// @Failure      401      {object}  ErrorResponse
// @Failure      503      {object}  ErrorResponse
// @Router       /admin/reconcile [post]
func (h *AdminHandler) Reconcile(c *gin.Context) {
	var opts services.SweepOptions
	if v := c.Query("dry_run"); v != "" {
		dry, err := strconv.ParseBool(v)
		if err != nil {
			badRequest(c, fmt.Errorf("dry_run: %w", err))
			return
		}
		opts.DryRun = dry
	}
	if v := c.Query("age"); v != "" {
		age, err := time.ParseDuration(v)
		if err != nil || age <= 0 {
			badRequest(c, fmt.Errorf("age must be a positive duration such as 30m"))
			return
		}
		opts.AgeThreshold = age
	}

	rep, err := h.Reconciler.Sweep(c.Request.Context(), opts)
	if err != nil {
		respondError(c, "admin.reconcile", err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

// @Summary      Session history
// @Description  Verification records and audit trail of a session, including reclaimed ones
// @Tags         Admin
// @Produce      json
// @Security     BasicAuth
// @Param        id   path      string  true  "Session id"
// @Success      200  {object}  services.SessionHistory
// @Failure      400  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /admin/sessions/{id}/history [get]
func (h *AdminHandler) History(c *gin.Context) {
	hist, err := h.Sessions.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "admin.history", err)
		return
	}
	c.JSON(http.StatusOK, hist)
}
