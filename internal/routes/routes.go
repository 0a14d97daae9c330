package routes

import (
	"github.com/gin-gonic/gin"

	"intake/internal/handlers"
	"intake/internal/middleware"
)

// Quotas are per-IP request limits per window; zero disables a scope.
type Quotas struct {
	Limiter     middleware.Limiter
	IssueLimit  int
	VerifyLimit int
	FailOpen    bool
}

type Admin struct {
	User     string
	Password string
}

func SetupRoutes(
	r *gin.Engine,
	sessionHandler *handlers.SessionHandler,
	verifyHandler *handlers.VerifyHandler,
	adminHandler *handlers.AdminHandler,
	tokens middleware.TokenParser,
	quotas Quotas,
	admin Admin,
) *gin.Engine {

	// ---- public
	r.GET("/healthz", handlers.Health)
	r.POST("/sessions",
		middleware.Quota(quotas.Limiter, "issue", quotas.IssueLimit, quotas.FailOpen),
		sessionHandler.Create,
	)

	// ---- session token
	sess := r.Group("/sessions/:id", middleware.SessionToken(tokens, "id"))
	{
		sess.GET("", sessionHandler.Get)
		sess.PUT("/profile", sessionHandler.UpdateProfile)
		sess.POST("/complete", sessionHandler.Complete)
		sess.POST("/uploads", sessionHandler.Upload)
	}

	verify := sess.Group("/verification",
		middleware.Quota(quotas.Limiter, "verify", quotas.VerifyLimit, quotas.FailOpen),
	)
	{
		verify.POST("", verifyHandler.Begin)
		verify.POST("/resend", verifyHandler.Resend)
		verify.POST("/confirm", verifyHandler.Confirm)
	}

	// ---- operators
	if adminHandler != nil {
		adm := r.Group("/admin", middleware.RequireAdmin(admin.User, admin.Password))
		{
			adm.POST("/reconcile", adminHandler.Reconcile)
			adm.GET("/sessions/:id/history", adminHandler.History)
		}
	}

	return r
}
