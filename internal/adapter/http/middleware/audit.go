package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"bank-ledger/internal/core/domain"
	"bank-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AuditLog creates an audit middleware that logs successful write operations.
// Routes are matched on their registered pattern, so path parameters do not
// affect the mapping.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Status() < 200 || c.Writer.Status() >= 300 {
			return
		}
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead || c.Request.Method == http.MethodOptions {
			return
		}

		action := mapRouteToAction(c.Request.Method, c.FullPath())
		if action == "" {
			return
		}

		var username *string
		if actor, ok := ActorFrom(c); ok {
			username = &actor.Username
		} else if u := c.GetString(CtxAuditUsername); u != "" {
			username = &u
		}

		detailFields := map[string]interface{}{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
		}
		if target := c.Param("username"); target != "" {
			detailFields["target_user"] = target
		}
		details, _ := json.Marshal(detailFields)

		auditSvc.Log(c.Request.Context(), &domain.AuditLog{
			ID:        uuid.New(),
			Username:  username,
			Action:    action,
			IBAN:      c.Param("iban"),
			IPAddress: c.ClientIP(),
			Details:   string(details),
			CreatedAt: time.Now().UTC(),
		})
	}
}

func mapRouteToAction(method, route string) domain.AuditAction {
	switch method + " " + route {
	case "POST /api/v1/auth/register":
		return domain.AuditActionRegister
	case "POST /api/v1/auth/login":
		return domain.AuditActionLogin
	case "POST /api/v1/auth/password":
		return domain.AuditActionChangePassword
	case "POST /api/v1/accounts":
		return domain.AuditActionCreateAccount
	case "DELETE /api/v1/accounts/:iban":
		return domain.AuditActionDeleteAccount
	case "POST /api/v1/accounts/:iban/deposit":
		return domain.AuditActionDeposit
	case "POST /api/v1/accounts/:iban/withdraw":
		return domain.AuditActionWithdraw
	case "POST /api/v1/accounts/:iban/transfer":
		return domain.AuditActionTransfer
	case "POST /api/v1/admin/users/:username/block":
		return domain.AuditActionBlockUser
	case "POST /api/v1/admin/users/:username/unblock":
		return domain.AuditActionUnblockUser
	}
	return ""
}
