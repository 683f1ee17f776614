package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditActionRegister       AuditAction = "REGISTER"
	AuditActionLogin          AuditAction = "LOGIN"
	AuditActionCreateAccount  AuditAction = "CREATE_ACCOUNT"
	AuditActionDeleteAccount  AuditAction = "DELETE_ACCOUNT"
	AuditActionDeposit        AuditAction = "DEPOSIT"
	AuditActionWithdraw       AuditAction = "WITHDRAW"
	AuditActionTransfer       AuditAction = "TRANSFER"
	AuditActionBlockUser      AuditAction = "BLOCK_USER"
	AuditActionUnblockUser    AuditAction = "UNBLOCK_USER"
	AuditActionChangePassword AuditAction = "CHANGE_PASSWORD"
)

// AuditLog records a single audited action in the system.
type AuditLog struct {
	ID        uuid.UUID   `json:"id"`
	Username  *string     `json:"username,omitempty"`
	Action    AuditAction `json:"action"`
	IBAN      string      `json:"iban,omitempty"`
	Details   string      `json:"details,omitempty"` // JSON string
	IPAddress string      `json:"ip_address"`
	CreatedAt time.Time   `json:"created_at"`
}
