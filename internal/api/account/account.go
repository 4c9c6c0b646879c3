// Package account implements the public authentication endpoints: access-code
// redemption, account creation with a PIN, and PIN login. Accounts exist only
// through access codes; there is no self-service signup.
package account

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oneira/oneira/internal/auth"
	"github.com/oneira/oneira/internal/billing"
	"github.com/oneira/oneira/internal/config"
	"github.com/oneira/oneira/internal/db/models"
	"github.com/oneira/oneira/internal/db/repositories"
	"github.com/oneira/oneira/internal/safego"
)

// AccountHandlers handles access-code redemption, account creation, and login
type AccountHandlers struct {
	cfg         *config.Config
	catalogue   *billing.Catalogue
	quota       *billing.Quota
	userRepo    *repositories.UserRepository
	sessionRepo *repositories.SessionRepository
	codeRepo    *repositories.AccessCodeRepository
	auditRepo   *repositories.AuditRepository
}

// NewAccountHandlers creates a new AccountHandlers instance
func NewAccountHandlers(cfg *config.Config, db *sql.DB, catalogue *billing.Catalogue, quota *billing.Quota) *AccountHandlers {
	return &AccountHandlers{
		cfg:         cfg,
		catalogue:   catalogue,
		quota:       quota,
		userRepo:    repositories.NewUserRepository(db),
		sessionRepo: repositories.NewSessionRepository(db),
		codeRepo:    repositories.NewAccessCodeRepository(db),
		auditRepo:   repositories.NewAuditRepository(db),
	}
}

// resolveCode looks up an access code and rejects every unusable state, writing
// the error response itself and returning nil. Check order is fixed: unknown,
// revoked, expired, activation limit. A valid code whose expiry has passed is
// persisted as expired the moment it is noticed rather than by a sweep.
func (h *AccountHandlers) resolveCode(c *gin.Context, raw string) *models.AccessCode {
	code, err := h.codeRepo.GetByCode(c.Request.Context(), auth.NormalizeAccessCode(raw))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to look up access code",
		})
		return nil
	}
	if code == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "access code not found",
		})
		return nil
	}

	if code.Status == models.AccessCodeStatusRevoked {
		c.JSON(http.StatusConflict, gin.H{
			"error": "access code has been revoked",
		})
		return nil
	}

	if code.Status == models.AccessCodeStatusExpired {
		c.JSON(http.StatusConflict, gin.H{
			"error": "access code has expired",
		})
		return nil
	}

	if code.IsExpired(time.Now()) {
		if err := h.codeRepo.MarkExpired(c.Request.Context(), code.ID); err != nil {
			slog.Error("failed to persist access code expiry", "code_id", code.ID, "error", err)
		}
		c.JSON(http.StatusConflict, gin.H{
			"error": "access code has expired",
		})
		return nil
	}

	if code.LimitReached() {
		c.JSON(http.StatusGone, gin.H{
			"error": "access code has no activations left",
		})
		return nil
	}

	return code
}

// issueSession mints an opaque bearer token and persists the session with the
// caller's client metadata. The raw token leaves the server only in the response
// to this request.
func (h *AccountHandlers) issueSession(c *gin.Context, userID string) (*models.Session, error) {
	token, err := auth.GenerateSessionToken()
	if err != nil {
		return nil, err
	}

	session := &models.Session{
		UserID:    userID,
		Token:     token,
		ExpiresAt: time.Now().Add(time.Duration(h.cfg.Auth.SessionTTLDays) * 24 * time.Hour),
	}
	if ua := c.Request.UserAgent(); ua != "" {
		session.UserAgent = &ua
	}
	if ip := c.ClientIP(); ip != "" {
		session.IP = &ip
	}

	if err := h.sessionRepo.CreateSession(c.Request.Context(), session); err != nil {
		return nil, err
	}
	return session, nil
}

// RedeemRequest carries the access code being redeemed or authenticated against.
type RedeemRequest struct {
	Code string `json:"code" binding:"required"`
}

// RedeemHandler validates an access code and tells the client which flow comes
// next: PIN creation for an unbound code, PIN login for a bound one.
// POST /v1/auth/redeem
func (h *AccountHandlers) RedeemHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RedeemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "code is required",
			})
			return
		}

		code := h.resolveCode(c, req.Code)
		if code == nil {
			return
		}

		if code.UserID != nil {
			c.JSON(http.StatusOK, gin.H{
				"success": true,
				"mode":    "existing_user",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"mode":    "new_user",
			"source":  code.Source,
		})
	}
}

// CreatePINRequest carries the code being consumed and the PIN chosen for the
// new account.
type CreatePINRequest struct {
	Code string `json:"code" binding:"required"`
	PIN  string `json:"pin" binding:"required"`
}

// CreatePINHandler creates an account from an unbound access code. The user row
// and the code consumption commit in one transaction, so two racing requests on
// the same code produce exactly one account.
// POST /v1/auth/pin
func (h *AccountHandlers) CreatePINHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreatePINRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "code and pin are required",
			})
			return
		}

		code := h.resolveCode(c, req.Code)
		if code == nil {
			return
		}

		if code.UserID != nil {
			c.JSON(http.StatusConflict, gin.H{
				"error": "access code is already bound to an account",
			})
			return
		}

		if err := auth.ValidatePINFormat(req.PIN, h.cfg.Auth.PinMinLength, h.cfg.Auth.PinMaxLength); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
			})
			return
		}

		pinHash, err := auth.HashPIN(req.PIN, h.cfg.Auth.BcryptCost)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "failed to create account",
			})
			return
		}

		user := &models.User{
			PINHash: pinHash,
			Role:    models.RoleUser,
			Status:  models.UserStatusActive,
			PlanID:  h.catalogue.Default().ID,
		}

		if err := h.codeRepo.RedeemForNewUser(c.Request.Context(), code.ID, user); err != nil {
			if errors.Is(err, repositories.ErrCodeConflict) {
				c.JSON(http.StatusConflict, gin.H{
					"error": "access code was redeemed by another request",
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "failed to create account",
			})
			return
		}

		h.recordUserCreated(user.ID, code, c.ClientIP())

		session, err := h.issueSession(c, user.ID)
		if err != nil {
			// The account exists and the code is bound; the client recovers by
			// logging in through /v1/auth/pin/verify.
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "account created but session could not be started, log in with your code and PIN",
			})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"success":   true,
			"token":     session.Token,
			"expiresAt": session.ExpiresAt,
			"user":      userJSON(user),
		})
	}
}

// VerifyPINRequest carries an already-bound code and the PIN of its account.
type VerifyPINRequest struct {
	Code string `json:"code" binding:"required"`
	PIN  string `json:"pin" binding:"required"`
}

// VerifyPINHandler logs an existing user in with their access code and PIN. Wrong
// PIN, unknown account, and disabled account all return the same 401 body.
// POST /v1/auth/pin/verify
func (h *AccountHandlers) VerifyPINHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req VerifyPINRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "code and pin are required",
			})
			return
		}

		code := h.resolveCode(c, req.Code)
		if code == nil {
			return
		}

		if code.UserID == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "no account exists for this access code",
			})
			return
		}

		user, err := h.userRepo.GetUserByID(c.Request.Context(), *code.UserID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "failed to verify credentials",
			})
			return
		}

		if user == nil || !user.IsActive() || !auth.CheckPIN(req.PIN, user.PINHash) {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "unauthorized",
			})
			return
		}

		session, err := h.issueSession(c, user.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "failed to start session",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success":   true,
			"token":     session.Token,
			"expiresAt": session.ExpiresAt,
			"user":      userJSON(user),
		})
	}
}

// recordUserCreated writes the account-creation audit entry. The route is public,
// so the audit middleware has no user context here; the handler writes the entry
// itself, asynchronously, after the transaction committed.
func (h *AccountHandlers) recordUserCreated(userID string, code *models.AccessCode, ip string) {
	resourceType := "user"
	entry := &models.AuditLog{
		UserID:       &userID,
		Action:       "user.created",
		ResourceType: &resourceType,
		ResourceID:   &userID,
		Metadata: map[string]interface{}{
			"access_code_id": code.ID,
			"source":         code.Source,
		},
	}
	if ip != "" {
		entry.IPAddress = &ip
	}

	safego.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.auditRepo.CreateAuditLog(ctx, entry); err != nil {
			slog.Warn("failed to write account creation audit entry", "user_id", userID, "error", err)
		}
	})
}
