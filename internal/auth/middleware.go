package auth

import (
	"fmt"
	"strings"

	"restoran-pos/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const (
	CtxUserIDKey   = "user_id"
	CtxUserRoleKey = "user_role"
	CtxBranchIDKey = "branch_id"
)

func JWTMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing Authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return fiber.NewError(fiber.StatusUnauthorized, "Authorization must be 'Bearer <token>'")
		}

		token, err := jwt.ParseWithClaims(parts[1], &JWTCustomClaims{}, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method")
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired token")
		}

		claims, ok := token.Claims.(*JWTCustomClaims)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "token could not be decoded")
		}

		c.Locals(CtxUserIDKey, claims.UserID)
		c.Locals(CtxUserRoleKey, claims.Role)
		c.Locals(CtxBranchIDKey, claims.BranchID)

		return c.Next()
	}
}

func RequireRole(allowedRoles ...models.UserRole) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, ok := c.Locals(CtxUserRoleKey).(models.UserRole)
		if !ok {
			return fiber.NewError(fiber.StatusForbidden, "role missing from token")
		}
		if role == models.RoleSuperAdmin {
			return c.Next()
		}
		for _, r := range allowedRoles {
			if r == role {
				return c.Next()
			}
		}
		return fiber.NewError(fiber.StatusForbidden, "not allowed for this role")
	}
}

// OperatorInfo is the authenticated identity the services act on behalf of.
type OperatorInfo struct {
	UserID   uint
	BranchID uint
	Role     models.UserRole
}

// Operator resolves the acting operator. Branch-bound roles take the branch from the
// token; a super admin must name it with the branch_id query parameter.
func Operator(c *fiber.Ctx) (OperatorInfo, error) {
	userID, ok := c.Locals(CtxUserIDKey).(uint)
	if !ok {
		return OperatorInfo{}, fiber.NewError(fiber.StatusForbidden, "user missing from token")
	}
	role, _ := c.Locals(CtxUserRoleKey).(models.UserRole)
	op := OperatorInfo{UserID: userID, Role: role}

	if bPtr, ok := c.Locals(CtxBranchIDKey).(*uint); ok && bPtr != nil {
		op.BranchID = *bPtr
		return op, nil
	}
	if role == models.RoleSuperAdmin {
		if bid := c.QueryInt("branch_id"); bid > 0 {
			op.BranchID = uint(bid)
			return op, nil
		}
		return OperatorInfo{}, fiber.NewError(fiber.StatusBadRequest, "branch_id is required")
	}
	return OperatorInfo{}, fiber.NewError(fiber.StatusForbidden, "branch missing from token")
}
