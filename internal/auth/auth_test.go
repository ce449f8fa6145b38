package auth

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"restoran-pos/internal/database/dbtest"
	"restoran-pos/internal/models"

	"github.com/gofiber/fiber/v2"
)

const secret = "0123456789abcdef0123456789abcdef"

func newApp() *fiber.App {
	app := fiber.New()
	app.Use(JWTMiddleware(secret))
	app.Get("/whoami", func(c *fiber.Ctx) error {
		op, err := Operator(c)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"user_id": op.UserID, "branch_id": op.BranchID, "role": op.Role})
	})
	app.Get("/cashier", RequireRole(models.RoleCashier), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func tokenFor(t *testing.T, user *models.User) string {
	t.Helper()
	tok, err := GenerateToken(secret, user)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return tok
}

func TestJWTMiddleware_RejectsMissingHeader(t *testing.T) {
	resp, err := newApp().Test(httptest.NewRequest("GET", "/whoami", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.StatusCode)
	}
}

func TestJWTMiddleware_RejectsForeignSignature(t *testing.T) {
	branch := uint(1)
	tok, _ := GenerateToken("another-secret-another-secret-000", &models.User{ID: 1, Role: models.RoleWaiter, BranchID: &branch})
	req := httptest.NewRequest("GET", "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := newApp().Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.StatusCode)
	}
}

func TestOperator_FromToken(t *testing.T) {
	branch := uint(4)
	req := httptest.NewRequest("GET", "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, &models.User{ID: 9, Role: models.RoleWaiter, BranchID: &branch}))
	resp, err := newApp().Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body struct {
		UserID   uint `json:"user_id"`
		BranchID uint `json:"branch_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.UserID != 9 || body.BranchID != 4 {
		t.Errorf("unexpected operator %+v", body)
	}
}

func TestOperator_SuperAdminNeedsBranchQuery(t *testing.T) {
	tok := tokenFor(t, &models.User{ID: 1, Role: models.RoleSuperAdmin})

	req := httptest.NewRequest("GET", "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, _ := newApp().Test(req)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("expected 400 without branch_id, got %d", resp.StatusCode)
	}

	req = httptest.NewRequest("GET", "/whoami?branch_id=2", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, _ = newApp().Test(req)
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("expected 200 with branch_id, got %d", resp.StatusCode)
	}
}

func TestRequireRole(t *testing.T) {
	branch := uint(1)
	tests := []struct {
		role models.UserRole
		want int
	}{
		{models.RoleCashier, fiber.StatusOK},
		{models.RoleSuperAdmin, fiber.StatusOK},
		{models.RoleWaiter, fiber.StatusForbidden},
	}
	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/cashier", nil)
		req.Header.Set("Authorization", "Bearer "+tokenFor(t, &models.User{ID: 1, Role: tt.role, BranchID: &branch}))
		resp, err := newApp().Test(req)
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != tt.want {
			t.Errorf("role %s: expected %d, got %d", tt.role, tt.want, resp.StatusCode)
		}
	}
}

func TestLoginHandler(t *testing.T) {
	db := dbtest.Open(t)
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Create(&models.User{Name: "Ana", Email: "ana@example.com", PasswordHash: hash, Role: models.RoleCashier}).Error; err != nil {
		t.Fatal(err)
	}

	app := fiber.New()
	app.Post("/login", LoginHandler(db, secret))

	tests := []struct {
		name string
		body string
		want int
	}{
		{"valid credentials", `{"email":" ANA@example.com ","password":"s3cret"}`, fiber.StatusOK},
		{"wrong password", `{"email":"ana@example.com","password":"nope"}`, fiber.StatusUnauthorized},
		{"unknown user", `{"email":"bob@example.com","password":"s3cret"}`, fiber.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/login", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			resp, err := app.Test(req)
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != tt.want {
				t.Errorf("expected %d, got %d", tt.want, resp.StatusCode)
			}
		})
	}
}
