package users_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/h2trust/hydroledger/internal/ledger/model"
	"github.com/h2trust/hydroledger/internal/users"
	"go.uber.org/zap"
)

var ctx = context.Background()

func newService() *users.Service {
	return users.NewService(users.NewMemoryRepository(), zap.NewNop())
}

func registerReq(email, role string) users.RegisterRequest {
	return users.RegisterRequest{
		Email:    email,
		Password: "correct-horse-battery",
		Name:     "Test User",
		Company:  "Test GmbH",
		Region:   "DE-North",
		Role:     role,
	}
}

func TestRegister(t *testing.T) {
	svc := newService()

	u, err := svc.Register(ctx, registerReq("Alice@Example.COM", "Producer"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.Email != "alice@example.com" {
		t.Errorf("email not lowercased: %q", u.Email)
	}
	if u.Role != model.RoleProducer {
		t.Errorf("role not normalized: %q", u.Role)
	}
	if !u.IsActive {
		t.Error("new account not active")
	}
	if u.PasswordHash == "correct-horse-battery" {
		t.Error("password stored in the clear")
	}
}

func TestRegister_duplicateEmail(t *testing.T) {
	svc := newService()
	if _, err := svc.Register(ctx, registerReq("bob@example.com", "buyer")); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := svc.Register(ctx, registerReq("BOB@example.com", "producer")); !model.IsKind(err, model.KindDuplicateKey) {
		t.Errorf("duplicate email: got %v, want duplicate_key", err)
	}
}

func TestRegister_unknownRole(t *testing.T) {
	svc := newService()
	if _, err := svc.Register(ctx, registerReq("carol@example.com", "admin")); !model.IsKind(err, model.KindInvalidInput) {
		t.Errorf("unknown role: got %v, want invalid_input", err)
	}
}

func TestLogin(t *testing.T) {
	svc := newService()
	if _, err := svc.Register(ctx, registerReq("dave@example.com", "certifier")); err != nil {
		t.Fatalf("register: %v", err)
	}

	u, err := svc.Login(ctx, "DAVE@example.com", "correct-horse-battery")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if u.Email != "dave@example.com" {
		t.Errorf("logged-in user: %q", u.Email)
	}
}

func TestLogin_failuresAreIndistinguishable(t *testing.T) {
	svc := newService()
	if _, err := svc.Register(ctx, registerReq("erin@example.com", "buyer")); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, wrongPass := svc.Login(ctx, "erin@example.com", "wrong")
	_, noUser := svc.Login(ctx, "ghost@example.com", "whatever")

	if !model.IsKind(wrongPass, model.KindForbidden) || !model.IsKind(noUser, model.KindForbidden) {
		t.Fatalf("errors: %v, %v; want forbidden for both", wrongPass, noUser)
	}
	if wrongPass.Error() != noUser.Error() {
		t.Errorf("failure messages differ: %q vs %q", wrongPass, noUser)
	}
}

func TestLogin_deactivatedAccount(t *testing.T) {
	svc := newService()
	u, err := svc.Register(ctx, registerReq("frank@example.com", "buyer"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := svc.Deactivate(ctx, u.ID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}

	if _, err := svc.Login(ctx, "frank@example.com", "correct-horse-battery"); !model.IsKind(err, model.KindForbidden) {
		t.Errorf("deactivated login: got %v, want forbidden", err)
	}
}

func TestResolveByEmail_caseInsensitive(t *testing.T) {
	svc := newService()
	u, err := svc.Register(ctx, registerReq("grace@example.com", "producer"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	id, err := svc.ResolveByEmail(ctx, "  GRACE@Example.com ")
	if err != nil {
		t.Fatalf("ResolveByEmail: %v", err)
	}
	if id.ID != u.ID || id.Role != model.RoleProducer {
		t.Errorf("identity: %+v", id)
	}
}

func TestResolveByID_unknown(t *testing.T) {
	svc := newService()
	if _, err := svc.ResolveByID(ctx, uuid.New()); !model.IsKind(err, model.KindNotFound) {
		t.Errorf("got %v, want not_found", err)
	}
}
