package mongo

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/imo-platform/access-control/internal/core/domain"
)

func TestUserDoc_ManagerProfileOnlyOnManagers(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	mgr := &domain.User{
		Username:  "mia",
		Email:     "mia@example.com",
		Type:      domain.UserTypeManager,
		IsActive:  true,
		CreatedAt: now,
		Manager:   &domain.ManagerProfile{AccessLevel: domain.AccessLevelAdmin, CanCreateUsers: true, EmployeeID: "E-1"},
	}

	doc := toUserDoc(mgr)
	doc.ID = primitive.NewObjectID()
	if doc.Manager == nil || doc.Manager.AccessLevel != "admin" {
		t.Fatalf("expected manager sub-document, got %+v", doc.Manager)
	}

	back := doc.toDomain()
	if back.ID != doc.ID.Hex() {
		t.Fatalf("expected hex id %s, got %s", doc.ID.Hex(), back.ID)
	}
	if back.Manager == nil || back.Manager.AccessLevel != domain.AccessLevelAdmin || !back.Manager.CanCreateUsers {
		t.Fatalf("unexpected manager profile: %+v", back.Manager)
	}

	// A stray sub-document on a non-manager is ignored.
	doc.UserType = string(domain.UserTypeTenant)
	if got := doc.toDomain(); got.Manager != nil {
		t.Fatalf("tenant must not carry a manager profile")
	}
}

func TestUserRepository_InvalidIDIsNotFound(t *testing.T) {
	r := &UserRepository{}

	if _, err := r.FindByID(context.Background(), "not-a-hex-id"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if err := r.TouchActivity(context.Background(), "nope", time.Now()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
