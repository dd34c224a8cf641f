package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/GreenHouse007/world-builder-sub000/internal/store"
)

var (
	ErrWorldNotFound = errors.New("world not found")
	ErrPageNotFound  = errors.New("page not found")
	ErrForbidden     = errors.New("forbidden")
)

// Directory is the read-only lookup the guard needs.
type Directory interface {
	GetWorld(ctx context.Context, worldID string) (store.World, error)
	GetMember(ctx context.Context, worldID, userID string) (store.Member, error)
	GetPage(ctx context.Context, pageID string) (store.Page, error)
}

// Access is what a successful check resolved. Page is zero for world checks.
type Access struct {
	World store.World
	Page  store.Page
	Role  Role
}

// Guard decides whether an actor may perform an action on a world or on a
// page, which inherits its world's access. It never writes.
type Guard struct {
	dir Directory
}

func NewGuard(dir Directory) *Guard {
	return &Guard{dir: dir}
}

func (g *Guard) World(ctx context.Context, userID, worldID string, action Action) (Access, error) {
	world, err := g.dir.GetWorld(ctx, worldID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Access{}, ErrWorldNotFound
		}
		return Access{}, fmt.Errorf("guard world: %w", err)
	}
	role, err := g.roleIn(ctx, world, userID)
	if err != nil {
		return Access{}, err
	}
	if !Can(role, action) {
		return Access{}, ErrForbidden
	}
	return Access{World: world, Role: role}, nil
}

func (g *Guard) Page(ctx context.Context, userID, pageID string, action Action) (Access, error) {
	page, err := g.dir.GetPage(ctx, pageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Access{}, ErrPageNotFound
		}
		return Access{}, fmt.Errorf("guard page: %w", err)
	}
	access, err := g.World(ctx, userID, page.WorldID, action)
	if err != nil {
		return Access{}, err
	}
	access.Page = page
	return access, nil
}

// RoleIn resolves the actor's role without checking an action. Non-members
// get ErrForbidden.
func (g *Guard) RoleIn(ctx context.Context, world store.World, userID string) (Role, error) {
	return g.roleIn(ctx, world, userID)
}

func (g *Guard) roleIn(ctx context.Context, world store.World, userID string) (Role, error) {
	if userID == "" {
		return "", ErrForbidden
	}
	if world.OwnerID == userID {
		return RoleOwner, nil
	}
	member, err := g.dir.GetMember(ctx, world.ID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrForbidden
		}
		return "", fmt.Errorf("guard member: %w", err)
	}
	role := Normalize(member.Role)
	// Only the world's recorded owner holds the owner tier.
	if role == RoleOwner {
		role = RoleAdmin
	}
	return role, nil
}
