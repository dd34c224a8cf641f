package app

import (
	"context"
	"strings"

	"github.com/GreenHouse007/world-builder-sub000/internal/audit"
	"github.com/GreenHouse007/world-builder-sub000/internal/auth"
	"github.com/GreenHouse007/world-builder-sub000/internal/rbac"
	"github.com/GreenHouse007/world-builder-sub000/internal/store"
	"github.com/GreenHouse007/world-builder-sub000/internal/util"
)

type UpdateWorldInput struct {
	Name *string `json:"name"`
	Icon *string `json:"icon"`
}

// CreateWorld makes the actor the world's owner and its only member.
func (s *Service) CreateWorld(ctx context.Context, actor auth.Identity, name, icon string) (map[string]any, error) {
	if actor.UID == "" {
		return nil, errForbidden
	}
	worldName := strings.TrimSpace(name)
	if worldName == "" {
		return nil, errInvalidName
	}
	worldIcon := strings.TrimSpace(icon)
	if worldIcon == "" {
		worldIcon = defaultWorldIcon
	}

	now := s.now()
	world := store.World{
		ID:             util.NewID("wld"),
		OwnerID:        actor.UID,
		Name:           worldName,
		Icon:           worldIcon,
		LastActivityAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertWorld(ctx, world); err != nil {
			return err
		}
		return tx.InsertMember(ctx, store.Member{
			WorldID:  world.ID,
			UserID:   actor.UID,
			Email:    strings.ToLower(actor.Email),
			Name:     actor.Name,
			Role:     string(rbac.RoleOwner),
			JoinedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, actor, world.ID, nil, audit.WorldCreated, map[string]any{"name": world.Name})
	return worldPayload(world, rbac.RoleOwner), nil
}

func (s *Service) ListWorlds(ctx context.Context, actor auth.Identity) ([]map[string]any, error) {
	worlds, err := s.store.ListWorldsForUser(ctx, actor.UID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(worlds))
	for _, world := range worlds {
		role, err := s.guard.RoleIn(ctx, world, actor.UID)
		if err != nil {
			// Membership can disappear between the two reads.
			continue
		}
		items = append(items, worldPayload(world, role))
	}
	return items, nil
}

func (s *Service) GetWorld(ctx context.Context, actor auth.Identity, worldID string) (map[string]any, error) {
	access, err := s.authorizeWorld(ctx, actor, worldID, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	return worldPayload(access.World, access.Role), nil
}

func (s *Service) UpdateWorld(ctx context.Context, actor auth.Identity, worldID string, input UpdateWorldInput) (map[string]any, error) {
	if input.Name == nil && input.Icon == nil {
		return nil, errInvalidBody
	}
	access, err := s.authorizeWorld(ctx, actor, worldID, rbac.ActionManage)
	if err != nil {
		return nil, err
	}

	world := access.World
	before := world.Name
	if input.Name != nil {
		world.Name = strings.TrimSpace(*input.Name)
		if world.Name == "" {
			return nil, errInvalidName
		}
	}
	if input.Icon != nil {
		world.Icon = strings.TrimSpace(*input.Icon)
		if world.Icon == "" {
			world.Icon = defaultWorldIcon
		}
	}

	err = s.mutateWorld(ctx, worldID, func(tx store.Tx) error {
		if err := tx.UpdateWorld(ctx, worldID, world.Name, world.Icon, s.now()); err != nil {
			return err
		}
		fresh, err := tx.GetWorld(ctx, worldID)
		if err != nil {
			return err
		}
		world = fresh
		return nil
	})
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		s.record(ctx, actor, worldID, nil, audit.WorldRenamed, map[string]any{
			"from": before,
			"to":   world.Name,
		})
	}
	return worldPayload(world, access.Role), nil
}

// DeleteWorld is owner-only. The database cascades pages, content,
// favorites, activity, invitations and members.
func (s *Service) DeleteWorld(ctx context.Context, actor auth.Identity, worldID string) (map[string]any, error) {
	if _, err := s.authorizeWorld(ctx, actor, worldID, rbac.ActionOwn); err != nil {
		return nil, err
	}

	var removed []string
	err := s.mutateWorld(ctx, worldID, func(tx store.Tx) error {
		pages, err := tx.ListPages(ctx, worldID)
		if err != nil {
			return err
		}
		removed = make([]string, 0, len(pages))
		for _, page := range pages {
			removed = append(removed, page.ID)
		}
		return tx.DeleteWorld(ctx, worldID)
	})
	if err != nil {
		return nil, err
	}

	s.search.DeletePages(removed...)
	if s.history != nil {
		if err := s.history.RemoveWorld(worldID); err != nil {
			s.log.Warn().Err(err).Str("world_id", worldID).Msg("history cleanup failed")
		}
	}
	s.log.Info().Str("world_id", worldID).Str("actor", actor.UID).Int("pages", len(removed)).Msg("world deleted")
	return map[string]any{"ok": true, "pages": len(removed)}, nil
}
