package app

import (
	"context"
	"database/sql"
	"errors"
	"net/mail"
	"strings"

	"github.com/GreenHouse007/world-builder-sub000/internal/audit"
	"github.com/GreenHouse007/world-builder-sub000/internal/auth"
	"github.com/GreenHouse007/world-builder-sub000/internal/email"
	"github.com/GreenHouse007/world-builder-sub000/internal/rbac"
	"github.com/GreenHouse007/world-builder-sub000/internal/store"
	"github.com/GreenHouse007/world-builder-sub000/internal/util"
)

const appName = "World Builder"

func (s *Service) ListMembers(ctx context.Context, actor auth.Identity, worldID string) ([]map[string]any, error) {
	access, err := s.authorizeWorld(ctx, actor, worldID, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	members, err := s.store.ListMembers(ctx, worldID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(members))
	for _, member := range members {
		items = append(items, memberPayload(member, access.World.OwnerID))
	}
	return items, nil
}

func (s *Service) ChangeMemberRole(ctx context.Context, actor auth.Identity, worldID, userID, role string) (map[string]any, error) {
	if !rbac.Assignable(role) {
		return nil, errInvalidRole
	}
	access, err := s.authorizeWorld(ctx, actor, worldID, rbac.ActionManage)
	if err != nil {
		return nil, err
	}
	if userID == access.World.OwnerID {
		return nil, errOwnerImmutable
	}

	var member store.Member
	err = s.mutateWorld(ctx, worldID, func(tx store.Tx) error {
		current, err := tx.GetMember(ctx, worldID, userID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errMemberNotFound
			}
			return err
		}
		if err := tx.UpdateMemberRole(ctx, worldID, userID, role); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errOwnerImmutable
			}
			return err
		}
		member = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, actor, worldID, nil, audit.MemberRoleChanged, map[string]any{
		"userId": userID,
		"from":   member.Role,
		"to":     role,
	})
	member.Role = role
	return memberPayload(member, access.World.OwnerID), nil
}

// RemoveMember needs manage rights, except that any member may remove
// themselves. The owner can never be removed.
func (s *Service) RemoveMember(ctx context.Context, actor auth.Identity, worldID, userID string) (map[string]any, error) {
	action := rbac.ActionManage
	if userID == actor.UID {
		action = rbac.ActionRead
	}
	access, err := s.authorizeWorld(ctx, actor, worldID, action)
	if err != nil {
		return nil, err
	}
	if userID == access.World.OwnerID {
		return nil, errOwnerImmutable
	}

	var member store.Member
	err = s.mutateWorld(ctx, worldID, func(tx store.Tx) error {
		current, err := tx.GetMember(ctx, worldID, userID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errMemberNotFound
			}
			return err
		}
		if err := tx.DeleteMember(ctx, worldID, userID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errOwnerImmutable
			}
			return err
		}
		member = current
		return tx.ApplyWorldDelta(ctx, worldID, store.StatsDelta{Collaborators: -1, Touch: s.now()})
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, actor, worldID, nil, audit.MemberRemoved, map[string]any{
		"userId": userID,
		"email":  member.Email,
	})
	return map[string]any{"ok": true}, nil
}

// Invite records a pending invitation and mails it when SMTP is set up.
// There is at most one pending invitation per world and email.
func (s *Service) Invite(ctx context.Context, actor auth.Identity, worldID, address, role string) (map[string]any, error) {
	to, err := normalizeEmail(address)
	if err != nil {
		return nil, err
	}
	if !rbac.Invitable(role) {
		return nil, errInvalidRole
	}
	access, err := s.authorizeWorld(ctx, actor, worldID, rbac.ActionManage)
	if err != nil {
		return nil, err
	}

	invitation := store.Invitation{
		ID:          util.NewID("inv"),
		WorldID:     worldID,
		WorldName:   access.World.Name,
		InviterID:   actor.UID,
		InviterName: actor.Name,
		Email:       to,
		Role:        role,
		Status:      store.InvitationPending,
	}
	err = s.mutateWorld(ctx, worldID, func(tx store.Tx) error {
		if _, err := tx.FindPendingInvitation(ctx, worldID, to); err == nil {
			return errInviteExists
		} else if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		members, err := tx.ListMembers(ctx, worldID)
		if err != nil {
			return err
		}
		for _, member := range members {
			if strings.EqualFold(member.Email, to) {
				return errAlreadyMember
			}
		}
		invitation.CreatedAt = s.now()
		return tx.InsertInvitation(ctx, invitation)
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, actor, worldID, nil, audit.MemberInvited, map[string]any{
		"email": to,
		"role":  role,
	})
	payload := invitationPayload(invitation)
	payload["emailSent"] = s.sendInvitation(invitation)
	return payload, nil
}

func (s *Service) sendInvitation(invitation store.Invitation) bool {
	if !s.SMTPConfigured() {
		return false
	}
	inviter := invitation.InviterName
	if strings.TrimSpace(inviter) == "" {
		inviter = "A collaborator"
	}
	err := s.mailer.SendInvitationEmail(invitation.Email, email.Invitation{
		AppName:     appName,
		InviterName: inviter,
		WorldName:   invitation.WorldName,
		Role:        invitation.Role,
		AcceptURL:   s.cfg.AppURL + "/invitations/" + invitation.ID,
	})
	if err != nil {
		s.log.Warn().Err(err).Str("invitation_id", invitation.ID).Msg("invitation email failed")
		return false
	}
	return true
}

// ListInvitations returns the pending invitations addressed to the actor.
func (s *Service) ListInvitations(ctx context.Context, actor auth.Identity) ([]map[string]any, error) {
	items := make([]map[string]any, 0)
	address := strings.ToLower(strings.TrimSpace(actor.Email))
	if address == "" {
		return items, nil
	}
	invitations, err := s.store.ListPendingInvitations(ctx, address)
	if err != nil {
		return nil, err
	}
	for _, invitation := range invitations {
		items = append(items, invitationPayload(invitation))
	}
	return items, nil
}

func (s *Service) ListWorldInvitations(ctx context.Context, actor auth.Identity, worldID string) ([]map[string]any, error) {
	if _, err := s.authorizeWorld(ctx, actor, worldID, rbac.ActionManage); err != nil {
		return nil, err
	}
	invitations, err := s.store.ListWorldInvitations(ctx, worldID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(invitations))
	for _, invitation := range invitations {
		items = append(items, invitationPayload(invitation))
	}
	return items, nil
}

// AcceptInvitation makes the invitee a member with the invited role.
func (s *Service) AcceptInvitation(ctx context.Context, actor auth.Identity, invitationID string) (map[string]any, error) {
	invitation, err := s.invitationFor(ctx, actor, invitationID)
	if err != nil {
		return nil, err
	}
	worldID := invitation.WorldID

	joined := false
	err = s.mutateWorld(ctx, worldID, func(tx store.Tx) error {
		now := s.now()
		if err := tx.UpdateInvitationStatus(ctx, invitationID, store.InvitationAccepted, now); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errInviteClosed
			}
			return err
		}
		world, err := tx.GetWorld(ctx, worldID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errWorldNotFound
			}
			return err
		}
		if world.OwnerID == actor.UID {
			return nil
		}
		if _, err := tx.GetMember(ctx, worldID, actor.UID); err == nil {
			return nil
		} else if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if err := tx.InsertMember(ctx, store.Member{
			WorldID:  worldID,
			UserID:   actor.UID,
			Email:    invitation.Email,
			Name:     actor.Name,
			Role:     invitation.Role,
			JoinedAt: now,
		}); err != nil {
			return err
		}
		joined = true
		return tx.ApplyWorldDelta(ctx, worldID, store.StatsDelta{Collaborators: 1, Touch: now})
	})
	if err != nil {
		return nil, err
	}

	if joined {
		s.record(ctx, actor, worldID, nil, audit.MemberJoined, map[string]any{
			"role":         invitation.Role,
			"invitationId": invitationID,
		})
	}
	return map[string]any{"ok": true, "worldId": worldID, "joined": joined}, nil
}

func (s *Service) RejectInvitation(ctx context.Context, actor auth.Identity, invitationID string) (map[string]any, error) {
	invitation, err := s.invitationFor(ctx, actor, invitationID)
	if err != nil {
		return nil, err
	}
	err = s.store.UpdateInvitationStatus(ctx, invitationID, store.InvitationRejected, s.now())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errInviteClosed
		}
		return nil, err
	}
	return map[string]any{"ok": true, "worldId": invitation.WorldID}, nil
}

// invitationFor loads an invitation the actor may answer. Invitations
// addressed to someone else are reported as missing.
func (s *Service) invitationFor(ctx context.Context, actor auth.Identity, invitationID string) (store.Invitation, error) {
	invitation, err := s.store.GetInvitation(ctx, invitationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Invitation{}, errInvitationNotFound
		}
		return store.Invitation{}, err
	}
	if actor.Email == "" || !strings.EqualFold(invitation.Email, strings.TrimSpace(actor.Email)) {
		return store.Invitation{}, errInvitationNotFound
	}
	if invitation.Status != store.InvitationPending {
		return store.Invitation{}, errInviteClosed
	}
	return invitation, nil
}

func normalizeEmail(address string) (string, error) {
	trimmed := strings.TrimSpace(address)
	parsed, err := mail.ParseAddress(trimmed)
	if err != nil || parsed.Address != trimmed {
		return "", errInvalidEmail
	}
	return strings.ToLower(parsed.Address), nil
}
