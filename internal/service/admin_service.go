package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/storefront-auth/internal/metrics"
	"github.com/iliyamo/storefront-auth/internal/model"
	"github.com/iliyamo/storefront-auth/internal/repository"
)

// AdminService covers account administration: role changes, activation
// and soft deletion.  Every method takes the acting Identity and enforces
// its own authorization in addition to the route guards.
type AdminService struct {
	store repository.Store
	log   Logger
	now   func() time.Time
}

func NewAdminService(store repository.Store, log Logger) *AdminService {
	return &AdminService{store: store, log: log, now: time.Now}
}

// ChangeRole sets the role of targetID.  Super-admins only; nobody can
// change their own role.
func (s *AdminService) ChangeRole(ctx context.Context, actor Identity, targetID string, role model.Role) (model.PublicUser, error) {
	if !model.SuperAdminOnly.Has(actor.Role) {
		return model.PublicUser{}, ErrForbidden("super administrator role required")
	}
	if !role.Valid() {
		return model.PublicUser{}, ErrValidation("unknown role")
	}
	if targetID == actor.AccountID {
		return model.PublicUser{}, ErrForbidden("cannot change your own role")
	}
	target, err := s.liveTarget(ctx, targetID)
	if err != nil {
		return model.PublicUser{}, err
	}
	if err := s.store.Update(ctx, target.ID, repository.AccountUpdate{Role: &role}); err != nil {
		return model.PublicUser{}, s.updateErr(err)
	}
	s.log.Infof("admin: %s changed role of %s from %s to %s", actor.AccountID, target.ID, target.Role, role)
	metrics.AuthEvent("change_role", "success")
	target.Role = role
	return target.Public(), nil
}

// SetActive enables or disables targetID.  Disabling revokes its sessions.
func (s *AdminService) SetActive(ctx context.Context, actor Identity, targetID string, active bool) (model.PublicUser, error) {
	if !model.AdminTier.Has(actor.Role) {
		return model.PublicUser{}, ErrForbidden("administrator role required")
	}
	if targetID == actor.AccountID && !active {
		return model.PublicUser{}, ErrForbidden("cannot deactivate your own account")
	}
	target, err := s.liveTarget(ctx, targetID)
	if err != nil {
		return model.PublicUser{}, err
	}
	if err := s.outranks(actor, target); err != nil {
		return model.PublicUser{}, err
	}
	if err := s.store.Update(ctx, target.ID, repository.AccountUpdate{IsActive: &active}); err != nil {
		return model.PublicUser{}, s.updateErr(err)
	}
	if !active {
		if _, err := s.store.RevokeAllForAccount(ctx, target.ID, s.now().UTC()); err != nil {
			return model.PublicUser{}, ErrInternal(fmt.Errorf("revoke sessions: %w", err))
		}
	}
	s.log.Infof("admin: %s set active=%t on %s", actor.AccountID, active, target.ID)
	target.IsActive = active
	return target.Public(), nil
}

// SoftDelete marks targetID deleted and revokes its sessions.  The row is
// kept; its email becomes free for a new registration.
func (s *AdminService) SoftDelete(ctx context.Context, actor Identity, targetID string) error {
	if !model.AdminTier.Has(actor.Role) {
		return ErrForbidden("administrator role required")
	}
	if targetID == actor.AccountID {
		return ErrForbidden("cannot delete your own account")
	}
	target, err := s.liveTarget(ctx, targetID)
	if err != nil {
		return err
	}
	if err := s.outranks(actor, target); err != nil {
		return err
	}

	now := s.now().UTC()
	inactive := false
	if err := s.store.Update(ctx, target.ID, repository.AccountUpdate{
		DeletedAt: &now,
		IsActive:  &inactive,
	}); err != nil {
		return s.updateErr(err)
	}
	if _, err := s.store.RevokeAllForAccount(ctx, target.ID, now); err != nil {
		return ErrInternal(fmt.Errorf("revoke sessions: %w", err))
	}
	s.log.Infof("admin: %s deleted account %s", actor.AccountID, target.ID)
	metrics.AuthEvent("soft_delete", "success")
	return nil
}

// GetAccount returns id's profile to its owner or to an administrator.
func (s *AdminService) GetAccount(ctx context.Context, actor Identity, id string) (model.PublicUser, error) {
	isAdmin := model.AdminTier.Has(actor.Role)
	if id != actor.AccountID && !isAdmin {
		return model.PublicUser{}, ErrForbidden("not allowed to view this account")
	}
	acct, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.PublicUser{}, ErrNotFound("account not found")
		}
		return model.PublicUser{}, ErrInternal(fmt.Errorf("find account: %w", err))
	}
	if acct.DeletedAt != nil && !isAdmin {
		return model.PublicUser{}, ErrNotFound("account not found")
	}
	return acct.Public(), nil
}

// ListAccounts pages through accounts, newest first.
func (s *AdminService) ListAccounts(ctx context.Context, actor Identity, f repository.ListFilter) ([]model.PublicUser, error) {
	if !model.AdminTier.Has(actor.Role) {
		return nil, ErrForbidden("administrator role required")
	}
	accts, err := s.store.List(ctx, f)
	if err != nil {
		return nil, ErrInternal(fmt.Errorf("list accounts: %w", err))
	}
	out := make([]model.PublicUser, 0, len(accts))
	for _, a := range accts {
		out = append(out, a.Public())
	}
	return out, nil
}

func (s *AdminService) liveTarget(ctx context.Context, id string) (*model.Account, error) {
	acct, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound("account not found")
		}
		return nil, ErrInternal(fmt.Errorf("find account: %w", err))
	}
	if acct.DeletedAt != nil {
		return nil, ErrNotFound("account not found")
	}
	return acct, nil
}

// outranks rejects an admin acting on a super-admin.
func (s *AdminService) outranks(actor Identity, target *model.Account) error {
	if target.Role == model.RoleSuperAdmin && actor.Role != model.RoleSuperAdmin {
		return ErrForbidden("administrators cannot manage super administrators")
	}
	return nil
}

func (s *AdminService) updateErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound("account not found")
	}
	return ErrInternal(fmt.Errorf("update account: %w", err))
}
