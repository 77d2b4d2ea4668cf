package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"saldo/internal/amqp"
	"saldo/internal/core"
	"saldo/internal/storage"
)

const maxCategoryName = 100

// CategoryService manages the per-account, per-kind category lists.
type CategoryService struct {
	store    storage.Store
	notifier *Notifier
}

func NewCategoryService(store storage.Store, notifier *Notifier) *CategoryService {
	return &CategoryService{store: store, notifier: notifier}
}

func normalizeCategoryName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", core.ErrEmptyCategory
	}
	if utf8.RuneCountInString(name) > maxCategoryName {
		return "", fmt.Errorf("%w: category name too long (max %d characters)", core.ErrValidation, maxCategoryName)
	}
	return name, nil
}

func (s *CategoryService) Create(ctx context.Context, accountID int64, kind core.Kind, name string) (*core.Category, error) {
	if !kind.Valid() {
		return nil, core.ErrInvalidKind
	}
	name, err := normalizeCategoryName(name)
	if err != nil {
		return nil, err
	}

	cat := core.Category{AccountID: accountID, Kind: kind, Name: name}
	err = s.store.InTx(ctx, func(tx storage.Tx) error {
		if err := s.ensureUnique(ctx, tx, accountID, kind, name); err != nil {
			return err
		}
		return tx.SaveCategory(ctx, &cat)
	})
	if err != nil {
		return nil, fmt.Errorf("create %s category: %w", kind, err)
	}

	slog.InfoContext(ctx, "Category created", "account_id", accountID, "kind", kind, "id", cat.ID, "name", name)
	s.committed(ctx, accountID, kind)
	return &cat, nil
}

func (s *CategoryService) Rename(ctx context.Context, accountID int64, kind core.Kind, id int64, name string) (*core.Category, error) {
	name, err := normalizeCategoryName(name)
	if err != nil {
		return nil, err
	}

	var cat *core.Category
	err = s.store.InTx(ctx, func(tx storage.Tx) error {
		cur, err := s.find(ctx, tx, accountID, kind, id)
		if err != nil {
			return err
		}
		// a change of case only is not a duplicate of itself
		if !strings.EqualFold(cur.Name, name) {
			if err := s.ensureUnique(ctx, tx, accountID, kind, name); err != nil {
				return err
			}
		}
		cur.Name = name
		cat = cur
		return tx.SaveCategory(ctx, cur)
	})
	if err != nil {
		return nil, fmt.Errorf("rename %s category %d: %w", kind, id, err)
	}

	slog.InfoContext(ctx, "Category renamed", "account_id", accountID, "kind", kind, "id", id, "name", name)
	s.committed(ctx, accountID, kind)
	return cat, nil
}

// Delete removes a category that no transaction references.
func (s *CategoryService) Delete(ctx context.Context, accountID int64, kind core.Kind, id int64) error {
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		if _, err := s.find(ctx, tx, accountID, kind, id); err != nil {
			return err
		}
		used, err := tx.ExistsByCategory(ctx, id)
		if err != nil {
			return err
		}
		if used {
			return fmt.Errorf("%w: category %d is used by transactions", core.ErrConflict, id)
		}
		return tx.DeleteCategory(ctx, id, accountID)
	})
	if err != nil {
		return fmt.Errorf("delete %s category %d: %w", kind, id, err)
	}

	slog.InfoContext(ctx, "Category deleted", "account_id", accountID, "kind", kind, "id", id)
	s.committed(ctx, accountID, kind)
	return nil
}

func (s *CategoryService) List(ctx context.Context, accountID int64, kind core.Kind) ([]core.Category, error) {
	if !kind.Valid() {
		return nil, core.ErrInvalidKind
	}
	var out []core.Category
	err := s.store.Read(ctx, func(tx storage.Tx) error {
		list, err := tx.ListCategories(ctx, accountID, kind)
		out = list
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list %s categories: %w", kind, err)
	}
	return out, nil
}

func (s *CategoryService) find(ctx context.Context, tx storage.Tx, accountID int64, kind core.Kind, id int64) (*core.Category, error) {
	cat, err := tx.FindCategory(ctx, id, accountID)
	if err != nil {
		return nil, err
	}
	if cat.Kind != kind {
		return nil, fmt.Errorf("%s category %d: %w", kind, id, core.ErrNotFound)
	}
	return cat, nil
}

func (s *CategoryService) ensureUnique(ctx context.Context, tx storage.Tx, accountID int64, kind core.Kind, name string) error {
	exists, err := tx.CategoryExists(ctx, accountID, kind, name, true)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s category %q already exists", core.ErrValidation, kind, name)
	}
	return nil
}

func (s *CategoryService) committed(ctx context.Context, accountID int64, kind core.Kind) {
	ev := amqp.NewLedgerEvent(accountID, amqp.EventCategory)
	ev.Kind = kind
	s.notifier.Committed(ctx, ev)
}
