package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidFilter — дескриптор запроса некорректен.
var ErrInvalidFilter = errors.New("invalid filter")

// Filter — дескриптор запроса к хранилищу комментариев.
// Все заданные условия объединяются конъюнкцией; nil-поля не участвуют.
// Порядок выдачи фиксирован: level ASC, created_at DESC.
type Filter struct {
	Root        *RootRef   `json:"root,omitempty"`
	AncestorID  *int64     `json:"ancestor_id,omitempty"`
	OwnerID     *int64     `json:"owner_id,omitempty"`
	CreatedFrom *time.Time `json:"created_from,omitempty"`
	CreatedTo   *time.Time `json:"created_to,omitempty"`
	Level       *int       `json:"level,omitempty"`
}

// Validate проверяет согласованность дескриптора.
func (f Filter) Validate() error {
	if f.Root != nil {
		if !f.Root.Kind.Valid() {
			return fmt.Errorf("%w: root kind %q", ErrInvalidFilter, f.Root.Kind)
		}

		if f.Root.ID <= 0 {
			return fmt.Errorf("%w: root id must be > 0", ErrInvalidFilter)
		}
	}

	if f.AncestorID != nil && *f.AncestorID <= 0 {
		return fmt.Errorf("%w: ancestor id must be > 0", ErrInvalidFilter)
	}

	if f.OwnerID != nil && *f.OwnerID <= 0 {
		return fmt.Errorf("%w: owner id must be > 0", ErrInvalidFilter)
	}

	if f.Level != nil && *f.Level < 0 {
		return fmt.Errorf("%w: level must be >= 0", ErrInvalidFilter)
	}

	if f.CreatedFrom != nil && f.CreatedTo != nil && f.CreatedFrom.After(*f.CreatedTo) {
		return fmt.Errorf("%w: created_from is after created_to", ErrInvalidFilter)
	}

	return nil
}

// Match — проверка одного комментария на соответствие фильтру
// (используется хранилищами без SQL).
func (f Filter) Match(c Comment) bool {
	if f.Root != nil && c.Root != *f.Root {
		return false
	}

	if f.AncestorID != nil && !containsID(c.Ancestors, *f.AncestorID) {
		return false
	}

	if f.OwnerID != nil && c.OwnerID != *f.OwnerID {
		return false
	}

	if f.Level != nil && c.Level != *f.Level {
		return false
	}

	if f.CreatedFrom != nil && c.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}

	if f.CreatedTo != nil && c.CreatedAt.After(*f.CreatedTo) {
		return false
	}

	return true
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}

	return false
}
