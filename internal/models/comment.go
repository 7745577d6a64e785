// Package models содержит доменные сущности comment-tree.
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownRootKind — тип родительской сущности не поддерживается.
var ErrUnknownRootKind = errors.New("unknown root kind")

// RootKind — тег родительской сущности, к которой крепится дерево комментариев.
type RootKind string

const (
	RootPage    RootKind = "page"
	RootArticle RootKind = "article"
)

// ParseRootKind приводит строку к RootKind (регистр и пробелы не важны).
func ParseRootKind(s string) (RootKind, error) {
	switch k := RootKind(strings.ToLower(strings.TrimSpace(s))); k {
	case RootPage, RootArticle:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRootKind, s)
	}
}

// Valid сообщает, известен ли тег.
func (k RootKind) Valid() bool {
	return k == RootPage || k == RootArticle
}

// RootRef — ссылка на родительскую сущность: Page(id) | Article(id).
type RootRef struct {
	Kind RootKind
	ID   int64
}

func (r RootRef) String() string {
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}

// Comment — комментарий в дереве с материализованным путём.
// Важно:
//   - ID назначает хранилище при вставке;
//   - Root, Level, Ancestors, CreatedAt вычисляются один раз при создании и больше не меняются;
//   - ParentID == nil для корневых комментариев (Level = 0, Ancestors пуст);
//   - Ancestors — id предков от корневого до непосредственного родителя, len(Ancestors) == Level.
type Comment struct {
	ID        int64
	OwnerID   int64
	CreatedAt time.Time
	Root      RootRef
	ParentID  *int64
	Level     int
	Ancestors []int64
	Text      string
}

// IsRootLevel — комментарий прикреплён напрямую к сущности.
func (c Comment) IsRootLevel() bool {
	return c.ParentID == nil
}

// Clone возвращает копию без общих срезов/указателей.
func (c Comment) Clone() Comment {
	out := c
	if c.ParentID != nil {
		id := *c.ParentID
		out.ParentID = &id
	}

	out.Ancestors = append(make([]int64, 0, len(c.Ancestors)), c.Ancestors...)

	return out
}

// Page — страница корневых комментариев сущности (номера страниц с 1).
// Next/Previous равны nil, если соседней страницы нет.
type Page struct {
	Items    []Comment
	Total    int
	Number   int
	Size     int
	Next     *int
	Previous *int
}

// NewPage собирает страницу и ссылки на соседние страницы.
func NewPage(items []Comment, total, number, size int) *Page {
	p := &Page{
		Items:  items,
		Total:  total,
		Number: number,
		Size:   size,
	}

	if number > 1 {
		prev := number - 1
		p.Previous = &prev
	}

	if size > 0 && number*size < total {
		next := number + 1
		p.Next = &next
	}

	return p
}
