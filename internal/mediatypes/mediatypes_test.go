package mediatypes

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeTypesRepo struct {
	byID    map[int64]*MediaType
	nextID  int64
	visible map[int64][]int64
}

func newFakeTypesRepo(names ...string) *fakeTypesRepo {
	repo := &fakeTypesRepo{byID: make(map[int64]*MediaType), nextID: 1, visible: make(map[int64][]int64)}
	for _, name := range names {
		id := repo.nextID
		repo.nextID++
		repo.byID[id] = &MediaType{ID: id, Name: name}
	}
	return repo
}

func (f *fakeTypesRepo) Get(_ context.Context, id int64) (*MediaType, error) {
	mt, ok := f.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *mt
	return &cp, nil
}

func (f *fakeTypesRepo) GetByName(_ context.Context, name string) (*MediaType, error) {
	for _, mt := range f.byID {
		if strings.EqualFold(mt.Name, name) {
			cp := *mt
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeTypesRepo) List(_ context.Context, includeHidden bool) ([]MediaType, error) {
	var out []MediaType
	for _, mt := range f.byID {
		if mt.Hidden && !includeHidden {
			continue
		}
		out = append(out, *mt)
	}
	return out, nil
}

func (f *fakeTypesRepo) Create(_ context.Context, name string) (int64, error) {
	id := f.nextID
	f.nextID++
	f.byID[id] = &MediaType{ID: id, Name: name}
	return id, nil
}

func (f *fakeTypesRepo) Update(_ context.Context, id int64, updates map[string]interface{}) error {
	mt, ok := f.byID[id]
	if !ok {
		return ErrNotFound
	}
	if name, ok := updates["name"].(string); ok {
		mt.Name = name
	}
	if hidden, ok := updates["hidden"].(bool); ok {
		mt.Hidden = hidden
	}
	return nil
}

func (f *fakeTypesRepo) Delete(_ context.Context, id int64) error {
	if _, ok := f.byID[id]; !ok {
		return ErrNotFound
	}
	delete(f.byID, id)
	return nil
}

func (f *fakeTypesRepo) VisibleForUser(_ context.Context, userID int64) ([]VisibleMediaType, error) {
	var out []VisibleMediaType
	for order, id := range f.visible[userID] {
		out = append(out, VisibleMediaType{MediaTypeID: id, Name: f.byID[id].Name, DisplayOrder: order})
	}
	return out, nil
}

func (f *fakeTypesRepo) SetVisibleForUser(_ context.Context, userID int64, typeIDs []int64) error {
	f.visible[userID] = append([]int64(nil), typeIDs...)
	return nil
}

type fakeRoles map[int64]string

func (f fakeRoles) Role(_ context.Context, userID int64) (string, error) {
	return f[userID], nil
}

func newTypesService(names ...string) (*Service, *fakeTypesRepo) {
	repo := newFakeTypesRepo(names...)
	return NewService(repo, fakeRoles{1: "admin", 2: "user"}, nil), repo
}

func TestCreateRejectsDuplicateNameCaseInsensitive(t *testing.T) {
	svc, _ := newTypesService("TV")

	_, err := svc.Create(context.Background(), 1, "tv")
	require.ErrorIs(t, err, ErrDuplicateName)
}

func TestCreateRequiresAdmin(t *testing.T) {
	svc, _ := newTypesService()

	_, err := svc.Create(context.Background(), 2, "Radio")
	require.ErrorIs(t, err, ErrForbidden)
}

func TestCreateRejectsBlankName(t *testing.T) {
	svc, _ := newTypesService()

	_, err := svc.Create(context.Background(), 1, "   ")
	require.ErrorIs(t, err, ErrNameRequired)
}

func TestRenameToOwnNameAllowed(t *testing.T) {
	svc, _ := newTypesService("TV")

	mt, err := svc.Rename(context.Background(), 1, 1, "TV")
	require.NoError(t, err)
	require.Equal(t, "TV", mt.Name)
}

func TestRenameToTakenNameRejected(t *testing.T) {
	svc, _ := newTypesService("TV", "Radio")

	_, err := svc.Rename(context.Background(), 1, 2, "TV")
	require.ErrorIs(t, err, ErrDuplicateName)
}

func TestSetHiddenKeepsRow(t *testing.T) {
	svc, repo := newTypesService("Print")
	ctx := context.Background()

	require.NoError(t, svc.SetHidden(ctx, 1, 1, true))
	require.True(t, repo.byID[1].Hidden)

	visible, err := svc.List(ctx, false)
	require.NoError(t, err)
	require.Empty(t, visible)

	all, err := svc.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestSetVisibleForUserChecksIDs(t *testing.T) {
	svc, repo := newTypesService("TV", "Radio")
	ctx := context.Background()

	require.NoError(t, svc.SetVisibleForUser(ctx, 1, 5, []int64{2, 1}))

	visible, err := svc.VisibleForUser(ctx, 5)
	require.NoError(t, err)
	require.Len(t, visible, 2)
	require.Equal(t, int64(2), visible[0].MediaTypeID)
	require.Equal(t, int64(1), visible[1].MediaTypeID)

	err = svc.SetVisibleForUser(ctx, 1, 5, []int64{99})
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, []int64{2, 1}, repo.visible[5])
}
