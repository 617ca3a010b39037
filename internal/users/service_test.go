package users

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeUsersRepo struct {
	byID    map[int64]*User
	nextID  int64
	updates map[int64]map[string]interface{}
}

func newFakeUsersRepo(seed ...*User) *fakeUsersRepo {
	repo := &fakeUsersRepo{
		byID:    make(map[int64]*User),
		nextID:  1,
		updates: make(map[int64]map[string]interface{}),
	}
	for _, u := range seed {
		repo.byID[u.ID] = u
		if u.ID >= repo.nextID {
			repo.nextID = u.ID + 1
		}
	}
	return repo
}

func (f *fakeUsersRepo) Get(_ context.Context, id int64) (*User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsersRepo) GetByLogin(_ context.Context, login string) (*User, error) {
	for _, u := range f.byID {
		if strings.EqualFold(u.Login, login) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeUsersRepo) List(_ context.Context, req ListUsersRequest) ([]User, error) {
	var out []User
	for _, u := range f.byID {
		if u.Hidden && !req.IncludeHidden {
			continue
		}
		out = append(out, *u)
	}
	return out, nil
}

func (f *fakeUsersRepo) Create(_ context.Context, user User) (int64, error) {
	user.ID = f.nextID
	f.nextID++
	user.CreatedAt = time.Now()
	f.byID[user.ID] = &user
	return user.ID, nil
}

func (f *fakeUsersRepo) Update(_ context.Context, id int64, updates map[string]interface{}) error {
	u, ok := f.byID[id]
	if !ok {
		return ErrNotFound
	}
	f.updates[id] = updates
	if hidden, ok := updates["hidden"].(bool); ok {
		u.Hidden = hidden
	}
	if role, ok := updates["role"].(string); ok {
		u.Role = role
	}
	return nil
}

func (f *fakeUsersRepo) Subordinates(_ context.Context, headID int64) ([]User, error) {
	var out []User
	for _, u := range f.byID {
		if u.UserHeadID != nil && *u.UserHeadID == headID && !u.Hidden {
			out = append(out, *u)
		}
	}
	return out, nil
}

func headPtr(id int64) *int64 { return &id }

func seededService() (*Service, *fakeUsersRepo) {
	repo := newFakeUsersRepo(
		&User{ID: 1, Login: "admin", Name: "Admin", Role: RoleAdmin},
		&User{ID: 2, Login: "head", Name: "Head", Role: RoleManager},
		&User{ID: 3, Login: "worker", Name: "Worker", Role: RoleUser, UserHeadID: headPtr(2)},
		&User{ID: 4, Login: "other", Name: "Other", Role: RoleUser},
	)
	return NewService(repo, nil), repo
}

func TestCreateHashesPasswordAndNormalizesFirstWeek(t *testing.T) {
	svc, repo := seededService()
	ctx := context.Background()

	// 2025-03-12 is a Wednesday; first week snaps to its Monday.
	fw := "2025-03-12"
	user, err := svc.Create(ctx, 1, CreateUserRequest{
		Login:     "newbie",
		Name:      "New Person",
		Password:  "secretpass1",
		Role:      RoleUser,
		FirstWeek: &fw,
	})
	require.NoError(t, err)
	require.NotNil(t, user.FirstWeek)
	require.Equal(t, time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC), *user.FirstWeek)

	stored := repo.byID[user.ID]
	require.NotEqual(t, "secretpass1", stored.PasswordHash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("secretpass1")))
}

func TestCreateRequiresAdmin(t *testing.T) {
	svc, _ := seededService()

	_, err := svc.Create(context.Background(), 3, CreateUserRequest{
		Login: "x", Name: "X", Password: "secretpass1", Role: RoleUser,
	})
	require.ErrorIs(t, err, ErrForbidden)
}

func TestCreateRejectsDuplicateLogin(t *testing.T) {
	svc, _ := seededService()

	_, err := svc.Create(context.Background(), 1, CreateUserRequest{
		Login: "WORKER", Name: "Copy", Password: "secretpass1", Role: RoleUser,
	})
	require.ErrorIs(t, err, ErrAlreadyExists)
}

func TestVisibleUsers(t *testing.T) {
	svc, _ := seededService()
	ctx := context.Background()

	all, err := svc.VisibleUsers(ctx, 1, ListUsersRequest{})
	require.NoError(t, err)
	require.Len(t, all, 4)

	team, err := svc.VisibleUsers(ctx, 2, ListUsersRequest{})
	require.NoError(t, err)
	require.Len(t, team, 2)

	self, err := svc.VisibleUsers(ctx, 4, ListUsersRequest{})
	require.NoError(t, err)
	require.Len(t, self, 1)
	require.Equal(t, int64(4), self[0].ID)
}

func TestHideIsSoft(t *testing.T) {
	svc, repo := seededService()
	ctx := context.Background()

	require.NoError(t, svc.Hide(ctx, 1, 3))
	require.True(t, repo.byID[3].Hidden)

	// Hidden account still resolvable by id; ledger history stays intact.
	u, err := svc.Get(ctx, 3)
	require.NoError(t, err)
	require.True(t, u.Hidden)
}

func TestIsApproverFor(t *testing.T) {
	svc, repo := seededService()
	ctx := context.Background()

	admin, _ := repo.Get(ctx, 1)
	head, _ := repo.Get(ctx, 2)
	worker, _ := repo.Get(ctx, 3)
	other, _ := repo.Get(ctx, 4)

	require.True(t, svc.IsApproverFor(ctx, head, worker))
	require.True(t, svc.IsApproverFor(ctx, admin, worker))
	require.False(t, svc.IsApproverFor(ctx, other, worker))
	require.False(t, svc.IsApproverFor(ctx, worker, worker))
	require.False(t, svc.IsApproverFor(ctx, nil, worker))
}

func TestFirstWeekZeroWhenUnset(t *testing.T) {
	svc, repo := seededService()
	ctx := context.Background()

	fw, err := svc.FirstWeek(ctx, 3)
	require.NoError(t, err)
	require.True(t, fw.IsZero())

	monday := time.Date(2025, time.January, 6, 0, 0, 0, 0, time.UTC)
	repo.byID[3].FirstWeek = &monday
	fw, err = svc.FirstWeek(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, monday, fw)
}

func TestUpdateRejectsUnknownRole(t *testing.T) {
	svc, _ := seededService()

	bogus := "superuser"
	_, err := svc.Update(context.Background(), 1, 3, UpdateUserRequest{Role: &bogus})
	require.Error(t, err)
}
