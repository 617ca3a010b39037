package public_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/fallout666222/media-client-manager/internal/planning"
	"github.com/fallout666222/media-client-manager/internal/public"
	"github.com/fallout666222/media-client-manager/internal/shared"
)

type stubStatuses struct {
	ids map[string]int64
}

func (s *stubStatuses) StatusID(_ context.Context, name string) (int64, error) {
	id, ok := s.ids[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", shared.ErrUnknownStatusName, name)
	}
	return id, nil
}

type stubApprovals struct {
	byHead map[int64][]planning.VersionStatus
}

func (s *stubApprovals) VersionsForApproval(_ context.Context, headID int64) ([]planning.VersionStatus, error) {
	return s.byHead[headID], nil
}

func newPublicRouter(t *testing.T) chi.Router {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := public.NewHandler(logger,
		&stubStatuses{ids: map[string]int64{"unconfirmed": 1, "under review": 2, "accepted": 3, "needs revision": 4}},
		&stubApprovals{byHead: map[int64][]planning.VersionStatus{
			7: {{VersionID: 3, UserID: 11, Status: shared.StatusUnderReview}},
		}},
	)
	r := chi.NewRouter()
	handler.MountRoutes(r)
	return r
}

func TestStatusIDLookup(t *testing.T) {
	router := newPublicRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/statusId?name=under+review", nil)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	require.Equal(t, http.StatusOK, res.Code)
	var resp struct {
		Data struct {
			ID int64 `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &resp))
	require.Equal(t, int64(2), resp.Data.ID)
}

func TestStatusIDUnknownName(t *testing.T) {
	router := newPublicRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/statusId?name=bogus", nil)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	require.Equal(t, http.StatusNotFound, res.Code)
	var resp struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Error)
}

func TestStatusIDMissingName(t *testing.T) {
	router := newPublicRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/statusId", nil)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	require.Equal(t, http.StatusBadRequest, res.Code)
}

func TestUserVersionsForApproval(t *testing.T) {
	router := newPublicRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/userVersionsForApproval?headId=7", nil)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	require.Equal(t, http.StatusOK, res.Code)
	var resp struct {
		Data []planning.VersionStatus `json:"data"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	require.Equal(t, int64(11), resp.Data[0].UserID)
}

func TestUserVersionsForApprovalEmpty(t *testing.T) {
	router := newPublicRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/userVersionsForApproval?headId=99", nil)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	require.Equal(t, http.StatusOK, res.Code)
	require.JSONEq(t, `{"data":[]}`, res.Body.String())
}

func TestPreflightAnswersOK(t *testing.T) {
	router := newPublicRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/statusId", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, "*", res.Header().Get("Access-Control-Allow-Origin"))
}
