package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"kvault/internal/audit/handler/mocks"
	id "kvault/pkg/domain"
	"kvault/pkg/platform/audit"
	"kvault/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Lister

func newRouter(t *testing.T) (http.Handler, *mocks.MockLister) {
	t.Helper()
	ctrl := gomock.NewController(t)
	lister := mocks.NewMockLister(ctrl)
	r := chi.NewRouter()
	New(lister, slog.New(slog.NewTextHandler(io.Discard, nil)), 50).Register(r)
	return r, lister
}

func TestHandleList(t *testing.T) {
	region := id.RegionID(uuid.New())
	user := id.Actor{ID: id.UserID(uuid.New()), Role: id.RoleUser, RegionID: region}
	reviewer := id.Actor{ID: id.UserID(uuid.New()), Role: id.RoleReviewer, RegionID: region}

	t.Run("users see only their own entries", func(t *testing.T) {
		router, lister := newRouter(t)
		lister.EXPECT().List(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ any, q audit.Query) ([]audit.Entry, error) {
				require.NotNil(t, q.ActorID)
				assert.Equal(t, user.ID, *q.ActorID)
				assert.Nil(t, q.RegionID)
				assert.Equal(t, 50, q.Limit)
				return []audit.Entry{{ActorID: user.ID, Action: audit.ActionArtefactCreated}}, nil
			})

		rr := testutil.DoRequest(router, testutil.WithActor(testutil.NewRequest(t, http.MethodGet, "/audit"), user))
		testutil.AssertStatusOK(t, rr)
		entries := testutil.UnmarshalResponse[[]audit.Entry](t, rr)
		require.Len(t, *entries, 1)
	})

	t.Run("privileged roles see the region", func(t *testing.T) {
		router, lister := newRouter(t)
		lister.EXPECT().List(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ any, q audit.Query) ([]audit.Entry, error) {
				require.NotNil(t, q.RegionID)
				assert.Equal(t, region, *q.RegionID)
				assert.Nil(t, q.ActorID)
				return nil, nil
			})

		rr := testutil.DoRequest(router, testutil.WithActor(testutil.NewRequest(t, http.MethodGet, "/audit"), reviewer))
		testutil.AssertStatusOK(t, rr)
		assert.JSONEq(t, `[]`, rr.Body.String())
	})

	t.Run("store failure hides the cause", func(t *testing.T) {
		router, lister := newRouter(t)
		lister.EXPECT().List(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection reset"))

		rr := testutil.DoRequest(router, testutil.WithActor(testutil.NewRequest(t, http.MethodGet, "/audit"), user))
		testutil.AssertStatusAndError(t, rr, http.StatusInternalServerError, "internal_error")
		assert.NotContains(t, rr.Body.String(), "connection reset")
	})

	t.Run("missing actor", func(t *testing.T) {
		router, _ := newRouter(t)
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/audit"))
		testutil.AssertStatus(t, rr, http.StatusUnauthorized)
	})
}
