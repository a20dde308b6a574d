package dashboard

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/backoffice-console/internal/collection"
	"github.com/stacklok/backoffice-console/internal/collection/mocks"
	"github.com/stacklok/backoffice-console/internal/httpclient"
)

func TestSummarize(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	companies := mocks.NewMockBackend(ctrl)
	companies.EXPECT().List(gomock.Any(), totalQuery, gomock.Nil()).
		Return([]byte(`{"data":[{"id":1}],"total":42}`), nil)

	taxes := mocks.NewMockBackend(ctrl)
	gomock.InOrder(
		taxes.EXPECT().List(gomock.Any(), totalQuery, gomock.Nil()).Return([]byte(`[{"id":1}]`), nil),
		taxes.EXPECT().List(gomock.Any(), collection.Query{}, gomock.Nil()).
			Return([]byte(`[{"id":1},{"id":2},{"id":3}]`), nil),
	)

	roles := mocks.NewMockBackend(ctrl)
	roles.EXPECT().List(gomock.Any(), totalQuery, gomock.Nil()).
		Return(nil, httpclient.NewHTTPErrorFromBody(503, "http://backend/api/roles", []byte(`{"error":"maintenance"}`)))

	users := mocks.NewMockBackend(ctrl)
	users.EXPECT().List(gomock.Any(), totalQuery, url.Values{"role_id": {"2"}}).
		Return([]byte(`{"data":[],"total":0}`), nil)

	got, err := Summarize(context.Background(), []Source{
		{Resource: "companies", Title: "Companies", Backend: companies},
		{Resource: "taxes", Backend: taxes},
		{Resource: "roles", Title: "Roles", Backend: roles},
		{Resource: "users", Title: "Users", Backend: users, Params: url.Values{"role_id": {"2"}}},
		{Resource: "units", Title: "Units"},
	})
	require.NoError(t, err)
	require.Len(t, got, 5)

	assert.Equal(t, Summary{Resource: "companies", Title: "Companies", Total: 42}, got[0])
	assert.Equal(t, "taxes", got[1].Title)
	assert.Equal(t, 3, got[1].Total)
	assert.NoError(t, got[1].Err)

	var rejection *collection.RejectionError
	require.ErrorAs(t, got[2].Err, &rejection)
	assert.Equal(t, "maintenance", got[2].Message())
	assert.Zero(t, got[2].Total)

	assert.Equal(t, 0, got[3].Total)
	assert.Empty(t, got[3].Message())

	assert.Error(t, got[4].Err)
}

func TestSummarizeUnexpectedShape(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	b := mocks.NewMockBackend(ctrl)
	b.EXPECT().List(gomock.Any(), gomock.Any(), gomock.Any()).Return([]byte(`{"items":[]}`), nil)

	got, err := Summarize(context.Background(), []Source{{Resource: "stores", Backend: b}})
	require.NoError(t, err)
	assert.ErrorIs(t, got[0].Err, collection.ErrShapeMismatch)
	assert.Equal(t, "unexpected response from server", got[0].Message())
}

func TestSummarizeCancelled(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	b := mocks.NewMockBackend(ctrl)
	b.EXPECT().List(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ collection.Query, _ url.Values) ([]byte, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}).AnyTimes()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Summarize(ctx, []Source{{Resource: "stores", Backend: b}}, WithConcurrency(1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
