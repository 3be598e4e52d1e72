package notion

import (
	"context"
	"errors"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func TestCreateReviewCard(t *testing.T) {
	var captured *notionapi.PageCreateRequest

	c := &mockClient{}
	c.On("CreatePage", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(*notionapi.PageCreateRequest)
		}).
		Return(&notionapi.Page{ID: "page-1"}, nil).Once()

	card := ReviewCard{
		ProjectID:   "proj-1",
		Title:       "Customer Retention Analysis",
		PartnerName: "Suncoast Retail Group",
		CourseTitle: "Applied Data Analytics",
		Reason:      "quality issues after final generation attempt",
	}
	require.NoError(t, CreateReviewCard(context.Background(), c, "db-1", card))

	require.NotNil(t, captured)
	assert.Equal(t, notionapi.DatabaseID("db-1"), captured.Parent.DatabaseID)

	title := captured.Properties["Name"].(notionapi.TitleProperty)
	require.Len(t, title.Title, 1)
	assert.Equal(t, "Customer Retention Analysis", title.Title[0].Text.Content)

	partner := captured.Properties["Partner"].(notionapi.RichTextProperty)
	assert.Equal(t, "Suncoast Retail Group", partner.RichText[0].Text.Content)

	status := captured.Properties["Status"].(notionapi.StatusProperty)
	assert.Equal(t, "Needs Review", status.Status.Name)

	c.AssertExpectations(t)
}

func TestCreateReviewCard_WrapsClientError(t *testing.T) {
	c := &mockClient{}
	c.On("CreatePage", mock.Anything, mock.Anything).Return(nil, errors.New("unauthorized")).Once()

	err := CreateReviewCard(context.Background(), c, "db-1", ReviewCard{Title: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "review card")
}
