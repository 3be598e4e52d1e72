package notion

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// ReviewCard describes a proposal flagged for manual review.
type ReviewCard struct {
	ProjectID   string
	Title       string
	PartnerName string
	CourseTitle string
	Reason      string
}

// CreateReviewCard adds a review card to the review-board database.
func CreateReviewCard(ctx context.Context, c Client, dbID string, card ReviewCard) error {
	req := &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(dbID),
		},
		Properties: notionapi.Properties{
			"Name": notionapi.TitleProperty{
				Title: []notionapi.RichText{
					{Text: &notionapi.Text{Content: card.Title}},
				},
			},
			"Partner": notionapi.RichTextProperty{
				RichText: []notionapi.RichText{
					{Text: &notionapi.Text{Content: card.PartnerName}},
				},
			},
			"Course": notionapi.RichTextProperty{
				RichText: []notionapi.RichText{
					{Text: &notionapi.Text{Content: card.CourseTitle}},
				},
			},
			"Project ID": notionapi.RichTextProperty{
				RichText: []notionapi.RichText{
					{Text: &notionapi.Text{Content: card.ProjectID}},
				},
			},
			"Reason": notionapi.RichTextProperty{
				RichText: []notionapi.RichText{
					{Text: &notionapi.Text{Content: card.Reason}},
				},
			},
			"Status": notionapi.StatusProperty{
				Status: notionapi.Option{Name: "Needs Review"},
			},
		},
	}

	if _, err := c.CreatePage(ctx, req); err != nil {
		return eris.Wrap(err, "notion: create review card")
	}
	return nil
}
