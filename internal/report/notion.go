package report

import (
	"context"
	"fmt"
	"time"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/budget-sync/internal/logger"
)

// PageCreator creates pages in a Notion database.
type PageCreator interface {
	CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error)
}

// NotionClient is the PageCreator backed by the Notion SDK.
type NotionClient struct {
	client *notionapi.Client
}

// NewNotionClient creates a new NotionClient with the provided API token.
func NewNotionClient(token string) *NotionClient {
	return &NotionClient{
		client: notionapi.NewClient(notionapi.Token(token)),
	}
}

// CreatePage creates a new page in a Notion database with the given properties.
func (n *NotionClient) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	req := &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(databaseID),
		},
		Properties: properties,
	}

	page, err := n.client.Page.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("CreatePage: %w", err)
	}
	return page, nil
}

// NotionPublisher appends every report as a page of a Notion database.
type NotionPublisher struct {
	pages      PageCreator
	databaseID string
}

func NewNotionPublisher(pages PageCreator, databaseID string) *NotionPublisher {
	return &NotionPublisher{pages: pages, databaseID: databaseID}
}

// Publish creates the page for r.
func (p *NotionPublisher) Publish(ctx context.Context, r *Report) error {
	page, err := p.pages.CreatePage(ctx, p.databaseID, Properties(r))
	if err != nil {
		return fmt.Errorf("Publish: %w", err)
	}
	log := logger.FromContext(ctx)
	log.Info().
		Str("page_id", string(page.ID)).
		Msg("Published sync report to Notion")
	return nil
}

// Properties maps a report to the properties of the report database.
func Properties(r *Report) notionapi.Properties {
	completed := notionapi.Date(r.CompletedAt.UTC())
	props := notionapi.Properties{
		"Run": notionapi.TitleProperty{
			Title: []notionapi.RichText{
				{
					Type: notionapi.ObjectTypeText,
					Text: &notionapi.Text{
						Content: "Sync " + r.CompletedAt.UTC().Format(time.RFC3339),
					},
				},
			},
		},
		"Status": notionapi.SelectProperty{
			Select: notionapi.Option{
				Name: r.Status,
			},
		},
		"Completed": notionapi.DateProperty{
			Date: &notionapi.DateObject{
				Start: &completed,
			},
		},
		"Summary": notionapi.RichTextProperty{
			RichText: []notionapi.RichText{
				{
					Type: notionapi.ObjectTypeText,
					Text: &notionapi.Text{
						Content: r.Summary,
					},
				},
			},
		},
	}

	for _, d := range Destinations {
		s := r.Stats[d]
		props[Title(d)+" Created"] = notionapi.NumberProperty{Number: float64(s.TransactionsCreated)}
		props[Title(d)+" Accounts"] = notionapi.NumberProperty{Number: float64(s.Accounts)}
	}
	return props
}
