package notion

import (
	"context"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestQueryAll_SinglePage(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-1", mock.AnythingOfType("*notionapi.DatabaseQueryRequest")).
		Return(&notionapi.DatabaseQueryResponse{
			Results: []notionapi.Page{
				{ID: "p1"},
				{ID: "p2"},
			},
			HasMore: false,
		}, nil).Once()

	pages, err := QueryAll(ctx, mc, "db-1", nil)
	assert.NoError(t, err)
	assert.Len(t, pages, 2)
	mc.AssertExpectations(t)
}

func TestQueryAll_MultiPage(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	// First call returns page 1 with HasMore=true.
	mc.On("QueryDatabase", ctx, "db-1", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		return req.StartCursor == ""
	})).Return(&notionapi.DatabaseQueryResponse{
		Results:    []notionapi.Page{{ID: "p1"}},
		HasMore:    true,
		NextCursor: notionapi.Cursor("cursor-abc"),
	}, nil).Once()

	// Second call uses the cursor and returns final page.
	mc.On("QueryDatabase", ctx, "db-1", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		return req.StartCursor == notionapi.Cursor("cursor-abc")
	})).Return(&notionapi.DatabaseQueryResponse{
		Results: []notionapi.Page{{ID: "p2"}},
		HasMore: false,
	}, nil).Once()

	pages, err := QueryAll(ctx, mc, "db-1", nil)
	assert.NoError(t, err)
	assert.Len(t, pages, 2)
	assert.Equal(t, notionapi.ObjectID("p1"), pages[0].ID)
	assert.Equal(t, notionapi.ObjectID("p2"), pages[1].ID)
	mc.AssertExpectations(t)
}

func TestQueryAll_WithFilter(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-1", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		// Verify the filter was passed through.
		if req.Filter == nil {
			return false
		}
		pf, ok := req.Filter.(notionapi.PropertyFilter)
		if !ok {
			return false
		}
		return pf.Property == "Status" && pf.Status != nil && pf.Status.Equals == "Active"
	})).Return(&notionapi.DatabaseQueryResponse{
		Results: []notionapi.Page{{ID: "p1"}},
		HasMore: false,
	}, nil).Once()

	filter := &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: "Status",
			Status: &notionapi.StatusFilterCondition{
				Equals: "Active",
			},
		},
	}

	pages, err := QueryAll(ctx, mc, "db-1", filter)
	assert.NoError(t, err)
	assert.Len(t, pages, 1)
	mc.AssertExpectations(t)
}

func TestQueryAll_Error(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-1", mock.AnythingOfType("*notionapi.DatabaseQueryRequest")).
		Return(nil, assert.AnError).Once()

	pages, err := QueryAll(ctx, mc, "db-1", nil)
	assert.Error(t, err)
	assert.Nil(t, pages)
	mc.AssertExpectations(t)
}

func TestQueryAll_ContextCancelled(t *testing.T) {
	mc := new(MockClient)
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately.

	mc.On("QueryDatabase", ctx, "db-1", mock.AnythingOfType("*notionapi.DatabaseQueryRequest")).
		Return(nil, context.Canceled)

	pages, err := QueryAll(ctx, mc, "db-1", nil)
	assert.Error(t, err)
	assert.Nil(t, pages)
}

func TestQueryAll_ErrorOnSecondPage(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-1", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		return req.StartCursor == ""
	})).Return(&notionapi.DatabaseQueryResponse{
		Results:    []notionapi.Page{{ID: "p1"}},
		HasMore:    true,
		NextCursor: notionapi.Cursor("cursor-next"),
	}, nil).Once()

	mc.On("QueryDatabase", ctx, "db-1", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		return req.StartCursor == notionapi.Cursor("cursor-next")
	})).Return(nil, assert.AnError).Once()

	pages, err := QueryAll(ctx, mc, "db-1", nil)
	assert.Error(t, err)
	assert.Nil(t, pages)
	assert.Contains(t, err.Error(), "notion: query all page")
	mc.AssertExpectations(t)
}

func TestQueryAll_PassesSortsAndPageSize(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-1", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		return req.PageSize == 10 &&
			len(req.Sorts) == 1 && req.Sorts[0].Property == "Name"
	})).Return(&notionapi.DatabaseQueryResponse{
		Results: []notionapi.Page{{ID: "p1"}},
		HasMore: false,
	}, nil).Once()

	filter := &notionapi.DatabaseQueryRequest{
		Sorts:    []notionapi.SortObject{{Property: "Name", Direction: notionapi.SortOrderASC}},
		PageSize: 10,
	}

	pages, err := QueryAll(ctx, mc, "db-1", filter)
	assert.NoError(t, err)
	assert.Len(t, pages, 1)
	mc.AssertExpectations(t)
}

func queuePage(id, company, domain, contact, title string) notionapi.Page {
	props := notionapi.Properties{
		"Name": &notionapi.TitleProperty{
			Title: []notionapi.RichText{{PlainText: company}},
		},
		"Status": &notionapi.StatusProperty{
			Status: notionapi.Status{Name: "Queued"},
		},
	}
	if domain != "" {
		props["URL"] = &notionapi.URLProperty{URL: domain}
	}
	if contact != "" {
		props["Contact"] = &notionapi.RichTextProperty{
			RichText: []notionapi.RichText{{PlainText: contact}},
		}
	}
	if title != "" {
		props["Title"] = &notionapi.RichTextProperty{
			RichText: []notionapi.RichText{{PlainText: title}},
		}
	}
	return notionapi.Page{ID: notionapi.ObjectID(id), Properties: props}
}

// queuedFilter matches the Status = Queued property filter that
// QueryQueuedProspects sends.
func queuedFilter(req *notionapi.DatabaseQueryRequest) bool {
	pf, ok := req.Filter.(notionapi.PropertyFilter)
	if !ok {
		return false
	}
	return pf.Property == "Status" && pf.Status != nil && pf.Status.Equals == "Queued"
}

func TestQueryQueuedProspects(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-queue", mock.MatchedBy(queuedFilter)).Return(&notionapi.DatabaseQueryResponse{
		Results: []notionapi.Page{
			queuePage("page-1", "Acme Corp", "https://acme.com", "Jane Moore", "VP of Operations"),
			queuePage("page-2", "Beta LLC", "https://beta.io/", "", ""),
		},
		HasMore: false,
	}, nil).Once()

	prospects, err := QueryQueuedProspects(ctx, mc, "db-queue")
	assert.NoError(t, err)
	assert.Len(t, prospects, 2)
	assert.Equal(t, "page-1", prospects[0].PageID)
	assert.Equal(t, "Acme Corp", prospects[0].Company)
	assert.Equal(t, "acme.com", prospects[0].Domain)
	assert.Equal(t, "Jane Moore", prospects[0].Contact)
	assert.Equal(t, "VP of Operations", prospects[0].Title)
	assert.Equal(t, "Queued", prospects[0].Status)
	assert.Equal(t, "beta.io", prospects[1].Domain)
	mc.AssertExpectations(t)
}

func TestQueryQueuedProspects_SkipsNamelessPages(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-queue", mock.AnythingOfType("*notionapi.DatabaseQueryRequest")).
		Return(&notionapi.DatabaseQueryResponse{
			Results: []notionapi.Page{
				{ID: "page-empty"}, // no properties at all
				queuePage("page-1", "Acme Corp", "", "", ""),
			},
			HasMore: false,
		}, nil).Once()

	prospects, err := QueryQueuedProspects(ctx, mc, "db-queue")
	assert.NoError(t, err)
	assert.Len(t, prospects, 1)
	assert.Equal(t, "Acme Corp", prospects[0].Company)
	mc.AssertExpectations(t)
}

func TestQueryQueuedProspects_Empty(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-empty", mock.MatchedBy(queuedFilter)).
		Return(&notionapi.DatabaseQueryResponse{
			Results: []notionapi.Page{},
			HasMore: false,
		}, nil).Once()

	prospects, err := QueryQueuedProspects(ctx, mc, "db-empty")
	assert.NoError(t, err)
	assert.Empty(t, prospects)
	mc.AssertExpectations(t)
}

func TestQueryQueuedProspects_Error(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-err", mock.MatchedBy(queuedFilter)).
		Return(nil, assert.AnError).Once()

	prospects, err := QueryQueuedProspects(ctx, mc, "db-err")
	assert.Error(t, err)
	assert.Nil(t, prospects)
	assert.Contains(t, err.Error(), "notion: query queued prospects")
	mc.AssertExpectations(t)
}

func TestQueryQueuedProspects_MultiplePages(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-paginated", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		return queuedFilter(req) && req.StartCursor == ""
	})).Return(&notionapi.DatabaseQueryResponse{
		Results: []notionapi.Page{
			queuePage("page-1", "Acme Corp", "", "", ""),
			queuePage("page-2", "Beta LLC", "", "", ""),
		},
		HasMore:    true,
		NextCursor: notionapi.Cursor("cursor-xyz"),
	}, nil).Once()

	mc.On("QueryDatabase", ctx, "db-paginated", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		return req.StartCursor == notionapi.Cursor("cursor-xyz")
	})).Return(&notionapi.DatabaseQueryResponse{
		Results: []notionapi.Page{
			queuePage("page-3", "Gamma Inc", "", "", ""),
		},
		HasMore: false,
	}, nil).Once()

	prospects, err := QueryQueuedProspects(ctx, mc, "db-paginated")
	assert.NoError(t, err)
	assert.Len(t, prospects, 3)
	assert.Equal(t, "Acme Corp", prospects[0].Company)
	assert.Equal(t, "Beta LLC", prospects[1].Company)
	assert.Equal(t, "Gamma Inc", prospects[2].Company)
	mc.AssertExpectations(t)
}

func TestMarkProspectStatus(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("UpdatePage", ctx, "page-1", mock.MatchedBy(func(req *notionapi.PageUpdateRequest) bool {
		sp, ok := req.Properties["Status"].(notionapi.StatusProperty)
		return ok && sp.Status.Name == "Promoted"
	})).Return(&notionapi.Page{ID: "page-1"}, nil).Once()

	err := MarkProspectStatus(ctx, mc, "page-1", "Promoted")
	assert.NoError(t, err)
	mc.AssertExpectations(t)
}

func TestMarkProspectStatus_Error(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("UpdatePage", ctx, "page-err", mock.AnythingOfType("*notionapi.PageUpdateRequest")).
		Return(nil, assert.AnError).Once()

	err := MarkProspectStatus(ctx, mc, "page-err", "Drafted")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "mark prospect")
	mc.AssertExpectations(t)
}

func TestPushReviewEntry(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	var captured *notionapi.PageCreateRequest
	mc.On("CreatePage", ctx, mock.AnythingOfType("*notionapi.PageCreateRequest")).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(*notionapi.PageCreateRequest)
		}).
		Return(&notionapi.Page{ID: "review-1"}, nil).Once()

	id, err := PushReviewEntry(ctx, mc, "db-review", ReviewEntry{
		Company:    "Acme Corp",
		Contact:    "Jane Moore",
		Persona:    "ops_leader",
		Confidence: "LOW",
		Reason:     "confidence_mode_LOW",
	})
	assert.NoError(t, err)
	assert.Equal(t, "review-1", id)

	tp, ok := captured.Properties["Name"].(notionapi.TitleProperty)
	assert.True(t, ok)
	assert.Equal(t, "Acme Corp / Jane Moore", tp.Title[0].Text.Content)

	sp, ok := captured.Properties["Status"].(notionapi.StatusProperty)
	assert.True(t, ok)
	assert.Equal(t, "Needs Review", sp.Status.Name)

	rp, ok := captured.Properties["Reason"].(notionapi.RichTextProperty)
	assert.True(t, ok)
	assert.Equal(t, "confidence_mode_LOW", rp.RichText[0].Text.Content)

	mc.AssertExpectations(t)
}

func TestPushReviewEntry_RequiresCompany(t *testing.T) {
	mc := new(MockClient)

	_, err := PushReviewEntry(context.Background(), mc, "db-review", ReviewEntry{Contact: "Jane Moore"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "company is required")
}

func TestStripScheme(t *testing.T) {
	assert.Equal(t, "acme.com", stripScheme("https://acme.com"))
	assert.Equal(t, "acme.com", stripScheme("http://acme.com/"))
	assert.Equal(t, "acme.com", stripScheme("acme.com"))
	assert.Equal(t, "", stripScheme(""))
}
