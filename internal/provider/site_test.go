package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/pkg/jina"
)

type fakeJina struct {
	readFn func(ctx context.Context, targetURL string, opts ...jina.ReadOption) (*jina.ReadResponse, error)
}

func (f *fakeJina) Read(ctx context.Context, targetURL string, opts ...jina.ReadOption) (*jina.ReadResponse, error) {
	return f.readFn(ctx, targetURL, opts...)
}

const testHomepage = `Acme Corp

Acme Corp builds automation systems for mid-market manufacturers, with deployments across 40 plants in North America and a focus on retrofit projects.

![hero image](https://acme.com/hero.png)

We announced an expansion of our Dayton production facility this spring, adding a second line for packaging systems and roughly sixty new roles.

Contact | Careers | Privacy`

func TestSiteFetch_Sections(t *testing.T) {
	t.Parallel()

	var gotURL string
	fake := &fakeJina{
		readFn: func(_ context.Context, targetURL string, _ ...jina.ReadOption) (*jina.ReadResponse, error) {
			gotURL = targetURL
			return &jina.ReadResponse{Code: 200, Data: jina.ReadData{
				Title:   "Acme Corp | Automation Systems",
				URL:     "https://acme.com/",
				Content: testHomepage,
				Usage:   jina.ReadUsage{Tokens: 1200},
			}}, nil
		},
	}

	a := NewSite(fake, false)
	payload, err := a.Fetch(context.Background(), model.Identity{Company: "Acme Corp", Domain: "acme.com"})
	require.NoError(t, err)

	assert.Equal(t, "https://acme.com", gotURL)
	assert.Equal(t, "jina", payload.Provider)
	assert.Equal(t, model.SourcePublicURL, payload.SourceType)

	require.NotNil(t, payload.Company)
	assert.Equal(t, "acme.com", payload.Company.Domain)
	assert.Contains(t, payload.Company.Summary, "automation systems")

	// The one-line title, image block, and nav crumbs are all dropped.
	require.Len(t, payload.Items, 2)
	assert.Contains(t, payload.Items[1].Text, "Dayton production facility")
	assert.Equal(t, "https://acme.com/", payload.Items[0].URL)
	assert.Equal(t, "Acme Corp | Automation Systems", payload.Items[0].Title)
}

func TestSiteFetch_NoDomainSkipsRead(t *testing.T) {
	t.Parallel()

	fake := &fakeJina{
		readFn: func(context.Context, string, ...jina.ReadOption) (*jina.ReadResponse, error) {
			t.Fatal("read should not run without a domain")
			return nil, nil
		},
	}

	a := NewSite(fake, false)
	payload, err := a.Fetch(context.Background(), model.Identity{Company: "Acme Corp"})
	require.NoError(t, err)
	assert.True(t, payload.Empty())
}

func TestSiteFetch_NoCachePassesReadOption(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		noCache  bool
		wantOpts int
	}{
		{"cache allowed", false, 0},
		{"cache bypassed", true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var gotOpts int
			fake := &fakeJina{
				readFn: func(_ context.Context, _ string, opts ...jina.ReadOption) (*jina.ReadResponse, error) {
					gotOpts = len(opts)
					return &jina.ReadResponse{Code: 200}, nil
				},
			}

			a := NewSite(fake, tt.noCache)
			_, err := a.Fetch(context.Background(), model.Identity{Company: "Acme Corp", Domain: "acme.com"})
			require.NoError(t, err)
			assert.Equal(t, tt.wantOpts, gotOpts)
		})
	}
}

func TestSiteFetch_EmptyContent(t *testing.T) {
	t.Parallel()

	fake := &fakeJina{
		readFn: func(context.Context, string, ...jina.ReadOption) (*jina.ReadResponse, error) {
			return &jina.ReadResponse{Code: 200}, nil
		},
	}

	a := NewSite(fake, false)
	payload, err := a.Fetch(context.Background(), model.Identity{Company: "Acme Corp", Domain: "acme.com"})
	require.NoError(t, err)
	assert.True(t, payload.Empty())
}

func TestSiteFetch_ErrorIsFault(t *testing.T) {
	t.Parallel()

	fake := &fakeJina{
		readFn: func(context.Context, string, ...jina.ReadOption) (*jina.ReadResponse, error) {
			return nil, eris.New("jina: unexpected status 500")
		},
	}

	a := NewSite(fake, false)
	_, err := a.Fetch(context.Background(), model.Identity{Company: "Acme Corp", Domain: "acme.com"})
	require.Error(t, err)

	var fault *Fault
	require.True(t, errors.As(err, &fault))
	assert.Equal(t, "jina", fault.Provider)
}
