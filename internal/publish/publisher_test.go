package publish

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strawberry/sitebuilder-go/internal/config"
	apperrors "github.com/strawberry/sitebuilder-go/internal/errors"
	"github.com/strawberry/sitebuilder-go/internal/model"
)

type memSites struct {
	mu    sync.Mutex
	sites []model.Website
}

func (m *memSites) FindByFileName(_ context.Context, userID, fileName string) (*model.Website, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sites {
		if s.UserID == userID && s.FileName == fileName {
			s := s
			return &s, nil
		}
	}
	return nil, nil
}

func (m *memSites) FindByName(_ context.Context, userID, name string) (*model.Website, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sites {
		if s.UserID == userID && s.Name == name {
			s := s
			return &s, nil
		}
	}
	return nil, nil
}

func (m *memSites) Save(_ context.Context, p model.SaveWebsiteParams) (*model.Website, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.sites {
		if s.UserID == p.UserID && s.Name == p.Name {
			m.sites[i].FileName, m.sites[i].URL = p.FileName, p.URL
			return &m.sites[i], nil
		}
	}
	w := model.Website{UserID: p.UserID, Name: p.Name, FileName: p.FileName, URL: p.URL}
	m.sites = append(m.sites, w)
	return &w, nil
}

func (m *memSites) UpdateByFileName(_ context.Context, p model.SaveWebsiteParams) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.sites {
		if s.UserID == p.UserID && s.FileName == p.FileName {
			m.sites[i].URL = p.URL
			return true, nil
		}
	}
	return false, nil
}

func (m *memSites) DeleteByName(_ context.Context, userID, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.sites {
		if s.UserID == userID && s.Name == name {
			m.sites = append(m.sites[:i], m.sites[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

type memLedger struct {
	mu      sync.Mutex
	balance decimal.Decimal
	charged []decimal.Decimal
}

func (l *memLedger) Balance(context.Context, string) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance, nil
}

func (l *memLedger) Charge(_ context.Context, _ string, cost decimal.Decimal, _ string) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balance = l.balance.Sub(cost)
	l.charged = append(l.charged, cost)
	return l.balance, nil
}

type docSink map[string]string

func (d docSink) SetDocument(_, hash, html string) bool {
	d[hash] = html
	return true
}

type publishFixture struct {
	lay    layout
	sites  *memSites
	ledger *memLedger
	docs   docSink
	pub    *Publisher
}

func newPublishFixture(t *testing.T, balance string) publishFixture {
	t.Helper()
	lay := newLayout(t)
	f := publishFixture{
		lay:    lay,
		sites:  &memSites{},
		ledger: &memLedger{balance: decimal.RequireFromString(balance)},
		docs:   docSink{},
	}
	f.pub = NewPublisher(PublisherOptions{
		SitesDir:    filepath.Join(lay.static, config.WebsitesDir),
		URLPrefix:   "/static/websites",
		BaseURL:     "https://builder.example.com/",
		RechargeURL: "https://builder.example.com/recharge",
		Prices: Prices{
			Publish:   decimal.NewFromInt(50),
			Republish: decimal.RequireFromString("0.10"),
			ImageSave: decimal.RequireFromString("0.04"),
		},
	}, f.sites, f.ledger, NewLocalizer(lay.static), f.docs)
	return f
}

func TestPublish(t *testing.T) {
	ctx := context.Background()

	t.Run("first publish charges fee plus images", func(t *testing.T) {
		f := newPublishFixture(t, "100")
		f.lay.addTemp(t, "hero.png")

		out, err := f.pub.Publish(ctx, Request{
			UserID:   "u1",
			Name:     "Café Shop",
			HTML:     `<img src="/static/temp_media/hero.png">`,
			ChatHash: "chat1",
		})
		require.NoError(t, err)

		assert.Equal(t, "https://builder.example.com/static/websites/cafe-shop/index.html", out.URL)
		assert.Equal(t, 1, out.ImagesCharged)
		assert.Equal(t, 1, out.ImagesSaved)
		assert.Equal(t, "50.04", out.Charged.String())
		assert.Equal(t, "49.96", f.ledger.balance.String())

		index, err := os.ReadFile(filepath.Join(f.lay.static, "websites", "cafe-shop", "index.html"))
		require.NoError(t, err)
		assert.Contains(t, string(index), "/static/websites/cafe-shop/hero.png")
		assert.Equal(t, string(index), f.docs["chat1"])

		require.Len(t, f.sites.sites, 1)
		assert.Equal(t, "cafe-shop/index.html", f.sites.sites[0].FileName)
		assert.Equal(t, "Café Shop", f.sites.sites[0].Name)
	})

	t.Run("existing folder is a conflict without charge", func(t *testing.T) {
		f := newPublishFixture(t, "100")
		require.NoError(t, os.MkdirAll(filepath.Join(f.lay.static, "websites", "mysite"), 0o755))

		_, err := f.pub.Publish(ctx, Request{UserID: "u1", Name: "MySite", HTML: "<p>x</p>"})
		assert.Equal(t, apperrors.ErrCodeAlreadyExists, apperrors.GetCode(err))
		assert.Empty(t, f.ledger.charged)
		assert.Empty(t, f.sites.sites)
		assert.NoFileExists(t, filepath.Join(f.lay.static, "websites", "mysite", "index.html"))
	})

	t.Run("insufficient balance leaves nothing behind", func(t *testing.T) {
		f := newPublishFixture(t, "10")

		_, err := f.pub.Publish(ctx, Request{UserID: "u1", Name: "shop", HTML: "<p>x</p>"})
		appErr, ok := apperrors.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrCodeInsufficientBalance, appErr.Code)
		details, ok := appErr.Details.(apperrors.BalanceDetails)
		require.True(t, ok)
		assert.Equal(t, "50", details.Required.String())
		assert.Empty(t, f.ledger.charged)
		assert.NoDirExists(t, filepath.Join(f.lay.static, "websites", "shop"))
	})

	t.Run("republish requires ownership", func(t *testing.T) {
		f := newPublishFixture(t, "100")
		f.sites.sites = append(f.sites.sites, model.Website{UserID: "u2", Name: "foo", FileName: "foo/index.html"})

		_, err := f.pub.Publish(ctx, Request{UserID: "u1", Name: "foo", HTML: "<p>x</p>", Republish: true})
		assert.Equal(t, apperrors.ErrCodeForbidden, apperrors.GetCode(err))
		assert.Empty(t, f.ledger.charged)
	})

	t.Run("republish overwrites for the cheaper fee", func(t *testing.T) {
		f := newPublishFixture(t, "1")
		siteDir := filepath.Join(f.lay.static, "websites", "foo")
		require.NoError(t, os.MkdirAll(siteDir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(siteDir, "index.html"), []byte("old"), 0o644))
		f.sites.sites = append(f.sites.sites, model.Website{UserID: "u1", Name: "Foo", FileName: "foo/index.html"})

		out, err := f.pub.Publish(ctx, Request{UserID: "u1", Name: "Foo", HTML: "<p>new</p>", Republish: true})
		require.NoError(t, err)

		assert.True(t, out.Republish)
		assert.Equal(t, "0.1", out.Charged.String())
		index, _ := os.ReadFile(filepath.Join(siteDir, "index.html"))
		assert.Equal(t, "<p>new</p>", string(index))
		require.Len(t, f.sites.sites, 1)
		assert.Equal(t, "/static/websites/foo/index.html", f.sites.sites[0].URL)
	})

	t.Run("republish writes into the owned record's folder", func(t *testing.T) {
		f := newPublishFixture(t, "1")
		siteDir := filepath.Join(f.lay.static, "websites", "shop-v1")
		require.NoError(t, os.MkdirAll(siteDir, 0o755))
		f.sites.sites = append(f.sites.sites, model.Website{UserID: "u1", Name: "Old Shop", FileName: "shop-v1/index.html"})

		out, err := f.pub.Publish(ctx, Request{UserID: "u1", Name: "Old Shop", HTML: "<p>v2</p>", Republish: true})
		require.NoError(t, err)

		assert.Equal(t, "https://builder.example.com/static/websites/shop-v1/index.html", out.URL)
		index, err := os.ReadFile(filepath.Join(siteDir, "index.html"))
		require.NoError(t, err)
		assert.Equal(t, "<p>v2</p>", string(index))
		assert.NoDirExists(t, filepath.Join(f.lay.static, "websites", "old-shop"))
		require.Len(t, f.sites.sites, 1)
		assert.Equal(t, "shop-v1/index.html", f.sites.sites[0].FileName)
	})

	t.Run("concurrent first publishes of one name", func(t *testing.T) {
		f := newPublishFixture(t, "1000")

		users := []string{"alice", "bob"}
		errs := make([]error, len(users))
		start := make(chan struct{})
		var wg sync.WaitGroup
		for i, u := range users {
			wg.Add(1)
			go func(i int, u string) {
				defer wg.Done()
				<-start
				_, errs[i] = f.pub.Publish(ctx, Request{UserID: u, Name: "shop", HTML: "<p>" + u + "</p>"})
			}(i, u)
		}
		close(start)
		wg.Wait()

		var ok, conflicts int
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case apperrors.GetCode(err) == apperrors.ErrCodeAlreadyExists:
				conflicts++
			}
		}
		assert.Equal(t, 1, ok)
		assert.Equal(t, 1, conflicts)
		assert.Len(t, f.ledger.charged, 1)
		require.Len(t, f.sites.sites, 1)

		index, err := os.ReadFile(filepath.Join(f.lay.static, "websites", "shop", "index.html"))
		require.NoError(t, err)
		assert.Equal(t, "<p>"+f.sites.sites[0].UserID+"</p>", string(index))
	})

	t.Run("missing fields", func(t *testing.T) {
		f := newPublishFixture(t, "100")
		_, err := f.pub.Publish(ctx, Request{UserID: "u1", Name: "x"})
		assert.Equal(t, apperrors.ErrCodeMissingRequired, apperrors.GetCode(err))
	})
}

func TestDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("removes folder and record", func(t *testing.T) {
		f := newPublishFixture(t, "100")
		_, err := f.pub.Publish(ctx, Request{UserID: "u1", Name: "shop", HTML: "<p>x</p>"})
		require.NoError(t, err)

		require.NoError(t, f.pub.Delete(ctx, "u1", "shop"))
		assert.NoDirExists(t, filepath.Join(f.lay.static, "websites", "shop"))
		assert.Empty(t, f.sites.sites)
	})

	t.Run("unknown site", func(t *testing.T) {
		f := newPublishFixture(t, "100")
		err := f.pub.Delete(ctx, "u1", "nope")
		assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))
	})
}

func TestSiteFolder(t *testing.T) {
	ctx := context.Background()
	f := newPublishFixture(t, "100")
	f.sites.sites = append(f.sites.sites, model.Website{UserID: "u1", Name: "My Shop", FileName: "my-shop/index.html"})

	dir, ok, err := f.pub.SiteFolder(ctx, "u1", "My Shop")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, filepath.Join(f.lay.static, "websites", "my-shop"), dir)

	_, ok, err = f.pub.SiteFolder(ctx, "u2", "My Shop")
	require.NoError(t, err)
	assert.False(t, ok)
}
