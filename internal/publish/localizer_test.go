package publish

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strawberry/sitebuilder-go/internal/config"
)

const sitePrefix = "/static/websites/s"

type layout struct {
	static  string
	temp    string
	siteDir string
}

func newLayout(t *testing.T) layout {
	t.Helper()
	static := t.TempDir()
	l := layout{
		static:  static,
		temp:    filepath.Join(static, config.TempMediaDir),
		siteDir: filepath.Join(static, config.WebsitesDir, "s"),
	}
	require.NoError(t, os.MkdirAll(l.temp, 0o755))
	return l
}

func (l layout) addTemp(t *testing.T, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(l.temp, name), []byte("temp:"+name), 0o644))
}

func assetServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("remote:" + r.URL.Path))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLocalize(t *testing.T) {
	ctx := context.Background()

	t.Run("moves temporary uploads into the site", func(t *testing.T) {
		lay := newLayout(t)
		lay.addTemp(t, "up.png")
		loc := NewLocalizer(lay.static)

		res, err := loc.Localize(ctx, `<img src="/static/temp_media/up.png">`, lay.siteDir, sitePrefix)
		require.NoError(t, err)

		assert.Contains(t, res.HTML, `src="/static/websites/s/up.png"`)
		assert.Equal(t, 1, res.NewFiles)
		assert.Equal(t, 1, res.NewImages)
		assert.FileExists(t, filepath.Join(lay.siteDir, "up.png"))
		assert.NoFileExists(t, filepath.Join(lay.temp, "up.png"))
	})

	t.Run("existing destination file is reused", func(t *testing.T) {
		lay := newLayout(t)
		lay.addTemp(t, "up.png")
		require.NoError(t, os.MkdirAll(lay.siteDir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(lay.siteDir, "up.png"), []byte("old"), 0o644))

		res, err := NewLocalizer(lay.static).Localize(ctx, `<img src="/static/temp_media/up.png">`, lay.siteDir, sitePrefix)
		require.NoError(t, err)

		assert.Contains(t, res.HTML, `src="/static/websites/s/up.png"`)
		assert.Equal(t, 0, res.NewFiles)
		data, _ := os.ReadFile(filepath.Join(lay.siteDir, "up.png"))
		assert.Equal(t, "old", string(data))
		assert.FileExists(t, filepath.Join(lay.temp, "up.png"))
	})

	t.Run("data uris become files", func(t *testing.T) {
		lay := newLayout(t)
		res, err := NewLocalizer(lay.static).Localize(ctx, `<img src="data:image/gif;base64,R0lGOA==">`, lay.siteDir, sitePrefix)
		require.NoError(t, err)

		assert.Equal(t, 1, res.NewImages)
		matches, _ := filepath.Glob(filepath.Join(lay.siteDir, "img-*.gif"))
		require.Len(t, matches, 1)
		assert.Contains(t, res.HTML, "/static/websites/s/"+filepath.Base(matches[0]))
	})

	t.Run("remote assets are downloaded once", func(t *testing.T) {
		lay := newLayout(t)
		srv := assetServer(t)
		src := `<img src="` + srv.URL + `/pics/cat.jpg"><div style="background:url(` + srv.URL + `/pics/cat.jpg)"></div>`

		res, err := NewLocalizer(lay.static).Localize(ctx, src, lay.siteDir, sitePrefix)
		require.NoError(t, err)

		assert.Equal(t, 1, res.NewFiles)
		assert.Contains(t, res.HTML, `src="/static/websites/s/cat.jpg"`)
		assert.Contains(t, res.HTML, `url(&#39;/static/websites/s/cat.jpg&#39;)`)
		data, err := os.ReadFile(filepath.Join(lay.siteDir, "cat.jpg"))
		require.NoError(t, err)
		assert.Equal(t, "remote:/pics/cat.jpg", string(data))

		again, err := NewLocalizer(lay.static).Localize(ctx, src, lay.siteDir, sitePrefix)
		require.NoError(t, err)
		assert.Equal(t, 0, again.NewFiles)
	})

	t.Run("failed downloads keep the reference", func(t *testing.T) {
		lay := newLayout(t)
		srv := assetServer(t)
		src := `<img src="` + srv.URL + `/missing.png">`

		res, err := NewLocalizer(lay.static).Localize(ctx, src, lay.siteDir, sitePrefix)
		require.NoError(t, err)
		assert.Contains(t, res.HTML, srv.URL+"/missing.png")
		assert.Equal(t, 0, res.NewFiles)
	})

	t.Run("srcset descriptors are preserved", func(t *testing.T) {
		lay := newLayout(t)
		lay.addTemp(t, "a.png")
		lay.addTemp(t, "b.png")
		src := `<picture><source srcset="/static/temp_media/a.png 1x, /static/temp_media/b.png 2x"><img src="logo.png"></picture>`

		res, err := NewLocalizer(lay.static).Localize(ctx, src, lay.siteDir, sitePrefix)
		require.NoError(t, err)
		assert.Contains(t, res.HTML, `srcset="/static/websites/s/a.png 1x, /static/websites/s/b.png 2x"`)
		assert.Contains(t, res.HTML, `src="logo.png"`)
		assert.Equal(t, 2, res.NewFiles)
		assert.Equal(t, 0, res.NewImages)
	})

	t.Run("style blocks icons and media", func(t *testing.T) {
		lay := newLayout(t)
		for _, n := range []string{"bg.png", "fav.ico", "song.mp3", "poster.jpg"} {
			lay.addTemp(t, n)
		}
		src := `<!DOCTYPE html><html><head>` +
			`<link rel="icon" href="/static/temp_media/fav.ico">` +
			`<style>body { background: url("/static/temp_media/bg.png"); }</style>` +
			`</head><body><video poster="/static/temp_media/poster.jpg"></video>` +
			`<audio controls><source src="/static/temp_media/song.mp3"></audio></body></html>`

		res, err := NewLocalizer(lay.static).Localize(ctx, src, lay.siteDir, sitePrefix)
		require.NoError(t, err)

		assert.Contains(t, res.HTML, "<!DOCTYPE html>")
		assert.Contains(t, res.HTML, `href="/static/websites/s/fav.ico"`)
		assert.Contains(t, res.HTML, `url('/static/websites/s/bg.png')`)
		assert.Contains(t, res.HTML, `poster="/static/websites/s/poster.jpg"`)
		assert.Contains(t, res.HTML, `src="/static/websites/s/song.mp3"`)
		assert.Equal(t, 4, res.NewFiles)
		assert.Equal(t, 0, res.NewImages)
	})

	t.Run("svg image hrefs", func(t *testing.T) {
		lay := newLayout(t)
		lay.addTemp(t, "shape.png")
		src := `<svg><image xlink:href="/static/temp_media/shape.png"></image></svg>`

		res, err := NewLocalizer(lay.static).Localize(ctx, src, lay.siteDir, sitePrefix)
		require.NoError(t, err)
		assert.Contains(t, res.HTML, `xlink:href="/static/websites/s/shape.png"`)
		assert.Equal(t, 1, res.NewImages)
	})

	t.Run("fragments stay fragments", func(t *testing.T) {
		lay := newLayout(t)
		res, err := NewLocalizer(lay.static).Localize(ctx, `<section><p>hi</p></section>`, lay.siteDir, sitePrefix)
		require.NoError(t, err)
		assert.Equal(t, `<section><p>hi</p></section>`, res.HTML)
	})
}

func TestEstimate(t *testing.T) {
	ctx := context.Background()

	t.Run("matches the images localize creates", func(t *testing.T) {
		lay := newLayout(t)
		lay.addTemp(t, "up.png")
		lay.addTemp(t, "song.mp3")
		srv := assetServer(t)
		src := `<img src="/static/temp_media/up.png">` +
			`<img src="/static/temp_media/up.png">` +
			`<img src="data:image/png;base64,iVBORw0KGgo=">` +
			`<img src="` + srv.URL + `/pics/cat.jpg">` +
			`<img src="` + srv.URL + `/other/cat.jpg">` +
			`<img src="` + srv.URL + `/photo/123">` +
			`<img src="/static/websites/s/kept.png">` +
			`<svg><image href="` + srv.URL + `/pics/shape.png"></image></svg>` +
			`<audio src="/static/temp_media/song.mp3"></audio>`

		loc := NewLocalizer(lay.static)
		estimate := loc.Estimate(src, lay.siteDir, sitePrefix)
		assert.NoDirExists(t, lay.siteDir)

		res, err := loc.Localize(ctx, src, lay.siteDir, sitePrefix)
		require.NoError(t, err)
		assert.Equal(t, 5, estimate)
		assert.Equal(t, estimate, res.NewImages)
		assert.Equal(t, 6, res.NewFiles)
	})

	t.Run("existing files are free", func(t *testing.T) {
		lay := newLayout(t)
		require.NoError(t, os.MkdirAll(lay.siteDir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(lay.siteDir, "cat.jpg"), []byte("x"), 0o644))

		n := NewLocalizer(lay.static).Estimate(`<img src="https://cdn.example.com/cat.jpg">`, lay.siteDir, sitePrefix)
		assert.Equal(t, 0, n)
	})
}
