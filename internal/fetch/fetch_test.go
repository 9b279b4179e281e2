package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURLFetchesPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body><p>measured 1007 Wh</p></body></html>"))
	}))
	defer srv.Close()

	res, err := URL(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, res.HTML, "1007 Wh")
	assert.Contains(t, res.ContentType, "text/html")
}

func TestURLNon200IsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	res, err := URL(context.Background(), srv.URL, nil)
	require.Error(t, err)
	var fetchErr *Error
	require.ErrorAs(t, err, &fetchErr)
	assert.Contains(t, fetchErr.Message, "403")
	// The partial result is still returned for diagnostics.
	require.NotNil(t, res)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
}

func TestURLRejectsInvalidURL(t *testing.T) {
	for _, bad := range []string{"", "not-a-url", "/relative/path", "://missing-scheme"} {
		_, err := URL(context.Background(), bad, nil)
		assert.Error(t, err, bad)
	}
}

func TestExtractMainTextPrefersContentSelectors(t *testing.T) {
	html := `<html><body>
		<nav>Home | Reviews | About</nav>
		<article>
			<h1>PowerCube PC-1000 teardown</h1>
			<p>We measured 1007 Wh of usable capacity.</p>
		</article>
		<footer>Copyright</footer>
	</body></html>`

	text, err := ExtractMainText(html, ReviewPageSelectors())
	require.NoError(t, err)
	assert.Contains(t, text, "1007 Wh")
	assert.NotContains(t, text, "Home | Reviews")
	assert.NotContains(t, text, "Copyright")
}

func TestExtractMainTextFallsBackToBody(t *testing.T) {
	html := `<html><body><div class="unstyled">usable capacity 1007 Wh</div></body></html>`

	text, err := ExtractMainText(html, []string{".review-content"})
	require.NoError(t, err)
	assert.Contains(t, text, "1007 Wh")
}

func TestExtractMainTextStripsNoiseSelectors(t *testing.T) {
	html := `<html><body><main>
		<p>real measurement here</p>
		<div class="related-posts">clickbait</div>
	</main></body></html>`

	text, err := ExtractMainText(html, []string{"main"}, ".related-posts")
	require.NoError(t, err)
	assert.Contains(t, text, "real measurement")
	assert.NotContains(t, text, "clickbait")
}

func TestExtractMainTextNormalizesWhitespace(t *testing.T) {
	html := "<html><body><main><p>  line one  </p>\n\n\n<p>line two</p></main></body></html>"

	text, err := ExtractMainText(html, []string{"main"})
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", text)
}
