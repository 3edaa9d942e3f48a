package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfitem/nostr-digest/internal/application/service"
)

const feedTemplate = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>t</title>
<item><title>Release one</title><link>https://example.org/1</link><pubDate>%s</pubDate></item>
</channel></rss>`

func runRoot(t *testing.T, published time.Time, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	postFlag = false
	opmlFile = ""

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, feedTemplate, published.Format(time.RFC1123Z))
	}))
	t.Cleanup(srv.Close)

	config := fmt.Sprintf(`categories:
  - name: Releases
    feeds:
      - %s/feed.xml
nostr:
  relays: ["ws://127.0.0.1:1"]
logger:
  console: false
`, srv.URL)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(config), 0644))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(append([]string{"--config", path}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootDryRunWithNoRecentItems(t *testing.T) {
	t.Setenv("NOSTR_NSEC", "")
	out, err := runRoot(t, time.Now().AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Contains(t, out, service.NoRecentItemsMessage)
}

func TestRootDryRunPreview(t *testing.T) {
	t.Setenv("NOSTR_NSEC", "")
	out, err := runRoot(t, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Contains(t, out, "• Releases: 1 update")
	assert.Contains(t, out, "• Release one\n  https://example.org/1")
	assert.Contains(t, out, "(Dry run: not posting)")
}

func TestRootPostWithoutKeyFails(t *testing.T) {
	t.Setenv("NOSTR_NSEC", "")
	out, err := runRoot(t, time.Now().Add(-time.Hour), "--post")
	assert.True(t, errors.Is(err, service.ErrMissingKey), "%v", err)
	assert.Contains(t, out, "--- PARENT NOTE PREVIEW ---")
	assert.NotContains(t, out, "[OK]")
	assert.NotContains(t, out, "[ERR]")
}

func TestEnvOverridesConfig(t *testing.T) {
	t.Setenv("RELAYS", "wss://a.example, wss://b.example,,")
	t.Setenv("MAX_PER_CAT", "2")
	_, err := runRoot(t, time.Now().AddDate(0, 0, -30))
	require.NoError(t, err)

	params, err := buildParams()
	require.NoError(t, err)
	assert.Equal(t, []string{"wss://a.example", "wss://b.example"}, params.Relays)
	assert.Equal(t, 2, params.MaxPerCat)
	assert.Equal(t, "Releases", params.Categories[0].Name)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a ,b,, "))
	assert.Empty(t, splitList(""))
}
