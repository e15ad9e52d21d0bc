package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trendsift/viral-engine/api/types"
)

func newOEmbedForTest(t *testing.T, handler http.HandlerFunc) *OEmbedClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewOEmbedClient(server.Client())
	client.InstagramURL = server.URL + "/instagram"
	client.YouTubeURL = server.URL + "/youtube"
	return client
}

func TestOEmbedMetricsInstagramFloor(t *testing.T) {
	var gotURL string
	client := newOEmbedForTest(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/instagram", r.URL.Path)
		gotURL = r.URL.Query().Get("url")
		json.NewEncoder(w).Encode(map[string]any{
			"author_name":   "@creator",
			"thumbnail_url": "https://scontent.cdninstagram.com/t.jpg",
		})
	})

	candidate := Candidate{
		URL:      "https://www.instagram.com/reel/Cxy123/?igshid=abc",
		Platform: types.PlatformInstagram,
	}
	eng, err := client.FetchMetrics(context.Background(), candidate)

	require.NoError(t, err)
	assert.Equal(t, "https://www.instagram.com/p/Cxy123/", gotURL, "reels normalize to post URLs")
	assert.Equal(t, int64(1000), eng.Views)
	assert.Equal(t, int64(50), eng.Likes)
	assert.Equal(t, int64(5), eng.Comments)
	assert.Equal(t, int64(10), eng.Shares)
	assert.Equal(t, int64(1000), eng.Followers)
	assert.Equal(t, "creator", eng.Author, "the @ prefix is stripped")
	assert.Equal(t, ConfidenceEmbed, eng.Confidence)
}

func TestOEmbedMetricsRejectsOtherPlatforms(t *testing.T) {
	client := NewOEmbedClient(http.DefaultClient)

	_, err := client.FetchMetrics(context.Background(), Candidate{
		URL:      "https://www.facebook.com/page/posts/1",
		Platform: types.PlatformFacebook,
	})

	require.Error(t, err)
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindUnavailable, pe.Kind)
}

func TestOEmbedMetricsNoShortcode(t *testing.T) {
	client := NewOEmbedClient(http.DefaultClient)

	_, err := client.FetchMetrics(context.Background(), Candidate{
		URL:      "https://www.instagram.com/someprofile/",
		Platform: types.PlatformInstagram,
	})

	assert.True(t, IsParse(err))
}

func TestOEmbedExtractMediaPicksEndpointByPlatform(t *testing.T) {
	var gotPath string
	client := newOEmbedForTest(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(map[string]any{
			"thumbnail_url": "https://i.ytimg.com/vi/abc/hqdefault.jpg",
		})
	})

	mediaURL, err := client.ExtractMediaURL(context.Background(), "https://youtu.be/abc")

	require.NoError(t, err)
	assert.Equal(t, "/youtube", gotPath)
	assert.Equal(t, "https://i.ytimg.com/vi/abc/hqdefault.jpg", mediaURL)

	_, err = client.ExtractMediaURL(context.Background(), "https://example.com/post")
	require.Error(t, err)
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindUnavailable, pe.Kind)
}

func TestOEmbedExtractMediaNoThumbnail(t *testing.T) {
	client := newOEmbedForTest(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"author_name":"x"}`))
	})

	_, err := client.ExtractMediaURL(context.Background(), "https://www.instagram.com/p/Cxy/")

	assert.True(t, IsParse(err))
}

func TestOEmbedGoneIsUnavailable(t *testing.T) {
	client := newOEmbedForTest(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.FetchMetrics(context.Background(), Candidate{
		URL:      "https://www.instagram.com/p/Cdeleted/",
		Platform: types.PlatformInstagram,
	})

	require.Error(t, err)
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindUnavailable, pe.Kind)
}
