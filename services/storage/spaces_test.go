package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sahilchouksey/tuition-api/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQRKey(t *testing.T) {
	at := time.Date(2026, 3, 10, 23, 30, 0, 0, time.FixedZone("BOT", -4*60*60))
	assert.Equal(t, "qr/2026/03/TUI-ABC.png", QRKey("TUI-ABC", at))
}

func TestDecodeImage(t *testing.T) {
	data, err := decodeImage("aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	data, err = decodeImage("data:image/png;base64,aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = decodeImage("not base64!")
	assert.Error(t, err)
	_, err = decodeImage("")
	assert.Error(t, err)
}

func TestSpacesConfigFromEnv(t *testing.T) {
	_, ok := SpacesConfigFromEnv(&config.EnviornmentVariable{DO_SPACES_REGION: "nyc3"})
	assert.False(t, ok)

	cfg, ok := SpacesConfigFromEnv(&config.EnviornmentVariable{
		DO_SPACES_KEY:    "key",
		DO_SPACES_SECRET: "secret",
		DO_SPACES_BUCKET: "receipts",
		DO_SPACES_REGION: "nyc3",
	})
	assert.True(t, ok)
	assert.Equal(t, "nyc3.digitaloceanspaces.com", cfg.Endpoint)
}

func TestNewSpacesClientRequiresCredentials(t *testing.T) {
	_, err := NewSpacesClient(SpacesConfig{Bucket: "b"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestGetFileURL(t *testing.T) {
	client, err := NewSpacesClient(SpacesConfig{AccessKey: "k", SecretKey: "s", Bucket: "receipts", Region: "nyc3", Endpoint: "nyc3.digitaloceanspaces.com"})
	require.NoError(t, err)
	assert.Equal(t, "https://receipts.nyc3.digitaloceanspaces.com/qr/a.png", client.GetFileURL("qr/a.png"))

	client.cdnURL = "https://cdn.example.com"
	assert.Equal(t, "https://cdn.example.com/qr/a.png", client.GetFileURL("qr/a.png"))
}

func TestArchiveQR(t *testing.T) {
	var (
		mu   sync.Mutex
		path string
		body []byte
		ct   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		path = r.URL.Path
		ct = r.Header.Get("Content-Type")
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := NewSpacesClient(SpacesConfig{
		AccessKey: "k",
		SecretKey: "s",
		Bucket:    "receipts",
		Region:    "us-east-1",
		Endpoint:  srv.URL,
		PathStyle: true,
	})
	require.NoError(t, err)
	client.now = func() time.Time { return time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC) }

	url, err := client.ArchiveQR(context.Background(), "TUI-1", "aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/receipts/qr/2026/03/TUI-1.png", url)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/receipts/qr/2026/03/TUI-1.png", path)
	assert.Equal(t, "image/png", ct)
	assert.Equal(t, "hello", string(body))
}
