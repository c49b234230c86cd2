package asr

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAudioFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rec.ogg")
	require.NoError(t, os.WriteFile(path, []byte("not really audio"), 0o600))
	return path
}

func TestTranscribeDecodesVerboseJSON(t *testing.T) {
	var gotAuth, gotFormat, gotLanguage string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotAuth = r.Header.Get("Authorization")
		gotFormat = r.FormValue("response_format")
		gotLanguage = r.FormValue("language")
		assert.Equal(t, "/audio/transcriptions", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"language": "fr",
			"segments": [{"speaker": "SPEAKER_00", "start": 0.1, "end": 1.4, "text": "Bonjour."}],
			"word_segments": [{"speaker": "SPEAKER_00", "start": 0.1, "end": 0.6, "word": "Bonjour."}]
		}`))
	}))
	defer srv.Close()

	c := NewClient(Config{
		BaseURL:          srv.URL,
		APIKey:           "secret",
		Model:            "whisperx",
		AllowedLanguages: []string{"fr", "en"},
	})

	res, err := c.Transcribe(context.Background(), writeAudioFixture(t), "fr")
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "verbose_json", gotFormat)
	assert.Equal(t, "fr", gotLanguage)
	assert.Equal(t, "fr", res.Language)
	require.Len(t, res.Segments(), 1)
	assert.Equal(t, "SPEAKER_00", res.Segments()[0].Speaker)
	require.Len(t, res.Words, 1)
	assert.Equal(t, "Bonjour.", res.Words[0].Text)
}

func TestTranscribeRejectsDisallowedLanguage(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, AllowedLanguages: []string{"fr"}})

	_, err := c.Transcribe(context.Background(), writeAudioFixture(t), "xx")
	require.ErrorIs(t, err, ErrLanguageNotAllowed)
	assert.False(t, called)
}

func TestTranscribeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, AllowedLanguages: []string{"fr"}})

	_, err := c.Transcribe(context.Background(), writeAudioFixture(t), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
