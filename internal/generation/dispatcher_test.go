package generation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\nfake-image")

func imageHandler(contentType string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write(pngBytes)
	}
}

func jsonAPI(id, endpoint string, enc Encoding) Descriptor {
	return Descriptor{
		ID: id, Shape: ShapeJSONURL,
		API: &APIConfig{Endpoint: endpoint, Host: "api.test", Encoding: enc, Body: func(r Request) map[string]any {
			return map[string]any{"prompt": r.Prompt, "n": 1}
		}},
	}
}

func newTestDispatcher(srv *httptest.Server, descs ...Descriptor) *Dispatcher {
	return NewDispatcher(Config{APIKey: "secret", Timeout: 5 * time.Second},
		WithHTTPClient(srv.Client()), WithCatalog(descs))
}

func TestGenerate_UnknownModelMakesNoCall(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	d := newTestDispatcher(srv, jsonAPI("known", srv.URL, EncodingJSON))
	_, err := d.Generate(context.Background(), Request{Prompt: "cat", Model: "nope"})

	assert.ErrorIs(t, err, ErrUnsupportedModel)
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))
}

func TestGenerate_BlankPrompt(t *testing.T) {
	d := NewDispatcher(Config{})
	_, err := d.Generate(context.Background(), Request{Prompt: "  ", Model: "pollinations-flux"})
	assert.Equal(t, KindInvalidRequest, KindOf(err))
}

func TestGenerate_ProviderFilterHidesModel(t *testing.T) {
	d := NewDispatcher(Config{}, WithProviderFilter(func(id string) bool { return id != "dall-e-34" }))

	_, err := d.Generate(context.Background(), Request{Prompt: "cat", Model: "dall-e-34"})
	assert.ErrorIs(t, err, ErrUnsupportedModel)

	for _, p := range d.Providers() {
		assert.NotEqual(t, "dall-e-34", p.ID)
	}
	assert.Len(t, d.Providers(), len(Catalog())-1)
}

func TestGenerate_DirectURL(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotQuery = r.URL.RawQuery
		imageHandler("image/jpeg")(w, r)
	}))
	defer srv.Close()

	desc := Descriptor{ID: "direct", Shape: ShapeDirectURL, Direct: &DirectConfig{
		BaseURL: srv.URL + "/prompt/", Model: "flux", Width: 1024, Height: 1024, NoLogo: true, Safe: true,
	}}
	d := newTestDispatcher(srv, desc)

	asset, err := d.Generate(context.Background(), Request{Prompt: "a red fox/at dawn", Model: "direct", Width: 512})
	require.NoError(t, err)

	assert.Equal(t, "/prompt/a%20red%20fox%2Fat%20dawn", gotPath)
	assert.Equal(t, "model=flux&width=512&height=1024&nologo=true&safe=true", gotQuery)
	assert.Equal(t, pngBytes, asset.Data)
	assert.Equal(t, "image/jpeg", asset.MediaType)
	assert.Equal(t, "direct", asset.ProviderID)
}

func TestGenerate_RejectsNonImageContentType(t *testing.T) {
	for _, ct := range []string{"text/html; charset=utf-8", "application/json", ""} {
		t.Run(ct, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if ct != "" {
					w.Header().Set("Content-Type", ct)
				} else {
					w.Header()["Content-Type"] = nil
				}
				_, _ = w.Write([]byte("<html>rate limited</html>"))
			}))
			defer srv.Close()

			desc := Descriptor{ID: "direct", Shape: ShapeDirectURL, Direct: &DirectConfig{BaseURL: srv.URL + "/", Model: "m"}}
			_, err := newTestDispatcher(srv, desc).Generate(context.Background(), Request{Prompt: "x", Model: "direct"})
			assert.ErrorIs(t, err, ErrInvalidAssetType)
		})
	}
}

func TestGenerate_BinaryPostRejectsJSONAnswer(t *testing.T) {
	var method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error":"quota exceeded"}`))
	}))
	defer srv.Close()

	desc := jsonAPI("bin", srv.URL, EncodingJSON)
	desc.Shape = ShapeBinary
	asset, err := newTestDispatcher(srv, desc).Generate(context.Background(), Request{Prompt: "owl", Model: "bin"})

	assert.Nil(t, asset)
	assert.Equal(t, http.MethodPost, method)
	assert.ErrorIs(t, err, ErrInvalidAssetType)
	assert.Equal(t, KindInvalidAssetType, KindOf(err))
}

func TestGenerate_BinaryPostSendsHeaders(t *testing.T) {
	var body map[string]any
	var key, host, ctype string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key = r.Header.Get("x-rapidapi-key")
		host = r.Header.Get("x-rapidapi-host")
		ctype = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&body)
		imageHandler("image/png")(w, r)
	}))
	defer srv.Close()

	desc := jsonAPI("bin", srv.URL, EncodingJSON)
	desc.Shape = ShapeBinary
	asset, err := newTestDispatcher(srv, desc).Generate(context.Background(), Request{Prompt: "owl", Model: "bin"})
	require.NoError(t, err)

	assert.Equal(t, "secret", key)
	assert.Equal(t, "api.test", host)
	assert.Equal(t, "application/json", ctype)
	assert.Equal(t, "owl", body["prompt"])
	assert.Equal(t, "image/png", asset.MediaType)
}

func TestGenerate_MultipartBody(t *testing.T) {
	var prompt string
	mux := http.NewServeMux()
	srvURL := ""
	mux.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		prompt = r.FormValue("prompt")
		_ = json.NewEncoder(w).Encode(map[string]string{"image": srvURL + "/asset"})
	})
	mux.HandleFunc("/asset", imageHandler("image/webp"))
	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	asset, err := newTestDispatcher(srv, jsonAPI("multi", srv.URL+"/api", EncodingMultipart)).
		Generate(context.Background(), Request{Prompt: "lighthouse", Model: "multi"})
	require.NoError(t, err)
	assert.Equal(t, "lighthouse", prompt)
	assert.Equal(t, "image/webp", asset.MediaType)
}

func TestExtractAssetURL(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
		ok   bool
	}{
		{"url first", `{"url":"http://a/1","image":"http://a/2","output":"http://a/3"}`, "http://a/1", true},
		{"image before output", `{"image":"http://a/2","output":"http://a/3"}`, "http://a/2", true},
		{"output", `{"output":"http://a/3"}`, "http://a/3", true},
		{"empty url skipped", `{"url":"","output":"http://a/3"}`, "http://a/3", true},
		{"non-string skipped", `{"url":42,"image":"http://a/2"}`, "http://a/2", true},
		{"data fallback", `{"data":[{"url":"http://a/d"}]}`, "http://a/d", true},
		{"empty data", `{"data":[]}`, "", false},
		{"no fields", `{"status":"ok"}`, "", false},
		{"not json", `<html></html>`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractAssetURL([]byte(tt.body))
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGenerate_JSONWithoutURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"queued"}`)
	}))
	defer srv.Close()

	_, err := newTestDispatcher(srv, jsonAPI("j", srv.URL, EncodingJSON)).
		Generate(context.Background(), Request{Prompt: "x", Model: "j"})
	assert.ErrorIs(t, err, ErrMissingAssetURL)
	assert.True(t, IsRetryable(err))
}

func TestGenerate_JSONWithNonHTTPURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"url":"file:///etc/passwd"}`)
	}))
	defer srv.Close()

	_, err := newTestDispatcher(srv, jsonAPI("j", srv.URL, EncodingJSON)).
		Generate(context.Background(), Request{Prompt: "x", Model: "j"})
	assert.ErrorIs(t, err, ErrMissingAssetURL)
}

func TestGenerate_DataFallbackDownloadsAsset(t *testing.T) {
	mux := http.NewServeMux()
	srvURL := ""
	mux.HandleFunc("/v1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":[{"url":"`+srvURL+`/img.png"}]}`)
	})
	mux.HandleFunc("/img.png", imageHandler("image/png"))
	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	asset, err := newTestDispatcher(srv, jsonAPI("dalle", srv.URL+"/v1", EncodingJSON)).
		Generate(context.Background(), Request{Prompt: "x", Model: "dalle"})
	require.NoError(t, err)
	assert.Equal(t, pngBytes, asset.Data)
}

func TestGenerate_UpstreamStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, strings.Repeat("quota exceeded ", 100), http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestDispatcher(srv, jsonAPI("j", srv.URL, EncodingJSON)).
		Generate(context.Background(), Request{Prompt: "x", Model: "j"})
	require.ErrorIs(t, err, ErrUpstream)

	var gerr *Error
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, http.StatusTooManyRequests, gerr.Status)
	assert.Equal(t, "j", gerr.ProviderID)
	assert.LessOrEqual(t, len(gerr.Message), errorBodyPreview+32)
}

func TestGenerate_SizeCap(t *testing.T) {
	srv := httptest.NewServer(imageHandler("image/png"))
	defer srv.Close()

	desc := Descriptor{ID: "direct", Shape: ShapeDirectURL, Direct: &DirectConfig{BaseURL: srv.URL + "/", Model: "m"}}
	d := NewDispatcher(Config{MaxAssetBytes: 4}, WithHTTPClient(srv.Client()), WithCatalog([]Descriptor{desc}))

	_, err := d.Generate(context.Background(), Request{Prompt: "x", Model: "direct"})
	assert.ErrorIs(t, err, ErrUpstream)
	assert.ErrorContains(t, err, "exceeds 4 bytes")
}

func TestGenerate_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	desc := Descriptor{ID: "slow", Shape: ShapeDirectURL, Direct: &DirectConfig{BaseURL: srv.URL + "/", Model: "m"}}
	d := NewDispatcher(Config{Timeout: 50 * time.Millisecond}, WithHTTPClient(srv.Client()), WithCatalog([]Descriptor{desc}))

	_, err := d.Generate(context.Background(), Request{Prompt: "x", Model: "slow"})
	assert.ErrorIs(t, err, ErrUpstream)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCatalog(t *testing.T) {
	descs := Catalog()
	require.Len(t, descs, 10)
	assert.Equal(t, "pollinations-default", descs[0].ID)

	seen := map[string]bool{}
	for _, d := range descs {
		assert.False(t, seen[d.ID], "duplicate id %s", d.ID)
		seen[d.ID] = true
		switch d.Shape {
		case ShapeDirectURL:
			assert.NotNil(t, d.Direct, d.ID)
		case ShapeBinary, ShapeJSONURL:
			require.NotNil(t, d.API, d.ID)
			assert.NotEmpty(t, d.API.Host, d.ID)
		default:
			t.Errorf("%s has no shape", d.ID)
		}
	}

	omni, ok := Lookup("omniinfer-meina")
	require.True(t, ok)
	body := omni.API.Body(Request{Prompt: "p"})
	assert.Equal(t, 768, body["width"])
	assert.Equal(t, 1024, body["height"])

	descs[0].ID = "mutated"
	_, ok = Lookup("pollinations-default")
	assert.True(t, ok, "Catalog must return a copy")
}
