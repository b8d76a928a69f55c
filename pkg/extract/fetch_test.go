package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURLOfflineServer(t *testing.T) {
	var userAgent atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent.Store(r.Header.Get("User-Agent"))
		switch r.URL.Path {
		case "/terms":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write([]byte(contractHTML))
		case "/terms.txt":
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Write([]byte("TERMS OF SERVICE\fIN WITNESS WHEREOF"))
		case "/logo.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write([]byte{0x89, 'P', 'N', 'G'})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	doc, err := URL(context.Background(), srv.Client(), srv.URL+"/terms", Options{})
	require.NoError(t, err)
	text := joined(doc)
	assert.Contains(t, text, "IN WITNESS WHEREOF")
	assert.NotContains(t, text, "Amendment No. 7")
	assert.Contains(t, userAgent.Load(), "contractsort")

	doc, err = URL(context.Background(), nil, srv.URL+"/terms.txt", Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, doc.NumSegments())

	_, err = URL(context.Background(), srv.Client(), srv.URL+"/logo.png", Options{})
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = URL(context.Background(), srv.Client(), srv.URL+"/gone", Options{})
	assert.ErrorContains(t, err, "status 404")
}

func TestURLTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(strings.Repeat("x", MaxBodySize+1)))
	}))
	defer srv.Close()

	_, err := URL(context.Background(), srv.Client(), srv.URL, Options{})
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestURLCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := URL(ctx, nil, "http://127.0.0.1:1/terms", Options{})
	assert.ErrorIs(t, err, context.Canceled)
}
