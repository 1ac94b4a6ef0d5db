package icons

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRef(t *testing.T) {
	r, err := ParseRef(" shield ")
	require.NoError(t, err)
	assert.Equal(t, RefShield, r)

	r, err = ParseRef("")
	require.NoError(t, err)
	assert.Equal(t, Ref(""), r)

	_, err = ParseRef("unicorn")
	assert.True(t, errors.Is(err, ErrIconNotFound))
}

func TestStaticCatalogue(t *testing.T) {
	cat := NewStatic()
	ctx := context.Background()

	for _, ref := range Refs() {
		icon, err := cat.Resolve(ctx, ref)
		require.NoError(t, err, ref)
		assert.Contains(t, string(icon.Image), "<svg")
		assert.Equal(t, "image/svg+xml", icon.ContentType)
	}

	_, err := cat.Resolve(ctx, Ref("UNICORN"))
	assert.True(t, errors.Is(err, ErrIconNotFound))

	list, err := cat.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, len(Refs()))
	assert.Equal(t, RefDocument, list[0].Ref)
}

func TestRemoteCatalogue(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		img := base64.StdEncoding.EncodeToString([]byte("<svg/>"))
		fmt.Fprintf(w, `{"icons":[{"icon":"SHIELD","displayName":"Warranty","image":%q},{"icon":"UNICORN","image":""}]}`, img)
	}))
	defer srv.Close()

	cat := NewRemote(srv.URL)
	ctx := context.Background()

	icon, err := cat.Resolve(ctx, RefShield)
	require.NoError(t, err)
	assert.Equal(t, "Warranty", icon.DisplayName)
	assert.Equal(t, []byte("<svg/>"), icon.Image)

	_, err = cat.Resolve(ctx, RefLock)
	assert.True(t, errors.Is(err, ErrIconNotFound))

	list, err := cat.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Entry{{Ref: RefShield, DisplayName: "Warranty"}}, list)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestRemoteCatalogueBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewRemote(srv.URL).List(context.Background())
	assert.Error(t, err)
}

func TestNewMinioRequiresBucket(t *testing.T) {
	_, err := NewMinio(MinioConfig{Endpoint: "localhost:9000"})
	assert.Error(t, err)

	m, err := NewMinio(MinioConfig{Endpoint: "localhost:9000", Bucket: "icons", Prefix: "/contract/"})
	require.NoError(t, err)
	assert.Equal(t, "contract/shield.svg", m.key(RefShield))
}
