package icons

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"
)

// Remote fetches the catalogue document once from a URL of the form
// {"icons":[{"icon":"SHIELD","displayName":"…","image":"<base64>"}]}
// and serves lookups from memory afterwards.
type Remote struct {
	url    string
	client *retryablehttp.Client

	mu     sync.Mutex
	loaded map[Ref]Icon
	order  []Entry
}

func NewRemote(url string) *Remote {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = nil
	return &Remote{url: url, client: client}
}

func (r *Remote) load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded != nil {
		return nil
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch icon catalogue: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch icon catalogue: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read icon catalogue: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return fmt.Errorf("icon catalogue is not valid JSON")
	}

	loaded := map[Ref]Icon{}
	var order []Entry
	var decodeErr error
	gjson.GetBytes(body, "icons").ForEach(func(_, value gjson.Result) bool {
		ref := Ref(value.Get("icon").String())
		if _, ok := lookupKnown(ref); !ok {
			return true
		}
		image, err := base64.StdEncoding.DecodeString(value.Get("image").String())
		if err != nil {
			decodeErr = fmt.Errorf("icon %s: %w", ref, err)
			return false
		}
		name := value.Get("displayName").String()
		if name == "" {
			entry, _ := lookupKnown(ref)
			name = entry.DisplayName
		}
		contentType := value.Get("contentType").String()
		if contentType == "" {
			contentType = "image/svg+xml"
		}
		loaded[ref] = Icon{Ref: ref, DisplayName: name, ContentType: contentType, Image: image}
		order = append(order, Entry{Ref: ref, DisplayName: name})
		return true
	})
	if decodeErr != nil {
		return decodeErr
	}
	r.loaded = loaded
	r.order = order
	return nil
}

func (r *Remote) Resolve(ctx context.Context, ref Ref) (Icon, error) {
	if err := r.load(ctx); err != nil {
		return Icon{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	icon, ok := r.loaded[ref]
	if !ok {
		return Icon{}, notFound(ref)
	}
	icon.Image = append([]byte(nil), icon.Image...)
	return icon, nil
}

func (r *Remote) List(ctx context.Context) ([]Entry, error) {
	if err := r.load(ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.order...), nil
}
