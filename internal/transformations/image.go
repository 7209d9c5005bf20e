package transformations

import (
	"context"
	"encoding/base64"
	"log"

	"github.com/rpattn/entitysync/internal/domain"
)

// ImageStore returns image bytes for a URL, downloading and caching them on
// first use. Implementations bound the download time.
type ImageStore interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// imageTransformer enriches a product with the image behind UrlFoto. When the
// image cannot be fetched only the URL is recorded.
type imageTransformer struct {
	store ImageStore
}

func (t imageTransformer) Forward(ctx context.Context, env Env, value any) (domain.Values, error) {
	url := domain.AsString(value)
	if url == "" {
		return domain.Values{}, nil
	}
	out := domain.Values{"url_imagen_actual": url}
	if t.store == nil {
		return out, nil
	}

	data, err := t.store.Fetch(ctx, url)
	if err != nil {
		log.Printf("[TRANSFORM] WARN: image %s not fetched, keeping url only: %v", url, err)
		return out, nil
	}
	out["image_1920"] = base64.StdEncoding.EncodeToString(data)
	return out, nil
}

func (imageTransformer) Reverse(ctx context.Context, env Env, value any, record domain.Record) (any, error) {
	return nilIfEmpty(record.String("url_imagen_actual")), nil
}
