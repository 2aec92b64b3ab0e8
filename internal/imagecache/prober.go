// prober.go: the object-store path prober. The resolver only needs to
// know whether an object exists and how to address it publicly, so the
// minio client hides behind a two-method interface.
package imagecache

import (
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/tvaltari/wayfind-go/internal/conf"
	"github.com/tvaltari/wayfind-go/internal/errors"
)

// ObjectProber checks object existence in the remote object store and
// builds public URLs for objects that exist.
type ObjectProber interface {
	// Probe reports whether the object at path exists. A missing object
	// is (false, nil); only unexpected failures return an error.
	Probe(ctx context.Context, objectPath string) (bool, error)
	// URLFor returns the public URL for the object at path.
	URLFor(objectPath string) string
}

type minioProber struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

// NewMinioProber creates an ObjectProber backed by an S3-compatible
// endpoint.
func NewMinioProber(settings *conf.ObjectStoreSettings) (ObjectProber, error) {
	if settings.Endpoint == "" {
		return nil, errors.Newf("object store endpoint is required").
			Category(errors.CategoryConfiguration).
			Component("imagecache").
			Build()
	}

	client, err := minio.New(settings.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(settings.AccessKey, settings.SecretKey, ""),
		Secure: settings.UseSSL,
	})
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Component("imagecache").
			Context("endpoint", settings.Endpoint).
			Build()
	}

	return &minioProber{
		client:  client,
		bucket:  settings.Bucket,
		baseURL: strings.TrimSuffix(client.EndpointURL().String(), "/"),
	}, nil
}

func (p *minioProber) Probe(ctx context.Context, objectPath string) (bool, error) {
	_, err := p.client.StatObject(ctx, p.bucket, objectPath, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	errResp := minio.ToErrorResponse(err)
	if errResp.Code == "NoSuchKey" || errResp.Code == "NoSuchBucket" {
		return false, nil
	}
	return false, err
}

func (p *minioProber) URLFor(objectPath string) string {
	return fmt.Sprintf("%s/%s/%s", p.baseURL, p.bucket, objectPath)
}
