// Package storage keeps JSON documents in Azure Blob Storage under
// hierarchical keys built with Key.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/JaimeStill/renewal/pkg/lifecycle"
)

const contentTypeJSON = "application/json"

// Item describes a stored document without its body.
type Item struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// System stores and retrieves documents.
type System interface {
	// Start registers a startup hook that ensures the container exists.
	Start(lc *lifecycle.Coordinator) error
	// Put writes doc at key, replacing any existing document. meta is stored as blob metadata.
	Put(ctx context.Context, key string, doc []byte, meta map[string]string) error
	// Get returns the document at key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// List returns the documents whose keys start with prefix.
	List(ctx context.Context, prefix string) ([]Item, error)
}

// Key joins escaped segments into a storage key.
func Key(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return strings.Join(escaped, "/")
}

type azure struct {
	client    *azblob.Client
	container string
	logger    *slog.Logger
}

// New creates an Azure-backed System. The connection string is parsed here;
// no request is made until Start runs.
func New(cfg *Config, logger *slog.Logger) (System, error) {
	client, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	return &azure{
		client:    client,
		container: cfg.ContainerName,
		logger:    logger.With("system", "storage"),
	}, nil
}

func (a *azure) Start(lc *lifecycle.Coordinator) error {
	lc.OnStartup("storage", func(ctx context.Context) error {
		_, err := a.client.CreateContainer(ctx, a.container, nil)
		if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
			a.logger.Error("container initialization failed", "container", a.container, "error", err)
			return fmt.Errorf("create container %s: %w", a.container, err)
		}
		a.logger.Info("container ready", "container", a.container)
		return nil
	})
	return nil
}

func (a *azure) Put(ctx context.Context, key string, doc []byte, meta map[string]string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	contentType := contentTypeJSON
	opts := &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	}
	if len(meta) > 0 {
		opts.Metadata = make(map[string]*string, len(meta))
		for k, v := range meta {
			opts.Metadata[k] = &v
		}
	}

	if _, err := a.client.UploadBuffer(ctx, a.container, key, doc, opts); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (a *azure) Get(ctx context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	resp, err := a.client.DownloadStream(ctx, a.container, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer resp.Body.Close()

	doc, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return doc, nil
}

func (a *azure) List(ctx context.Context, prefix string) ([]Item, error) {
	if strings.Contains(prefix, "..") {
		return nil, ErrInvalidKey
	}

	pager := a.client.NewListBlobsFlatPager(a.container, &azblob.ListBlobsFlatOptions{
		Prefix: &prefix,
	})

	var items []Item
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, b := range page.Segment.BlobItems {
			if b.Name == nil {
				continue
			}
			item := Item{Key: *b.Name}
			if p := b.Properties; p != nil {
				if p.ContentLength != nil {
					item.Size = *p.ContentLength
				}
				if p.LastModified != nil {
					item.LastModified = *p.LastModified
				}
			}
			items = append(items, item)
		}
	}
	return items, nil
}

func validateKey(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if strings.Contains(key, "..") {
		return ErrInvalidKey
	}
	return nil
}
