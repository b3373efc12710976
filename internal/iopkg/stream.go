// Package iopkg reads and writes file:// and s3:// URIs; used for run
// summaries and exported image frames, which may land on either scheme.
package iopkg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3iface is the minimal subset of s3 client methods we use; allows test fakes.
type s3iface interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// newS3Client constructs an s3 client; overridden in tests.
var newS3Client = func(ctx context.Context) (s3iface, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(cfg), nil
}

// Open returns a ReadCloser and (if known) size for file:// or s3:// URIs.
func Open(uri string) (io.ReadCloser, int64, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, 0, err
	}
	switch u.Scheme {
	case "file", "":
		p := strings.TrimPrefix(uri, "file://")
		f, err := os.Open(p)
		if err != nil {
			return nil, 0, err
		}
		st, _ := f.Stat()
		var sz int64
		if st != nil {
			sz = st.Size()
		}
		return f, sz, nil
	case "s3":
		ctx := context.Background()
		cl, err := newS3Client(ctx)
		if err != nil {
			return nil, 0, err
		}
		resp, err := cl.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(u.Host),
			Key:    aws.String(strings.TrimPrefix(u.Path, "/")),
		})
		if err != nil {
			return nil, 0, err
		}
		var sz int64
		if resp.ContentLength != nil {
			sz = *resp.ContentLength
		}
		return resp.Body, sz, nil
	default:
		return nil, 0, errors.New("unsupported scheme: " + u.Scheme)
	}
}

// CreateWriter supports file:// and s3://. S3 content is buffered in
// memory and uploaded on Close.
func CreateWriter(uri string) (io.Writer, io.Closer, error) {
	if strings.HasPrefix(uri, "file://") || !strings.Contains(uri, "://") {
		p := strings.TrimPrefix(uri, "file://")
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, nil, err
		}
		f, err := os.Create(p)
		if err != nil {
			return nil, nil, err
		}
		return f, f, nil
	}
	u, err := url.Parse(uri)
	if err != nil {
		return nil, nil, err
	}
	if u.Scheme != "s3" {
		return nil, nil, errors.New("unsupported scheme for CreateWriter: " + u.Scheme)
	}
	var buf bytes.Buffer
	done := false
	return &buf, closerFunc(func() error {
		if done {
			return nil
		}
		done = true
		ctx := context.Background()
		cl, err := newS3Client(ctx)
		if err != nil {
			return err
		}
		_, err = cl.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(u.Host),
			Key:    aws.String(strings.TrimPrefix(u.Path, "/")),
			Body:   bytes.NewReader(buf.Bytes()),
		})
		return err
	}), nil
}

// WriteBytes writes b to the URI in one shot.
func WriteBytes(uri string, b []byte) error {
	w, c, err := CreateWriter(uri)
	if err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		_ = c.Close()
		return err
	}
	return c.Close()
}

// WriteJSON marshals v with indentation and writes it to the URI.
func WriteJSON(uri string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return WriteBytes(uri, b)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
