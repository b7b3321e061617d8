package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00, 0x00, 0x0D}

type fakeGetter struct {
	body  []byte
	err   error
	input *s3.GetObjectInput
}

func (f *fakeGetter) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(f.body))}, nil
}

type fakePresigner struct {
	calls int
	opts  s3.PresignOptions
}

func (f *fakePresigner) PresignGetObject(_ context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	f.calls++
	for _, fn := range optFns {
		fn(&f.opts)
	}
	return &v4.PresignedHTTPRequest{URL: "https://bucket.r2.example.com/" + *in.Key + "?X-Amz-Signature=abc"}, nil
}

func TestR2Service_PassesThroughHTTPURLs(t *testing.T) {
	svc := NewR2Service(nil, nil, "", 0)

	got, err := svc.Resolve(context.Background(), "https://cdn.example.com/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a.jpg", got)
}

func TestR2Service_PresignsImages(t *testing.T) {
	getter := &fakeGetter{body: pngHeader}
	presigner := &fakePresigner{}
	svc := NewR2Service(getter, presigner, "media", 15*time.Minute)

	got, err := svc.Resolve(context.Background(), "r2://users/1/photo.png")
	require.NoError(t, err)
	assert.Equal(t, "https://bucket.r2.example.com/users/1/photo.png?X-Amz-Signature=abc", got)

	require.NotNil(t, getter.input)
	assert.Equal(t, "media", *getter.input.Bucket)
	assert.Equal(t, "bytes=0-261", *getter.input.Range)
	assert.Equal(t, 15*time.Minute, presigner.opts.Expires)
}

func TestR2Service_RejectsNonImages(t *testing.T) {
	presigner := &fakePresigner{}
	svc := NewR2Service(&fakeGetter{body: []byte("%PDF-1.7 not an image")}, presigner, "media", time.Hour)

	_, err := svc.Resolve(context.Background(), "r2://doc.pdf")
	assert.ErrorIs(t, err, ErrNotAnImage)
	assert.Zero(t, presigner.calls)
}

func TestR2Service_Errors(t *testing.T) {
	_, err := NewR2Service(nil, nil, "", time.Hour).Resolve(context.Background(), "r2://a.png")
	assert.ErrorIs(t, err, ErrR2Disabled)

	svc := NewR2Service(&fakeGetter{body: pngHeader}, &fakePresigner{}, "media", time.Hour)
	_, err = svc.Resolve(context.Background(), "r2://")
	assert.ErrorIs(t, err, ErrEmptyR2Key)

	missing := errors.New("NoSuchKey")
	svc = NewR2Service(&fakeGetter{err: missing}, &fakePresigner{}, "media", time.Hour)
	_, err = svc.Resolve(context.Background(), "r2://gone.png")
	assert.ErrorIs(t, err, missing)
}
