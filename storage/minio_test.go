package storage

import (
	"context"
	"testing"
	"time"

	"TrackLens/config"
)

func TestObjectKey(t *testing.T) {
	if got := ObjectKey("abc", "MP3"); got != "tracks/abc.mp3" {
		t.Errorf("ObjectKey = %q", got)
	}
}

func TestContentType(t *testing.T) {
	if got := ContentType("zzz-unknown"); got != "application/octet-stream" {
		t.Errorf("ContentType(unknown) = %q", got)
	}
	if got := ContentType("wav"); got == "" {
		t.Error("ContentType(wav) is empty")
	}
}

func TestNewMinioStoreUnreachable(t *testing.T) {
	cfg := &config.Config{
		MinioEndpoint: "127.0.0.1:1",
		MinioBucket:   "tracklens",
		MinioRegion:   "us-east-1",
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := NewMinioStore(ctx, cfg); err == nil {
		t.Fatal("expected error for unreachable endpoint")
	}
}
