package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanEndpoint(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"minio.local:9000", "minio.local:9000", false},
		{"http://minio.local:9000", "minio.local:9000", false},
		{"https://s3.example.com/", "s3.example.com", false},
		{"https://s3.example.com/bucket", "", true},
		{"minio.local:9000/bucket", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := cleanEndpoint(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestNewMinIOSink(t *testing.T) {
	_, err := NewMinIOSink(Config{Endpoint: "minio.local:9000"})
	assert.Error(t, err)

	sink, err := NewMinIOSink(Config{Endpoint: "http://minio.local:9000", Bucket: "logs", Prefix: "/colorado/"})
	require.NoError(t, err)
	assert.Equal(t, "colorado/05-001-00001.las", sink.objectKey("05-001-00001.las"))

	sink, err = NewMinIOSink(Config{Endpoint: "minio.local:9000", Bucket: "logs"})
	require.NoError(t, err)
	assert.Equal(t, "a.las", sink.objectKey("a.las"))
}

func TestConfigEnabled(t *testing.T) {
	assert.False(t, Config{}.Enabled())
	assert.True(t, Config{Endpoint: "minio.local:9000"}.Enabled())
}
