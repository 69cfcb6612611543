package gcs

import (
	"testing"
)

func TestParseURI(t *testing.T) {
	tests := []struct {
		name       string
		uri        string
		wantBucket string
		wantObject string
		wantErr    bool
	}{
		{"nested", "gs://budget-config/prod/mapping.json", "budget-config", "prod/mapping.json", false},
		{"flat", "gs://b/m.json", "b", "m.json", false},
		{"wrong scheme", "s3://b/m.json", "", "", true},
		{"bucket only", "gs://b", "", "", true},
		{"empty object", "gs://b/", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket, object, err := ParseURI(tt.uri)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseURI() error = %v, wantErr %v", err, tt.wantErr)
			}
			if bucket != tt.wantBucket || object != tt.wantObject {
				t.Errorf("ParseURI() = %q, %q; want %q, %q", bucket, object, tt.wantBucket, tt.wantObject)
			}
		})
	}
}

func TestBaseName(t *testing.T) {
	if got := BaseName("gs://bucket/folder/mapping.json"); got != "mapping.json" {
		t.Errorf("BaseName() = %q", got)
	}
	if got := BaseName("gs://bucket"); got != "bucket" {
		t.Errorf("BaseName() = %q", got)
	}
}
