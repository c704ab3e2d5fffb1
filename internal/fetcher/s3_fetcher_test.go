package fetcher

import "testing"

func TestParseS3URL(t *testing.T) {
	cases := []struct {
		url        string
		bucket     string
		key        string
		wantErr    bool
	}{
		{url: "s3://my-bucket/path/to/object.bin", bucket: "my-bucket", key: "path/to/object.bin"},
		{url: "s3://my-bucket/object.bin", bucket: "my-bucket", key: "object.bin"},
		{url: "https://example.com/object.bin", wantErr: true},
		{url: "s3://my-bucket/", wantErr: true},
		{url: "s3://", wantErr: true},
	}

	for _, c := range cases {
		bucket, key, err := parseS3URL(c.url)
		if c.wantErr {
			if err == nil {
				t.Errorf("parseS3URL(%q): expected error, got bucket=%q key=%q", c.url, bucket, key)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseS3URL(%q): unexpected error: %v", c.url, err)
			continue
		}
		if bucket != c.bucket || key != c.key {
			t.Errorf("parseS3URL(%q) = (%q, %q), want (%q, %q)", c.url, bucket, key, c.bucket, c.key)
		}
	}
}
