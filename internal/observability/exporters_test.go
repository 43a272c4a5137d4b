package observability

import "testing"

func TestSignalURL(t *testing.T) {
	t.Parallel()

	testcases := []struct {
		name     string
		endpoint string
		path     string
		want     string
		wantErr  bool
	}{
		{name: "bare host", endpoint: "https://collector:4318", path: metricsPath, want: "https://collector:4318/v1/metrics"},
		{name: "prefix path", endpoint: "https://example.com/otlp", path: tracesPath, want: "https://example.com/otlp/v1/traces"},
		{name: "trailing slash", endpoint: "http://localhost:4318/", path: tracesPath, want: "http://localhost:4318/v1/traces"},
		{name: "already present", endpoint: "https://example.com/otlp/v1/metrics", path: metricsPath, want: "https://example.com/otlp/v1/metrics"},
		{name: "query kept", endpoint: "https://example.com/otlp?token=abc", path: tracesPath, want: "https://example.com/otlp/v1/traces?token=abc"},
		{name: "empty", endpoint: " ", path: metricsPath, wantErr: true},
	}

	for _, tt := range testcases {
		t.Run(tt.name, func(t *testing.T) {
			got, err := signalURL(tt.endpoint, tt.path)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestParseGRPCEndpoint(t *testing.T) {
	t.Parallel()

	testcases := []struct {
		raw          string
		wantHost     string
		wantInsecure bool
		wantErr      bool
	}{
		{raw: "collector:4317", wantHost: "collector:4317", wantInsecure: true},
		{raw: "grpc://collector:4317", wantHost: "collector:4317", wantInsecure: true},
		{raw: "https://collector:4317", wantHost: "collector:4317", wantInsecure: false},
		{raw: "collector", wantErr: true},
		{raw: "ftp://collector:21", wantErr: true},
		{raw: "", wantErr: true},
	}

	for _, tt := range testcases {
		t.Run(tt.raw, func(t *testing.T) {
			host, insecure, err := parseGRPCEndpoint(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if host != tt.wantHost || insecure != tt.wantInsecure {
				t.Fatalf("got (%q, %t), want (%q, %t)", host, insecure, tt.wantHost, tt.wantInsecure)
			}
		})
	}
}
