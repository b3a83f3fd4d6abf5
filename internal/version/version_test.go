package version

import "testing"

func TestCheckSkew(t *testing.T) {
	tests := []struct {
		name     string
		client   string
		daemon   string
		wantWarn bool
	}{
		{name: "identical", client: "1.2.3", daemon: "1.2.3", wantWarn: false},
		{name: "patch drift", client: "1.2.3", daemon: "1.2.9", wantWarn: false},
		{name: "minor drift", client: "1.3.0", daemon: "1.2.9", wantWarn: true},
		{name: "major drift", client: "2.0.0", daemon: "1.9.0", wantWarn: true},
		{name: "dev client", client: "dev", daemon: "1.2.3", wantWarn: false},
		{name: "dev daemon", client: "1.2.3", daemon: "dev", wantWarn: false},
		{name: "both dev", client: "dev", daemon: "dev", wantWarn: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			warn := CheckSkew(tt.client, tt.daemon)
			if (warn != "") != tt.wantWarn {
				t.Errorf("CheckSkew(%q, %q) = %q, wantWarn=%v", tt.client, tt.daemon, warn, tt.wantWarn)
			}
		})
	}
}
