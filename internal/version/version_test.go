package version

import "testing"

func TestString(t *testing.T) {
	tests := []struct {
		info Info
		want string
	}{
		{Info{Name: "threadview", Version: "v1.2.0"}, "threadview version v1.2.0"},
		{Info{Name: "threadview", Version: "dev", GoVersion: "go1.25.6", Modified: true}, "threadview version dev (go1.25.6) +dirty"},
	}
	for _, tt := range tests {
		if got := tt.info.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestReadOverride(t *testing.T) {
	old := Version
	Version = "v9.9.9"
	defer func() { Version = old }()

	if got := Read("threadview"); got.Version != "v9.9.9" || got.Name != "threadview" {
		t.Errorf("Read = %+v", got)
	}
}
