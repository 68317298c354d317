package flagx

import (
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

var serverFlags = []string{"-a", "-b", "-d", "-l"}

func TestFilterArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		allowed []string
		want    []string
	}{
		{
			name:    "server flags kept, loader flags dropped",
			args:    []string{"-c", "conf.json", "-a", ":8080", "-env", ".env", "-b", "redis"},
			allowed: serverFlags,
			want:    []string{"-a", ":8080", "-b", "redis"},
		},
		{
			name:    "loader flags kept, server flags dropped",
			args:    []string{"-a", ":8080", "--config=prod.json", "-env", "/srv/.env"},
			allowed: []string{"-c", "--config", "-env"},
			want:    []string{"--config=prod.json", "-env", "/srv/.env"},
		},
		{
			name:    "dsn containing '=' passed with equals form",
			args:    []string{"-d=host=db user=files sslmode=disable", "-l", "debug"},
			allowed: serverFlags,
			want:    []string{"-d=host=db user=files sslmode=disable", "-l", "debug"},
		},
		{
			name:    "flag at the end keeps no value",
			args:    []string{"-b"},
			allowed: serverFlags,
			want:    []string{"-b"},
		},
		{
			name:    "dash token is never a value",
			args:    []string{"-l", "-b", "memory"},
			allowed: serverFlags,
			want:    []string{"-l", "-b", "memory"},
		},
		{
			name:    "positional args ignored",
			args:    []string{"serve", "extra", "--unknown=1"},
			allowed: serverFlags,
			want:    []string{},
		},
		{
			name:    "repeats preserved in order",
			args:    []string{"-b", "s3", "-b", "minio"},
			allowed: serverFlags,
			want:    []string{"-b", "s3", "-b", "minio"},
		},
		{
			name:    "empty",
			args:    nil,
			allowed: serverFlags,
			want:    []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterArgs(tt.args, tt.allowed)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("FilterArgs() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStringFlag(t *testing.T) {
	args := []string{"-a", ":8080", "-env", "a.env", "--env=b.env", "-b", "redis"}

	assert.Equal(t, "b.env", stringFlag(args, "env"))
	assert.Empty(t, stringFlag(args, "c", "config"))
}

func TestJsonConfigFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	cases := map[string][]string{
		"/path/short.json": {"testbin", "-c", "/path/short.json"},
		"/path/long.json":  {"testbin", "-b", "memory", "-config", "/path/long.json"},
		"/path/2.json":     {"testbin", "-c", "/path/1.json", "-config", "/path/2.json"},
		"/path/eq.json":    {"testbin", "--config=/path/eq.json", "-a", ":8080"},
		"":                 {"testbin", "-a", ":8080", "-env", ".env"},
	}
	for want, args := range cases {
		os.Args = args
		assert.Equal(t, want, JsonConfigFlags(), "%v", args)
	}
}

func TestEnvFileFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	os.Args = []string{"testbin", "-a", ":8080", "-env", "/srv/.env"}
	assert.Equal(t, "/srv/.env", EnvFileFlags())

	os.Args = []string{"testbin", "-c", "cfg.json"}
	assert.Empty(t, EnvFileFlags())
}
