package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveHostForDocker(t *testing.T) {
	for _, host := range []string{"neo4j.internal", "10.0.0.7", "host.docker.internal"} {
		assert.Equal(t, host, ResolveHostForDocker(host), "non-loopback hosts are never rewritten")
	}

	for _, host := range []string{"localhost", "127.0.0.1"} {
		want := host
		if IsRunningInDocker() {
			want = "host.docker.internal"
		}
		assert.Equal(t, want, ResolveHostForDocker(host))
	}
}
