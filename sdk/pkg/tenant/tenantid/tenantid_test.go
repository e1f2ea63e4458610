package tenantid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"acme.example.com", "acme.example.com"},
		{"  ACME.Example.COM  ", "acme.example.com"},
		{"acme.example.com:3000", "acme.example.com:3000"},
		{"acme.example.com:80", "acme.example.com"},
		{"acme.example.com:443", "acme.example.com"},
		{"https://acme.example.com/jobs?id=1", "acme.example.com"},
		{"http://acme.example.com:3000/", "acme.example.com:3000"},
		{"https://user:pw@acme.example.com:8443/x", "acme.example.com:8443"},
		{"acme.example.com.", "acme.example.com"},
		{"localhost:5173", "localhost:5173"},
		{"127.0.0.1:80", "127.0.0.1"},
		{"[::1]:8080", "[::1]:8080"},
		{"[::1]:443", "[::1]"},
		{"::1", "[::1]"},
		{"acme.example.com:", "acme.example.com"},
		{"acme.example.com:abc", "acme.example.com"},
		{"", ""},
		{"   ", ""},
		{"https://", ""},
		{"/just/a/path", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), "Normalize(%q)", tt.in)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	for _, in := range []string{"ACME.example.com:3000", "https://a.b.c/", "[::1]:9000", "localhost"} {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once))
	}
}

func TestIsLocal(t *testing.T) {
	local := []string{"localhost", "localhost:3000", "127.0.0.1", "127.0.0.1:8000", "127.8.9.1", "[::1]:8080", "[::1]", "app.localhost", Local}
	for _, id := range local {
		assert.True(t, IsLocal(id), id)
	}
	remote := []string{"acme.example.com", "acme.example.com:3000", "10.0.0.1", "notlocalhost.com", "localhost.example.com"}
	for _, id := range remote {
		assert.False(t, IsLocal(id), id)
	}
}

func TestHostAndURL(t *testing.T) {
	assert.Equal(t, "acme.example.com", Host("acme.example.com:3000"))
	assert.Equal(t, "::1", Host("[::1]"))
	assert.Equal(t, "https://acme.example.com:3000", URL("acme.example.com:3000"))
	assert.Equal(t, "", URL(""))
}

func TestAliases(t *testing.T) {
	a := NewAliases(map[string]string{
		"WWW.acme.example.com":   "acme.example.com",
		"https://old.acme.com/":  "acme.example.com:443",
		"":                       "ignored.example.com",
	})

	assert.Equal(t, "acme.example.com", a.Resolve("www.acme.example.com"))
	assert.Equal(t, "acme.example.com", a.Resolve("old.acme.com"))
	assert.Equal(t, "other.example.com", a.Resolve("other.example.com"))

	a.Set("beta.acme.com", "beta.example.com")
	assert.Equal(t, "beta.example.com", a.Resolve("beta.acme.com"))

	var nilAliases *Aliases
	assert.Equal(t, "x.example.com", nilAliases.Resolve("x.example.com"))
}
