package qrcode

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	png, err := Generate("http://localhost:8080/?game=abc", 0)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(png, []byte("\x89PNG")), "output should be a PNG")
}

func TestJoinURL(t *testing.T) {
	require.Equal(t, "http://host:8080/?game=a%2Fb", JoinURL("http://host:8080/", "a/b"))
	require.Equal(t, "https://x/?game=id", JoinURL("https://x", "id"))
}
