package main

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOriginChecker(t *testing.T) {
	open := originChecker([]string{"*"})
	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Origin", "https://evil.example.com")
	assert.True(t, open(r))

	strict := originChecker([]string{"https://play.example.com"})
	assert.False(t, strict(r))

	r.Header.Set("Origin", "https://play.example.com")
	assert.True(t, strict(r))

	r.Header.Del("Origin")
	assert.True(t, strict(r))
}
