package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "foo@bar.com", Normalize(" Foo@BAR.com "))
	assert.Equal(t, "x@y.com", Normalize("mailto:X@Y.com"))
	assert.Equal(t, "x@y.com", Normalize("MAILTO: x@y.com"))
	assert.Equal(t, "", Normalize("   "))
}

func TestNormalizedFormsCompareEqual(t *testing.T) {
	assert.Equal(t, Normalize("mailto:Foo@Example.COM"), Normalize("  foo@example.com"))
	assert.NotEqual(t, Normalize("foo@example.com"), Normalize("bar@example.com"))
}

func TestDomain(t *testing.T) {
	assert.Equal(t, "example.com", Domain("a@example.com"))
	assert.Equal(t, "example.com", Domain("a@b@example.com"))
	assert.Equal(t, "", Domain("no-at-sign"))
}

func TestMatchesDomain(t *testing.T) {
	assert.True(t, MatchesDomain("a@example.com", "example.com"))
	assert.True(t, MatchesDomain("a@mail.sub.example.com", "example.com"))
	assert.False(t, MatchesDomain("a@notexample.com", "example.com"))
	assert.False(t, MatchesDomain("a@example.com.evil.net", "example.com"))
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("info@example.com"))
	assert.True(t, Valid("first.last+tag@sub.example.co"))
	assert.False(t, Valid("us@info"))
	assert.False(t, Valid("not an email"))
	assert.False(t, Valid("has space@example.com"))
}
