package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIgnoreFilter_DefaultPatterns(t *testing.T) {
	f := NewIgnoreFilter()

	ignored := []string{
		"package-lock.json",
		"web/yarn.lock",
		"node_modules/react/index.js",
		"dist/app.js",
		"static/app.min.js",
		".env",
		".env.production",
		"assets/logo.png",
	}
	for _, p := range ignored {
		assert.True(t, f.ShouldIgnore(p), p)
	}

	kept := []string{
		"main.go",
		"src/components/Button.tsx",
		"README.md",
		"internal/builder/build.go",
	}
	for _, p := range kept {
		assert.False(t, f.ShouldIgnore(p), p)
	}
}

func TestIgnoreFilter_RepositoryPatterns(t *testing.T) {
	f := NewIgnoreFilter("# generated\n*.pb.go\n\nfixtures/\n", "docs/legacy\n")

	assert.True(t, f.ShouldIgnore("api/service.pb.go"))
	assert.True(t, f.ShouldIgnore("fixtures/data.json"))
	assert.True(t, f.ShouldIgnore("docs/legacy/old.md"))
	assert.False(t, f.ShouldIgnore("api/service.go"))
}
