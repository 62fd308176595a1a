package web

import (
	"io/fs"
	"testing"
)

func TestEmbeddedTemplatesExist(t *testing.T) {
	templatesFS := GetTemplatesFS()

	requiredFiles := []string{
		"layout.html",
		"login.html",
		"otp.html",
		"register.html",
		"forgot.html",
		"polls.html",
		"poll.html",
		"home.html",
		"unauthorized.html",
		"loading.html",
		"error.html",
		"admin/dashboard.html",
		"admin/results.html",
	}

	for _, file := range requiredFiles {
		_, err := fs.Stat(templatesFS, file)
		if err != nil {
			t.Errorf("required template %q not found: %v", file, err)
		}
	}
}

func TestEmbeddedStaticFilesExist(t *testing.T) {
	staticFS := GetStaticFS()

	requiredFiles := []string{
		"css/app.css",
		"js/app.js",
		"js/poll.js",
	}

	for _, file := range requiredFiles {
		_, err := fs.Stat(staticFS, file)
		if err != nil {
			t.Errorf("required static file %q not found: %v", file, err)
		}
	}
}

func TestTemplatesReadable(t *testing.T) {
	content, err := fs.ReadFile(GetTemplatesFS(), "layout.html")
	if err != nil {
		t.Fatalf("failed to read layout.html: %v", err)
	}
	if len(content) == 0 {
		t.Error("layout.html is empty")
	}
}

func TestStaticFilesReadable(t *testing.T) {
	content, err := fs.ReadFile(GetStaticFS(), "js/poll.js")
	if err != nil {
		t.Fatalf("failed to read js/poll.js: %v", err)
	}
	if len(content) == 0 {
		t.Error("js/poll.js is empty")
	}
}
