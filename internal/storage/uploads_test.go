package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSanitizeFilename(t *testing.T) {
	rejected := []string{
		"",
		"../../etc/passwd",
		"/etc/passwd",
		`\windows\system32`,
		"a/b.jpg",
		"a\\b.jpg",
		"nul\x00.jpg",
		"..",
	}
	for _, name := range rejected {
		if _, err := SanitizeFilename(name); !errors.Is(err, ErrUnsafePath) {
			t.Errorf("SanitizeFilename(%q) = %v, want ErrUnsafePath", name, err)
		}
	}

	cases := []struct {
		in, want string
	}{
		{"photo.jpg", "photo.jpg"},
		{"con.jpg", "safe_con.jpg"},
		{"LPT1.png", "safe_LPT1.png"},
		{`we<ird>:"name.png`, "weirdname.png"},
	}
	for _, c := range cases {
		got, err := SanitizeFilename(c.in)
		if err != nil {
			t.Errorf("SanitizeFilename(%q): %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestResolvePathConfinement(t *testing.T) {
	u, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	got, err := u.ResolvePath("photo.jpg")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(got, u.Dir+string(filepath.Separator)) {
		t.Errorf("resolved %q outside %q", got, u.Dir)
	}

	for _, name := range []string{"../../etc/passwd", "/etc/passwd", "sub/../../x"} {
		if _, err := u.ResolvePath(name); !errors.Is(err, ErrUnsafePath) {
			t.Errorf("ResolvePath(%q) = %v, want ErrUnsafePath", name, err)
		}
	}
}

func TestSaveDeleteRoundTrip(t *testing.T) {
	u, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	stored, src, err := u.Save("mi foto.jpg", strings.NewReader("image-bytes"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(stored, ".jpg") || !strings.Contains(stored, "mi foto") {
		t.Errorf("stored name = %q", stored)
	}
	if src != "/uploads/"+stored {
		t.Errorf("src = %q", src)
	}
	if !u.Exists(stored) {
		t.Error("saved file missing")
	}

	data, err := os.ReadFile(filepath.Join(u.Dir, stored))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "image-bytes" {
		t.Errorf("content = %q", data)
	}

	if err := u.Delete(stored); err != nil {
		t.Fatal(err)
	}
	if u.Exists(stored) {
		t.Error("file survived Delete")
	}
}

func TestSaveGeneratesUniqueNames(t *testing.T) {
	u, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	a, _, err := u.Save("photo.jpg", strings.NewReader("a"))
	if err != nil {
		t.Fatal(err)
	}
	b, _, err := u.Save("photo.jpg", strings.NewReader("b"))
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Errorf("two saves produced the same name %q", a)
	}
}

func TestDeleteRejectsTraversal(t *testing.T) {
	u, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := u.Delete("../../etc/passwd"); !errors.Is(err, ErrUnsafePath) {
		t.Errorf("got %v, want ErrUnsafePath", err)
	}
}
