package ioutils

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitizeTitle(t *testing.T) {
	tests := []struct {
		name     string
		title    string
		fallback string
		want     string
	}{
		{"plain", "Never Gonna Give You Up", "id", "Never Gonna Give You Up"},
		{"reserved chars removed", `AC/DC: Back "in" Black?`, "id", "ACDC Back in Black"},
		{"control whitespace", "Line\none\tand\rtwo", "id", "Lineoneandtwo"},
		{"collapse spaces", "  a    b  ", "id", "a b"},
		{"empty falls back", " ?*| ", "dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"unicode kept", "Björk – Jóga", "id", "Björk – Jóga"},
		{"leading dots removed", "...Baby One More Time", "id", "Baby One More Time"},
		{"leading dot after space", " .hack//Sign OST", "id", "hackSign OST"},
		{"only dots falls back", ". . .", "C-u5WLJ9Yk4", "C-u5WLJ9Yk4"},
		{"inner dots kept", "Mr. Brightside", "id", "Mr. Brightside"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeTitle(tt.title, tt.fallback); got != tt.want {
				t.Errorf("SanitizeTitle(%q) = %q, want %q", tt.title, got, tt.want)
			}
		})
	}
}

func TestSanitizeTitleCapsOnRuneBoundary(t *testing.T) {
	title := strings.Repeat("é", 150) // 300 bytes
	got := SanitizeTitle(title, "id")

	if len(got) > MaxNameBytes {
		t.Errorf("len = %d, want <= %d", len(got), MaxNameBytes)
	}
	if !utf8.ValidString(got) {
		t.Error("truncated title is not valid UTF-8")
	}
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meta.json")

	if err := WriteFileAtomic(path, []byte(`{"a":1}`)); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := WriteFileAtomic(path, []byte(`{"a":2}`)); err != nil {
		t.Fatalf("second write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"a":2}` {
		t.Errorf("content = %s", data)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected no temp files left behind, got %d entries", len(entries))
	}
}

func TestMoveFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.mp3")
	dst := filepath.Join(dir, "dst.mp3")
	os.WriteFile(src, []byte("audio"), 0644)

	if err := MoveFile(context.Background(), src, dst); err != nil {
		t.Fatalf("MoveFile: %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("source still exists")
	}
	if !Exists(dst) {
		t.Error("destination missing")
	}
}

func TestArtworkIsSquare(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 480, 360))
	for x := 0; x < 480; x++ {
		for y := 0; y < 360; y++ {
			src.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, nil); err != nil {
		t.Fatal(err)
	}

	out, err := NewImageService().Artwork(context.Background(), buf.Bytes(), 300)
	if err != nil {
		t.Fatalf("Artwork: %v", err)
	}
	img, _, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 300 || b.Dy() != 300 {
		t.Errorf("bounds = %v, want 300x300", b)
	}
}
