package storage

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestDiskStorage_SaveLoadDelete(t *testing.T) {
	s, err := New(&Bucket{StorageType: StorageTypeFile, Path: t.TempDir()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	n, err := s.Save("working/ws1/a.jpg", strings.NewReader("jpeg bytes"))
	if err != nil || n != 10 {
		t.Fatalf("Save = %d, %v", n, err)
	}
	var buf bytes.Buffer
	if _, err = s.Load("working/ws1/a.jpg", &buf); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if buf.String() != "jpeg bytes" {
		t.Fatalf("Load returned %q", buf.String())
	}
	if err = s.Delete("working/ws1/a.jpg"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err = s.Delete("working/ws1/a.jpg"); err != nil {
		t.Fatalf("second Delete should be a no-op: %v", err)
	}
	if _, err = s.Load("working/ws1/a.jpg", &buf); err == nil {
		t.Fatalf("Load after Delete should fail")
	}
}

func TestDiskStorage_RejectsEscapingPaths(t *testing.T) {
	s := NewDiskStorage(&Bucket{Path: t.TempDir()})
	for _, path := range []string{"../outside.jpg", "/etc/passwd", "a/../../b", ""} {
		if _, err := s.Save(path, strings.NewReader("x")); err == nil {
			t.Errorf("Save(%q) should fail", path)
		}
	}
	// nested keys inside the root are fine
	if _, err := s.Save("a/../b/c.jpg", strings.NewReader("x")); err != nil {
		t.Errorf("Save: %v", err)
	}
}

func TestDiskStorage_Overwrite(t *testing.T) {
	s := NewDiskStorage(&Bucket{Path: t.TempDir()})
	for _, body := range []string{"first version", "v2"} {
		if _, err := s.Save("ws/p", strings.NewReader(body)); err != nil {
			t.Fatal(err)
		}
	}
	var buf bytes.Buffer
	if _, err := s.Load("ws/p", &buf); err != nil || buf.String() != "v2" {
		t.Errorf("Load = %q, %v", buf.String(), err)
	}
}

func TestDiskStorage_FreeSpace(t *testing.T) {
	s := NewDiskStorage(&Bucket{Path: t.TempDir()})
	free, ok, err := s.FreeSpace()
	if err != nil || !ok {
		t.Fatalf("FreeSpace = %d, %v, %v", free, ok, err)
	}
	if free == 0 {
		t.Errorf("expected some free space in the temp dir")
	}
}

func TestNew_UnknownType(t *testing.T) {
	if _, err := New(&Bucket{StorageType: 9}); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}

func TestBucket_GetRemotePath(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"", "working/a.jpg"},
		{"/photoman/", "photoman/working/a.jpg"},
		{"staging", "staging/working/a.jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			b := Bucket{Path: tt.prefix}
			if got := b.GetRemotePath("working/a.jpg"); got != tt.want {
				t.Errorf("GetRemotePath() = %q, want %q", got, tt.want)
			}
		})
	}
}
