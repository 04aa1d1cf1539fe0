package fscache

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func countingDownloader(calls *int, payload string) Downloader {
	return func() ([]byte, error) {
		*calls++
		return []byte(payload), nil
	}
}

func TestFetchWithinTTLReusesFile(t *testing.T) {
	cache, err := New(t.TempDir(), time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	calls := 0
	dl := countingDownloader(&calls, "payload")

	first, err := cache.Fetch("ns", "file.txt", dl)
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if first.Fresh {
		t.Error("first fetch should not be fresh")
	}

	second, err := cache.Fetch("ns", "file.txt", dl)
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if !second.Fresh {
		t.Error("second fetch should be fresh")
	}
	if calls != 1 {
		t.Errorf("downloader calls = %d, want 1", calls)
	}
}

func TestFetchPastTTLRedownloads(t *testing.T) {
	root := t.TempDir()
	cache, err := New(root, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	calls := 0
	dl := countingDownloader(&calls, "payload")
	if _, err := cache.Fetch("ns", "file.txt", dl); err != nil {
		t.Fatal(err)
	}

	// Age the file beyond the TTL.
	stale := time.Now().Add(-2 * time.Hour)
	path := filepath.Join(root, "ns", "file.txt")
	if err := os.Chtimes(path, stale, stale); err != nil {
		t.Fatal(err)
	}

	cached, err := cache.Fetch("ns", "file.txt", dl)
	if err != nil {
		t.Fatal(err)
	}
	if cached.Fresh {
		t.Error("stale entry reported fresh")
	}
	if calls != 2 {
		t.Errorf("downloader calls = %d, want 2", calls)
	}
}

func TestZeroTTLDisablesReuse(t *testing.T) {
	cache, err := New(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}

	calls := 0
	dl := countingDownloader(&calls, "payload")
	for i := 0; i < 3; i++ {
		if _, err := cache.Fetch("ns", "file.txt", dl); err != nil {
			t.Fatal(err)
		}
	}
	if calls != 3 {
		t.Errorf("downloader calls = %d, want 3", calls)
	}
}

func TestDownloaderErrorLeavesNoFile(t *testing.T) {
	root := t.TempDir()
	cache, err := New(root, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	sentinel := errors.New("upstream down")
	_, err = cache.Fetch("ns", "file.txt", func() ([]byte, error) { return nil, sentinel })
	if !errors.Is(err, sentinel) {
		t.Fatalf("error = %v, want %v", err, sentinel)
	}
	if _, statErr := os.Stat(filepath.Join(root, "ns", "file.txt")); !os.IsNotExist(statErr) {
		t.Error("partial file left behind after downloader failure")
	}
}

func TestReadText(t *testing.T) {
	cache, err := New(t.TempDir(), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	text, err := cache.ReadText("ns", "file.txt", func() ([]byte, error) { return []byte("hello"), nil })
	if err != nil {
		t.Fatal(err)
	}
	if text != "hello" {
		t.Errorf("text = %q", text)
	}
}
