package db

import (
	"path/filepath"
	"testing"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()

	repo, err := NewRepository(filepath.Join(t.TempDir(), "images.db"))
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestRepository_CreateAndGet(t *testing.T) {
	repo := newTestRepo(t)

	img := &Image{
		URL:    "https://downloads.example.com/raspios-lite.img",
		Name:   "Raspberry Pi OS Lite",
		Status: StatusPending,
	}

	if err := repo.Create(img); err != nil {
		t.Fatalf("failed to create image: %v", err)
	}

	retrieved, err := repo.GetByURL(img.URL)
	if err != nil {
		t.Fatalf("failed to get image: %v", err)
	}
	if retrieved == nil || retrieved.URL != img.URL || retrieved.Name != img.Name || retrieved.ID != img.ID {
		t.Errorf("retrieved image mismatch: got %+v, want %+v", retrieved, img)
	}

	missing, err := repo.GetByURL("https://downloads.example.com/other.img")
	if err != nil || missing != nil {
		t.Errorf("expected nil, nil for missing image, got %+v, %v", missing, err)
	}

	if err := repo.Create(&Image{URL: img.URL, Name: "dup", Status: StatusPending}); err == nil {
		t.Error("expected duplicate URL to be rejected")
	}
}

func TestRepository_UpdateAndStatus(t *testing.T) {
	repo := newTestRepo(t)

	img := &Image{URL: "https://downloads.example.com/a.img", Name: "A", Status: StatusPending}
	if err := repo.Create(img); err != nil {
		t.Fatalf("failed to create image: %v", err)
	}

	if err := repo.UpdateStatus(img.ID, StatusDownloading, ""); err != nil {
		t.Fatalf("failed to update status: %v", err)
	}

	img.Status = StatusReady
	img.LocalPath = "/cache/images/a.img"
	img.Digest = "sha256:abc"
	img.Size = 42
	if err := repo.Update(img); err != nil {
		t.Fatalf("failed to update image: %v", err)
	}

	updated, _ := repo.GetByURL(img.URL)
	if updated.Status != StatusReady || updated.LocalPath != img.LocalPath || updated.Size != 42 || updated.Digest != "sha256:abc" {
		t.Errorf("image not updated: %+v", updated)
	}

	if err := repo.UpdateStatus(img.ID, "cleaned", ""); err == nil {
		t.Error("expected unknown status to be rejected")
	}

	if err := repo.Update(&Image{ID: 999, Status: StatusReady}); err == nil {
		t.Error("expected update of missing image to fail")
	}
}

func TestRepository_ListAndDelete(t *testing.T) {
	repo := newTestRepo(t)

	repo.Create(&Image{URL: "https://a/1.img", Name: "1", Status: StatusReady})
	repo.Create(&Image{URL: "https://a/2.img", Name: "2", Status: StatusFailed})

	images, err := repo.List()
	if err != nil {
		t.Fatalf("failed to list images: %v", err)
	}
	if len(images) != 2 {
		t.Fatalf("expected 2 images, got %d", len(images))
	}

	if err := repo.Delete(images[0].ID); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	images, _ = repo.List()
	if len(images) != 1 {
		t.Errorf("expected 1 image after delete, got %d", len(images))
	}
}

func TestRepository_Flashes(t *testing.T) {
	repo := newTestRepo(t)

	records := []*Flash{
		{RunID: "01A", ImageName: "Lite", ImageLocation: "/cache/lite.img", Device: "/dev/sdb", DeviceLabel: "SanDisk", BytesTotal: 100, BytesWritten: 100, Status: FlashSuccess},
		{RunID: "01B", ImageName: "Lite", ImageLocation: "/cache/lite.img", Device: "/dev/sdc", BytesTotal: 100, BytesWritten: 40, Status: FlashFailed, ErrorMessage: "device write failed"},
		{RunID: "01C", ImageName: "Custom", ImageLocation: "/tmp/x.img", Device: "/dev/sdb", BytesTotal: -1, Status: FlashDeclined},
	}
	for _, f := range records {
		if err := repo.RecordFlash(f); err != nil {
			t.Fatalf("failed to record flash: %v", err)
		}
		if f.ID == 0 {
			t.Errorf("expected id to be set for %s", f.RunID)
		}
	}

	all, err := repo.ListFlashes(0)
	if err != nil {
		t.Fatalf("failed to list flashes: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 flashes, got %d", len(all))
	}
	if all[0].RunID != "01C" {
		t.Errorf("expected newest first, got %s", all[0].RunID)
	}
	if all[1].ErrorMessage != "device write failed" || all[1].BytesWritten != 40 {
		t.Errorf("failed flash not stored faithfully: %+v", all[1])
	}

	limited, _ := repo.ListFlashes(1)
	if len(limited) != 1 {
		t.Errorf("expected limit to apply, got %d", len(limited))
	}

	if err := repo.RecordFlash(&Flash{RunID: "01D", ImageName: "x", ImageLocation: "x", Device: "x", Status: "aborted"}); err == nil {
		t.Error("expected unknown flash status to be rejected")
	}
}
