package extract

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestClassifyFailure(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   error
	}{
		{"wrong password", "ERROR: Wrong password : setup.part1.rar", ErrPasswordProtected},
		{"password prompt", "Enter password (will not be echoed):", ErrPasswordProtected},
		{"crc", "ERROR: CRC Failed : data.bin", ErrCorrupt},
		{"data error", "Data Error : payload.bin", ErrCorrupt},
		{"truncated", "Unexpected end of archive", ErrCorrupt},
		{"not an archive", "Cannot open the file as archive", ErrUnsupportedFormat},
		{"unsupported method", "Unsupported Method", ErrUnsupportedFormat},
		{"unclassified", "some other failure", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyFailure(tt.output)
			if !errors.Is(got, tt.want) {
				t.Errorf("classifyFailure(%q) = %v, want %v", tt.output, got, tt.want)
			}
		})
	}
}

func TestIsArchive(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"game.rar", true},
		{"game.ZIP", true},
		{"game.7z", true},
		{"game.001", true},
		{"game.iso", false},
		{"setup.exe", false},
		{"readme.txt", false},
	}
	for _, tt := range tests {
		if IsArchive(tt.path) != tt.want {
			t.Errorf("IsArchive(%q) = %v, want %v", tt.path, !tt.want, tt.want)
		}
	}
}

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o640); err != nil {
			t.Fatal(err)
		}
	}
}

func TestFindNestedArchive(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "readme.txt", "payload/game.part2.rar", "payload/game.part1.rar")

	found, err := FindNestedArchive(dir)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(found) != "game.part1.rar" {
		t.Errorf("found %q, want the first split volume", found)
	}
}

func TestFindNestedArchiveSkipsContinuationVolumes(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "game.part2.rar", "game.part3.rar")

	found, err := FindNestedArchive(dir)
	if err != nil {
		t.Fatal(err)
	}
	if found != "" {
		t.Errorf("found %q, want nothing without an entry volume", found)
	}
}

func TestFindISO(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "readme.txt", "disc/GAME.ISO")

	found, err := FindISO(dir)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(found) != "GAME.ISO" {
		t.Errorf("found %q, want the disc image", found)
	}
}

func TestFindInstallerPrefersSetup(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "game.exe", "redist/setup.exe")

	found, err := FindInstaller(dir)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(found) != "setup.exe" {
		t.Errorf("found %q, want setup.exe over plain executables", found)
	}
}

func TestFindInstallerFallsBackToAnyExe(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "readme.txt", "game.exe")

	found, err := FindInstaller(dir)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(found) != "game.exe" {
		t.Errorf("found %q, want the only executable", found)
	}
}

func TestFindInstallerEmptyDir(t *testing.T) {
	found, err := FindInstaller(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if found != "" {
		t.Errorf("found %q in an empty directory", found)
	}
}
